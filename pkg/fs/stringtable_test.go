package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringTableRoundtrip(t *testing.T) {
	names := []string{"a.txt", "b.bin", "longer_name.nca"}
	table := NewStringTable(names)

	got := table.Strings()
	require.Len(t, got, len(names))
	for i, s := range got {
		assert.Equal(t, names[i], string(s))
	}
}

func TestStringTableOffsets(t *testing.T) {
	table := NewStringTable([]string{"a.txt", "b.bin"})

	offsets := table.Offsets()
	require.Equal(t, []uint32{0, 6}, offsets)

	for i, off := range offsets {
		s, ok := table.Get(off)
		require.True(t, ok)
		assert.Equal(t, table.Strings()[i], s)
	}
}

func TestStringTableGetEdgeCases(t *testing.T) {
	table := StringTable("abc\x00de\x00")

	s, ok := table.Get(0)
	require.True(t, ok)
	assert.Equal(t, "abc", string(s))

	// mid-string offsets address the suffix
	s, ok = table.Get(1)
	require.True(t, ok)
	assert.Equal(t, "bc", string(s))

	s, ok = table.Get(4)
	require.True(t, ok)
	assert.Equal(t, "de", string(s))

	// at the very end: empty table remainder, no terminator
	_, ok = table.Get(7)
	assert.False(t, ok)
	_, ok = table.Get(100)
	assert.False(t, ok)

	// a trailing run without NUL is unreachable
	_, ok = StringTable("abc").Get(0)
	assert.False(t, ok)
}

func TestNewStringTableNormalizes(t *testing.T) {
	// interior NUL truncates, empties are skipped
	table := NewStringTable([]string{"ab\x00cd", "", "ef"})
	got := table.Strings()
	require.Len(t, got, 2)
	assert.Equal(t, "ab", string(got[0]))
	assert.Equal(t, "ef", string(got[1]))
}

func TestStringTableEmptyEntries(t *testing.T) {
	// consecutive NULs yield empty strings when iterating raw tables
	table := StringTable("a\x00\x00b\x00")
	got := table.Strings()
	require.Len(t, got, 3)
	assert.Equal(t, "a", string(got[0]))
	assert.Equal(t, "", string(got[1]))
	assert.Equal(t, "b", string(got[2]))
}
