package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRightsIdRoundtrip(t *testing.T) {
	id, err := ParseRightsId("cafebabedeadbeef0000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0xcafebabedeadbeef0000000000000000", id.String())

	again, err := ParseRightsId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestRightsIdShortFormsAreNumeric(t *testing.T) {
	short, err := ParseRightsId("cafebabedeadbeef")
	require.NoError(t, err)
	long, err := ParseRightsId("0000000000000000cafebabedeadbeef")
	require.NoError(t, err)
	assert.Equal(t, long, short)
	assert.Equal(t, "0x0000000000000000cafebabedeadbeef", short.String())
}

func TestRightsIdZero(t *testing.T) {
	var id RightsId
	assert.True(t, id.IsZero())

	parsed, err := ParseRightsId("00000000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())

	nonzero, err := ParseRightsId("01")
	require.NoError(t, err)
	assert.False(t, nonzero.IsZero())
}

func TestRightsIdRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"zzzz",
		"cafebabedeadbeef0000000000000000ff", // too long
	} {
		_, err := ParseRightsId(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestRightsIdIsBigEndian(t *testing.T) {
	id, err := ParseRightsId("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), id[0])
	assert.Equal(t, byte(0x10), id[15])
}
