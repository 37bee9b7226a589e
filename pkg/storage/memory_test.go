package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageReads(t *testing.T) {
	s := NewMemoryStorage([]byte{1, 2, 3, 4})

	buf := make([]byte, 3)
	n, err := s.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, buf)

	// reading past the end is a short read, not an error
	buf = make([]byte, 5)
	n, err = s.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 0}, buf)

	buf = make([]byte, 3)
	n, err = s.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{2, 3, 4}, buf)

	// at the end: zero bytes, no error
	n, err = s.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	length, err := s.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(4), length)
}

func TestMemoryStorageReadOnly(t *testing.T) {
	s := NewMemoryStorage([]byte{1, 2, 3})
	assert.True(t, s.ReadOnly())

	_, err := s.WriteAt([]byte{9}, 0)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMutableMemoryStorageWrites(t *testing.T) {
	s := WithCapacity(6)
	assert.False(t, s.ReadOnly())

	n, err := s.WriteAt([]byte{1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.WriteAt([]byte{3, 4, 5}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// writes clamp at the end instead of growing the buffer
	n, err = s.WriteAt([]byte{6, 7}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.WriteAt([]byte{9}, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s.Bytes(func(buf []byte) {
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, buf)
	})
}
