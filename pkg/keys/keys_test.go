package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandaloneKeyLookups(t *testing.T) {
	ks := NewKeyset()
	key := bytes.Repeat([]byte{0xAB}, 16)
	ks.InsertKey("some_key", key)

	got, err := ks.GetKey("some_key")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	// index 0 of a standalone key works as a convenience
	got, err = ks.GetKeyIndex("some_key", 0)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = ks.GetKeyIndex("some_key", 1)
	var standalone *StandaloneKeyError
	require.ErrorAs(t, err, &standalone)
	assert.Equal(t, "some_key", standalone.Name)
}

func TestVersionedKeyLookups(t *testing.T) {
	ks := NewKeyset()
	key := bytes.Repeat([]byte{0xCD}, 16)
	ks.InsertKeyIndex("key_area_key_application", 3, key)

	got, err := ks.GetKeyIndex("key_area_key_application", 3)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = ks.GetKeyIndex("key_area_key_application", 1)
	var notFound *IndexNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, uint8(1), notFound.Index)

	_, err = ks.GetKey("key_area_key_application")
	var versioned *VersionedKeyError
	assert.ErrorAs(t, err, &versioned)
}

func TestVersionedKeyWithOnlyIndexZeroActsStandalone(t *testing.T) {
	ks := NewKeyset()
	key := bytes.Repeat([]byte{0x01}, 16)
	ks.InsertKeyIndex("titlekek", 0, key)

	got, err := ks.GetKey("titlekek")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	// a second version removes the shortcut
	ks.InsertKeyIndex("titlekek", 1, bytes.Repeat([]byte{0x02}, 16))
	_, err = ks.GetKey("titlekek")
	assert.Error(t, err)
}

func TestMissingKey(t *testing.T) {
	ks := NewKeyset()
	_, err := ks.GetKey("nope")
	var missing *MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nope", missing.Name)

	_, err = ks.GetKeyIndex("nope", 0)
	assert.ErrorAs(t, err, &missing)
}

func TestInsertPreservesKind(t *testing.T) {
	ks := NewKeyset()
	first := bytes.Repeat([]byte{0x11}, 16)
	second := bytes.Repeat([]byte{0x22}, 16)

	// standalone stays standalone
	ks.InsertKey("single", first)
	ks.InsertKeyIndex("single", 2, second)
	got, err := ks.GetKey("single")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// versioned stays versioned
	ks.InsertKeyIndex("multi", 1, first)
	ks.InsertKey("multi", second)
	_, err = ks.GetKey("multi")
	assert.Error(t, err)
	got, err = ks.GetKeyIndex("multi", 1)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// same-kind inserts replace / merge
	ks.InsertKey("single", second)
	got, err = ks.GetKey("single")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	ks.InsertKeyIndex("multi", 2, second)
	got, err = ks.GetKeyIndex("multi", 2)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestInsertCopiesKeyMaterial(t *testing.T) {
	ks := NewKeyset()
	key := bytes.Repeat([]byte{0x77}, 16)
	ks.InsertKey("k", key)
	key[0] = 0

	got, err := ks.GetKey("k")
	require.NoError(t, err)
	assert.Equal(t, byte(0x77), got[0])
}

func TestTypedGetters(t *testing.T) {
	ks := NewKeyset()

	xtsRaw := make([]byte, 0x20)
	for i := range xtsRaw {
		xtsRaw[i] = byte(i)
	}
	ks.InsertKey("header_key", xtsRaw)

	xts, err := ks.GetAes128XtsKey("header_key")
	require.NoError(t, err)
	assert.Equal(t, xtsRaw[:0x10], xts.Block())
	assert.Equal(t, xtsRaw[0x10:], xts.Tweak())

	// wrong length for the requested type
	ks.InsertKey("short", make([]byte, 8))
	_, err = ks.GetAes128Key("short")
	var mismatch *LengthMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 16, mismatch.Want)
	assert.Equal(t, 8, mismatch.Got)

	_, err = ks.GetAes128XtsKey("short")
	assert.ErrorAs(t, err, &mismatch)
}

func TestTitleKeys(t *testing.T) {
	ks := NewKeyset()

	id, err := ParseRightsId("cafebabedeadbeef0000000000000000")
	require.NoError(t, err)

	var tkey TitleKey
	copy(tkey[:], bytes.Repeat([]byte{0x99}, 16))
	ks.InsertTitleKey(id, tkey)

	got, err := ks.GetTitleKey(id)
	require.NoError(t, err)
	assert.Equal(t, tkey, got)

	other, err := ParseRightsId("00000000000000000000000000000001")
	require.NoError(t, err)
	_, err = ks.GetTitleKey(other)
	var noKey *NoTitleKeyError
	require.ErrorAs(t, err, &noKey)
	assert.Equal(t, other, noKey.RightsId)
}
