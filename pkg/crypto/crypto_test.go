package crypto

import (
	"bytes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTweakByteOrder(t *testing.T) {
	def := DefaultTweak(0x0102030405060708)
	assert.Equal(t, byte(0x08), def[0], "default tweak is little-endian")
	assert.Equal(t, byte(0x01), def[7])
	assert.Equal(t, byte(0x00), def[15])

	nin := NintendoTweak(0x0102030405060708)
	assert.Equal(t, byte(0x00), nin[0], "nintendo tweak is big-endian")
	assert.Equal(t, byte(0x01), nin[8])
	assert.Equal(t, byte(0x08), nin[15])
}

func TestTweaksAreMirrored(t *testing.T) {
	for _, sector := range []uint64{0, 1, 2, 0x200, 0xDEADBEEF} {
		def := DefaultTweak(sector)
		nin := NintendoTweak(sector)
		for i := 0; i < 16; i++ {
			assert.Equal(t, def[i], nin[15-i], "sector %#x byte %d", sector, i)
		}
	}
}

func TestECBRoundtrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xAA}, 16)
	plain := []byte("0123456789abcdef0123456789abcdef")

	enc, err := ECBEncrypt(plain, key)
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)

	dec, err := ECBDecrypt(enc, key)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestECBRejectsPartialBlocks(t *testing.T) {
	key := make([]byte, 16)
	_, err := ECBEncrypt(make([]byte, 17), key)
	assert.Error(t, err)
	_, err = ECBDecrypt(make([]byte, 15), key)
	assert.Error(t, err)
}

func TestNewBlockCipherCaches(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	a, err := NewBlockCipher(key)
	require.NoError(t, err)
	b, err := NewBlockCipher(key)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = NewBlockCipher(key[:8])
	assert.Error(t, err)
}

func TestCTRStreamMatchesContinuousKeystream(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	iv := make([]byte, 16)
	block, err := NewBlockCipher(key)
	require.NoError(t, err)

	// one continuous stream from offset 0
	plain := make([]byte, 0x100)
	for i := range plain {
		plain[i] = byte(i)
	}
	full := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(full, plain)

	// a stream positioned mid-buffer must produce the matching suffix,
	// including offsets inside an AES block
	for _, off := range []int64{0, 16, 32, 5, 17, 0x7F} {
		part := make([]byte, len(plain)-int(off))
		NewCTRStreamAt(block, iv, off).XORKeyStream(part, plain[off:])
		assert.Equal(t, full[off:], part, "offset %#x", off)
	}
}

func TestCTRStreamKeepsIvPrefix(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 16)
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 0}
	block, err := NewBlockCipher(key)
	require.NoError(t, err)

	// keystream at block number 2 equals a fresh CTR whose counter has the
	// same nonce and the block number in the low quadword
	counter := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 2}
	want := make([]byte, 16)
	cipher.NewCTR(block, counter).XORKeyStream(want, make([]byte, 16))

	got := make([]byte, 16)
	NewCTRStreamAt(block, iv, 32).XORKeyStream(got, make([]byte, 16))
	assert.Equal(t, want, got)
}

func TestXTSRoundtrip(t *testing.T) {
	key := append(bytes.Repeat([]byte{0x01}, 16), bytes.Repeat([]byte{0x02}, 16)...)
	xts, err := NewXTS(key)
	require.NoError(t, err)

	plain := make([]byte, 3*SectorSize)
	for i := range plain {
		plain[i] = byte(i * 7)
	}

	for _, tf := range []TweakFunc{DefaultTweak, NintendoTweak} {
		buf := append([]byte(nil), plain...)
		require.NoError(t, xts.EncryptArea(buf, 5, tf))
		assert.NotEqual(t, plain, buf)

		require.NoError(t, xts.DecryptArea(buf, 5, tf))
		assert.Equal(t, plain, buf)
	}
}

func TestXTSSectorsAreIndependent(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	xts, err := NewXTS(key)
	require.NoError(t, err)

	plain := make([]byte, 2*SectorSize)
	area := append([]byte(nil), plain...)
	require.NoError(t, xts.EncryptArea(area, 0, NintendoTweak))

	// encrypting each sector on its own gives the same bytes
	single := append([]byte(nil), plain...)
	require.NoError(t, xts.EncryptSector(single[:SectorSize], 0, NintendoTweak))
	require.NoError(t, xts.EncryptSector(single[SectorSize:], 1, NintendoTweak))
	assert.Equal(t, area, single)
}

func TestXTSKeyAndSizeValidation(t *testing.T) {
	_, err := NewXTS(make([]byte, 16))
	assert.Error(t, err)

	xts, err := NewXTS(make([]byte, 32))
	require.NoError(t, err)
	assert.Error(t, xts.DecryptArea(make([]byte, SectorSize+1), 0, DefaultTweak))
	assert.Error(t, xts.DecryptSector(make([]byte, 15), 0, DefaultTweak))
}
