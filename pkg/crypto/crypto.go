// Package crypto holds the AES primitives the Switch container formats are
// built from: ECB for key unwrapping, CTR for section data, and AES-128-XTS
// with either the standard tweak or Nintendo's big-endian variant for the
// NCA header region.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync"
)

// SectorSize is the unit all XTS tweak indexing uses.
const SectorSize = 0x200

// Cipher cache to avoid recreating AES ciphers for the same key
var (
	cipherCache   = make(map[[16]byte]cipher.Block)
	cipherCacheMu sync.RWMutex
)

// NewBlockCipher returns an AES-128 block cipher for key, caching instances
// per key.
func NewBlockCipher(key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("key must be 16 bytes, got %d", len(key))
	}

	var keyArr [16]byte
	copy(keyArr[:], key)

	cipherCacheMu.RLock()
	block, ok := cipherCache[keyArr]
	cipherCacheMu.RUnlock()
	if ok {
		return block, nil
	}

	cipherCacheMu.Lock()
	defer cipherCacheMu.Unlock()

	// Double-check after acquiring write lock
	if block, ok = cipherCache[keyArr]; ok {
		return block, nil
	}

	block, err := aes.NewCipher(keyArr[:])
	if err != nil {
		return nil, err
	}
	cipherCache[keyArr] = block
	return block, nil
}

// ECBDecrypt decrypts data using AES-ECB. Not a general-purpose mode; the
// Switch key hierarchy wraps 16-byte keys this way.
func ECBDecrypt(data, key []byte) ([]byte, error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, err
	}

	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("data length not multiple of block size")
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], data[i:i+block.BlockSize()])
	}
	return out, nil
}

// ECBEncrypt encrypts data using AES-ECB.
func ECBEncrypt(data, key []byte) ([]byte, error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, err
	}

	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("data length not multiple of block size")
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], data[i:i+block.BlockSize()])
	}
	return out, nil
}

// NewCTRStreamAt returns an AES-CTR stream whose keystream is positioned at
// the given absolute byte offset. The counter block keeps iv's upper 8 bytes
// and sets the lower quadword to the AES block number (offset/16) in
// big-endian, the convention NCA section counters use. Offsets inside an AES
// block are handled by discarding the leading keystream bytes.
func NewCTRStreamAt(block cipher.Block, iv []byte, offset int64) cipher.Stream {
	counter := make([]byte, 16)
	copy(counter, iv)
	binary.BigEndian.PutUint64(counter[8:], uint64(offset)>>4)

	stream := cipher.NewCTR(block, counter)
	if skip := offset & 0xf; skip != 0 {
		var discard [16]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}
	return stream
}
