package storage

import (
	"crypto/cipher"
	"sync"

	"github.com/falk/switchfs/pkg/crypto"
)

// ctrScratchSize bounds how much plaintext is encrypted at once on writes.
const ctrScratchSize = 1024 * 1024

// AesCtrStorage exposes a transparent AES-128-CTR view of its parent: reads
// decrypt in place, writes encrypt through a scratch buffer. The keystream
// position is a pure function of the absolute byte offset, so reads at any
// offset see consistent plaintext.
type AesCtrStorage struct {
	parent Storage
	block  cipher.Block
	iv     [16]byte

	mu      sync.Mutex
	scratch []byte
}

// NewAesCtrStorage wraps parent with key and the 16-byte initial counter.
func NewAesCtrStorage(parent Storage, key []byte, iv [16]byte) (*AesCtrStorage, error) {
	block, err := crypto.NewBlockCipher(key)
	if err != nil {
		return nil, err
	}
	return &AesCtrStorage{parent: parent, block: block, iv: iv}, nil
}

func (c *AesCtrStorage) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.parent.ReadAt(p, off)
	if n > 0 {
		stream := crypto.NewCTRStreamAt(c.block, c.iv[:], off)
		stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

func (c *AesCtrStorage) WriteAt(p []byte, off int64) (int, error) {
	if c.parent.ReadOnly() {
		return 0, ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scratch == nil {
		c.scratch = make([]byte, ctrScratchSize)
	}

	stream := crypto.NewCTRStreamAt(c.block, c.iv[:], off)

	var written int64
	for len(p) > 0 {
		chunk := p
		if len(chunk) > ctrScratchSize {
			chunk = chunk[:ctrScratchSize]
		}
		stream.XORKeyStream(c.scratch[:len(chunk)], chunk)

		n, err := c.parent.WriteAt(c.scratch[:len(chunk)], off+written)
		written += int64(n)
		if err != nil {
			return int(written), err
		}
		if n < len(chunk) {
			break
		}
		p = p[n:]
	}
	return int(written), nil
}

func (c *AesCtrStorage) Length() (int64, error) {
	return c.parent.Length()
}

func (c *AesCtrStorage) ReadOnly() bool {
	return c.parent.ReadOnly()
}
