package ncz

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/falk/switchfs/pkg/storage"
)

// Ncz is a parsed NCZ container. The body it describes is the NCA's data
// region with all section crypto removed; the section table records what
// would have to be re-encrypted to reconstruct the original NCA.
type Ncz struct {
	parent   storage.Storage
	sections []SectionEntry

	// block form only
	block        *BlockHeader
	blockSizes   []uint32
	blockOffsets []int64

	// stream form only: where the single zstd frame begins
	streamOffset int64
}

// Open parses the NCZ at the start of s.
func Open(s storage.Storage) (*Ncz, error) {
	r := storage.NewReader(s)
	if _, err := r.Seek(HeaderRegionSize, io.SeekStart); err != nil {
		return nil, err
	}

	sections, err := readSectionTable(r)
	if err != nil {
		return nil, err
	}

	n := &Ncz{parent: s, sections: sections}

	pos, _ := r.Seek(0, io.SeekCurrent)
	var blk BlockHeader
	if err := binary.Read(r, binary.LittleEndian, &blk); err == nil && string(blk.Magic[:]) == MagicBlock {
		if blk.Version != blockVersion || blk.Type != blockType {
			return nil, fmt.Errorf("ncz: unsupported block header version %d type %d", blk.Version, blk.Type)
		}

		n.block = &blk
		n.blockSizes = make([]uint32, blk.BlockCount)
		if err := binary.Read(r, binary.LittleEndian, &n.blockSizes); err != nil {
			return nil, fmt.Errorf("ncz: read block size table: %w", err)
		}

		off, _ := r.Seek(0, io.SeekCurrent)
		n.blockOffsets = make([]int64, blk.BlockCount)
		for i, size := range n.blockSizes {
			n.blockOffsets[i] = off
			off += int64(size)
		}
	} else {
		n.streamOffset = pos
	}

	return n, nil
}

// Sections returns the section crypto table.
func (n *Ncz) Sections() []SectionEntry { return n.sections }

// BlockCompressed reports whether the body is random-accessible.
func (n *Ncz) BlockCompressed() bool { return n.block != nil }

// BodySize returns the decompressed body size. Only known for the block
// form; the stream form reports -1.
func (n *Ncz) BodySize() int64 {
	if n.block == nil {
		return -1
	}
	return int64(n.block.DecompressedSize)
}

// BlockStorage exposes a block-compressed NCZ as a random-access storage:
// the verbatim header region followed by the decompressed (decrypted) body,
// with a single-block decode cache behind a mutex.
func (n *Ncz) BlockStorage() (storage.Storage, error) {
	if n.block == nil {
		return nil, fmt.Errorf("ncz: not block-compressed, use Decompress")
	}
	return &blockStorage{ncz: n, cachedBlock: -1}, nil
}

// Decompress writes the verbatim header region and the full decompressed
// body to w. Works for both forms.
func (n *Ncz) Decompress(w io.Writer) error {
	hdr, err := storage.Split(n.parent, 0, HeaderRegionSize)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, storage.NewReader(hdr)); err != nil {
		return err
	}

	if n.block != nil {
		bs, err := n.BlockStorage()
		if err != nil {
			return err
		}
		body, err := storage.Split(bs, HeaderRegionSize, n.BodySize())
		if err != nil {
			return err
		}
		_, err = io.Copy(w, storage.NewReader(body))
		return err
	}

	parentLen, err := n.parent.Length()
	if err != nil {
		return err
	}
	frame, err := storage.Split(n.parent, n.streamOffset, parentLen-n.streamOffset)
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(storage.NewReader(frame))
	if err != nil {
		return err
	}
	defer dec.Close()
	_, err = io.Copy(w, dec)
	return err
}

type blockStorage struct {
	ncz *Ncz

	mu          sync.Mutex
	cachedBlock int64
	cache       []byte
}

func (b *blockStorage) ReadAt(p []byte, off int64) (int, error) {
	length, _ := b.Length()

	total := 0
	for len(p) > 0 && off < length {
		if off < HeaderRegionSize {
			chunk := p
			if avail := HeaderRegionSize - off; int64(len(chunk)) > avail {
				chunk = chunk[:avail]
			}
			n, err := b.ncz.parent.ReadAt(chunk, off)
			total += n
			if err != nil || n < len(chunk) {
				return total, err
			}
			p = p[n:]
			off += int64(n)
			continue
		}

		blockSize := b.ncz.block.BlockSize()
		body := off - HeaderRegionSize
		index := body / blockSize
		inBlock := body % blockSize

		block, err := b.getBlock(index)
		if err != nil {
			return total, err
		}
		if inBlock >= int64(len(block)) {
			return total, nil
		}

		n := copy(p, block[inBlock:])
		total += n
		p = p[n:]
		off += int64(n)
	}
	return total, nil
}

// getBlock returns block index decompressed, serving repeated hits from the
// single-slot cache.
func (b *blockStorage) getBlock(index int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cachedBlock == index {
		return b.cache, nil
	}

	blk := b.ncz.block
	if index < 0 || index >= int64(blk.BlockCount) {
		return nil, fmt.Errorf("ncz: block %d out of range", index)
	}

	// the final block is short
	want := blk.BlockSize()
	if rest := int64(blk.DecompressedSize) - index*blk.BlockSize(); rest < want {
		want = rest
	}

	raw := make([]byte, b.ncz.blockSizes[index])
	n, err := b.ncz.parent.ReadAt(raw, b.ncz.blockOffsets[index])
	if err != nil {
		return nil, err
	}
	if n < len(raw) {
		return nil, fmt.Errorf("ncz: block %d truncated: %d of %d bytes", index, n, len(raw))
	}

	var block []byte
	if int64(len(raw)) == want {
		// stored raw: compression did not pay off for this block
		block = raw
	} else {
		block, err = decompress(raw, int(want))
		if err != nil {
			return nil, fmt.Errorf("ncz: block %d: %w", index, err)
		}
		if int64(len(block)) != want {
			return nil, fmt.Errorf("ncz: block %d inflated to %d bytes, want %d", index, len(block), want)
		}
	}

	b.cachedBlock = index
	b.cache = block
	return block, nil
}

func (b *blockStorage) WriteAt(p []byte, off int64) (int, error) {
	return 0, storage.ErrReadOnly
}

func (b *blockStorage) Length() (int64, error) {
	return HeaderRegionSize + int64(b.ncz.block.DecompressedSize), nil
}

func (b *blockStorage) ReadOnly() bool { return true }
