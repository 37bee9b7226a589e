package storage

import "sync"

// BlockBufferStorage adapts arbitrary accesses onto a block-oriented parent
// (primarily AesXtsStorage, which insists on sector alignment). Requests are
// decomposed into an unaligned head, a run of whole blocks, and an unaligned
// tail; the partial pieces go through a single-block cache while the whole
// blocks bypass it, so long sequential reads do not thrash the slot.
type BlockBufferStorage struct {
	parent    Storage
	blockSize int

	mu        sync.Mutex
	cachedOff int64 // block-aligned offset the cache holds, -1 when empty
	cacheLen  int   // valid bytes in cache (short at the end of the parent)
	cache     []byte
}

// NewBlockBufferStorage wraps parent with a one-block read cache. blockSize
// must match the parent's alignment requirement, 0x200 for the XTS storages.
func NewBlockBufferStorage(parent Storage, blockSize int) *BlockBufferStorage {
	return &BlockBufferStorage{
		parent:    parent,
		blockSize: blockSize,
		cachedOff: -1,
		cache:     make([]byte, blockSize),
	}
}

// unalignedSpan is a partial-block piece of a request, served via the cache.
type unalignedSpan struct {
	alignedStart int64 // block-aligned parent offset
	bufOff       int   // where in the caller's buffer the piece lands
	blockOff     int   // where in the block the piece starts
	n            int
}

// alignedSpan is the whole-blocks middle of a request, read directly.
type alignedSpan struct {
	start  int64
	bufOff int
	n      int
}

// alignSpans decomposes a request at off of n bytes into up to three spans.
func alignSpans(off int64, n, blockSize int) (leading *unalignedSpan, aligned *alignedSpan, trailing *unalignedSpan) {
	bs := int64(blockSize)
	delta := int(off % bs)
	bufOff := 0

	switch {
	case delta == 0 && n >= blockSize:
		// already aligned, nothing to peel off

	case delta == 0:
		// aligned start but shorter than a block
		return &unalignedSpan{alignedStart: off, n: n}, nil, nil

	default:
		head := blockSize - delta
		if head > n {
			head = n
		}
		leading = &unalignedSpan{
			alignedStart: off - int64(delta),
			blockOff:     delta,
			n:            head,
		}
		off += int64(head)
		bufOff += head
		n -= head
	}

	if whole := n - n%blockSize; whole > 0 {
		aligned = &alignedSpan{start: off, bufOff: bufOff, n: whole}
		off += int64(whole)
		bufOff += whole
		n -= whole
	}

	if n > 0 {
		trailing = &unalignedSpan{alignedStart: off, bufOff: bufOff, n: n}
	}
	return leading, aligned, trailing
}

func (b *BlockBufferStorage) ReadAt(p []byte, off int64) (int, error) {
	leading, aligned, trailing := alignSpans(off, len(p), b.blockSize)

	total := 0
	if leading != nil {
		n, err := b.readCached(p[leading.bufOff:][:leading.n], leading.alignedStart, leading.blockOff)
		total += n
		if err != nil || n < leading.n {
			return total, err
		}
	}

	if aligned != nil {
		buf := p[aligned.bufOff:][:aligned.n]
		var n int
		var err error
		if aligned.n == b.blockSize && trailing == nil {
			// a lone full block is still worth caching
			n, err = b.readCached(buf, aligned.start, 0)
		} else {
			n, err = b.parent.ReadAt(buf, aligned.start)
		}
		total += n
		if err != nil || n < aligned.n {
			return total, err
		}
	}

	if trailing != nil {
		n, err := b.readCached(p[trailing.bufOff:][:trailing.n], trailing.alignedStart, trailing.blockOff)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readCached serves dst from the block starting at alignedOff, filling the
// cache from the parent on a miss.
func (b *BlockBufferStorage) readCached(dst []byte, alignedOff int64, blockOff int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cachedOff != alignedOff {
		n, err := b.parent.ReadAt(b.cache, alignedOff)
		if err != nil {
			b.cachedOff = -1
			return 0, err
		}
		b.cachedOff = alignedOff
		b.cacheLen = n
	}

	if blockOff >= b.cacheLen {
		return 0, nil
	}
	return copy(dst, b.cache[blockOff:b.cacheLen]), nil
}

func (b *BlockBufferStorage) WriteAt(p []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}

func (b *BlockBufferStorage) Length() (int64, error) {
	return b.parent.Length()
}

func (b *BlockBufferStorage) ReadOnly() bool {
	return true
}
