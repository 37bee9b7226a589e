package storage

import (
	"fmt"
	"math"
)

// SubStorage is a bounded, offset-shifted view of a parent storage. Sections
// of a container are SubStorages of the container's storage; offsets passed
// to the view are relative to its own start.
type SubStorage struct {
	parent Storage
	offset int64
	length int64
}

// Split returns a view of length bytes of parent starting at offset. The
// range is validated against the parent's length once, at construction.
func Split(parent Storage, offset, length int64) (*SubStorage, error) {
	if offset < 0 || length < 0 || offset > math.MaxInt64-length {
		return nil, fmt.Errorf("substorage range %#x+%#x: %w", offset, length, ErrOffsetOverflow)
	}

	parentLen, err := parent.Length()
	if err != nil {
		return nil, fmt.Errorf("substorage: %w", ErrUnknownLength)
	}
	if offset+length > parentLen {
		return nil, &OutOfBoundsError{ParentLen: parentLen, Offset: offset, Len: length}
	}

	return &SubStorage{parent: parent, offset: offset, length: length}, nil
}

func (s *SubStorage) ReadAt(p []byte, off int64) (int, error) {
	p = clampView(p, off, s.length)
	if len(p) == 0 {
		return 0, nil
	}
	return s.parent.ReadAt(p, s.offset+off)
}

func (s *SubStorage) WriteAt(p []byte, off int64) (int, error) {
	if s.parent.ReadOnly() {
		return 0, ErrReadOnly
	}
	p = clampView(p, off, s.length)
	if len(p) == 0 {
		return 0, nil
	}
	return s.parent.WriteAt(p, s.offset+off)
}

func (s *SubStorage) Length() (int64, error) {
	return s.length, nil
}

func (s *SubStorage) ReadOnly() bool {
	return s.parent.ReadOnly()
}

// clampView trims p so an access at off stays inside a view of the given
// length. Accesses at or past the end collapse to an empty slice.
func clampView(p []byte, off, length int64) []byte {
	if off < 0 || off >= length {
		return nil
	}
	if avail := length - off; avail < int64(len(p)) {
		return p[:avail]
	}
	return p
}
