package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/falk/switchfs/pkg/storage"
)

// Pfs0Writer builds a PFS0 container file. Entry names are fixed up front so
// the header size is known; payloads are streamed in entry order and the
// header is finalized on Close.
type Pfs0Writer struct {
	f           *os.File
	stringTable StringTable
	entries     []pfs0Entry
	dataOffset  int64
}

// NewPfs0Writer creates path and prepares a container with the given entry
// names. Names must be unique, non-empty and NUL-free.
func NewPfs0Writer(path string, names []string) (*Pfs0Writer, error) {
	table := NewStringTable(names)
	offsets := table.Offsets()
	if len(offsets) != len(names) {
		return nil, fmt.Errorf("pfs0: entry names must be non-empty")
	}

	entries := make([]pfs0Entry, len(names))
	for i := range entries {
		entries[i].StringOffset = offsets[i]
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	headerSize := int64(partitionHeaderSize) +
		int64(len(entries))*pfs0EntrySize +
		int64(len(table))

	// data follows the header; it is written first and the header last
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &Pfs0Writer{f: f, stringTable: table, entries: entries}, nil
}

// Add streams the payload for entry index from r. Entries must be added in
// table order.
func (w *Pfs0Writer) Add(index int, r io.Reader) error {
	w.entries[index].Offset = uint64(w.dataOffset)

	n, err := io.Copy(w.f, r)
	if err != nil {
		return err
	}
	w.entries[index].Size = uint64(n)
	w.dataOffset += n
	return nil
}

// AddStorage copies the full contents of s as entry index.
func (w *Pfs0Writer) AddStorage(index int, s storage.Storage) error {
	return w.Add(index, storage.NewReader(s))
}

// Close writes the header and finishes the file.
func (w *Pfs0Writer) Close() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	hdr := partitionHeader{
		EntryCount:      uint32(len(w.entries)),
		StringTableSize: uint32(len(w.stringTable)),
	}
	copy(hdr.Magic[:], MagicPFS0)

	if err := binary.Write(w.f, binary.LittleEndian, hdr); err != nil {
		return err
	}
	if err := binary.Write(w.f, binary.LittleEndian, w.entries); err != nil {
		return err
	}
	if _, err := w.f.Write(w.stringTable); err != nil {
		return err
	}

	return w.f.Close()
}
