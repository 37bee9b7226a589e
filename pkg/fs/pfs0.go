package fs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/falk/switchfs/pkg/storage"
)

const (
	MagicPFS0 = "PFS0"
	MagicHFS0 = "HFS0"

	partitionHeaderSize = 16
	pfs0EntrySize       = 0x18
	hfs0EntrySize       = 0x40
)

// partitionHeader is the fixed prefix both PartitionFS variants share.
type partitionHeader struct {
	Magic           [4]byte
	EntryCount      uint32
	StringTableSize uint32
	Reserved        uint32
}

// pfs0Entry is the 0x18-byte PFS0 file-table row.
type pfs0Entry struct {
	Offset       uint64
	Size         uint64
	StringOffset uint32
	Reserved     uint32
}

// hfs0Entry is the 0x40-byte HFS0 row; same addressing as PFS0 plus a hash
// over the leading HashedSize bytes of the file.
type hfs0Entry struct {
	Offset       uint64
	Size         uint64
	StringOffset uint32
	HashedSize   uint32
	Reserved     uint64
	Hash         [0x20]byte
}

// fileEntry is the variant-independent view of a table row.
type fileEntry struct {
	offset       uint64
	size         uint64
	stringOffset uint32
	hashedSize   uint32
	hash         [0x20]byte
}

// PartitionFS is a parsed PFS0 or HFS0: a flat table of named byte ranges
// over the data region that follows the header.
type PartitionFS struct {
	magic       string
	entries     []fileEntry
	stringTable StringTable
	data        storage.Storage
}

// File is one entry of a PartitionFS. Its data is opened lazily as a view of
// the partition's data region.
type File struct {
	fs    *PartitionFS
	entry fileEntry
}

// OpenPFS0 parses a PFS0 partition from the start of s.
func OpenPFS0(s storage.Storage) (*PartitionFS, error) {
	return openPartition(s, MagicPFS0)
}

// OpenHFS0 parses an HFS0 partition from the start of s.
func OpenHFS0(s storage.Storage) (*PartitionFS, error) {
	return openPartition(s, MagicHFS0)
}

func openPartition(s storage.Storage, magic string) (*PartitionFS, error) {
	r := storage.NewReader(s)

	var hdr partitionHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", magic, err)
	}
	if string(hdr.Magic[:]) != magic {
		return nil, fmt.Errorf("invalid magic: expected %s, got %q", magic, hdr.Magic)
	}

	entries := make([]fileEntry, hdr.EntryCount)
	entrySize := pfs0EntrySize
	switch magic {
	case MagicPFS0:
		raw := make([]pfs0Entry, hdr.EntryCount)
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("%s: read entries: %w", magic, err)
		}
		for i, e := range raw {
			entries[i] = fileEntry{offset: e.Offset, size: e.Size, stringOffset: e.StringOffset}
		}
	case MagicHFS0:
		entrySize = hfs0EntrySize
		raw := make([]hfs0Entry, hdr.EntryCount)
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("%s: read entries: %w", magic, err)
		}
		for i, e := range raw {
			entries[i] = fileEntry{
				offset:       e.Offset,
				size:         e.Size,
				stringOffset: e.StringOffset,
				hashedSize:   e.HashedSize,
				hash:         e.Hash,
			}
		}
	}

	table := make(StringTable, hdr.StringTableSize)
	if _, err := io.ReadFull(r, table); err != nil {
		return nil, fmt.Errorf("%s: read string table: %w", magic, err)
	}

	headerSize := int64(partitionHeaderSize) +
		int64(hdr.EntryCount)*int64(entrySize) +
		int64(hdr.StringTableSize)

	parentLen, err := s.Length()
	if err != nil {
		return nil, err
	}
	data, err := storage.Split(s, headerSize, parentLen-headerSize)
	if err != nil {
		return nil, err
	}

	return &PartitionFS{
		magic:       magic,
		entries:     entries,
		stringTable: table,
		data:        data,
	}, nil
}

// Magic reports which variant was parsed, "PFS0" or "HFS0".
func (p *PartitionFS) Magic() string { return p.magic }

// Files returns one File per table row, in table order.
func (p *PartitionFS) Files() []File {
	files := make([]File, len(p.entries))
	for i, e := range p.entries {
		files[i] = File{fs: p, entry: e}
	}
	return files
}

// Names returns the non-empty entries of the string table.
func (p *PartitionFS) Names() []string {
	var names []string
	for _, s := range p.stringTable.Strings() {
		if len(s) > 0 {
			names = append(names, string(s))
		}
	}
	return names
}

// Lookup returns the file with the given name.
func (p *PartitionFS) Lookup(name string) (File, bool) {
	for _, f := range p.Files() {
		if f.Name() == name {
			return f, true
		}
	}
	return File{}, false
}

// Name returns the file's name, or "" when the string offset points outside
// the table.
func (f File) Name() string {
	s, ok := f.fs.stringTable.Get(f.entry.stringOffset)
	if !ok {
		return ""
	}
	return string(s)
}

// Size returns the file's size in bytes.
func (f File) Size() int64 { return int64(f.entry.size) }

// Data opens the file's bytes as a view of the partition data region. A
// stored range beyond the region means a corrupt or hostile table and fails
// here.
func (f File) Data() (storage.Storage, error) {
	return storage.Split(f.fs.data, int64(f.entry.offset), int64(f.entry.size))
}

// Hash returns the HFS0 per-file hash and the length of the hashed prefix.
// PFS0 files report a zero hash and size.
func (f File) Hash() ([0x20]byte, uint32) {
	return f.entry.hash, f.entry.hashedSize
}
