// Package ncz reads and writes the NCZ format: an NCA whose body is stored
// decrypted and zstd-compressed behind a verbatim copy of the first 0x4000
// bytes. The block variant compresses fixed-size blocks independently, which
// makes the decompressed body random-accessible and lets it slot into the
// storage stack like any other container.
package ncz

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicSection = "NCZSECTN"
	MagicBlock   = "NCZBLOCK"

	// HeaderRegionSize is the uncompressed prefix: NCA header plus room for
	// the section descriptors, copied into the NCZ verbatim.
	HeaderRegionSize = 0x4000

	// DefaultBlockSizeExp gives 1 MiB blocks.
	DefaultBlockSizeExp = 20

	blockVersion = 2
	blockType    = 1
)

// SectionHeader introduces the section table.
type SectionHeader struct {
	Magic        [8]byte
	SectionCount uint64
}

// SectionEntry records where one NCA section lived and how it was
// encrypted, so a decompressor can re-encrypt the data it inflates.
type SectionEntry struct {
	Offset        uint64
	Size          uint64
	CryptoType    uint64
	Padding       uint64
	CryptoKey     [16]byte
	CryptoCounter [16]byte
}

// BlockHeader introduces the block-compression table.
type BlockHeader struct {
	Magic            [8]byte
	Version          uint8
	Type             uint8
	Unused           uint8
	BlockSizeExp     uint8
	BlockCount       uint32
	DecompressedSize uint64
}

// BlockSize returns the decompressed size of every block but the last.
func (h *BlockHeader) BlockSize() int64 {
	return 1 << h.BlockSizeExp
}

func writeSectionTable(w io.Writer, sections []SectionEntry) error {
	var hdr SectionHeader
	copy(hdr.Magic[:], MagicSection)
	hdr.SectionCount = uint64(len(sections))

	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, sections)
}

func readSectionTable(r io.Reader) ([]SectionEntry, error) {
	var hdr SectionHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("ncz: read section header: %w", err)
	}
	if string(hdr.Magic[:]) != MagicSection {
		return nil, fmt.Errorf("ncz: invalid section magic %q", hdr.Magic)
	}
	if hdr.SectionCount == 0 || hdr.SectionCount > 0xFFFF {
		return nil, fmt.Errorf("ncz: implausible section count %d", hdr.SectionCount)
	}

	sections := make([]SectionEntry, hdr.SectionCount)
	if err := binary.Read(r, binary.LittleEndian, &sections); err != nil {
		return nil, fmt.Errorf("ncz: read section table: %w", err)
	}
	return sections, nil
}
