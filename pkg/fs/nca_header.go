package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/falk/switchfs/pkg/keys"
)

const (
	// NcaHeaderSize covers the main header and the four FS headers.
	NcaHeaderSize = 0xC00

	// MediaSize is the block unit FS entries count in, and the XTS sector
	// size of the header region.
	MediaSize = 0x200

	fsHeaderRegionOffset = 0x400

	// FsHeaderSize is the per-section descriptor size.
	FsHeaderSize = 0x200
)

// ProgramId identifies a title; little-endian on the wire.
type ProgramId uint64

func (p ProgramId) String() string {
	return fmt.Sprintf("0x%016x", uint64(p))
}

// DistributionType says how the content was delivered.
type DistributionType uint8

const (
	DistributionDownload DistributionType = 0
	DistributionGameCard DistributionType = 1
)

func (d DistributionType) String() string {
	switch d {
	case DistributionDownload:
		return "download"
	case DistributionGameCard:
		return "gamecard"
	}
	return fmt.Sprintf("distribution(%d)", uint8(d))
}

// ContentType classifies the content of an NCA.
type ContentType uint8

const (
	ContentProgram    ContentType = 0
	ContentMeta       ContentType = 1
	ContentControl    ContentType = 2
	ContentManual     ContentType = 3
	ContentData       ContentType = 4
	ContentPublicData ContentType = 5
)

func (c ContentType) String() string {
	switch c {
	case ContentProgram:
		return "program"
	case ContentMeta:
		return "meta"
	case ContentControl:
		return "control"
	case ContentManual:
		return "manual"
	case ContentData:
		return "data"
	case ContentPublicData:
		return "publicdata"
	}
	return fmt.Sprintf("content(%d)", uint8(c))
}

// KeyAreaIndex selects which key-area encryption key wraps the key area.
type KeyAreaIndex uint8

const (
	KeyAreaApplication KeyAreaIndex = 0
	KeyAreaOcean       KeyAreaIndex = 1
	KeyAreaSystem      KeyAreaIndex = 2
)

// Scheme returns the keyset name suffix for the index, e.g. "application"
// for key_area_key_application.
func (k KeyAreaIndex) Scheme() string {
	switch k {
	case KeyAreaApplication:
		return "application"
	case KeyAreaOcean:
		return "ocean"
	case KeyAreaSystem:
		return "system"
	}
	return fmt.Sprintf("keyarea(%d)", uint8(k))
}

func (k KeyAreaIndex) String() string { return k.Scheme() }

// FsEntry locates one section inside the container in MediaSize blocks.
type FsEntry struct {
	StartBlock uint32
	EndBlock   uint32
	Flags      uint32
	Reserved   uint32
}

// IsActive reports whether the slot holds a section.
func (e FsEntry) IsActive() bool {
	return e.Flags&1 == 1
}

// SdkVersion is the building SDK's version, stored low byte first.
type SdkVersion [4]uint8

func (v SdkVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[3], v[2], v[1], v[0])
}

// NcaHeader is the decrypted 0x400-byte main header.
type NcaHeader struct {
	FixedKeySignature      [0x100]byte
	NpdmSignature          [0x100]byte
	Magic                  [4]byte
	Distribution           DistributionType
	ContentType            ContentType
	KeyGenerationOld       uint8
	KeyAreaIndex           KeyAreaIndex
	ContentSize            uint64
	ProgramId              ProgramId
	ContentIndex           uint32
	SdkVersion             SdkVersion
	KeyGeneration          uint8
	SignatureKeyGeneration uint8
	Reserved               [0xE]byte
	RightsId               keys.RightsId
	FsEntries              [4]FsEntry
	FsEntryHashes          [4][0x20]byte
	EncryptedKeyArea       [4][0x10]byte
	Reserved2              [0xC0]byte
}

// Version returns the container format version from the magic, 0 through 3.
func (h *NcaHeader) Version() uint8 {
	return h.Magic[3] - '0'
}

// KeyGenerationIndex returns the keyset index for this content's key
// generation: the larger of the two generation fields, shifted down one
// because generations 0 and 1 share master key 0.
func (h *NcaHeader) KeyGenerationIndex() uint8 {
	gen := h.KeyGeneration
	if h.KeyGenerationOld > gen {
		gen = h.KeyGenerationOld
	}
	if gen == 0 {
		return 0
	}
	return gen - 1
}

// headerIsPlaintext reports whether buf (the full 0xC00 header region)
// carries a readable NCA magic.
func headerIsPlaintext(buf []byte) bool {
	if len(buf) < 0x204 {
		return false
	}
	m := buf[0x200:0x204]
	return m[0] == 'N' && m[1] == 'C' && m[2] == 'A' && m[3] >= '0' && m[3] <= '3'
}

// parseNcaHeader decodes the decrypted main header.
func parseNcaHeader(buf []byte) (*NcaHeader, error) {
	if len(buf) < fsHeaderRegionOffset {
		return nil, fmt.Errorf("nca header truncated: %#x bytes", len(buf))
	}

	var hdr NcaHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("parse nca header: %w", err)
	}

	if hdr.Distribution > DistributionGameCard {
		return nil, fmt.Errorf("invalid distribution type %d", hdr.Distribution)
	}
	if hdr.ContentType > ContentPublicData {
		return nil, fmt.Errorf("invalid content type %d", hdr.ContentType)
	}
	if hdr.KeyAreaIndex > KeyAreaSystem {
		return nil, fmt.Errorf("invalid key area index %d", hdr.KeyAreaIndex)
	}
	return &hdr, nil
}
