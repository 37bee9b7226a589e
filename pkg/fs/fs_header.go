package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FsType says how a section's contents are organized.
type FsType uint8

const (
	FsTypeRomFS       FsType = 0
	FsTypePartitionFS FsType = 1
)

func (t FsType) String() string {
	switch t {
	case FsTypeRomFS:
		return "RomFS"
	case FsTypePartitionFS:
		return "PartitionFS"
	}
	return fmt.Sprintf("fstype(%d)", uint8(t))
}

// HashType names the integrity scheme covering a section.
type HashType uint8

const (
	HashTypeAuto                      HashType = 0
	HashTypeNone                      HashType = 1
	HashTypeHierarchicalSha256        HashType = 2
	HashTypeHierarchicalIntegrity     HashType = 3
	HashTypeAutoSha3                  HashType = 4
	HashTypeHierarchicalSha3256       HashType = 5
	HashTypeHierarchicalIntegritySha3 HashType = 6
)

func (t HashType) String() string {
	switch t {
	case HashTypeAuto:
		return "Auto"
	case HashTypeNone:
		return "None"
	case HashTypeHierarchicalSha256:
		return "HierarchicalSha256"
	case HashTypeHierarchicalIntegrity:
		return "HierarchicalIntegrity"
	case HashTypeAutoSha3:
		return "AutoSha3"
	case HashTypeHierarchicalSha3256:
		return "HierarchicalSha3256"
	case HashTypeHierarchicalIntegritySha3:
		return "HierarchicalIntegritySha3"
	}
	return fmt.Sprintf("hashtype(%d)", uint8(t))
}

// EncryptionType names a section's cipher layer.
type EncryptionType uint8

const (
	EncryptionAuto                  EncryptionType = 0
	EncryptionNone                  EncryptionType = 1
	EncryptionAesXts                EncryptionType = 2
	EncryptionAesCtr                EncryptionType = 3
	EncryptionAesCtrEx              EncryptionType = 4
	EncryptionAesCtrSkipLayerHash   EncryptionType = 5
	EncryptionAesCtrExSkipLayerHash EncryptionType = 6
)

func (t EncryptionType) String() string {
	switch t {
	case EncryptionAuto:
		return "Auto"
	case EncryptionNone:
		return "None"
	case EncryptionAesXts:
		return "AesXts"
	case EncryptionAesCtr:
		return "AesCtr"
	case EncryptionAesCtrEx:
		return "AesCtrEx"
	case EncryptionAesCtrSkipLayerHash:
		return "AesCtrSkipLayerHash"
	case EncryptionAesCtrExSkipLayerHash:
		return "AesCtrExSkipLayerHash"
	}
	return fmt.Sprintf("encryption(%d)", uint8(t))
}

// fsHeaderVersion is the only descriptor version this library reads.
const fsHeaderVersion = 2

// FsHeader is a section's 0x200-byte descriptor from the NCA header region.
// The hash, patch, sparse and compression regions are kept opaque.
type FsHeader struct {
	Version          uint16
	FsType           FsType
	HashType         HashType
	EncryptionType   EncryptionType
	MetaDataHashType uint8
	Reserved0        [2]byte
	HashData         [0xF8]byte
	PatchInfo        [0x40]byte
	Generation       uint32
	SecureValue      uint32
	SparseInfo       [0x30]byte
	CompressionInfo  [0x28]byte
	MetaDataHashInfo [0x30]byte
	Reserved1        [0x30]byte
}

// fsHeaderLooksDecrypted peeks at the version field of a raw descriptor.
func fsHeaderLooksDecrypted(raw []byte) bool {
	return len(raw) >= 2 && binary.LittleEndian.Uint16(raw[:2]) == fsHeaderVersion
}

// parseFsHeader decodes a decrypted 0x200-byte descriptor.
func parseFsHeader(raw []byte) (*FsHeader, error) {
	if len(raw) != FsHeaderSize {
		return nil, fmt.Errorf("fs header must be %#x bytes, got %#x", FsHeaderSize, len(raw))
	}

	var hdr FsHeader
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("parse fs header: %w", err)
	}

	if hdr.Version != fsHeaderVersion {
		return nil, fmt.Errorf("unsupported fs header version %d", hdr.Version)
	}
	if hdr.FsType > FsTypePartitionFS {
		return nil, fmt.Errorf("invalid fs type %d", hdr.FsType)
	}
	if hdr.HashType > HashTypeHierarchicalIntegritySha3 {
		return nil, fmt.Errorf("invalid hash type %d", hdr.HashType)
	}
	if hdr.EncryptionType > EncryptionAesCtrExSkipLayerHash {
		return nil, fmt.Errorf("invalid encryption type %d", hdr.EncryptionType)
	}
	return &hdr, nil
}

// Counter derives the section's 16-byte AES-CTR initial counter: secure
// value then generation, both big-endian, in the upper 8 bytes. The lower 8
// bytes are the block counter and stay zero here.
func (h *FsHeader) Counter() [16]byte {
	var iv [16]byte
	binary.BigEndian.PutUint32(iv[0:4], h.SecureValue)
	binary.BigEndian.PutUint32(iv[4:8], h.Generation)
	return iv
}
