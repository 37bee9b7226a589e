package storage

import (
	"fmt"

	"github.com/falk/switchfs/pkg/crypto"
)

// AesXtsStorage decrypts 0x200-byte sectors of its parent with AES-128-XTS.
// Every access must be sector aligned in both offset and length; wrap the
// storage in a BlockBufferStorage to serve arbitrary accesses. The cipher is
// stateless per sector, so the storage needs no locking and is always
// read-only.
type AesXtsStorage struct {
	parent Storage
	xts    *crypto.XTS
	tweak  crypto.TweakFunc

	// added to byte_offset/0x200 before computing tweaks
	sectorOffset int64
}

// NewAesXtsStorage wraps parent with a 32-byte XTS key pair and the standard
// XTS tweak.
func NewAesXtsStorage(parent Storage, key []byte, sectorOffset int64) (*AesXtsStorage, error) {
	return newXts(parent, key, sectorOffset, crypto.DefaultTweak)
}

// NewAesXtsnStorage is NewAesXtsStorage with Nintendo's big-endian tweak,
// the variant the NCA header pipeline uses.
func NewAesXtsnStorage(parent Storage, key []byte, sectorOffset int64) (*AesXtsStorage, error) {
	return newXts(parent, key, sectorOffset, crypto.NintendoTweak)
}

func newXts(parent Storage, key []byte, sectorOffset int64, tf crypto.TweakFunc) (*AesXtsStorage, error) {
	xts, err := crypto.NewXTS(key)
	if err != nil {
		return nil, err
	}
	return &AesXtsStorage{parent: parent, xts: xts, tweak: tf, sectorOffset: sectorOffset}, nil
}

func (x *AesXtsStorage) ReadAt(p []byte, off int64) (int, error) {
	if off%crypto.SectorSize != 0 || len(p)%crypto.SectorSize != 0 {
		panic(fmt.Sprintf(
			"unaligned access (%#x+%#x) to AesXtsStorage; wrap it in a BlockBufferStorage to read at arbitrary offsets",
			off, len(p)))
	}

	n, err := x.parent.ReadAt(p, off)
	if err != nil {
		return n, err
	}

	full := n - n%crypto.SectorSize
	if full > 0 {
		sector := uint64(off/crypto.SectorSize + x.sectorOffset)
		if err := x.xts.DecryptArea(p[:full], sector, x.tweak); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (x *AesXtsStorage) WriteAt(p []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}

func (x *AesXtsStorage) Length() (int64, error) {
	return x.parent.Length()
}

func (x *AesXtsStorage) ReadOnly() bool {
	return true
}
