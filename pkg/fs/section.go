package fs

import (
	"fmt"

	"github.com/falk/switchfs/pkg/keys"
	"github.com/falk/switchfs/pkg/storage"
)

// NcaSection is one active FS entry of an NCA. It references the parent
// storage and the decrypted headers directly, so it stays usable after the
// NCA that produced it is gone.
type NcaSection struct {
	parent   storage.Storage
	header   *NcaHeader
	fsHeader *FsHeader
	index    int
	keyset   *keys.Keyset
}

// Index returns the section's slot, 0 through 3.
func (s *NcaSection) Index() int { return s.index }

// FsHeader returns the section's descriptor.
func (s *NcaSection) FsHeader() *FsHeader { return s.fsHeader }

// Offset returns the section's byte offset inside the container.
func (s *NcaSection) Offset() int64 {
	return int64(s.header.FsEntries[s.index].StartBlock) * MediaSize
}

// Size returns the section's byte length.
func (s *NcaSection) Size() int64 {
	entry := s.header.FsEntries[s.index]
	return int64(entry.EndBlock-entry.StartBlock) * MediaSize
}

// OpenEncrypted returns the section's raw byte range as stored in the
// container.
func (s *NcaSection) OpenEncrypted() (storage.Storage, error) {
	return storage.Split(s.parent, s.Offset(), s.Size())
}

// Key resolves the key the section's data is encrypted with. Content with a
// rights ID uses the title-key path; everything else unwraps the header's
// key area.
func (s *NcaSection) Key() (keys.Aes128Key, error) {
	generation := s.header.KeyGenerationIndex()

	if s.header.RightsId.IsZero() {
		// key area entry 2 carries the CTR section key, 0 and 1 the XTS pair
		return s.keyset.UnwrapKeyArea(
			s.header.EncryptedKeyArea[2][:],
			s.header.KeyAreaIndex.Scheme(),
			generation,
		)
	}

	enc, err := s.keyset.GetTitleKey(s.header.RightsId)
	if err != nil {
		return keys.Aes128Key{}, err
	}
	titleKey, err := s.keyset.DecryptTitleKey(enc, generation)
	if err != nil {
		return keys.Aes128Key{}, err
	}
	return keys.Aes128Key(titleKey), nil
}

// OpenDecrypted returns a plaintext view of the section.
//
// The CTR keystream counter is a function of the absolute offset inside the
// container, so the cipher wraps the whole parent and the section range is
// split off afterwards.
func (s *NcaSection) OpenDecrypted() (storage.Storage, error) {
	switch s.fsHeader.EncryptionType {
	case EncryptionNone:
		return s.OpenEncrypted()

	case EncryptionAesCtr:
		key, err := s.Key()
		if err != nil {
			return nil, err
		}
		ctr, err := storage.NewAesCtrStorage(s.parent, key[:], s.fsHeader.Counter())
		if err != nil {
			return nil, err
		}
		return storage.Split(ctr, s.Offset(), s.Size())

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, s.fsHeader.EncryptionType)
	}
}
