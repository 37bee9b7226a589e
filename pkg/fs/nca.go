// Package fs parses the Switch content container formats: NCA archives and
// the PFS0/HFS0 partition filesystems packaged inside them. Parsers take a
// storage.Storage and hand back child storages, so callers compose them
// freely: a file storage holding an NSP yields PFS0 entries, an entry
// yields an NCA, an NCA section yields a decrypted view.
package fs

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log"

	"github.com/falk/switchfs/pkg/crypto"
	"github.com/falk/switchfs/pkg/keys"
	"github.com/falk/switchfs/pkg/storage"
)

var (
	// ErrHeaderCorrupted means the header did not decrypt to an NCA magic.
	ErrHeaderCorrupted = errors.New("nca header corrupted")

	// ErrNoHeaderKey means the header is encrypted and the keyset holds no
	// header_key.
	ErrNoHeaderKey = errors.New("nca header is encrypted but no header_key is available")

	// ErrUnsupportedEncryption marks section encryption types the library
	// does not open.
	ErrUnsupportedEncryption = errors.New("unsupported section encryption type")
)

// HashMismatchError reports an FS header whose digest does not match the
// hash stored in the NCA header.
type HashMismatchError struct {
	Index    int
	Expected [0x20]byte
	Actual   [0x20]byte
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("fs header %d hash mismatch: header says %x, computed %x",
		e.Index, e.Expected, e.Actual)
}

// IntegrityMode controls how FS-header hash mismatches are handled.
type IntegrityMode int

const (
	// IntegrityWarn logs mismatches and keeps going.
	IntegrityWarn IntegrityMode = iota

	// IntegrityError fails parsing with a HashMismatchError.
	IntegrityError
)

// NcaOptions tune NCA parsing. The zero value uses the default keyset and
// warns on hash mismatches.
type NcaOptions struct {
	Keys      *keys.Keyset
	Integrity IntegrityMode
}

// NCA is a parsed content archive. It holds the parent storage and the
// decrypted headers; section data stays encrypted until a section view is
// opened.
type NCA struct {
	parent    storage.Storage
	Header    *NcaHeader
	fsHeaders [4]*FsHeader
	keyset    *keys.Keyset
}

// OpenNca parses the NCA at the start of s using default options.
func OpenNca(s storage.Storage) (*NCA, error) {
	return OpenNcaWithOptions(s, NcaOptions{})
}

// OpenNcaWithOptions parses the NCA at the start of s.
//
// The 0xC00-byte header region is decrypted with header_key (XTS, Nintendo
// tweak) unless it is already plaintext. Each active FS entry's descriptor
// is then decrypted if needed, checked against the hash stored in the main
// header, and parsed.
func OpenNcaWithOptions(s storage.Storage, opts NcaOptions) (*NCA, error) {
	ks := opts.Keys
	if ks == nil {
		ks = keys.Default()
	}

	buf := make([]byte, NcaHeaderSize)
	n, err := s.ReadAt(buf, 0)
	if err != nil {
		return nil, err
	}
	if n < NcaHeaderSize {
		return nil, fmt.Errorf("nca header truncated: %#x of %#x bytes", n, NcaHeaderSize)
	}

	var headerXts *crypto.XTS
	if !headerIsPlaintext(buf) {
		headerKey, err := ks.GetAes128XtsKey("header_key")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoHeaderKey, err)
		}
		headerXts, err = crypto.NewXTS(headerKey[:])
		if err != nil {
			return nil, err
		}

		if err := headerXts.DecryptArea(buf[:fsHeaderRegionOffset], 0, crypto.NintendoTweak); err != nil {
			return nil, err
		}
		if !headerIsPlaintext(buf) {
			return nil, ErrHeaderCorrupted
		}
	}

	hdr, err := parseNcaHeader(buf[:fsHeaderRegionOffset])
	if err != nil {
		return nil, err
	}

	nca := &NCA{parent: s, Header: hdr, keyset: ks}

	for i, entry := range hdr.FsEntries {
		if !entry.IsActive() {
			continue
		}

		raw := buf[fsHeaderRegionOffset+i*FsHeaderSize:][:FsHeaderSize]
		if !fsHeaderLooksDecrypted(raw) {
			if headerXts == nil {
				headerKey, err := ks.GetAes128XtsKey("header_key")
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrNoHeaderKey, err)
				}
				headerXts, err = crypto.NewXTS(headerKey[:])
				if err != nil {
					return nil, err
				}
			}

			// NCA3 numbers the header sectors continuously, so the four
			// descriptors sit at sector indices 2 through 5. Earlier
			// revisions restart each descriptor at sector 0.
			sector := uint64(2 + i)
			if hdr.Version() < 3 {
				sector = 0
				log.Printf("fs: nca%d fs header crypto is untested", hdr.Version())
			}
			if err := headerXts.DecryptSector(raw, sector, crypto.NintendoTweak); err != nil {
				return nil, err
			}
		}

		if sum := sha256.Sum256(raw); sum != hdr.FsEntryHashes[i] {
			mismatch := &HashMismatchError{Index: i, Expected: hdr.FsEntryHashes[i], Actual: sum}
			if opts.Integrity == IntegrityError {
				return nil, mismatch
			}
			log.Printf("fs: %v", mismatch)
		}

		fsHdr, err := parseFsHeader(raw)
		if err != nil {
			return nil, fmt.Errorf("fs entry %d: %w", i, err)
		}
		nca.fsHeaders[i] = fsHdr
	}

	return nca, nil
}

// Sections returns one NcaSection per active FS entry. Sections share the
// parent storage and headers but do not reference the NCA itself.
func (n *NCA) Sections() []*NcaSection {
	var sections []*NcaSection
	for i, entry := range n.Header.FsEntries {
		if !entry.IsActive() || n.fsHeaders[i] == nil {
			continue
		}
		sections = append(sections, &NcaSection{
			parent:   n.parent,
			header:   n.Header,
			fsHeader: n.fsHeaders[i],
			index:    i,
			keyset:   n.keyset,
		})
	}
	return sections
}

// Section returns the section in slot index, or nil when the slot is
// inactive.
func (n *NCA) Section(index int) *NcaSection {
	if index < 0 || index > 3 || n.fsHeaders[index] == nil {
		return nil
	}
	return &NcaSection{
		parent:   n.parent,
		header:   n.Header,
		fsHeader: n.fsHeaders[index],
		index:    index,
		keyset:   n.keyset,
	}
}
