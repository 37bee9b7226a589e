// Package keys maintains the process-wide key material the container
// pipeline draws from: named production keys (standalone or indexed by key
// generation) and title keys addressed by rights ID.
package keys

import (
	"fmt"
	"log"
	"sync"
)

// Keyset holds named keys and title keys behind independent reader-writer
// locks. Populate it once at startup, query it concurrently afterwards.
type Keyset struct {
	prodMu sync.RWMutex
	prod   map[string]*keyEntry

	titleMu sync.RWMutex
	titles  map[RightsId]TitleKey
}

// TitleKey is the 16-byte symmetric key unlocking a title's section data.
type TitleKey [0x10]byte

// keyEntry is either a standalone key or a map of keys by generation index.
// A name keeps its kind for the lifetime of the keyset.
type keyEntry struct {
	versioned bool
	single    []byte
	byIndex   map[uint8][]byte
}

// NewKeyset returns an empty keyset.
func NewKeyset() *Keyset {
	return &Keyset{
		prod:   make(map[string]*keyEntry),
		titles: make(map[RightsId]TitleKey),
	}
}

var defaultKeyset = sync.OnceValue(NewKeyset)

// Default returns the process-wide keyset.
func Default() *Keyset {
	return defaultKeyset()
}

// MissingKeyError reports a lookup for a name the keyset does not hold.
type MissingKeyError struct{ Name string }

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("key %q not found", e.Name)
}

// IndexNotFoundError reports an index missing from a versioned key.
type IndexNotFoundError struct {
	Name  string
	Index uint8
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("no index %#02x for key %q", e.Index, e.Name)
}

// StandaloneKeyError reports an indexed lookup against a standalone key.
type StandaloneKeyError struct {
	Name  string
	Index uint8
}

func (e *StandaloneKeyError) Error() string {
	return fmt.Sprintf("requested index %#02x of standalone key %q", e.Index, e.Name)
}

// VersionedKeyError reports an unindexed lookup against a versioned key.
type VersionedKeyError struct{ Name string }

func (e *VersionedKeyError) Error() string {
	return fmt.Sprintf("requested versioned key %q without an index", e.Name)
}

// NoTitleKeyError reports a rights ID with no title-key entry.
type NoTitleKeyError struct{ RightsId RightsId }

func (e *NoTitleKeyError) Error() string {
	return fmt.Sprintf("no titlekey in db for %s", e.RightsId)
}

// InsertKey stores a standalone key. If the name already exists as a
// standalone key the value is replaced; if it exists versioned the insert is
// logged and dropped, the kind never changes.
func (ks *Keyset) InsertKey(name string, key []byte) {
	ks.insert(name, key, nil)
}

// InsertKeyIndex stores one generation of a versioned key, merging into any
// existing versions. Inserting an index over a standalone name is logged and
// dropped.
func (ks *Keyset) InsertKeyIndex(name string, index uint8, key []byte) {
	ks.insert(name, key, &index)
}

func (ks *Keyset) insert(name string, key []byte, index *uint8) {
	key = append([]byte(nil), key...)

	ks.prodMu.Lock()
	defer ks.prodMu.Unlock()

	entry, ok := ks.prod[name]
	if !ok {
		if index == nil {
			ks.prod[name] = &keyEntry{single: key}
		} else {
			ks.prod[name] = &keyEntry{versioned: true, byIndex: map[uint8][]byte{*index: key}}
		}
		return
	}

	switch {
	case !entry.versioned && index == nil:
		entry.single = key
	case entry.versioned && index != nil:
		entry.byIndex[*index] = key
	case entry.versioned:
		log.Printf("keys: ignoring unversioned insert for versioned key %q", name)
	default:
		log.Printf("keys: ignoring indexed insert for standalone key %q", name)
	}
}

// GetKey returns a standalone key by name. A versioned key holding exactly
// one entry at index 0 also resolves, anything else versioned fails with
// VersionedKeyError. The returned slice is the caller's to keep.
func (ks *Keyset) GetKey(name string) ([]byte, error) {
	ks.prodMu.RLock()
	defer ks.prodMu.RUnlock()

	entry, ok := ks.prod[name]
	if !ok {
		return nil, &MissingKeyError{Name: name}
	}

	if !entry.versioned {
		return append([]byte(nil), entry.single...), nil
	}
	if key, ok := entry.byIndex[0]; ok && len(entry.byIndex) == 1 {
		return append([]byte(nil), key...), nil
	}
	return nil, &VersionedKeyError{Name: name}
}

// GetKeyIndex returns one generation of a versioned key. Index 0 of a
// standalone key resolves to the key itself as a convenience.
func (ks *Keyset) GetKeyIndex(name string, index uint8) ([]byte, error) {
	ks.prodMu.RLock()
	defer ks.prodMu.RUnlock()

	entry, ok := ks.prod[name]
	if !ok {
		return nil, &MissingKeyError{Name: name}
	}

	if !entry.versioned {
		if index == 0 {
			return append([]byte(nil), entry.single...), nil
		}
		return nil, &StandaloneKeyError{Name: name, Index: index}
	}
	key, ok := entry.byIndex[index]
	if !ok {
		return nil, &IndexNotFoundError{Name: name, Index: index}
	}
	return append([]byte(nil), key...), nil
}

// GetAes128Key is GetKey decoded as a 16-byte AES key.
func (ks *Keyset) GetAes128Key(name string) (Aes128Key, error) {
	raw, err := ks.GetKey(name)
	if err != nil {
		return Aes128Key{}, err
	}
	return NewAes128Key(raw)
}

// GetAes128KeyIndex is GetKeyIndex decoded as a 16-byte AES key.
func (ks *Keyset) GetAes128KeyIndex(name string, index uint8) (Aes128Key, error) {
	raw, err := ks.GetKeyIndex(name, index)
	if err != nil {
		return Aes128Key{}, err
	}
	return NewAes128Key(raw)
}

// GetAes128XtsKey is GetKey decoded as a 32-byte XTS key pair.
func (ks *Keyset) GetAes128XtsKey(name string) (Aes128XtsKey, error) {
	raw, err := ks.GetKey(name)
	if err != nil {
		return Aes128XtsKey{}, err
	}
	return NewAes128XtsKey(raw)
}

// InsertTitleKey stores the title key for a rights ID, replacing any
// previous value.
func (ks *Keyset) InsertTitleKey(id RightsId, key TitleKey) {
	ks.titleMu.Lock()
	defer ks.titleMu.Unlock()
	ks.titles[id] = key
}

// GetTitleKey returns the title key for a rights ID.
func (ks *Keyset) GetTitleKey(id RightsId) (TitleKey, error) {
	ks.titleMu.RLock()
	defer ks.titleMu.RUnlock()

	key, ok := ks.titles[id]
	if !ok {
		return TitleKey{}, &NoTitleKeyError{RightsId: id}
	}
	return key, nil
}
