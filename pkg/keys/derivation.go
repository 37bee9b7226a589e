package keys

import (
	"fmt"

	"github.com/falk/switchfs/pkg/crypto"
)

// KeyAreaSchemes lists the key-area encryption schemes in index order.
var KeyAreaSchemes = [3]string{"application", "ocean", "system"}

// Derive populates titlekeks and key-area keys for every master key the
// keyset holds. Call once after loading a key file; the container pipeline
// then only ever consults the keyset.
func (ks *Keyset) Derive() error {
	kekSeed, err := ks.GetKey("aes_kek_generation_source")
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	keySeed, err := ks.GetKey("aes_key_generation_source")
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	titlekekSource, _ := ks.GetKey("titlekek_source")

	for gen := 0; gen < 0x20; gen++ {
		masterKey, err := ks.GetKeyIndex("master_key", uint8(gen))
		if err != nil {
			continue
		}

		if titlekekSource != nil {
			tk, err := crypto.ECBDecrypt(titlekekSource, masterKey)
			if err == nil {
				ks.InsertKeyIndex("titlekek", uint8(gen), tk)
			}
		}

		for _, scheme := range KeyAreaSchemes {
			source, err := ks.GetKey("key_area_key_" + scheme + "_source")
			if err != nil {
				continue
			}
			kak, err := GenerateKek(source, masterKey, kekSeed, keySeed)
			if err == nil {
				ks.InsertKeyIndex("key_area_key_"+scheme, uint8(gen), kak)
			}
		}
	}
	return nil
}

// GenerateKek runs the two-step kek derivation: unwrap the kek seed with the
// master key, unwrap src with the result, then optionally apply the key
// seed.
func GenerateKek(src, masterKey, kekSeed, keySeed []byte) ([]byte, error) {
	kek, err := crypto.ECBDecrypt(kekSeed, masterKey)
	if err != nil {
		return nil, err
	}

	srcKek, err := crypto.ECBDecrypt(src, kek)
	if err != nil {
		return nil, err
	}

	if keySeed != nil {
		return crypto.ECBDecrypt(keySeed, srcKek)
	}
	return srcKek, nil
}

// DecryptTitleKey unwraps an encrypted title key with the titlekek of the
// given key generation.
func (ks *Keyset) DecryptTitleKey(enc TitleKey, generation uint8) (TitleKey, error) {
	kek, err := ks.GetKeyIndex("titlekek", generation)
	if err != nil {
		return TitleKey{}, err
	}

	dec, err := crypto.ECBDecrypt(enc[:], kek)
	if err != nil {
		return TitleKey{}, err
	}
	return NewTitleKey(dec)
}

// UnwrapKeyArea decrypts one 16-byte key-area entry with the key-area key of
// the given scheme and generation.
func (ks *Keyset) UnwrapKeyArea(entry []byte, scheme string, generation uint8) (Aes128Key, error) {
	kak, err := ks.GetKeyIndex("key_area_key_"+scheme, generation)
	if err != nil {
		return Aes128Key{}, err
	}

	dec, err := crypto.ECBDecrypt(entry, kak)
	if err != nil {
		return Aes128Key{}, err
	}
	return NewAes128Key(dec)
}
