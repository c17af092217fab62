// ABOUTME: Encrypted record storage for user tokens
// ABOUTME: Seals JSON values with NaCl secretbox before writing them to store.Storage

package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/2389/coven-bot/internal/store"
)

// ErrDecrypt is returned for records sealed with another key or corrupted
// in storage.
var ErrDecrypt = errors.New("token record cannot be decrypted")

const nonceSize = 24

// DeriveKey turns a configured secret into a secretbox key.
func DeriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// Vault stores sealed JSON records.
type Vault struct {
	storage store.Storage
	key     [32]byte
}

// NewVault creates a vault over storage.
func NewVault(storage store.Storage, key [32]byte) *Vault {
	return &Vault{storage: storage, key: key}
}

type sealedRecord struct {
	Box []byte `json:"box"`
}

// Put seals value and writes it under key, replacing any previous record.
func (v *Vault) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], data, &nonce, &v.key)

	item, err := store.NewItem(sealedRecord{Box: box}, store.AnyETag)
	if err != nil {
		return err
	}
	return v.storage.Write(ctx, map[string]*store.Item{key: item})
}

// Get opens the record under key into out. It reports false when there is
// no record.
func (v *Vault) Get(ctx context.Context, key string, out any) (bool, error) {
	items, err := v.storage.Read(ctx, []string{key})
	if err != nil {
		return false, err
	}
	item, ok := items[key]
	if !ok {
		return false, nil
	}

	var rec sealedRecord
	if err := item.Decode(&rec); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(rec.Box) < nonceSize+secretbox.Overhead {
		return false, ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], rec.Box[:nonceSize])
	data, ok := secretbox.Open(nil, rec.Box[nonceSize:], &nonce, &v.key)
	if !ok {
		return false, ErrDecrypt
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decoding record: %w", err)
	}
	return true, nil
}

// Delete removes records.
func (v *Vault) Delete(ctx context.Context, keys ...string) error {
	return v.storage.Delete(ctx, keys)
}
