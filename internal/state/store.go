// Package state persists the wallet state encrypted at rest and migrates it
// between schema versions.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

const (
	// RecordKey is the provider key holding the wallet state envelope.
	RecordKey = "dark-wallet:state"

	stateAAD = "dark-wallet:state:v1"
)

// Record reads and writes one provider key without touching its contents.
type Record struct {
	provider storage.Provider
	key      string
}

// NewRecord addresses key on provider. An empty key means RecordKey.
func NewRecord(provider storage.Provider, key string) *Record {
	if key == "" {
		key = RecordKey
	}
	return &Record{provider: provider, key: key}
}

// LoadRaw returns the stored envelope exactly as persisted.
func (r *Record) LoadRaw(ctx context.Context) (string, bool, error) {
	raw, ok, err := r.provider.Get(ctx, r.key)
	if err != nil {
		return "", false, apperrors.Storage("Failed to read state record.", err)
	}
	if !ok || raw == "" {
		return "", false, nil
	}
	return raw, true, nil
}

// SaveRaw writes an envelope verbatim in a single provider write.
func (r *Record) SaveRaw(ctx context.Context, raw string) error {
	if err := r.provider.Set(ctx, r.key, raw); err != nil {
		return apperrors.Storage("Failed to write state record.", err)
	}
	return nil
}

// Clear deletes the record.
func (r *Record) Clear(ctx context.Context) error {
	if err := r.provider.Delete(ctx, r.key); err != nil {
		return apperrors.Storage("Failed to delete state record.", err)
	}
	return nil
}

// Store encrypts one logical record under a fixed key and context tag.
// The key is held in memory only.
type Store struct {
	*Record
	key []byte
	aad []byte
}

// Option customises a Store
type Option func(*Store)

// WithRecordKey stores under a different provider key.
func WithRecordKey(k string) Option {
	return func(s *Store) { s.Record = NewRecord(s.provider, k) }
}

// WithAAD binds ciphertexts to a different context tag.
func WithAAD(aad string) Option {
	return func(s *Store) { s.aad = []byte(aad) }
}

// NewStore creates a store. key must be 32 bytes.
func NewStore(provider storage.Provider, key []byte, opts ...Option) (*Store, error) {
	if len(key) != crypto.KeySize {
		return nil, apperrors.InvalidConfig("storageKey must be 32 bytes for AES-256-GCM.")
	}
	s := &Store{
		Record: NewRecord(provider, RecordKey),
		key:    append([]byte(nil), key...),
		aad:    []byte(stateAAD),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load decrypts the record into out. It returns false if there is no
// record. A malformed record, a wrong key and undecodable plaintext are
// all StorageErrors.
func (s *Store) Load(ctx context.Context, out any) (bool, error) {
	raw, ok, err := s.LoadRaw(ctx)
	if err != nil || !ok {
		return false, err
	}

	pt, err := crypto.OpenEnvelope(s.key, []byte(raw), s.aad)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeStorage) {
			return false, err
		}
		return false, apperrors.Storage("Failed to decrypt state record.", err)
	}
	defer crypto.Zero(pt)

	if err := json.Unmarshal(pt, out); err != nil {
		return false, apperrors.Storage("Failed to decode decrypted state JSON.", err)
	}
	return true, nil
}

// Save encrypts v with a fresh nonce and replaces the record in a single
// provider write.
func (s *Store) Save(ctx context.Context, v any) error {
	pt, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	defer crypto.Zero(pt)

	env, err := crypto.SealEnvelope(s.key, pt, s.aad)
	if err != nil {
		return err
	}
	return s.SaveRaw(ctx, string(env))
}
