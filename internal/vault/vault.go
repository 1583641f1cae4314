// Package vault keeps the wallet root secret. The secret is generated once,
// sealed by a KMS provider and stored next to the wallet state.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

const (
	// RecordKey is the provider key of the sealed root secret.
	RecordKey = "dw:root-secret:v1"

	recordAAD      = "dark-wallet:extension-root-secret:v1"
	rootSecretSize = 32
)

// GetOrCreateRootSecret unseals the stored root secret, or generates and
// stores one if there is none.
func GetOrCreateRootSecret(ctx context.Context, store storage.Provider, kms KMS) ([]byte, error) {
	raw, ok, err := store.Get(ctx, RecordKey)
	if err != nil {
		return nil, apperrors.Storage("Failed to read vault record.", err)
	}

	if ok && raw != "" {
		secret, err := kms.Decrypt(ctx, []byte(raw))
		if err != nil {
			return nil, err
		}
		if len(secret) != rootSecretSize {
			crypto.Zero(secret)
			return nil, apperrors.Crypto("Invalid root secret length.", nil)
		}
		return secret, nil
	}

	secret, err := crypto.RandomBytes(rootSecretSize)
	if err != nil {
		return nil, err
	}
	record, err := kms.Encrypt(ctx, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal root secret: %w", err)
	}
	if err := store.Set(ctx, RecordKey, string(record)); err != nil {
		return nil, apperrors.Storage("Failed to write vault record.", err)
	}
	logger.Info(ctx, "root secret created", "kms_provider", kms.Provider())
	return secret, nil
}

// Vault hands the root secret to the wallet. It unseals once and keeps the
// secret in memory for the life of the process.
type Vault struct {
	store storage.Provider
	kms   KMS

	mu     sync.Mutex
	secret []byte
}

// New creates a Vault over store.
func New(store storage.Provider, kms KMS) *Vault {
	return &Vault{store: store, kms: kms}
}

// RootSecret returns a copy of the root secret.
func (v *Vault) RootSecret(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.secret == nil {
		secret, err := GetOrCreateRootSecret(ctx, v.store, v.kms)
		if err != nil {
			return nil, err
		}
		v.secret = secret
	}
	return append([]byte(nil), v.secret...), nil
}

// Close wipes the cached secret.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	crypto.Zero(v.secret)
	v.secret = nil
}
