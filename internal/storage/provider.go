package storage

import (
	"context"
	"fmt"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
)

// Provider is a string key/value store. Implementations must make a single
// Set visible atomically: a concurrent Get sees the old value or the new
// one, never a torn write. Read-modify-write ordering is the caller's job.
type Provider interface {
	// Get returns the value and true, or "" and false if key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by providers holding network connections.
type Closer interface {
	Close() error
}

// Open builds the provider selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return NewMemory(), nil
	case config.StorageFile:
		return NewFile(cfg.StoragePath)
	case config.StorageRedis:
		return NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr})
	case config.StoragePostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// Close releases p's connections if it has any.
func Close(p Provider) error {
	if c, ok := p.(Closer); ok {
		return c.Close()
	}
	return nil
}
