// Package wallet owns the persisted wallet state for one network and hands
// out per-origin sessions that delegate to the wallet backend.
//
// All reads and writes of the state go through a FIFO lock so concurrent
// sessions never lose each other's updates. The state value itself is
// replaced wholesale; readers outside the lock see the last complete value.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/akshaybapat6365/dark-wallet/internal/backend"
	"github.com/akshaybapat6365/dark-wallet/internal/backup"
	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	"github.com/akshaybapat6365/dark-wallet/internal/state"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// DefaultOrigin scopes permissions when the wallet is embedded rather than
// reached through the relay.
const DefaultOrigin = "embedded"

// KeyMaterial supplies the root secret both wallet keys derive from.
type KeyMaterial interface {
	RootSecret(ctx context.Context) ([]byte, error)
}

// StaticKey is a KeyMaterial holding the secret in memory.
type StaticKey []byte

// RootSecret returns a copy of the key.
func (k StaticKey) RootSecret(context.Context) ([]byte, error) {
	return append([]byte(nil), k...), nil
}

// Config wires a Wallet to its collaborators.
type Config struct {
	Endpoints   backend.Endpoints
	KeyMaterial KeyMaterial
	Storage     storage.Provider
	Backend     backend.Factory
	Permissions permission.Controller
	Backup      backup.Codec
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// core is everything built by initialization.
type core struct {
	store   *state.Store
	backend backend.Backend
	current atomic.Pointer[state.WalletState]
}

// Wallet is the single authority over one network's persisted state.
type Wallet struct {
	cfg Config

	group  singleflight.Group
	lock   fifoLock
	events emitter

	mu        sync.Mutex
	core      *core
	connected int
	destroyed bool
}

// New validates cfg and returns an uninitialized wallet. Keys are derived
// and the backend is built on the first Connect.
func New(cfg Config) (*Wallet, error) {
	if strings.TrimSpace(cfg.Endpoints.NetworkID) == "" {
		return nil, apperrors.InvalidConfig("networkId is required.")
	}
	if cfg.KeyMaterial == nil {
		return nil, apperrors.InvalidConfig("key material is required.")
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}
	if cfg.Backend == nil {
		cfg.Backend = backend.NewLocal
	}
	if cfg.Permissions == nil {
		cfg.Permissions = permission.AllowAll
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Wallet{cfg: cfg}, nil
}

// NetworkID is the network this wallet serves.
func (w *Wallet) NetworkID() string {
	return w.cfg.Endpoints.NetworkID
}

// On subscribes fn to kind and returns its unsubscribe function.
func (w *Wallet) On(kind EventKind, fn func(Event)) func() {
	return w.events.on(kind, fn)
}

// Connect opens a session for origin. An empty origin means DefaultOrigin.
func (w *Wallet) Connect(ctx context.Context, origin string) (*Session, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = DefaultOrigin
	}

	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return nil, apperrors.ErrDisconnected
	}
	w.connected++
	w.mu.Unlock()

	c, err := w.ensureInit(ctx)
	if err != nil {
		w.release()
		return nil, err
	}

	st := c.current.Load()
	logger.Info(logger.WithOrigin(ctx, origin), "session connected",
		"wallet_id", st.WalletID,
		"network_id", st.NetworkID,
	)
	w.events.emit(Event{Kind: EventReady, WalletID: st.WalletID, NetworkID: st.NetworkID})

	return &Session{wallet: w, origin: origin, connected: true}, nil
}

func (w *Wallet) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.connected > 0 {
		w.connected--
	}
}

// Connected returns the number of open sessions.
func (w *Wallet) Connected() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// ensureInit builds the core once. Concurrent first callers share one
// initialization; a failed one is retried on the next call.
func (w *Wallet) ensureInit(ctx context.Context) (*core, error) {
	if c := w.loaded(); c != nil {
		return c, nil
	}

	v, err, _ := w.group.Do("init", func() (any, error) {
		if c := w.loaded(); c != nil {
			return c, nil
		}
		c, err := w.initialize(ctx)
		if err != nil {
			return nil, err
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.destroyed {
			_ = c.backend.Close()
			return nil, apperrors.ErrDisconnected
		}
		w.core = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core), nil
}

func (w *Wallet) loaded() *core {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.core
}

func (w *Wallet) initialize(ctx context.Context) (*core, error) {
	root, err := w.cfg.KeyMaterial.RootSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get root secret: %w", err)
	}
	keys, err := crypto.DeriveWalletKeys(root)
	crypto.Zero(root)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(keys.StorageKey)
	defer crypto.Zero(keys.MasterSeed)

	store, err := state.NewStore(w.cfg.Storage, keys.StorageKey)
	if err != nil {
		return nil, err
	}

	var st *state.WalletState
	err = w.lock.with(ctx, func() error {
		var raw json.RawMessage
		found, err := store.Load(ctx, &raw)
		if err != nil {
			return err
		}
		if !found {
			raw = nil
		}

		var changed bool
		st, changed, err = state.Normalize(raw, state.Defaults{
			NetworkID: w.cfg.Endpoints.NetworkID,
			Now:       w.cfg.Now,
		})
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := store.Save(ctx, st); err != nil {
			return err
		}
		w.cfg.Metrics.StateWritten()
		logger.Info(ctx, "wallet state normalized",
			"wallet_id", st.WalletID,
			"schema_version", st.SchemaVersion,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	be, err := w.cfg.Backend(ctx, keys.MasterSeed, w.cfg.Endpoints, st.BackendSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to start wallet backend: %w", err)
	}

	c := &core{store: store, backend: be}
	c.current.Store(st)
	return c, nil
}

// State returns the last persisted state, or nil before the first Connect.
// The value must not be modified.
func (w *Wallet) State() *state.WalletState {
	c := w.loaded()
	if c == nil {
		return nil
	}
	return c.current.Load()
}

// update replaces the state under the lock. mutate receives a shallow copy
// of the current state and must not modify shared fields in place.
func (w *Wallet) update(ctx context.Context, c *core, mutate func(next *state.WalletState) error) error {
	var walletID string
	err := w.lock.with(ctx, func() error {
		next := *c.current.Load()
		if err := mutate(&next); err != nil {
			return err
		}
		if err := c.store.Save(ctx, &next); err != nil {
			return err
		}
		c.current.Store(&next)
		walletID = next.WalletID
		return nil
	})
	if err != nil {
		return err
	}

	w.cfg.Metrics.StateWritten()
	w.events.emit(Event{Kind: EventStateChanged, WalletID: walletID})
	return nil
}

// persistSnapshot stores the backend snapshot. It is taken under the lock
// so a slower caller cannot overwrite a newer snapshot with an older one.
func (w *Wallet) persistSnapshot(ctx context.Context, c *core) error {
	return w.update(ctx, c, func(next *state.WalletState) error {
		snap, err := c.backend.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to snapshot backend: %w", err)
		}
		next.BackendSnapshot = snap
		return nil
	})
}

// ExportBackup seals the raw state record under password.
func (w *Wallet) ExportBackup(ctx context.Context, password string) (string, error) {
	if w.isDestroyed() {
		return "", apperrors.ErrDisconnected
	}

	var blob string
	err := w.lock.with(ctx, func() error {
		var err error
		blob, err = w.cfg.Backup.Export(ctx, state.NewRecord(w.cfg.Storage, ""), password)
		return err
	})
	return blob, err
}

// ImportBackup overwrites the state record with the one inside blob. It is
// refused while any session is connected. The next Connect loads the
// imported state.
func (w *Wallet) ImportBackup(ctx context.Context, password, blob string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return apperrors.ErrDisconnected
	}
	if w.connected > 0 {
		return apperrors.InvalidRequest("Cannot import a backup while a session is connected.")
	}

	if err := w.cfg.Backup.Import(ctx, state.NewRecord(w.cfg.Storage, ""), password, blob); err != nil {
		return err
	}
	w.cfg.Metrics.StateWritten()

	if w.core != nil {
		if err := w.core.backend.Close(); err != nil {
			logger.Warn(ctx, "failed to close backend after import", "error", err)
		}
		w.core = nil
	}
	logger.Info(ctx, "backup imported", "network_id", w.cfg.Endpoints.NetworkID)
	return nil
}

// Destroy releases the backend. Every session fails with Disconnected
// afterwards. Destroy is idempotent.
func (w *Wallet) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return nil
	}
	w.destroyed = true
	if w.core == nil {
		return nil
	}
	return w.core.backend.Close()
}

func (w *Wallet) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}
