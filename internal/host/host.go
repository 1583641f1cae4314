// Package host is the execution host: the only process that holds the root
// secret and the wallet state. It answers connector RPCs forwarded by the
// relay, one wallet per process, one session per origin and network.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akshaybapat6365/dark-wallet/internal/backend"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	"github.com/akshaybapat6365/dark-wallet/internal/settings"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	"github.com/akshaybapat6365/dark-wallet/internal/wallet"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Config wires the host to its collaborators.
type Config struct {
	// LoadSettings returns the current endpoint settings. It is called on
	// every connect so the active network can change between restarts of
	// the wallet.
	LoadSettings func() (*settings.Settings, error)

	KeyMaterial wallet.KeyMaterial
	Storage     storage.Provider
	Backend     backend.Factory
	Permissions permission.Controller
	Metrics     *metrics.Metrics
}

// Host owns at most one wallet and the sessions opened on it.
type Host struct {
	cfg Config

	mu        sync.Mutex
	wallet    *wallet.Wallet
	networkID string
	sessions  map[string]*wallet.Session
	closed    bool
}

// New returns a host with no wallet yet; the first connect builds it.
func New(cfg Config) (*Host, error) {
	if cfg.KeyMaterial == nil {
		return nil, apperrors.InvalidConfig("host key material is required")
	}
	if cfg.LoadSettings == nil {
		cfg.LoadSettings = func() (*settings.Settings, error) { return settings.Default(), nil }
	}
	return &Host{cfg: cfg, sessions: make(map[string]*wallet.Session)}, nil
}

func sessionKey(origin, networkID string) string {
	return origin + "::" + networkID
}

// Handle answers req. Errors without a wire code are logged in full and
// sent as an opaque InternalError.
func (h *Host) Handle(ctx context.Context, req *types.RPCRequest) types.RPCResponse {
	start := time.Now()
	ctx = logger.WithOrigin(logger.WithRequestID(ctx, req.ID), req.Origin)

	result, err := h.dispatch(ctx, req)

	label := string(req.Method)
	if !types.IsKnownMethod(label) {
		label = "unknown"
	}
	if err != nil {
		wire := apperrors.ToWire(err)
		if !apperrors.HasCode(err, wire.Code) {
			logger.Error(ctx, "rpc failed", "method", label, "error", err)
		} else {
			logger.Debug(ctx, "rpc rejected", "method", label, "code", wire.Code, "reason", wire.Reason)
		}
		h.cfg.Metrics.ObserveRPC(label, wire.Code, time.Since(start))
		return types.RPCResponse{ID: req.ID, OK: false, Error: wire}
	}

	h.cfg.Metrics.ObserveRPC(label, "ok", time.Since(start))
	return types.Success(req.ID, result)
}

// ensureWallet returns the wallet for networkID, creating it on first use.
func (h *Host) ensureWallet(networkID string) (*wallet.Wallet, error) {
	s, err := h.cfg.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	activeID, profile := s.Active()
	if activeID != networkID {
		return nil, apperrors.InvalidRequest(fmt.Sprintf(
			"Network '%s' is not active in extension settings (active: '%s').", networkID, activeID))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperrors.ErrDisconnected
	}
	if h.wallet != nil {
		if h.networkID != networkID {
			return nil, apperrors.InvalidRequest(fmt.Sprintf(
				"Wallet host is already initialized for '%s'. Reload the extension to switch networks.", h.networkID))
		}
		return h.wallet, nil
	}

	w, err := wallet.New(wallet.Config{
		Endpoints:   backend.EndpointsFromProfile(networkID, profile),
		KeyMaterial: h.cfg.KeyMaterial,
		Storage:     h.cfg.Storage,
		Backend:     h.cfg.Backend,
		Permissions: h.cfg.Permissions,
		Metrics:     h.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	h.wallet = w
	h.networkID = networkID
	return w, nil
}

func (h *Host) connect(ctx context.Context, origin, networkID string) error {
	w, err := h.ensureWallet(networkID)
	if err != nil {
		return err
	}
	sess, err := w.Connect(ctx, origin)
	if err != nil {
		return err
	}

	key := sessionKey(origin, networkID)
	h.mu.Lock()
	prev := h.sessions[key]
	h.sessions[key] = sess
	h.mu.Unlock()

	if prev != nil {
		prev.Disconnect()
	}
	return nil
}

func (h *Host) session(origin, networkID string) (*wallet.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionKey(origin, networkID)]
	if !ok {
		return nil, apperrors.ErrNotConnected
	}
	return s, nil
}

// Sessions returns the number of open sessions.
func (h *Host) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every session and destroys the wallet. Later calls fail
// with Disconnected.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*wallet.Session)
	w := h.wallet
	h.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect()
	}
	if w == nil {
		return nil
	}
	return w.Destroy()
}
