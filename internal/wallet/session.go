package wallet

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/akshaybapat6365/dark-wallet/internal/backend"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	"github.com/akshaybapat6365/dark-wallet/internal/state"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Session is one origin's connection to the wallet. Every capability
// method is gated on the origin's permission grants.
type Session struct {
	wallet *Wallet
	origin string

	mu        sync.Mutex
	connected bool
}

// Origin is the origin the session was opened for.
func (s *Session) Origin() string {
	return s.origin
}

// NetworkID is the wallet's network.
func (s *Session) NetworkID() string {
	return s.wallet.NetworkID()
}

// Disconnect ends the session. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.connected = false
	s.wallet.release()
}

// check returns the live core or the reason the session cannot be used.
func (s *Session) check() (*core, error) {
	if s.wallet.isDestroyed() {
		return nil, apperrors.ErrDisconnected
	}
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nil, apperrors.ErrNotConnected
	}
	c := s.wallet.loaded()
	if c == nil {
		return nil, apperrors.ErrNotConnected
	}
	return c, nil
}

// ensurePermissions prompts for whatever part of methods the origin does
// not hold yet and records the grant. Nothing is persisted on denial.
func (s *Session) ensurePermissions(ctx context.Context, c *core, methods []string) error {
	if len(methods) == 0 {
		return nil
	}

	var missing []string
	err := s.wallet.lock.with(ctx, func() error {
		missing = c.current.Load().Permissions.Missing(s.origin, methods)
		return nil
	})
	if err != nil || len(missing) == 0 {
		return err
	}

	answered, err := s.wallet.cfg.Permissions.RequestPermissions(ctx, s.origin, missing)
	if err != nil {
		return fmt.Errorf("failed to request permissions: %w", err)
	}
	granted := permission.Filter(missing, answered)

	var denied []string
	for _, m := range missing {
		if !slices.Contains(granted, m) {
			denied = append(denied, m)
		}
	}
	if len(denied) > 0 {
		logger.Info(logger.WithOrigin(ctx, s.origin), "permission rejected", "denied", denied)
		return apperrors.PermissionRejected(denied)
	}

	now := s.wallet.cfg.Now().UTC()
	err = s.wallet.update(ctx, c, func(next *state.WalletState) error {
		next.Permissions = next.Permissions.Grant(s.origin, granted, now)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(logger.WithOrigin(ctx, s.origin), "permission granted", "methods", granted)
	return nil
}

// call runs one capability method: session checks, permission gate,
// backend call, then a snapshot persist for mutating methods.
func call[T any](ctx context.Context, s *Session, method types.Method, fn func(backend.Backend) (T, error)) (T, error) {
	var zero T

	c, err := s.check()
	if err != nil {
		return zero, err
	}
	if err := s.ensurePermissions(ctx, c, []string{string(method)}); err != nil {
		return zero, err
	}

	out, err := fn(c.backend)
	if err != nil {
		return zero, err
	}

	if types.IsMutating(method) {
		if err := s.wallet.persistSnapshot(ctx, c); err != nil {
			return zero, err
		}
	}
	return out, nil
}

// HintUsage asks for every listed method up front so one prompt covers
// them all.
func (s *Session) HintUsage(ctx context.Context, methods []string) error {
	c, err := s.check()
	if err != nil {
		return err
	}
	for _, m := range methods {
		if !types.IsCapabilityMethod(m) {
			return apperrors.InvalidRequest(fmt.Sprintf("Unknown method '%s'.", m))
		}
	}
	return s.ensurePermissions(ctx, c, methods)
}

// GetConnectionStatus never fails; a closed session reports disconnected.
func (s *Session) GetConnectionStatus(context.Context) *types.ConnectionStatus {
	if _, err := s.check(); err != nil {
		return &types.ConnectionStatus{Status: types.StatusDisconnected}
	}
	return &types.ConnectionStatus{Status: types.StatusConnected, NetworkID: s.NetworkID()}
}

// GetConfiguration returns the endpoints the wallet was built with.
func (s *Session) GetConfiguration(ctx context.Context) (*types.Configuration, error) {
	return call(ctx, s, types.MethodGetConfiguration, func(backend.Backend) (*types.Configuration, error) {
		e := s.wallet.cfg.Endpoints
		return &types.Configuration{
			IndexerURI:       e.IndexerURI,
			IndexerWsURI:     e.IndexerWsURI,
			ProverServerURI:  e.ProverServerURI,
			SubstrateNodeURI: e.SubstrateNodeURI,
			NetworkID:        e.NetworkID,
		}, nil
	})
}

// GetShieldedBalances returns shielded balances by token type.
func (s *Session) GetShieldedBalances(ctx context.Context) (types.Balances, error) {
	return call(ctx, s, types.MethodGetShieldedBalances, func(b backend.Backend) (types.Balances, error) {
		return b.ShieldedBalances(ctx)
	})
}

// GetUnshieldedBalances returns unshielded balances by token type.
func (s *Session) GetUnshieldedBalances(ctx context.Context) (types.Balances, error) {
	return call(ctx, s, types.MethodGetUnshieldedBalances, func(b backend.Backend) (types.Balances, error) {
		return b.UnshieldedBalances(ctx)
	})
}

// GetDustBalance returns the dust balance and its cap.
func (s *Session) GetDustBalance(ctx context.Context) (*types.DustBalance, error) {
	return call(ctx, s, types.MethodGetDustBalance, func(b backend.Backend) (*types.DustBalance, error) {
		return b.DustBalance(ctx)
	})
}

// GetShieldedAddresses returns the shielded address and its keys.
func (s *Session) GetShieldedAddresses(ctx context.Context) (*types.ShieldedAddresses, error) {
	return call(ctx, s, types.MethodGetShieldedAddresses, func(b backend.Backend) (*types.ShieldedAddresses, error) {
		return b.ShieldedAddresses(ctx)
	})
}

// GetUnshieldedAddress returns the unshielded address.
func (s *Session) GetUnshieldedAddress(ctx context.Context) (*types.UnshieldedAddress, error) {
	return call(ctx, s, types.MethodGetUnshieldedAddress, func(b backend.Backend) (*types.UnshieldedAddress, error) {
		return b.UnshieldedAddress(ctx)
	})
}

// GetDustAddress returns the dust address.
func (s *Session) GetDustAddress(ctx context.Context) (*types.DustAddress, error) {
	return call(ctx, s, types.MethodGetDustAddress, func(b backend.Backend) (*types.DustAddress, error) {
		return b.DustAddress(ctx)
	})
}

// GetTxHistory pages through history. Bad paging is rejected before any
// prompt is shown.
func (s *Session) GetTxHistory(ctx context.Context, pageNumber, pageSize int) ([]types.HistoryEntry, error) {
	if pageNumber < 0 || pageSize <= 0 {
		if _, err := s.check(); err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidRequest("Invalid pagination: pageNumber must be >= 0 and pageSize > 0.")
	}
	return call(ctx, s, types.MethodGetTxHistory, func(b backend.Backend) ([]types.HistoryEntry, error) {
		return b.TxHistory(ctx, pageNumber, pageSize)
	})
}

// BalanceUnsealedTransaction balances tx and persists the backend snapshot.
func (s *Session) BalanceUnsealedTransaction(ctx context.Context, tx string) (*types.TxResult, error) {
	return call(ctx, s, types.MethodBalanceUnsealedTransaction, func(b backend.Backend) (*types.TxResult, error) {
		return b.BalanceUnsealedTransaction(ctx, tx)
	})
}

// BalanceSealedTransaction balances a sealed tx and persists the snapshot.
func (s *Session) BalanceSealedTransaction(ctx context.Context, tx string) (*types.TxResult, error) {
	return call(ctx, s, types.MethodBalanceSealedTransaction, func(b backend.Backend) (*types.TxResult, error) {
		return b.BalanceSealedTransaction(ctx, tx)
	})
}

// MakeTransfer builds a transfer paying outputs.
func (s *Session) MakeTransfer(ctx context.Context, outputs []types.DesiredOutput) (*types.TxResult, error) {
	return call(ctx, s, types.MethodMakeTransfer, func(b backend.Backend) (*types.TxResult, error) {
		return b.MakeTransfer(ctx, outputs)
	})
}

// MakeIntent builds an intent spending inputs for outputs.
func (s *Session) MakeIntent(ctx context.Context, inputs []types.DesiredInput, outputs []types.DesiredOutput, opts types.IntentOptions) (*types.TxResult, error) {
	return call(ctx, s, types.MethodMakeIntent, func(b backend.Backend) (*types.TxResult, error) {
		return b.MakeIntent(ctx, inputs, outputs, opts)
	})
}

// SubmitTransaction submits tx and persists the snapshot.
func (s *Session) SubmitTransaction(ctx context.Context, tx string) error {
	_, err := call(ctx, s, types.MethodSubmitTransaction, func(b backend.Backend) (struct{}, error) {
		return struct{}{}, b.SubmitTransaction(ctx, tx)
	})
	return err
}

// SignData signs data under the wallet's domain prefix for this origin and
// network.
func (s *Session) SignData(ctx context.Context, data string, opts types.SignDataOptions) (*types.Signature, error) {
	payload, err := decodePayload(data, opts.Encoding)
	if err != nil {
		if _, cerr := s.check(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	message := SignedMessage(s.origin, s.NetworkID(), payload)

	return call(ctx, s, types.MethodSignData, func(b backend.Backend) (*types.Signature, error) {
		sig, vk, err := b.Sign(ctx, message, opts.KeyType)
		if err != nil {
			return nil, err
		}
		return &types.Signature{Data: data, Signature: sig, VerifyKey: vk}, nil
	})
}

// GetProvingProvider is gated like every capability but no proving
// provider can be handed across a process boundary.
func (s *Session) GetProvingProvider(ctx context.Context) error {
	_, err := call(ctx, s, types.MethodGetProvingProvider, func(backend.Backend) (struct{}, error) {
		return struct{}{}, apperrors.InvalidRequest("getProvingProvider is not available over the relay.")
	})
	return err
}
