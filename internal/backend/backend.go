// Package backend defines the wallet backend the session delegates to and
// ships a self-contained reference implementation.
//
// The session never looks inside a backend snapshot; it stores whatever
// Snapshot returns and hands it back to the Factory on the next start.
package backend

import (
	"context"
	"encoding/json"

	"github.com/akshaybapat6365/dark-wallet/internal/settings"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Endpoints is the configuration a backend talks to.
type Endpoints struct {
	NetworkID        string
	IndexerURI       string
	IndexerWsURI     string
	ProverServerURI  string
	SubstrateNodeURI string
}

// EndpointsFromProfile builds Endpoints for networkID.
func EndpointsFromProfile(networkID string, p settings.EndpointProfile) Endpoints {
	return Endpoints{
		NetworkID:        networkID,
		IndexerURI:       p.IndexerURI,
		IndexerWsURI:     p.IndexerWsURI,
		ProverServerURI:  p.ProverServerURI,
		SubstrateNodeURI: p.SubstrateNodeURI,
	}
}

// Backend computes balances, builds and submits transactions, and signs.
// Implementations must be safe for concurrent use.
type Backend interface {
	ShieldedBalances(ctx context.Context) (types.Balances, error)
	UnshieldedBalances(ctx context.Context) (types.Balances, error)
	DustBalance(ctx context.Context) (*types.DustBalance, error)

	ShieldedAddresses(ctx context.Context) (*types.ShieldedAddresses, error)
	UnshieldedAddress(ctx context.Context) (*types.UnshieldedAddress, error)
	DustAddress(ctx context.Context) (*types.DustAddress, error)

	TxHistory(ctx context.Context, pageNumber, pageSize int) ([]types.HistoryEntry, error)

	BalanceUnsealedTransaction(ctx context.Context, tx string) (*types.TxResult, error)
	BalanceSealedTransaction(ctx context.Context, tx string) (*types.TxResult, error)
	MakeTransfer(ctx context.Context, outputs []types.DesiredOutput) (*types.TxResult, error)
	MakeIntent(ctx context.Context, inputs []types.DesiredInput, outputs []types.DesiredOutput, opts types.IntentOptions) (*types.TxResult, error)
	SubmitTransaction(ctx context.Context, tx string) error

	// Sign signs message with the key selected by keyType and returns the
	// signature and verifying key, both hex encoded.
	Sign(ctx context.Context, message []byte, keyType string) (signature, verifyingKey string, err error)

	// Snapshot serializes everything needed to resume after a restart.
	Snapshot(ctx context.Context) (json.RawMessage, error)

	Close() error
}

// Factory builds a backend from the wallet's master seed. snapshot is the
// last persisted Snapshot, or "{}" for a new wallet. The wallet zeroes
// masterSeed as soon as the factory returns, so implementations must copy or
// consume it before returning.
type Factory func(ctx context.Context, masterSeed []byte, endpoints Endpoints, snapshot json.RawMessage) (Backend, error)
