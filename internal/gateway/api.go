package gateway

import (
	"context"

	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

func callInto[T any](ctx context.Context, g *Gateway, method types.Method, params ...any) (T, error) {
	var out T
	err := g.Call(ctx, &out, method, params...)
	return out, err
}

// Connect opens the wallet session for the gateway's origin and network.
func (g *Gateway) Connect(ctx context.Context) error {
	return g.Call(ctx, nil, types.MethodConnect)
}

// HintUsage asks for every listed method in one prompt.
func (g *Gateway) HintUsage(ctx context.Context, methods ...types.Method) error {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return g.Call(ctx, nil, types.MethodHintUsage, names)
}

// GetConnectionStatus calls getConnectionStatus on the wallet.
func (g *Gateway) GetConnectionStatus(ctx context.Context) (*types.ConnectionStatus, error) {
	return callInto[*types.ConnectionStatus](ctx, g, types.MethodGetConnectionStatus)
}

// GetConfiguration calls getConfiguration on the wallet.
func (g *Gateway) GetConfiguration(ctx context.Context) (*types.Configuration, error) {
	return callInto[*types.Configuration](ctx, g, types.MethodGetConfiguration)
}

// GetShieldedBalances calls getShieldedBalances on the wallet.
func (g *Gateway) GetShieldedBalances(ctx context.Context) (types.Balances, error) {
	return callInto[types.Balances](ctx, g, types.MethodGetShieldedBalances)
}

// GetUnshieldedBalances calls getUnshieldedBalances on the wallet.
func (g *Gateway) GetUnshieldedBalances(ctx context.Context) (types.Balances, error) {
	return callInto[types.Balances](ctx, g, types.MethodGetUnshieldedBalances)
}

// GetDustBalance calls getDustBalance on the wallet.
func (g *Gateway) GetDustBalance(ctx context.Context) (*types.DustBalance, error) {
	return callInto[*types.DustBalance](ctx, g, types.MethodGetDustBalance)
}

// GetShieldedAddresses calls getShieldedAddresses on the wallet.
func (g *Gateway) GetShieldedAddresses(ctx context.Context) (*types.ShieldedAddresses, error) {
	return callInto[*types.ShieldedAddresses](ctx, g, types.MethodGetShieldedAddresses)
}

// GetUnshieldedAddress calls getUnshieldedAddress on the wallet.
func (g *Gateway) GetUnshieldedAddress(ctx context.Context) (*types.UnshieldedAddress, error) {
	return callInto[*types.UnshieldedAddress](ctx, g, types.MethodGetUnshieldedAddress)
}

// GetDustAddress calls getDustAddress on the wallet.
func (g *Gateway) GetDustAddress(ctx context.Context) (*types.DustAddress, error) {
	return callInto[*types.DustAddress](ctx, g, types.MethodGetDustAddress)
}

// GetTxHistory calls getTxHistory on the wallet.
func (g *Gateway) GetTxHistory(ctx context.Context, pageNumber, pageSize int) ([]types.HistoryEntry, error) {
	return callInto[[]types.HistoryEntry](ctx, g, types.MethodGetTxHistory, pageNumber, pageSize)
}

// BalanceUnsealedTransaction calls balanceUnsealedTransaction on the wallet.
func (g *Gateway) BalanceUnsealedTransaction(ctx context.Context, tx string) (*types.TxResult, error) {
	return callInto[*types.TxResult](ctx, g, types.MethodBalanceUnsealedTransaction, tx)
}

// BalanceSealedTransaction calls balanceSealedTransaction on the wallet.
func (g *Gateway) BalanceSealedTransaction(ctx context.Context, tx string) (*types.TxResult, error) {
	return callInto[*types.TxResult](ctx, g, types.MethodBalanceSealedTransaction, tx)
}

// MakeTransfer calls makeTransfer on the wallet.
func (g *Gateway) MakeTransfer(ctx context.Context, outputs []types.DesiredOutput) (*types.TxResult, error) {
	return callInto[*types.TxResult](ctx, g, types.MethodMakeTransfer, outputs)
}

// MakeIntent calls makeIntent on the wallet.
func (g *Gateway) MakeIntent(ctx context.Context, inputs []types.DesiredInput, outputs []types.DesiredOutput, opts types.IntentOptions) (*types.TxResult, error) {
	return callInto[*types.TxResult](ctx, g, types.MethodMakeIntent, inputs, outputs, opts)
}

// SignData calls signData on the wallet.
func (g *Gateway) SignData(ctx context.Context, data string, opts types.SignDataOptions) (*types.Signature, error) {
	return callInto[*types.Signature](ctx, g, types.MethodSignData, data, opts)
}

// SubmitTransaction calls submitTransaction on the wallet.
func (g *Gateway) SubmitTransaction(ctx context.Context, tx string) error {
	return g.Call(ctx, nil, types.MethodSubmitTransaction, tx)
}

// GetProvingProvider always fails across the relay; it exists so callers
// see the same error an embedded wallet would give them.
func (g *Gateway) GetProvingProvider(ctx context.Context) error {
	return g.Call(ctx, nil, types.MethodGetProvingProvider)
}
