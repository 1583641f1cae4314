package host

import (
	"context"
	"fmt"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// dispatch routes req to its session. Methods without a value return nil,
// which is sent as a JSON null result.
func (h *Host) dispatch(ctx context.Context, req *types.RPCRequest) (any, error) {
	if req.Method == types.MethodConnect {
		return nil, h.connect(ctx, req.Origin, req.NetworkID)
	}

	s, err := h.session(req.Origin, req.NetworkID)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case types.MethodHintUsage:
		var methods []string
		if err := req.Param(0, &methods); err != nil {
			return nil, err
		}
		return nil, s.HintUsage(ctx, methods)

	case types.MethodGetConnectionStatus:
		return s.GetConnectionStatus(ctx), nil

	case types.MethodGetConfiguration:
		return s.GetConfiguration(ctx)
	case types.MethodGetShieldedBalances:
		return s.GetShieldedBalances(ctx)
	case types.MethodGetUnshieldedBalances:
		return s.GetUnshieldedBalances(ctx)
	case types.MethodGetDustBalance:
		return s.GetDustBalance(ctx)
	case types.MethodGetShieldedAddresses:
		return s.GetShieldedAddresses(ctx)
	case types.MethodGetUnshieldedAddress:
		return s.GetUnshieldedAddress(ctx)
	case types.MethodGetDustAddress:
		return s.GetDustAddress(ctx)

	case types.MethodGetTxHistory:
		var page, size int
		if err := req.Param(0, &page); err != nil {
			return nil, err
		}
		if err := req.Param(1, &size); err != nil {
			return nil, err
		}
		return s.GetTxHistory(ctx, page, size)

	case types.MethodBalanceUnsealedTransaction:
		var tx string
		if err := req.Param(0, &tx); err != nil {
			return nil, err
		}
		return s.BalanceUnsealedTransaction(ctx, tx)

	case types.MethodBalanceSealedTransaction:
		var tx string
		if err := req.Param(0, &tx); err != nil {
			return nil, err
		}
		return s.BalanceSealedTransaction(ctx, tx)

	case types.MethodMakeTransfer:
		var outputs []types.DesiredOutput
		if err := req.Param(0, &outputs); err != nil {
			return nil, err
		}
		return s.MakeTransfer(ctx, outputs)

	case types.MethodMakeIntent:
		var (
			inputs  []types.DesiredInput
			outputs []types.DesiredOutput
			opts    types.IntentOptions
		)
		if err := req.Param(0, &inputs); err != nil {
			return nil, err
		}
		if err := req.Param(1, &outputs); err != nil {
			return nil, err
		}
		if err := req.Param(2, &opts); err != nil {
			return nil, err
		}
		return s.MakeIntent(ctx, inputs, outputs, opts)

	case types.MethodSignData:
		var (
			data string
			opts types.SignDataOptions
		)
		if err := req.Param(0, &data); err != nil {
			return nil, err
		}
		if err := req.Param(1, &opts); err != nil {
			return nil, err
		}
		return s.SignData(ctx, data, opts)

	case types.MethodSubmitTransaction:
		var tx string
		if err := req.Param(0, &tx); err != nil {
			return nil, err
		}
		return nil, s.SubmitTransaction(ctx, tx)

	case types.MethodGetProvingProvider:
		return nil, s.GetProvingProvider(ctx)

	default:
		return nil, apperrors.InvalidRequest(fmt.Sprintf("Unknown method '%s'.", req.Method))
	}
}
