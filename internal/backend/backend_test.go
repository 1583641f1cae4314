package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

var testEndpoints = Endpoints{NetworkID: "testnet", IndexerURI: "http://i", SubstrateNodeURI: "wss://n"}

func newTestLocal(t *testing.T, snapshot string) *Local {
	t.Helper()
	b, err := NewLocal(context.Background(), bytes.Repeat([]byte{1}, 32), testEndpoints, json.RawMessage(snapshot))
	require.NoError(t, err)
	return b.(*Local)
}

func TestKeyring_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{5}, 32)
	a, err := deriveKeyring(seed)
	require.NoError(t, err)
	b, err := deriveKeyring(seed)
	require.NoError(t, err)

	assert.Equal(t, addressOf(a.unshielded), addressOf(b.unshielded))
	assert.NotEqual(t, publicKeyHex(a.shielded), publicKeyHex(a.unshielded))

	_, err = deriveKeyring([]byte("short"))
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	kr, err := deriveKeyring(bytes.Repeat([]byte{6}, 32))
	require.NoError(t, err)

	sig, err := sign(kr.dust, []byte("payload"))
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.True(t, verify(publicKeyHex(kr.dust), []byte("payload"), sig))
	assert.False(t, verify(publicKeyHex(kr.dust), []byte("other"), sig))
	assert.False(t, verify(publicKeyHex(kr.shielded), []byte("payload"), sig))
}

func TestLocal_Addresses(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, "{}")

	sa, err := l.ShieldedAddresses(ctx)
	require.NoError(t, err)
	assert.Contains(t, sa.ShieldedAddress, "shield-addr_testnet_")

	da, err := l.DustAddress(ctx)
	require.NoError(t, err)
	assert.Contains(t, da.DustAddress, "dust-addr_testnet_")

	ua, err := l.UnshieldedAddress(ctx)
	require.NoError(t, err)
	assert.Len(t, ua.UnshieldedAddress, 42)

	again := newTestLocal(t, "{}")
	ua2, err := again.UnshieldedAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, ua, ua2, "addresses derive from the seed only")
}

func TestLocal_TransferSubmitHistory(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, `{"unshielded":{"native":"100"}}`)

	res, err := l.MakeTransfer(ctx, []types.DesiredOutput{
		{Kind: types.OutputKindUnshielded, Type: NativeToken, Value: "40", Recipient: "addr"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tx)

	bal, err := l.UnshieldedBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "60", bal[NativeToken])

	require.NoError(t, l.SubmitTransaction(ctx, res.Tx))

	hist, err := l.TxHistory(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.NotEmpty(t, hist[0].TxHash)

	err = l.SubmitTransaction(ctx, res.Tx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest), "a tx is submitted once")
}

func TestLocal_TransferErrors(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, `{"unshielded":{"native":"10"}}`)

	tests := []struct {
		name    string
		outputs []types.DesiredOutput
	}{
		{name: "no outputs"},
		{name: "insufficient", outputs: []types.DesiredOutput{{Kind: "unshielded", Value: "11", Recipient: "a"}}},
		{name: "cumulative insufficient", outputs: []types.DesiredOutput{
			{Kind: "unshielded", Value: "6", Recipient: "a"},
			{Kind: "unshielded", Value: "6", Recipient: "b"},
		}},
		{name: "bad value", outputs: []types.DesiredOutput{{Kind: "unshielded", Value: "1.5", Recipient: "a"}}},
		{name: "no recipient", outputs: []types.DesiredOutput{{Kind: "unshielded", Value: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.MakeTransfer(ctx, tt.outputs)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
		})
	}

	bal, err := l.UnshieldedBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", bal[NativeToken], "failed transfers leave balances untouched")
}

func TestLocal_BalanceRejectsMalformedTx(t *testing.T) {
	l := newTestLocal(t, "{}")
	_, err := l.BalanceUnsealedTransaction(context.Background(), "zz-not-hex")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))

	res, err := l.BalanceSealedTransaction(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tx)
}

func TestLocal_HistoryPaging(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, "{}")
	for i := 0; i < 5; i++ {
		res, err := l.MakeIntent(ctx, nil, []types.DesiredOutput{{Kind: "shielded", Value: "1", Recipient: "x"}}, types.IntentOptions{IntentID: "random"})
		require.NoError(t, err)
		require.NoError(t, l.SubmitTransaction(ctx, res.Tx))
	}

	all, err := l.TxHistory(ctx, 0, 5)
	require.NoError(t, err)
	page, err := l.TxHistory(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, all[2:4], page)

	empty, err := l.TxHistory(ctx, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = l.TxHistory(ctx, 0, 0)
	assert.Error(t, err)
}

func TestLocal_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, "{}")
	require.NoError(t, l.Credit(types.OutputKindShielded, "tok", "7"))

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)

	restored := newTestLocal(t, string(snap))
	bal, err := restored.ShieldedBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Balances{"tok": "7"}, bal)

	_, err = NewLocal(ctx, bytes.Repeat([]byte{1}, 32), testEndpoints, json.RawMessage("{"))
	assert.Error(t, err)
}

func TestLocal_Sign(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t, "{}")

	sig, vk, err := l.Sign(ctx, []byte("msg"), KeyTypeUnshielded)
	require.NoError(t, err)
	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	assert.True(t, verify(vk, []byte("msg"), raw))

	_, _, err = l.Sign(ctx, []byte("msg"), "bls")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestLocal_Closed(t *testing.T) {
	l := newTestLocal(t, "{}")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.ShieldedBalances(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDisconnected))
}
