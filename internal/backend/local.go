package backend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Key types accepted by Sign
const (
	KeyTypeUnshielded = "unshielded"
	KeyTypeShielded   = "shielded"
	KeyTypeDust       = "dust"
)

// NativeToken is the balance key for the network's native token.
const NativeToken = "native"

// ledger is the serialized state of a Local backend.
type ledger struct {
	Nonce      uint64               `json:"nonce"`
	Shielded   map[string]string    `json:"shielded,omitempty"`
	Unshielded map[string]string    `json:"unshielded,omitempty"`
	Dust       string               `json:"dust,omitempty"`
	DustCap    string               `json:"dustCap,omitempty"`
	Pending    map[string]string    `json:"pending,omitempty"`
	History    []types.HistoryEntry `json:"history,omitempty"`
}

// txBody is what a Local backend encodes into a transaction string.
type txBody struct {
	Nonce    uint64                `json:"nonce"`
	Network  string                `json:"network"`
	Kind     string                `json:"kind"`
	From     string                `json:"from"`
	Inputs   []types.DesiredInput  `json:"inputs,omitempty"`
	Outputs  []types.DesiredOutput `json:"outputs,omitempty"`
	Wrapped  string                `json:"wrapped,omitempty"`
	IntentID any                   `json:"intentId,omitempty"`
	PayFees  bool                  `json:"payFees,omitempty"`
}

// Local is an in-process backend. It keeps balances and history in its
// snapshot and never talks to the network; transactions are hex-encoded
// JSON bodies hashed with keccak256.
type Local struct {
	mu        sync.Mutex
	endpoints Endpoints
	keys      *keyring
	state     ledger
	now       func() time.Time
	closed    bool
}

// NewLocal is a Factory for the reference backend.
func NewLocal(_ context.Context, masterSeed []byte, endpoints Endpoints, snapshot json.RawMessage) (Backend, error) {
	keys, err := deriveKeyring(masterSeed)
	if err != nil {
		return nil, err
	}

	var st ledger
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &st); err != nil {
			return nil, fmt.Errorf("failed to restore backend snapshot: %w", err)
		}
	}

	return &Local{
		endpoints: endpoints,
		keys:      keys,
		state:     st,
		now:       time.Now,
	}, nil
}

var _ Factory = NewLocal

func (l *Local) lock() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return apperrors.ErrDisconnected
	}
	return nil
}

func (l *Local) ShieldedBalances(context.Context) (types.Balances, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return copyBalances(l.state.Shielded), nil
}

func (l *Local) UnshieldedBalances(context.Context) (types.Balances, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return copyBalances(l.state.Unshielded), nil
}

func (l *Local) DustBalance(context.Context) (*types.DustBalance, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return &types.DustBalance{Balance: orZero(l.state.Dust), Cap: orZero(l.state.DustCap)}, nil
}

func (l *Local) ShieldedAddresses(context.Context) (*types.ShieldedAddresses, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return &types.ShieldedAddresses{
		ShieldedAddress:             scopedAddress("shield-addr", l.endpoints.NetworkID, l.keys.shielded),
		ShieldedCoinPublicKey:       publicKeyHex(l.keys.shielded),
		ShieldedEncryptionPublicKey: publicKeyHex(l.keys.encryption),
	}, nil
}

func (l *Local) UnshieldedAddress(context.Context) (*types.UnshieldedAddress, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return &types.UnshieldedAddress{UnshieldedAddress: addressOf(l.keys.unshielded).Hex()}, nil
}

func (l *Local) DustAddress(context.Context) (*types.DustAddress, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return &types.DustAddress{DustAddress: scopedAddress("dust-addr", l.endpoints.NetworkID, l.keys.dust)}, nil
}

// TxHistory pages newest first.
func (l *Local) TxHistory(_ context.Context, pageNumber, pageSize int) ([]types.HistoryEntry, error) {
	if pageNumber < 0 || pageSize <= 0 {
		return nil, apperrors.InvalidRequest("Invalid pagination.")
	}
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	n := len(l.state.History)
	start := pageNumber * pageSize
	if start >= n {
		return []types.HistoryEntry{}, nil
	}
	end := min(start+pageSize, n)

	out := make([]types.HistoryEntry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, l.state.History[n-1-i])
	}
	return out, nil
}

func (l *Local) BalanceUnsealedTransaction(_ context.Context, tx string) (*types.TxResult, error) {
	return l.wrap("balance-unsealed", tx)
}

func (l *Local) BalanceSealedTransaction(_ context.Context, tx string) (*types.TxResult, error) {
	return l.wrap("balance-sealed", tx)
}

func (l *Local) wrap(kind, tx string) (*types.TxResult, error) {
	if _, err := decodeTx(tx); err != nil {
		return nil, err
	}
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return l.build(txBody{Kind: kind, Wrapped: tx})
}

func (l *Local) MakeTransfer(_ context.Context, outputs []types.DesiredOutput) (*types.TxResult, error) {
	if len(outputs) == 0 {
		return nil, apperrors.InvalidRequest("makeTransfer requires at least one output.")
	}
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	if err := l.debit(outputs); err != nil {
		return nil, err
	}
	return l.build(txBody{Kind: "transfer", Outputs: outputs})
}

func (l *Local) MakeIntent(_ context.Context, inputs []types.DesiredInput, outputs []types.DesiredOutput, opts types.IntentOptions) (*types.TxResult, error) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return nil, apperrors.InvalidRequest("makeIntent requires inputs or outputs.")
	}
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	return l.build(txBody{Kind: "intent", Inputs: inputs, Outputs: outputs, IntentID: opts.IntentID, PayFees: opts.PayFees})
}

// SubmitTransaction records tx in history. It must be a transaction this
// backend built or balanced.
func (l *Local) SubmitTransaction(_ context.Context, tx string) error {
	raw, err := decodeTx(tx)
	if err != nil {
		return err
	}
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	hash := hexutil.Encode(crypto.Keccak256(raw))
	if _, ok := l.state.Pending[hash]; !ok {
		return apperrors.InvalidRequest("Unknown transaction.")
	}
	delete(l.state.Pending, hash)
	l.state.History = append(l.state.History, types.HistoryEntry{
		TxHash:    hash,
		Timestamp: l.now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (l *Local) Sign(_ context.Context, message []byte, keyType string) (string, string, error) {
	if err := l.lock(); err != nil {
		return "", "", err
	}
	defer l.mu.Unlock()

	key := l.keys.unshielded
	switch keyType {
	case "", KeyTypeUnshielded:
	case KeyTypeShielded:
		key = l.keys.shielded
	case KeyTypeDust:
		key = l.keys.dust
	default:
		return "", "", apperrors.InvalidRequest(fmt.Sprintf("Unsupported keyType '%s'.", keyType))
	}

	sig, err := sign(key, message)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign: %w", err)
	}
	return hexutil.Encode(sig), publicKeyHex(key), nil
}

func (l *Local) Snapshot(context.Context) (json.RawMessage, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return json.Marshal(l.state)
}

// Close is idempotent.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Credit adds amount of token to the shielded or unshielded bucket. It is
// how a fresh reference wallet gets funded.
func (l *Local) Credit(kind, token, amount string) error {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() <= 0 {
		return apperrors.InvalidRequest(fmt.Sprintf("Invalid amount '%s'.", amount))
	}
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	bucket := &l.state.Unshielded
	if kind == types.OutputKindShielded {
		bucket = &l.state.Shielded
	}
	if *bucket == nil {
		*bucket = make(map[string]string)
	}
	have, _ := new(big.Int).SetString(orZero((*bucket)[token]), 10)
	(*bucket)[token] = have.Add(have, v).String()
	return nil
}

// build must be called with l.mu held.
func (l *Local) build(body txBody) (*types.TxResult, error) {
	l.state.Nonce++
	body.Nonce = l.state.Nonce
	body.Network = l.endpoints.NetworkID
	body.From = addressOf(l.keys.unshielded).Hex()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	if l.state.Pending == nil {
		l.state.Pending = make(map[string]string)
	}
	l.state.Pending[hexutil.Encode(crypto.Keccak256(raw))] = body.Kind
	return &types.TxResult{Tx: hex.EncodeToString(raw)}, nil
}

// debit must be called with l.mu held. It fails without changing anything
// if any output exceeds the available balance.
func (l *Local) debit(outputs []types.DesiredOutput) error {
	next := map[string]map[string]*big.Int{}
	for _, o := range outputs {
		bucket := l.state.Unshielded
		if o.Kind == types.OutputKindShielded {
			bucket = l.state.Shielded
		}
		if o.Recipient == "" {
			return apperrors.InvalidRequest("Output recipient is required.")
		}
		amount, ok := new(big.Int).SetString(o.Value, 10)
		if !ok || amount.Sign() <= 0 {
			return apperrors.InvalidRequest(fmt.Sprintf("Invalid output value '%s'.", o.Value))
		}

		token := o.Type
		if token == "" {
			token = NativeToken
		}
		if next[o.Kind] == nil {
			next[o.Kind] = map[string]*big.Int{}
		}
		have, ok := next[o.Kind][token]
		if !ok {
			have, _ = new(big.Int).SetString(orZero(bucket[token]), 10)
		}
		if have.Cmp(amount) < 0 {
			return apperrors.InvalidRequest(fmt.Sprintf("Insufficient %s balance.", token))
		}
		next[o.Kind][token] = have.Sub(have, amount)
	}

	if l.state.Shielded == nil {
		l.state.Shielded = make(map[string]string)
	}
	if l.state.Unshielded == nil {
		l.state.Unshielded = make(map[string]string)
	}
	for kind, tokens := range next {
		for token, v := range tokens {
			if kind == types.OutputKindShielded {
				l.state.Shielded[token] = v.String()
			} else {
				l.state.Unshielded[token] = v.String()
			}
		}
	}
	return nil
}

func decodeTx(tx string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(tx, "0x"))
	if err != nil || len(raw) == 0 {
		return nil, apperrors.InvalidRequest("Transaction must be non-empty hex.")
	}
	return raw, nil
}

func copyBalances(m map[string]string) types.Balances {
	out := make(types.Balances, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
