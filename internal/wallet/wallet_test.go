package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshaybapat6365/dark-wallet/internal/backend"
	"github.com/akshaybapat6365/dark-wallet/internal/backup"
	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	"github.com/akshaybapat6365/dark-wallet/internal/prompt"
	"github.com/akshaybapat6365/dark-wallet/internal/state"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

const dapp = "https://dapp.example"

var (
	rootSecret = bytes.Repeat([]byte{7}, 32)
	endpoints  = backend.Endpoints{
		NetworkID:        "testnet",
		IndexerURI:       "http://127.0.0.1:8088/api/v1/graphql",
		SubstrateNodeURI: "wss://rpc.testnet-02.midnight.network",
	}
	fastBackup = backup.Codec{KDF: backup.KDFParams{N: 1024, R: 8, P: 1, DKLen: 32}}
)

// countingProvider counts writes so tests can assert how often state was
// persisted.
type countingProvider struct {
	*storage.Memory
	sets atomic.Int32
}

func (p *countingProvider) Set(ctx context.Context, key, value string) error {
	p.sets.Add(1)
	return p.Memory.Set(ctx, key, value)
}

// recordingController grants what grant returns and counts prompts.
type recordingController struct {
	mu      sync.Mutex
	prompts [][]string
	grant   func(methods []string) []string
}

func (c *recordingController) RequestPermissions(_ context.Context, _ string, methods []string) ([]string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, slices.Clone(methods))
	c.mu.Unlock()
	if c.grant == nil {
		return methods, nil
	}
	return c.grant(methods), nil
}

func (c *recordingController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func newWallet(t *testing.T, cfg Config) *Wallet {
	t.Helper()
	if cfg.KeyMaterial == nil {
		cfg.KeyMaterial = StaticKey(rootSecret)
	}
	if cfg.Endpoints.NetworkID == "" {
		cfg.Endpoints = endpoints
	}
	if cfg.Backup.KDF.N == 0 {
		cfg.Backup = fastBackup
	}
	w, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Destroy() })
	return w
}

func connect(t *testing.T, w *Wallet, origin string) *Session {
	t.Helper()
	s, err := w.Connect(context.Background(), origin)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{KeyMaterial: StaticKey(rootSecret)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))

	_, err = New(Config{Endpoints: endpoints})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))
}

func TestConnect_CreatesAndReusesState(t *testing.T) {
	provider := storage.NewMemory()
	w := newWallet(t, Config{Storage: provider})

	var ready []Event
	w.On(EventReady, func(e Event) { ready = append(ready, e) })

	connect(t, w, dapp)
	st := w.State()
	require.NotNil(t, st)
	assert.Equal(t, state.LatestVersion, st.SchemaVersion)
	assert.Equal(t, "testnet", st.NetworkID)
	require.Len(t, ready, 1)
	assert.Equal(t, Event{Kind: EventReady, WalletID: st.WalletID, NetworkID: "testnet"}, ready[0])

	raw, ok, err := provider.Get(context.Background(), state.RecordKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, st.WalletID, "state is encrypted at rest")

	again := newWallet(t, Config{Storage: provider})
	connect(t, again, dapp)
	assert.Equal(t, st.WalletID, again.State().WalletID, "walletId survives restarts")
}

func TestConnect_WrongRootSecretIsStorageError(t *testing.T) {
	provider := storage.NewMemory()
	connect(t, newWallet(t, Config{Storage: provider}), dapp)

	other := newWallet(t, Config{Storage: provider, KeyMaterial: StaticKey(bytes.Repeat([]byte{8}, 32))})
	_, err := other.Connect(context.Background(), dapp)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))
	assert.Zero(t, other.Connected())
}

func TestConnect_InitializesOnce(t *testing.T) {
	var builds atomic.Int32
	factory := func(ctx context.Context, seed []byte, e backend.Endpoints, snap json.RawMessage) (backend.Backend, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond)
		return backend.NewLocal(ctx, seed, e, snap)
	}
	w := newWallet(t, Config{Backend: factory})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Connect(context.Background(), dapp)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, 10, w.Connected())
}

func TestMigration_V1PersistedOnce(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{Memory: storage.NewMemory()}

	keys, err := crypto.DeriveWalletKeys(rootSecret)
	require.NoError(t, err)
	store, err := state.NewStore(provider, keys.StorageKey)
	require.NoError(t, err)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Save(ctx, map[string]any{
		"schemaVersion": 1,
		"walletId":      "wallet-v1",
		"createdAt":     created,
		"networkId":     "testnet",
	}))
	provider.sets.Store(0)

	w := newWallet(t, Config{Storage: provider})
	connect(t, w, dapp)

	st := w.State()
	assert.Equal(t, state.LatestVersion, st.SchemaVersion)
	assert.Equal(t, "wallet-v1", st.WalletID)
	assert.True(t, created.Equal(st.CreatedAt))
	assert.Equal(t, "testnet", st.NetworkID)
	assert.Empty(t, st.Permissions)
	assert.JSONEq(t, `{}`, string(st.BackendSnapshot))
	assert.Equal(t, int32(1), provider.sets.Load(), "migration is persisted immediately")

	again := newWallet(t, Config{Storage: provider})
	connect(t, again, dapp)
	assert.Equal(t, int32(1), provider.sets.Load(), "an already migrated state is not rewritten")
}

func TestPermissions_GrantThenReuse(t *testing.T) {
	ctrl := &recordingController{}
	w := newWallet(t, Config{Permissions: ctrl})
	s := connect(t, w, dapp)

	var changed []Event
	w.On(EventStateChanged, func(e Event) { changed = append(changed, e) })

	addr, err := s.GetUnshieldedAddress(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, addr.UnshieldedAddress)
	assert.Equal(t, [][]string{{"getUnshieldedAddress"}}, ctrl.prompts)
	require.Len(t, changed, 1)
	assert.Equal(t, w.State().WalletID, changed[0].WalletID)

	_, err = s.GetUnshieldedAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.count(), "a granted method is not prompted again")
	assert.Len(t, changed, 1, "read-only calls persist nothing")

	assert.Equal(t, []string{"getUnshieldedAddress"}, w.State().Permissions.Granted(dapp))
}

func TestPermissions_DeniedNamesMethodsAndPersistsNothing(t *testing.T) {
	provider := &countingProvider{Memory: storage.NewMemory()}
	w := newWallet(t, Config{Storage: provider, Permissions: permission.DenyAll})
	s := connect(t, w, dapp)
	writes := provider.sets.Load()

	err := s.HintUsage(context.Background(), []string{"signData", "makeTransfer"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionRejected))
	assert.Contains(t, err.Error(), "signData, makeTransfer")

	assert.Equal(t, writes, provider.sets.Load())
	assert.Empty(t, w.State().Permissions)
}

func TestPermissions_PartialGrantRejected(t *testing.T) {
	ctrl := &recordingController{grant: func([]string) []string { return []string{"signData", "notOffered"} }}
	w := newWallet(t, Config{Permissions: ctrl})
	s := connect(t, w, dapp)

	err := s.HintUsage(context.Background(), []string{"signData", "makeTransfer"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionRejected))
	assert.Contains(t, err.Error(), "makeTransfer")
	assert.NotContains(t, err.Error(), "signData")
	assert.Empty(t, w.State().Permissions)
}

func TestPermissions_PromptTimeoutRejectsAll(t *testing.T) {
	coord := prompt.NewCoordinator(prompt.WithTimeout(20 * time.Millisecond))
	w := newWallet(t, Config{Permissions: coord})
	s := connect(t, w, dapp)

	err := s.HintUsage(context.Background(), []string{"getDustBalance", "signData"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionRejected))
	assert.Contains(t, err.Error(), "getDustBalance, signData")
}

func TestPermissions_Monotonic(t *testing.T) {
	allow := true
	ctrl := &recordingController{grant: func(m []string) []string {
		if allow {
			return m
		}
		return nil
	}}
	w := newWallet(t, Config{Permissions: ctrl})
	s := connect(t, w, dapp)
	ctx := context.Background()

	require.NoError(t, s.HintUsage(ctx, []string{"getDustBalance"}))
	require.NoError(t, s.HintUsage(ctx, []string{"getDustAddress", "getDustBalance"}))
	assert.Equal(t, []string{"getDustBalance"}, ctrl.prompts[0])
	assert.Equal(t, []string{"getDustAddress"}, ctrl.prompts[1], "only missing methods are prompted")

	allow = false
	assert.Error(t, s.HintUsage(ctx, []string{"signData"}))
	assert.Equal(t, []string{"getDustAddress", "getDustBalance"}, w.State().Permissions.Granted(dapp),
		"a denial never shrinks earlier grants")

	_, err := s.GetDustBalance(ctx)
	require.NoError(t, err)
}

func TestPermissions_ConcurrentGrantsUnion(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	gate := make(chan struct{})
	ctrl := permission.ControllerFunc(func(_ context.Context, _ string, m []string) ([]string, error) {
		started.Done()
		<-gate
		return m, nil
	})

	w := newWallet(t, Config{Permissions: ctrl})
	s := connect(t, w, dapp)
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { errs <- s.HintUsage(ctx, []string{"getShieldedBalances", "getShieldedAddresses"}) }()
	go func() { errs <- s.HintUsage(ctx, []string{"signData"}) }()

	started.Wait()
	close(gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t,
		[]string{"getShieldedAddresses", "getShieldedBalances", "signData"},
		w.State().Permissions.Granted(dapp))

	reloaded := newWallet(t, Config{Storage: w.cfg.Storage})
	connect(t, reloaded, dapp)
	assert.Equal(t, w.State().Permissions.Granted(dapp), reloaded.State().Permissions.Granted(dapp))
}

func TestPermissions_ScopedByOrigin(t *testing.T) {
	ctrl := &recordingController{}
	w := newWallet(t, Config{Permissions: ctrl})
	a := connect(t, w, dapp)
	b := connect(t, w, "https://other.example")
	ctx := context.Background()

	_, err := a.GetConfiguration(ctx)
	require.NoError(t, err)
	_, err = b.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ctrl.count())
}

func TestSession_MutatingCallsPersistSnapshot(t *testing.T) {
	provider := storage.NewMemory()
	funded := func(ctx context.Context, seed []byte, e backend.Endpoints, snap json.RawMessage) (backend.Backend, error) {
		if string(snap) == "{}" {
			snap = json.RawMessage(`{"unshielded":{"native":"100"}}`)
		}
		return backend.NewLocal(ctx, seed, e, snap)
	}
	w := newWallet(t, Config{Storage: provider, Backend: funded})
	s := connect(t, w, dapp)
	ctx := context.Background()

	var changed atomic.Int32
	w.On(EventStateChanged, func(Event) { changed.Add(1) })

	res, err := s.MakeTransfer(ctx, []types.DesiredOutput{
		{Kind: types.OutputKindUnshielded, Type: "native", Value: "30", Recipient: "addr"},
	})
	require.NoError(t, err)
	require.NoError(t, s.SubmitTransaction(ctx, res.Tx))
	assert.Contains(t, string(w.State().BackendSnapshot), `"native":"70"`)

	// permission grant + snapshot for each of the two mutating calls
	assert.Equal(t, int32(4), changed.Load())

	require.NoError(t, w.Destroy())
	reloaded := newWallet(t, Config{Storage: provider, Backend: funded})
	rs := connect(t, reloaded, dapp)
	bal, err := rs.GetUnshieldedBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "70", bal["native"])

	hist, err := rs.GetTxHistory(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestSession_SignData(t *testing.T) {
	w := newWallet(t, Config{})
	s := connect(t, w, dapp)
	ctx := context.Background()

	tests := []struct {
		name    string
		data    string
		enc     string
		payload []byte
	}{
		{name: "text", data: "hello", enc: types.EncodingText, payload: []byte("hello")},
		{name: "hex", data: "0x68656c6c6f", enc: types.EncodingHex, payload: []byte("hello")},
		{name: "base64", data: "aGVsbG8=", enc: types.EncodingBase64, payload: []byte("hello")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := s.SignData(ctx, tt.data, types.SignDataOptions{Encoding: tt.enc, KeyType: "unshielded"})
			require.NoError(t, err)
			assert.Equal(t, tt.data, sig.Data)

			msg := SignedMessage(dapp, "testnet", tt.payload)
			assert.True(t, backend.VerifySignature(sig.VerifyKey, msg, sig.Signature))
			assert.False(t, backend.VerifySignature(sig.VerifyKey, tt.payload, sig.Signature),
				"the bare payload is never what gets signed")
		})
	}

	_, err := s.SignData(ctx, "zz", types.SignDataOptions{Encoding: types.EncodingHex})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	_, err = s.SignData(ctx, "x", types.SignDataOptions{Encoding: "utf16"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestSignPrefix(t *testing.T) {
	assert.Equal(t,
		"Midnight Signed Message (Dark Wallet)\norigin:https://dapp.example\nnetwork:testnet\n",
		string(signPrefix(dapp, "testnet")))
}

func TestSession_InvalidRequests(t *testing.T) {
	ctrl := &recordingController{}
	w := newWallet(t, Config{Permissions: ctrl})
	s := connect(t, w, dapp)
	ctx := context.Background()

	_, err := s.GetTxHistory(ctx, -1, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	_, err = s.GetTxHistory(ctx, 0, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	assert.Zero(t, ctrl.count(), "bad paging is rejected before prompting")

	err = s.HintUsage(ctx, []string{"stealKeys"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))

	err = s.GetProvingProvider(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	assert.True(t, w.State().Permissions.Has(dapp, "getProvingProvider"), "getProvingProvider is gated like the rest")
}

func TestSession_ConnectionStatusAndDisconnect(t *testing.T) {
	w := newWallet(t, Config{})
	s := connect(t, w, dapp)
	ctx := context.Background()

	assert.Equal(t, &types.ConnectionStatus{Status: "connected", NetworkID: "testnet"}, s.GetConnectionStatus(ctx))
	assert.Equal(t, 1, w.Connected())

	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, 0, w.Connected())
	assert.Equal(t, "disconnected", s.GetConnectionStatus(ctx).Status)

	_, err := s.GetConfiguration(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDisconnected))
}

func TestWallet_Destroy(t *testing.T) {
	w := newWallet(t, Config{})
	s := connect(t, w, dapp)

	require.NoError(t, w.Destroy())
	require.NoError(t, w.Destroy())

	_, err := s.GetShieldedBalances(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDisconnected))
	_, err = w.Connect(context.Background(), dapp)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDisconnected))
	_, err = w.ExportBackup(context.Background(), "correct horse")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDisconnected))
}

func TestBackup_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newWallet(t, Config{})

	_, err := src.ExportBackup(ctx, "correct horse")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage), "nothing to export before the first connect")

	s := connect(t, src, dapp)
	_, err = s.GetUnshieldedAddress(ctx)
	require.NoError(t, err)

	_, err = src.ExportBackup(ctx, "short")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))

	blob, err := src.ExportBackup(ctx, "correct horse")
	require.NoError(t, err)

	dstProvider := storage.NewMemory()
	dst := newWallet(t, Config{Storage: dstProvider})
	ds := connect(t, dst, dapp)
	original := dst.State().WalletID

	err = dst.ImportBackup(ctx, "correct horse", blob)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest), "import is refused while connected")
	ds.Disconnect()

	before, _, err := dstProvider.Get(ctx, state.RecordKey)
	require.NoError(t, err)
	err = dst.ImportBackup(ctx, "wrong horse", blob)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCrypto))
	after, _, err := dstProvider.Get(ctx, state.RecordKey)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed import leaves the record untouched")

	require.NoError(t, dst.ImportBackup(ctx, "correct horse", blob))
	connect(t, dst, dapp)
	assert.Equal(t, src.State().WalletID, dst.State().WalletID)
	assert.NotEqual(t, original, dst.State().WalletID)
	assert.True(t, dst.State().Permissions.Has(dapp, "getUnshieldedAddress"))
}

func TestBackup_TamperedCiphertextFails(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t, Config{})
	connect(t, w, dapp).Disconnect()

	blob, err := w.ExportBackup(ctx, "correct horse")
	require.NoError(t, err)

	var env backup.Envelope
	require.NoError(t, json.Unmarshal([]byte(blob), &env))
	ct := []byte(env.CT)
	if ct[0] == 'A' {
		ct[0] = 'B'
	} else {
		ct[0] = 'A'
	}
	env.CT = string(ct)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	err = w.ImportBackup(ctx, "correct horse", string(tampered))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCrypto))
}

func TestEvents_Unsubscribe(t *testing.T) {
	w := newWallet(t, Config{})

	var ready atomic.Int32
	off := w.On(EventReady, func(Event) { ready.Add(1) })

	connect(t, w, dapp)
	off()
	off()
	connect(t, w, "https://other.example")

	assert.Equal(t, int32(1), ready.Load())
}

func TestConnect_MasterSeedZeroedAfterFactory(t *testing.T) {
	var (
		kept   []byte
		copied []byte
	)
	factory := func(ctx context.Context, seed []byte, e backend.Endpoints, snap json.RawMessage) (backend.Backend, error) {
		kept = seed
		copied = bytes.Clone(seed)
		return backend.NewLocal(ctx, seed, e, snap)
	}
	w := newWallet(t, Config{Backend: factory})
	connect(t, w, dapp)

	assert.NotEqual(t, make([]byte, len(copied)), copied, "the factory sees the real seed")
	assert.Equal(t, make([]byte, len(kept)), kept, "a retained seed slice is zeroed after init")
}
