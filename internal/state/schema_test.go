package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func defaults() Defaults {
	return Defaults{NetworkID: "testnet", Now: func() time.Time { return fixedNow }}
}

func TestNormalize_Fresh(t *testing.T) {
	st, changed, err := Normalize(nil, defaults())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, LatestVersion, st.SchemaVersion)
	assert.NotEmpty(t, st.WalletID)
	assert.Equal(t, "testnet", st.NetworkID)
	assert.Equal(t, fixedNow, st.CreatedAt)
	assert.Empty(t, st.Permissions)
	assert.JSONEq(t, `{}`, string(st.BackendSnapshot))
}

func TestNormalize_MigratesV1(t *testing.T) {
	v1 := `{"schemaVersion":1,"walletId":"w-1","createdAt":"2024-01-02T03:04:05.000Z","networkId":"preview"}`

	st, changed, err := Normalize(json.RawMessage(v1), defaults())
	require.NoError(t, err)
	assert.True(t, changed, "a migrated state must be persisted")
	assert.Equal(t, LatestVersion, st.SchemaVersion)
	assert.Equal(t, "w-1", st.WalletID)
	assert.Equal(t, "preview", st.NetworkID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), st.CreatedAt.UTC())
	assert.NotNil(t, st.Permissions)
	assert.Empty(t, st.Permissions)
	assert.JSONEq(t, `{}`, string(st.BackendSnapshot))

	// Migrating the result again is a no-op.
	again, err := json.Marshal(st)
	require.NoError(t, err)
	st2, changed, err := Normalize(again, defaults())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, st.WalletID, st2.WalletID)
}

func TestNormalize_MigratesV2KeepsPermissions(t *testing.T) {
	v2 := `{"schemaVersion":2,"walletId":"w-2","createdAt":"2024-01-02T03:04:05Z","networkId":"testnet",
		"permissions":{"https://dapp.example":{"methods":["signData"],"createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}}}`

	st, changed, err := Normalize(json.RawMessage(v2), defaults())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, st.Permissions.Has("https://dapp.example", "signData"))
	assert.JSONEq(t, `{}`, string(st.BackendSnapshot))
}

func TestNormalize_FallsBackToFresh(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `[1,2,3]`},
		{"missing version", `{"walletId":"w","createdAt":"2024-01-02T03:04:05Z","networkId":"testnet"}`},
		{"zero version", `{"schemaVersion":0}`},
		{"missing wallet id", `{"schemaVersion":1,"createdAt":"2024-01-02T03:04:05Z","networkId":"testnet"}`},
		{"mistyped permissions", `{"schemaVersion":2,"walletId":"w","createdAt":"2024-01-02T03:04:05Z","networkId":"testnet","permissions":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, changed, err := Normalize(json.RawMessage(tt.raw), defaults())
			require.NoError(t, err)
			assert.True(t, changed)
			assert.NotEqual(t, "w", st.WalletID)
			assert.Equal(t, LatestVersion, st.SchemaVersion)
		})
	}
}

func TestNormalize_NewerVersionIsStorageError(t *testing.T) {
	_, _, err := Normalize(json.RawMessage(`{"schemaVersion":99,"walletId":"w"}`), defaults())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))
}

func TestWalletState_Clone(t *testing.T) {
	st := Fresh(defaults())
	st.Permissions = st.Permissions.Grant("https://a.example", []string{"signData"}, fixedNow)

	c := st.Clone()
	c.Permissions = c.Permissions.Grant("https://a.example", []string{"getDustAddress"}, fixedNow)
	c.BackendSnapshot[0] = '['

	assert.False(t, st.Permissions.Has("https://a.example", "getDustAddress"))
	assert.JSONEq(t, `{}`, string(st.BackendSnapshot))
}
