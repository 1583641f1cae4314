package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// LatestVersion is the schema version written by this build.
//
//	v1: schemaVersion, walletId, createdAt, networkId
//	v2: + permissions
//	v3: + backendSnapshot
const LatestVersion = 3

// WalletState is the persisted wallet state at LatestVersion.
type WalletState struct {
	SchemaVersion   int               `json:"schemaVersion"`
	WalletID        string            `json:"walletId"`
	CreatedAt       time.Time         `json:"createdAt"`
	NetworkID       string            `json:"networkId"`
	Permissions     permission.Ledger `json:"permissions"`
	BackendSnapshot json.RawMessage   `json:"backendSnapshot"`
}

// Defaults seeds a fresh state.
type Defaults struct {
	NetworkID string
	Now       func() time.Time
}

func (d Defaults) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Fresh builds a new state with a new wallet id.
func Fresh(d Defaults) *WalletState {
	return &WalletState{
		SchemaVersion:   LatestVersion,
		WalletID:        uuid.NewString(),
		CreatedAt:       d.now(),
		NetworkID:       d.NetworkID,
		Permissions:     permission.Ledger{},
		BackendSnapshot: json.RawMessage(`{}`),
	}
}

// migration upgrades a document from version n to n+1 in place. Steps add
// fields only.
type migration func(doc map[string]json.RawMessage)

var migrations = map[int]migration{
	1: func(doc map[string]json.RawMessage) {
		if _, ok := doc["permissions"]; !ok {
			doc["permissions"] = json.RawMessage(`{}`)
		}
	},
	2: func(doc map[string]json.RawMessage) {
		if _, ok := doc["backendSnapshot"]; !ok {
			doc["backendSnapshot"] = json.RawMessage(`{}`)
		}
	},
}

// Normalize brings raw up to LatestVersion.
//
// A nil raw synthesizes a fresh state. Records from a newer build are a
// StorageError. Records whose required fields are missing or mistyped are
// replaced by a fresh state. changed reports whether the caller must
// persist the result.
func Normalize(raw json.RawMessage, d Defaults) (st *WalletState, changed bool, err error) {
	if len(raw) == 0 {
		return Fresh(d), true, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Fresh(d), true, nil
	}

	var version int
	if v, ok := doc["schemaVersion"]; !ok || json.Unmarshal(v, &version) != nil || version < 1 {
		return Fresh(d), true, nil
	}
	if version > LatestVersion {
		return nil, false, apperrors.Storage("Unsupported state schema version.",
			fmt.Errorf("schemaVersion %d is newer than %d", version, LatestVersion))
	}

	for v := version; v < LatestVersion; v++ {
		migrations[v](doc)
	}
	doc["schemaVersion"] = json.RawMessage(fmt.Sprint(LatestVersion))

	migrated, err := json.Marshal(doc)
	if err != nil {
		return Fresh(d), true, nil
	}

	var out WalletState
	if err := json.Unmarshal(migrated, &out); err != nil || !out.valid() {
		return Fresh(d), true, nil
	}
	if out.Permissions == nil {
		out.Permissions = permission.Ledger{}
	}
	if len(out.BackendSnapshot) == 0 || string(out.BackendSnapshot) == "null" {
		out.BackendSnapshot = json.RawMessage(`{}`)
	}

	return &out, version != LatestVersion, nil
}

func (s *WalletState) valid() bool {
	return s.WalletID != "" && s.NetworkID != "" && !s.CreatedAt.IsZero()
}

// Clone returns a deep copy so callers may build the next state without
// touching the current one.
func (s *WalletState) Clone() *WalletState {
	c := *s
	c.Permissions = s.Permissions.Clone()
	c.BackendSnapshot = append(json.RawMessage(nil), s.BackendSnapshot...)
	return &c
}
