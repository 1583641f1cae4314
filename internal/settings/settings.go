// Package settings loads the endpoint profiles the execution host hands to
// the wallet backend. The file is HuJSON so operators can leave comments and
// trailing commas in it.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// DefaultNetworkID is used whenever the settings file is absent or unusable.
const DefaultNetworkID = "testnet"

// EndpointProfile holds the service endpoints for one network.
type EndpointProfile struct {
	IndexerURI       string `json:"indexerUri"`
	IndexerWsURI     string `json:"indexerWsUri,omitempty"`
	ProverServerURI  string `json:"proverServerUri,omitempty"`
	SubstrateNodeURI string `json:"substrateNodeUri"`
}

// Settings is the v1 settings document.
type Settings struct {
	V               int                        `json:"v"`
	ActiveNetworkID string                     `json:"activeNetworkId"`
	Profiles        map[string]EndpointProfile `json:"profiles"`
}

// DefaultProfile points at a local indexer and prover.
func DefaultProfile() EndpointProfile {
	return EndpointProfile{
		IndexerURI:       "http://127.0.0.1:8088/api/v1/graphql",
		IndexerWsURI:     "ws://127.0.0.1:8088/api/v1/graphql",
		ProverServerURI:  "http://127.0.0.1:6300",
		SubstrateNodeURI: "wss://rpc.testnet-02.midnight.network",
	}
}

// Default returns the settings used when nothing valid is on disk.
func Default() *Settings {
	return &Settings{
		V:               1,
		ActiveNetworkID: DefaultNetworkID,
		Profiles: map[string]EndpointProfile{
			DefaultNetworkID: DefaultProfile(),
		},
	}
}

// Active returns the active network id and its profile.
func (s *Settings) Active() (string, EndpointProfile) {
	if p, ok := s.Profiles[s.ActiveNetworkID]; ok {
		return s.ActiveNetworkID, p
	}
	return DefaultNetworkID, DefaultProfile()
}

// Parse decodes a HuJSON document and normalizes it. Anything that does not
// describe a usable active profile yields Default.
func Parse(data []byte) *Settings {
	std, err := hujson.Standardize(data)
	if err != nil {
		return Default()
	}

	var raw struct {
		V               int                        `json:"v"`
		ActiveNetworkID string                     `json:"activeNetworkId"`
		Profiles        map[string]json.RawMessage `json:"profiles"`
	}
	if err := json.Unmarshal(std, &raw); err != nil {
		return Default()
	}
	return normalize(raw.V, raw.ActiveNetworkID, raw.Profiles)
}

func normalize(v int, active string, rawProfiles map[string]json.RawMessage) *Settings {
	active = strings.TrimSpace(active)
	if v != 1 || active == "" {
		return Default()
	}

	profiles := make(map[string]EndpointProfile, len(rawProfiles))
	for id, rawProfile := range rawProfiles {
		var p EndpointProfile
		if err := json.Unmarshal(rawProfile, &p); err != nil {
			continue
		}
		if np, ok := normalizeProfile(p); ok {
			profiles[id] = np
		}
	}

	if _, ok := profiles[active]; !ok {
		return Default()
	}
	return &Settings{V: 1, ActiveNetworkID: active, Profiles: profiles}
}

func normalizeProfile(p EndpointProfile) (EndpointProfile, bool) {
	out := EndpointProfile{
		IndexerURI:       strings.TrimSpace(p.IndexerURI),
		IndexerWsURI:     strings.TrimSpace(p.IndexerWsURI),
		ProverServerURI:  strings.TrimSpace(p.ProverServerURI),
		SubstrateNodeURI: strings.TrimSpace(p.SubstrateNodeURI),
	}
	if out.IndexerURI == "" || out.SubstrateNodeURI == "" {
		return EndpointProfile{}, false
	}
	return out, true
}

// Load reads the settings file at path. A missing file is created with the
// defaults. An empty path means defaults without touching disk.
func Load(path string) (*Settings, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s := Default()
		if err := Save(path, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return Parse(data), nil
}

// Save writes s as indented JSON, which is valid HuJSON.
func Save(path string, s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
