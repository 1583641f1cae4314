package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantActive string
		wantCount  int
	}{
		{
			name: "comments and trailing commas",
			input: `{
				// operator notes
				"v": 1,
				"activeNetworkId": " preview ",
				"profiles": {
					"preview": {
						"indexerUri": " https://indexer.preview/api ",
						"substrateNodeUri": "wss://rpc.preview",
					},
				},
			}`,
			wantActive: "preview",
			wantCount:  1,
		},
		{
			name: "invalid profiles are dropped",
			input: `{"v":1,"activeNetworkId":"testnet","profiles":{
				"testnet":{"indexerUri":"http://i","substrateNodeUri":"wss://n"},
				"broken":{"indexerUri":"  ","substrateNodeUri":"wss://n"}
			}}`,
			wantActive: "testnet",
			wantCount:  1,
		},
		{
			name:       "active profile missing falls back",
			input:      `{"v":1,"activeNetworkId":"mainnet","profiles":{}}`,
			wantActive: DefaultNetworkID,
			wantCount:  1,
		},
		{
			name:       "unknown version falls back",
			input:      `{"v":2,"activeNetworkId":"testnet","profiles":{}}`,
			wantActive: DefaultNetworkID,
			wantCount:  1,
		},
		{
			name:       "garbage falls back",
			input:      `not json at all`,
			wantActive: DefaultNetworkID,
			wantCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse([]byte(tt.input))
			assert.Equal(t, tt.wantActive, s.ActiveNetworkID)
			assert.Len(t, s.Profiles, tt.wantCount)
		})
	}
}

func TestParse_TrimsProfile(t *testing.T) {
	s := Parse([]byte(`{"v":1,"activeNetworkId":"x","profiles":{"x":{
		"indexerUri":" http://i ","indexerWsUri":" ","substrateNodeUri":"wss://n"}}}`))

	id, p := s.Active()
	assert.Equal(t, "x", id)
	assert.Equal(t, "http://i", p.IndexerURI)
	assert.Empty(t, p.IndexerWsURI)
}

func TestLoad_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.hujson")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultNetworkID, s.ActiveNetworkID)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestLoad_EmptyPath(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	id, p := s.Active()
	assert.Equal(t, DefaultNetworkID, id)
	assert.Equal(t, DefaultProfile(), p)
}
