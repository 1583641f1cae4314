package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Vault providers sealing the root secret
const (
	VaultLocal  = "local"
	VaultAWSKMS = "aws-kms"
	VaultHashi  = "vault"
)

// Host transports
const (
	TransportTCP   = "tcp"
	TransportVsock = "vsock"
)

// Config holds process-level configuration shared by the relay, the host and
// the CLIs. Endpoint profiles live in the settings file, not here.
type Config struct {
	NetworkID    string `envconfig:"NETWORK_ID" default:"testnet"`
	SettingsPath string `envconfig:"SETTINGS_PATH"`

	// Storage
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"file"`
	StoragePath    string `envconfig:"STORAGE_PATH" default:"dark-wallet-data"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`

	// Root secret vault
	VaultProvider   string `envconfig:"VAULT_PROVIDER" default:"local"`
	VaultLocalKey   string `envconfig:"VAULT_LOCAL_KEY"`
	AWSKMSKeyID     string `envconfig:"AWS_KMS_KEY_ID"`
	AWSRegion       string `envconfig:"AWS_REGION"`
	VaultAddress    string `envconfig:"VAULT_ADDRESS"`
	VaultToken      string `envconfig:"VAULT_TOKEN"`
	VaultTransitKey string `envconfig:"VAULT_TRANSIT_KEY"`

	// Execution host link
	HostTransport string `envconfig:"HOST_TRANSPORT" default:"tcp"`
	HostAddr      string `envconfig:"HOST_ADDR" default:"127.0.0.1:7400"`
	HostVsockCID  uint32 `envconfig:"HOST_VSOCK_CID" default:"16"`
	HostVsockPort uint32 `envconfig:"HOST_VSOCK_PORT" default:"7400"`
	HostCommand   string `envconfig:"HOST_COMMAND"`

	// Relay
	RelayAddr      string   `envconfig:"RELAY_ADDR" default:":7401"`
	RelayRate      float64  `envconfig:"RELAY_RATE" default:"20"`
	RelayBurst     int      `envconfig:"RELAY_BURST" default:"40"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// Permission prompts
	PromptAddr    string        `envconfig:"PROMPT_ADDR" default:"127.0.0.1:7402"`
	PromptTimeout time.Duration `envconfig:"PROMPT_TIMEOUT" default:"60s"`
}

// Load loads configuration from DW_* environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("DW", cfg); err != nil {
		return nil, apperrors.InvalidConfig(fmt.Sprintf("failed to process config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.NetworkID) == "" {
		return apperrors.InvalidConfig("DW_NETWORK_ID is required")
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageFile:
		if c.StoragePath == "" {
			return apperrors.InvalidConfig("DW_STORAGE_PATH is required when DW_STORAGE_BACKEND is 'file'")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return apperrors.InvalidConfig("DW_REDIS_ADDR is required when DW_STORAGE_BACKEND is 'redis'")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return apperrors.InvalidConfig("DW_POSTGRES_DSN is required when DW_STORAGE_BACKEND is 'postgres'")
		}
	default:
		return apperrors.InvalidConfig(fmt.Sprintf("DW_STORAGE_BACKEND must be one of memory, file, redis, postgres, got: %s", c.StorageBackend))
	}

	switch c.HostTransport {
	case TransportTCP:
		if c.HostAddr == "" {
			return apperrors.InvalidConfig("DW_HOST_ADDR is required when DW_HOST_TRANSPORT is 'tcp'")
		}
	case TransportVsock:
		if c.HostVsockPort == 0 {
			return apperrors.InvalidConfig("DW_HOST_VSOCK_PORT is required when DW_HOST_TRANSPORT is 'vsock'")
		}
	default:
		return apperrors.InvalidConfig(fmt.Sprintf("DW_HOST_TRANSPORT must be 'tcp' or 'vsock', got: %s", c.HostTransport))
	}

	if c.RelayRate <= 0 || c.RelayBurst <= 0 {
		return apperrors.InvalidConfig("DW_RELAY_RATE and DW_RELAY_BURST must be positive")
	}

	if c.PromptTimeout <= 0 {
		return apperrors.InvalidConfig("DW_PROMPT_TIMEOUT must be positive")
	}

	return nil
}

// ValidateVault checks the root secret vault settings. Only the execution
// host unseals the root secret, so the relay and CLIs skip this.
func (c *Config) ValidateVault() error {
	switch c.VaultProvider {
	case VaultLocal:
		if c.VaultLocalKey == "" {
			return apperrors.InvalidConfig("DW_VAULT_LOCAL_KEY is required when DW_VAULT_PROVIDER is 'local'")
		}
	case VaultAWSKMS:
		if c.AWSKMSKeyID == "" {
			return apperrors.InvalidConfig("DW_AWS_KMS_KEY_ID is required when DW_VAULT_PROVIDER is 'aws-kms'")
		}
	case VaultHashi:
		if c.VaultAddress == "" || c.VaultToken == "" || c.VaultTransitKey == "" {
			return apperrors.InvalidConfig("DW_VAULT_ADDRESS, DW_VAULT_TOKEN and DW_VAULT_TRANSIT_KEY are required when DW_VAULT_PROVIDER is 'vault'")
		}
	default:
		return apperrors.InvalidConfig(fmt.Sprintf("DW_VAULT_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.VaultProvider))
	}
	return nil
}

// OriginAllowed reports whether origin may open a relay channel. An empty
// allow list admits every origin.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	return false
}
