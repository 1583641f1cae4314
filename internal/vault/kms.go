package vault

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vaultapi "github.com/hashicorp/vault/api"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// KMS seals the root secret. Encrypt returns a self-describing record that
// only the same provider can Decrypt.
type KMS interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, record []byte) ([]byte, error)
	Provider() string
}

// Record algorithms for remote providers. The local provider writes the
// A256GCM envelope.
const (
	AlgAWSKMS       = "aws-kms"
	AlgVaultTransit = "vault-transit"
)

// remoteRecord wraps an opaque provider ciphertext.
type remoteRecord struct {
	V   int    `json:"v"`
	Alg string `json:"alg"`
	CT  string `json:"ct"`
}

func wrapRemote(alg string, ct []byte) ([]byte, error) {
	return json.Marshal(remoteRecord{V: 1, Alg: alg, CT: base64.StdEncoding.EncodeToString(ct)})
}

func unwrapRemote(alg string, record []byte) ([]byte, error) {
	var r remoteRecord
	if err := json.Unmarshal(record, &r); err != nil {
		return nil, apperrors.Storage("Invalid vault blob.", err)
	}
	if r.V != 1 || r.Alg != alg {
		return nil, apperrors.Storage("Invalid vault blob.", fmt.Errorf("record alg %q, provider expects %q", r.Alg, alg))
	}
	ct, err := base64.StdEncoding.DecodeString(r.CT)
	if err != nil {
		return nil, apperrors.Storage("Invalid vault blob.", err)
	}
	return ct, nil
}

// LocalKMS seals with AES-256-GCM under a key hashed from an operator
// supplied string.
type LocalKMS struct {
	key []byte
}

// NewLocalKMS creates a local provider. secret may be any non-empty string.
func NewLocalKMS(secret string) (*LocalKMS, error) {
	if secret == "" {
		return nil, apperrors.InvalidConfig("master key is required for local KMS provider")
	}
	sum := sha256.Sum256([]byte("dark-wallet:device-key:v1:" + secret))
	return &LocalKMS{key: sum[:]}, nil
}

func (p *LocalKMS) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return crypto.SealEnvelope(p.key, plaintext, []byte(recordAAD))
}

func (p *LocalKMS) Decrypt(_ context.Context, record []byte) ([]byte, error) {
	return crypto.OpenEnvelope(p.key, record, []byte(recordAAD))
}

func (p *LocalKMS) Provider() string {
	return config.VaultLocal
}

// kmsAPI is the part of the AWS KMS client used here.
type kmsAPI interface {
	Encrypt(ctx context.Context, in *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMS seals with an AWS KMS key. The record AAD is bound as the
// encryption context.
type AWSKMS struct {
	keyID  string
	client kmsAPI
}

// NewAWSKMS loads the default AWS credential chain. An empty region defers
// to the environment.
func NewAWSKMS(ctx context.Context, keyID, region string) (*AWSKMS, error) {
	if keyID == "" {
		return nil, apperrors.InvalidConfig("AWS KMS key ID is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSKMS{keyID: keyID, client: kms.NewFromConfig(cfg)}, nil
}

func (p *AWSKMS) encryptionContext() map[string]string {
	return map[string]string{"purpose": recordAAD}
}

func (p *AWSKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(p.keyID),
		Plaintext:         plaintext,
		EncryptionContext: p.encryptionContext(),
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms encrypt failed: %w", err)
	}
	return wrapRemote(AlgAWSKMS, out.CiphertextBlob)
}

func (p *AWSKMS) Decrypt(ctx context.Context, record []byte) ([]byte, error) {
	ct, err := unwrapRemote(AlgAWSKMS, record)
	if err != nil {
		return nil, err
	}
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(p.keyID),
		CiphertextBlob:    ct,
		EncryptionContext: p.encryptionContext(),
	})
	if err != nil {
		return nil, apperrors.Crypto("AWS KMS decrypt failed.", err)
	}
	return out.Plaintext, nil
}

func (p *AWSKMS) Provider() string {
	return config.VaultAWSKMS
}

// TransitKMS seals with a HashiCorp Vault Transit key.
type TransitKMS struct {
	key    string
	client *vaultapi.Client
}

// NewTransitKMS creates a Transit client for address authenticated by token.
func NewTransitKMS(address, token, key string) (*TransitKMS, error) {
	if address == "" || token == "" || key == "" {
		return nil, apperrors.InvalidConfig("vault address, token and transit key are required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &TransitKMS{key: key, client: client}, nil
}

func (p *TransitKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	secret, err := p.client.Logical().WriteWithContext(ctx, "transit/encrypt/"+p.key, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit encrypt returned empty response")
	}
	ct, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit encrypt: ciphertext not found in response")
	}
	return wrapRemote(AlgVaultTransit, []byte(ct))
}

func (p *TransitKMS) Decrypt(ctx context.Context, record []byte) ([]byte, error) {
	ct, err := unwrapRemote(AlgVaultTransit, record)
	if err != nil {
		return nil, err
	}
	secret, err := p.client.Logical().WriteWithContext(ctx, "transit/decrypt/"+p.key, map[string]any{
		"ciphertext": string(ct),
	})
	if err != nil {
		return nil, apperrors.Crypto("Vault transit decrypt failed.", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, apperrors.Crypto("Vault transit decrypt returned empty response.", nil)
	}
	b64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, apperrors.Crypto("Vault transit decrypt: plaintext not found in response.", nil)
	}
	pt, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, apperrors.Crypto("Vault transit decrypt: invalid plaintext encoding.", err)
	}
	return pt, nil
}

func (p *TransitKMS) Provider() string {
	return config.VaultHashi
}

// NewKMS builds the provider selected by cfg.
func NewKMS(ctx context.Context, cfg *config.Config) (KMS, error) {
	if err := cfg.ValidateVault(); err != nil {
		return nil, err
	}
	switch cfg.VaultProvider {
	case config.VaultAWSKMS:
		return NewAWSKMS(ctx, cfg.AWSKMSKeyID, cfg.AWSRegion)
	case config.VaultHashi:
		return NewTransitKMS(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return NewLocalKMS(cfg.VaultLocalKey)
	}
}

var (
	_ KMS = (*LocalKMS)(nil)
	_ KMS = (*AWSKMS)(nil)
	_ KMS = (*TransitKMS)(nil)
)
