package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// Envelope is the persisted form of an AES-256-GCM ciphertext.
type Envelope struct {
	V   int    `json:"v"`
	Alg string `json:"alg"`
	IV  string `json:"iv"`
	CT  string `json:"ct"`
}

// SealEnvelope encrypts plaintext and returns the encoded envelope.
func SealEnvelope(key, plaintext, aad []byte) ([]byte, error) {
	sealed, err := Seal(key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		V:   1,
		Alg: AlgAES256GCM,
		IV:  base64.StdEncoding.EncodeToString(sealed.IV),
		CT:  base64.StdEncoding.EncodeToString(sealed.Ciphertext),
	})
}

// ParseEnvelope decodes and shape-checks an envelope without decrypting it.
// Shape problems are StorageErrors.
func ParseEnvelope(raw []byte) (iv, ct []byte, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, apperrors.Storage("Failed to parse encrypted blob.", err)
	}
	if env.V != 1 || env.Alg != AlgAES256GCM {
		return nil, nil, apperrors.Storage("Unsupported encrypted blob version/algorithm.",
			fmt.Errorf("v=%d alg=%q", env.V, env.Alg))
	}
	iv, err = base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, nil, apperrors.Storage("Invalid encrypted blob iv.", err)
	}
	ct, err = base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return nil, nil, apperrors.Storage("Invalid encrypted blob ciphertext.", err)
	}
	return iv, ct, nil
}

// OpenEnvelope parses raw and decrypts it. Authentication failures are
// CryptoErrors; shape problems are StorageErrors.
func OpenEnvelope(key, raw, aad []byte) ([]byte, error) {
	iv, ct, err := ParseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return Open(key, iv, ct, aad)
}
