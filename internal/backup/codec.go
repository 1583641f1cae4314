// Package backup wraps the raw encrypted state record in a password
// protected envelope. The state record is never decrypted here; a backup
// restores the exact at-rest envelope it was taken from.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/bits"
	"time"

	"golang.org/x/crypto/scrypt"

	"github.com/akshaybapat6365/dark-wallet/internal/crypto"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

const (
	// MinPasswordLength is the shortest accepted backup password.
	MinPasswordLength = 8

	kdfName  = "scrypt"
	saltSize = 16
	aad      = "dark-wallet:epsb:v1"

	// Upper bounds on imported KDF parameters so a crafted envelope cannot
	// demand unbounded memory.
	maxN  = 1 << 20
	maxRP = 1 << 30
)

// KDFParams are the scrypt parameters stored in every envelope.
type KDFParams struct {
	Name  string `json:"name"`
	Salt  string `json:"salt"`
	N     int    `json:"N"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dkLen"`
}

// DefaultKDF is used for every export.
var DefaultKDF = KDFParams{Name: kdfName, N: 32768, R: 8, P: 1, DKLen: crypto.KeySize}

// Envelope is the v1 backup format.
type Envelope struct {
	V         int       `json:"v"`
	KDF       KDFParams `json:"kdf"`
	Alg       string    `json:"alg"`
	IV        string    `json:"iv"`
	CT        string    `json:"ct"`
	CreatedAt string    `json:"createdAt"`
}

// Codec seals and opens backups. The zero value uses DefaultKDF.
type Codec struct {
	KDF KDFParams
	Now func() time.Time
}

func (c Codec) kdf() KDFParams {
	if c.KDF.N == 0 {
		return DefaultKDF
	}
	return c.KDF
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.InvalidConfig(fmt.Sprintf("Backup password must be at least %d chars.", MinPasswordLength))
	}
	return nil
}

func deriveKey(password string, salt []byte, p KDFParams) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, apperrors.Crypto("Failed to derive backup key.", err)
	}
	return key, nil
}

// Seal encrypts the raw state record under a key derived from password.
func (c Codec) Seal(password, rawRecord string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}

	salt, err := crypto.RandomBytes(saltSize)
	if err != nil {
		return "", err
	}
	params := c.kdf()
	params.Name = kdfName
	params.Salt = base64.StdEncoding.EncodeToString(salt)

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	sealed, err := crypto.Seal(key, []byte(rawRecord), []byte(aad))
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(Envelope{
		V:         1,
		KDF:       params,
		Alg:       crypto.AlgAES256GCM,
		IV:        base64.StdEncoding.EncodeToString(sealed.IV),
		CT:        base64.StdEncoding.EncodeToString(sealed.Ciphertext),
		CreatedAt: c.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	return string(out), nil
}

// Open recovers the raw state record from a backup. A wrong password or a
// tampered ciphertext is a CryptoError; anything wrong with the envelope
// shape is a StorageError.
func (c Codec) Open(password, backupJSON string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}

	env, salt, iv, ct, err := parse(backupJSON)
	if err != nil {
		return "", err
	}

	key, err := deriveKey(password, salt, env.KDF)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	pt, err := crypto.Open(key, iv, ct, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func parse(backupJSON string) (env Envelope, salt, iv, ct []byte, err error) {
	if err := json.Unmarshal([]byte(backupJSON), &env); err != nil {
		return env, nil, nil, nil, apperrors.Storage("Invalid backup JSON.", err)
	}
	if env.V != 1 || env.Alg != crypto.AlgAES256GCM || env.KDF.Name != kdfName || env.CreatedAt == "" {
		return env, nil, nil, nil, apperrors.Storage("Unsupported backup format.", nil)
	}
	if err := checkKDF(env.KDF); err != nil {
		return env, nil, nil, nil, err
	}

	if salt, err = base64.StdEncoding.DecodeString(env.KDF.Salt); err != nil || len(salt) == 0 {
		return env, nil, nil, nil, apperrors.Storage("Invalid backup salt.", err)
	}
	if iv, err = base64.StdEncoding.DecodeString(env.IV); err != nil {
		return env, nil, nil, nil, apperrors.Storage("Invalid backup iv.", err)
	}
	if ct, err = base64.StdEncoding.DecodeString(env.CT); err != nil {
		return env, nil, nil, nil, apperrors.Storage("Invalid backup ciphertext.", err)
	}
	return env, salt, iv, ct, nil
}

func checkKDF(p KDFParams) error {
	switch {
	case p.N <= 1 || bits.OnesCount(uint(p.N)) != 1:
		return apperrors.Storage("Unsupported backup format.", fmt.Errorf("N=%d is not a power of two", p.N))
	case p.N > maxN:
		return apperrors.Storage("Unsupported backup format.", fmt.Errorf("N=%d exceeds %d", p.N, maxN))
	case p.R <= 0 || p.P <= 0 || uint64(p.R)*uint64(p.P) >= maxRP:
		return apperrors.Storage("Unsupported backup format.", fmt.Errorf("r=%d p=%d out of range", p.R, p.P))
	case p.DKLen != crypto.KeySize:
		return apperrors.Storage("Unsupported backup format.", fmt.Errorf("dkLen=%d", p.DKLen))
	}
	return nil
}
