package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// AlgAES256GCM is the algorithm tag written into every envelope.
const AlgAES256GCM = "A256GCM"

// Sealed is the output of Seal: a fresh nonce and the ciphertext with the
// GCM tag appended.
type Sealed struct {
	IV         []byte
	Ciphertext []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, apperrors.InvalidConfig(fmt.Sprintf("key must be %d bytes for AES-256-GCM, got %d", KeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Crypto("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Crypto("failed to create GCM", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under key with a freshly drawn random nonce.
// aad binds the ciphertext to a record type and is not stored.
func Seal(key, plaintext, aad []byte) (*Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.Crypto("failed to generate nonce", err)
	}

	return &Sealed{
		IV:         nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Open authenticates and decrypts. Any failure, including a wrong key,
// wrong aad, or a tampered byte, is a CryptoError.
func Open(key, iv, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, apperrors.Crypto("AES-GCM decrypt failed.", fmt.Errorf("invalid nonce length %d", len(iv)))
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, apperrors.Crypto("AES-GCM decrypt failed.", err)
	}
	return plaintext, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, apperrors.Crypto("failed to read random bytes", err)
	}
	return b, nil
}
