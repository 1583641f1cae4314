package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

var (
	hkdfSalt       = []byte("dark-wallet:hkdf-salt:v0")
	masterSeedInfo = []byte("dark-wallet:master-seed:v0")
	storageKeyInfo = []byte("dark-wallet:storage-key:v0")
)

// WalletKeys are the two independent keys derived from a root secret.
// MasterSeed is handed to the wallet backend; StorageKey only ever reaches
// the encrypted state store.
type WalletKeys struct {
	MasterSeed []byte
	StorageKey []byte
}

// DeriveWalletKeys runs HKDF-SHA256 twice over rootSecret with distinct
// info strings so the two outputs are independent.
func DeriveWalletKeys(rootSecret []byte) (*WalletKeys, error) {
	if len(rootSecret) == 0 {
		return nil, apperrors.InvalidConfig("root secret is empty")
	}

	masterSeed, err := hkdfExpand(rootSecret, masterSeedInfo)
	if err != nil {
		return nil, err
	}
	storageKey, err := hkdfExpand(rootSecret, storageKeyInfo)
	if err != nil {
		return nil, err
	}

	return &WalletKeys{MasterSeed: masterSeed, StorageKey: storageKey}, nil
}

func hkdfExpand(ikm, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, hkdfSalt, info)
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, apperrors.Crypto("HKDF failed.", err)
	}
	return out, nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	clear(b)
}
