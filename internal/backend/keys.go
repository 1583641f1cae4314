package backend

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// Key roles derived from the master seed. Each role gets an independent
// secp256k1 key.
const (
	roleUnshielded = "unshielded"
	roleShielded   = "shielded"
	roleEncryption = "encryption"
	roleDust       = "dust"
)

// keyring holds the derived keys of one wallet.
type keyring struct {
	unshielded *ecdsa.PrivateKey
	shielded   *ecdsa.PrivateKey
	encryption *ecdsa.PrivateKey
	dust       *ecdsa.PrivateKey
}

func deriveKeyring(seed []byte) (*keyring, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("master seed must be at least 32 bytes, got %d", len(seed))
	}
	kr := &keyring{}
	for role, dst := range map[string]**ecdsa.PrivateKey{
		roleUnshielded: &kr.unshielded,
		roleShielded:   &kr.shielded,
		roleEncryption: &kr.encryption,
		roleDust:       &kr.dust,
	} {
		k, err := deriveKey(seed, role)
		if err != nil {
			return nil, err
		}
		*dst = k
	}
	return kr, nil
}

// deriveKey expands seed for role until it yields a valid secp256k1 scalar.
func deriveKey(seed []byte, role string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, seed, nil, []byte("dark-wallet:backend-key:"+role))
	buf := make([]byte, 32)
	for i := 0; i < 8; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to expand %s key: %w", role, err)
		}
		if k, err := crypto.ToECDSA(buf); err == nil {
			return k, nil
		}
	}
	return nil, fmt.Errorf("failed to derive a valid %s key", role)
}

// addressOf derives the checksummed address from a private key
func addressOf(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// publicKeyHex returns the compressed public key, hex encoded
func publicKeyHex(privateKey *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.CompressPubkey(&privateKey.PublicKey))
}

// scopedAddress renders a network-scoped address from the key hash.
func scopedAddress(prefix, networkID string, privateKey *ecdsa.PrivateKey) string {
	h := crypto.Keccak256(crypto.CompressPubkey(&privateKey.PublicKey), []byte(networkID))
	return fmt.Sprintf("%s_%s_%x", prefix, networkID, h[:20])
}

// sign signs keccak256(message) and returns the 65-byte [R || S || V] signature
func sign(privateKey *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(message), privateKey)
}

// verify checks a signature produced by sign against a compressed public key
func verify(pubKeyHex string, message, signature []byte) bool {
	pub, err := hexutil.Decode(pubKeyHex)
	if err != nil || len(signature) != 65 {
		return false
	}
	return crypto.VerifySignature(pub, crypto.Keccak256(message), signature[:64])
}

// VerifySignature checks a hex signature returned by Backend.Sign.
func VerifySignature(verifyingKey string, message []byte, signatureHex string) bool {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return false
	}
	return verify(verifyingKey, message, sig)
}
