package cryptoid

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrInvalidKey is returned when a hex-encoded key cannot be parsed.
var ErrInvalidKey = errors.New("cryptoid: invalid key")

// ErrInvalidSignature is returned when a hex-encoded signature cannot be parsed.
var ErrInvalidSignature = errors.New("cryptoid: invalid signature")

// PrivateKey wraps a secp256k1 signing key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// GenerateKey creates a fresh random secp256k1 keypair.
func GenerateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("cryptoid: generating key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// ParsePrivateKeyHex parses a hex-encoded 32-byte secp256k1 private key.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidKey
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: priv}, nil
}

// Hex returns the private key as lowercase hex.
func (p *PrivateKey) Hex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// UserID returns the 33-byte compressed public key as lowercase hex, the
// user identity used throughout the guild protocol.
func (p *PrivateKey) UserID() string {
	return DerivePublic(p)
}

// DerivePublic returns the compressed public key for priv as lowercase hex.
func DerivePublic(priv *PrivateKey) string {
	return hex.EncodeToString(priv.key.PubKey().SerializeCompressed())
}

// Sign signs a 32-byte digest, returning a hex-encoded DER signature.
func Sign(priv *PrivateKey, digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", fmt.Errorf("cryptoid: digest must be 32 bytes, got %d", len(digest))
	}
	sig := ecdsa.Sign(priv.key, digest)
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks that sigHex is a valid signature over digest by the holder
// of pubHex (a 33-byte compressed public key, lowercase hex).
func Verify(pubHex string, digest []byte, sigHex string) bool {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	if len(digest) != 32 {
		return false
	}
	return sig.Verify(digest, pub)
}
