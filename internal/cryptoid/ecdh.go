package cryptoid

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ECDH derives a shared secret between priv and the holder of pubHex by
// scalar-multiplying their public point on the secp256k1 curve and taking
// the X coordinate, the same construction used by nip04-style direct
// messages. The result is raw key material, not yet suitable for use as
// an AEAD key — callers pass it through Seal/Open, which runs it through
// HKDF first.
func ECDH(priv *PrivateKey, pubHex string) ([]byte, error) {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: decoding peer key: %w", ErrInvalidKey)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: parsing peer key: %w", ErrInvalidKey)
	}

	ecdsaPub := pub.ToECDSA()
	curve := btcec.S256()
	x, _ := curve.ScalarMult(ecdsaPub.X, ecdsaPub.Y, priv.key.Serialize())

	shared := x.Bytes()
	if len(shared) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(shared):], shared)
		shared = padded
	}
	return shared, nil
}
