package cryptoid

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// aeadInfo is the HKDF info parameter binding derived keys to their use,
// so a shared secret can never be replayed across unrelated purposes.
const aeadInfo = "commons-guild/message-content/v1"

// deriveAEADKey stretches an ECDH shared secret into a 32-byte AES-256 key.
func deriveAEADKey(shared []byte) ([]byte, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(aeadInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cryptoid: deriving key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under a key derived from shared, returning the
// hex-encoded 96-bit nonce and the base64-encoded ciphertext. This is used
// for opaque MESSAGE.content payloads that the relay and core state
// reducer never inspect.
func Seal(shared, plaintext []byte) (nonceHex, ciphertextB64 string, err error) {
	key, err := deriveAEADKey(shared)
	if err != nil {
		return "", "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("cryptoid: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", fmt.Errorf("cryptoid: building AEAD: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("cryptoid: generating nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return hex.EncodeToString(nonce), base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal using the matching shared secret.
func Open(shared []byte, nonceHex, ciphertextB64 string) ([]byte, error) {
	key, err := deriveAEADKey(shared)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: building AEAD: %w", err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("cryptoid: invalid nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: invalid ciphertext encoding: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: decrypting: %w", err)
	}
	return plaintext, nil
}
