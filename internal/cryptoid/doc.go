// ABOUTME: secp256k1 identity keys, signing, and ECDH for the guild protocol
// ABOUTME: AEAD helper for opaque message payloads the core never decrypts
package cryptoid
