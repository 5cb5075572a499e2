// Package adaptive seals snapshot blobs at rest.
//
// Two AEAD algorithms are supported:
//
//   - AES-256-GCM, chosen by New on platforms with AES hardware support
//   - ChaCha20-Poly1305 (golang.org/x/crypto), chosen elsewhere
//
// Sealed output is nonce || ciphertext || tag. The caller supplies the
// additional data; the snapshot store passes the storage key so a blob
// copied under another key fails to open.
//
// Usage:
//
//	key, err := adaptive.ParseKey(cfg.Security.EncryptionKey)
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
