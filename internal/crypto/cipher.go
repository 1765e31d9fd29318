// Package crypto provides reversible confidentiality protection for secret
// brand settings. Values are sealed with AES-256-GCM under a key derived from
// the server-wide secret; the wire format is "ivhex:cipherhex".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	nonceSize = 16
	keyLen    = 32

	kdfTime    uint32 = 3
	kdfMemory  uint32 = 64 * 1024
	kdfThreads uint8  = 2

	// PlaceholderSecret is the insecure default shipped in .env.example.
	// Refusing it keeps a misconfigured deployment from writing secrets
	// that are effectively unencrypted.
	PlaceholderSecret = "change-me"
)

// kdfSalt is static: the server secret is the trust root, the salt only
// separates this derivation from other uses of the same secret.
var kdfSalt = []byte("documinds.settings.v1")

var (
	// ErrConfiguration signals a missing or placeholder server secret.
	ErrConfiguration = errors.New("crypto: encryption secret missing or set to insecure default")
	// ErrMalformedPayload signals a structurally invalid payload.
	ErrMalformedPayload = errors.New("crypto: malformed payload")
	// ErrDecryption signals ciphertext the cipher rejects (wrong key, tampering).
	ErrDecryption = errors.New("crypto: decryption failed")
)

// Cipher seals and opens setting values. Key derivation is intentionally
// slow and happens once at construction; Encrypt/Decrypt themselves are
// cheap but are still meant for low-frequency configuration paths only.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the data key from secret and prepares the AEAD.
func New(secret string) (*Cipher, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" || trimmed == PlaceholderSecret {
		return nil, ErrConfiguration
	}

	key := argon2.IDKey([]byte(trimmed), kdfSalt, kdfTime, kdfMemory, kdfThreads, keyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce per call.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty plaintext", ErrMalformedPayload)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt. Structural violations return
// ErrMalformedPayload so operators can tell corrupted data from a wrong key;
// authentication failures return ErrDecryption.
func (c *Cipher) Decrypt(payload string) (string, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected two segments, got %d", ErrMalformedPayload, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: iv segment is not hex", ErrMalformedPayload)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformedPayload, len(nonce), nonceSize)
	}

	if parts[1] == "" {
		return "", fmt.Errorf("%w: empty ciphertext segment", ErrMalformedPayload)
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext segment is not hex", ErrMalformedPayload)
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// TruncateForLog returns a short diagnostic prefix of a payload, safe to log.
func TruncateForLog(payload string) string {
	const max = 12
	if len(payload) <= max {
		return payload
	}
	return payload[:max] + "..."
}
