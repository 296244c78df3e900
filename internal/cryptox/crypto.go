// Package cryptox implements the key-derivation and sealing primitives for
// the vault: argon2id master-key derivation, a SHA-256 verifier for fast
// wrong-password detection, HKDF sub-key derivation, and XChaCha20-Poly1305
// sealing of the vault blob.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the length of every derived key in bytes.
const KeyLen = 32

// SaltLen is the enforced salt length in bytes.
const SaltLen = 16

// ErrDecryptFailed is returned when AEAD authentication fails, which for the
// vault blob means the key is wrong or the blob was tampered with.
var ErrDecryptFailed = errors.New("decryption failed")

// Argon2Params captures tunable parameters for argon2id. They are persisted
// in the vault header so old vaults keep decrypting after defaults change.
type Argon2Params struct {
	Time        uint32 `json:"time"`
	MemoryKB    uint32 `json:"memoryKB"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"keyLen"`
}

// DefaultArgon2Params returns the parameters used for new vaults.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, MemoryKB: 64 * 1024, Parallelism: 4, KeyLen: KeyLen}
}

// DeriveMasterKey derives the vault master key from a password and salt.
func DeriveMasterKey(password, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKB, p.Parallelism, p.KeyLen)
}

// MakeVerifier returns a non-reversible check value for the master key. It is
// stored in the vault header and on the server; comparing it is cheap and
// avoids a full decryption attempt on a wrong password.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// SubKey derives a purpose-bound key from the master key via HKDF-SHA256.
// Distinct info strings yield independent keys, so the blob-sealing key never
// equals the master key that produced the verifier.
func SubKey(masterKey []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// NewRandomSalt returns a cryptographically secure random salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and prepends the random
// nonce to the returned ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a blob produced by Seal. Authentication failure is reported
// as ErrDecryptFailed so callers can map it to a typed "wrong key" error.
func Open(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecryptFailed
	}

	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
