package common

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// GenerateRandByteArray returns size cryptographically random bytes.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; treat failure as fatal.
		panic(err)
	}
	return b
}

// MakeRandHexString returns a hex string built from size random bytes.
// Used for opaque refresh tokens.
func MakeRandHexString(size int) string {
	return hex.EncodeToString(GenerateRandByteArray(size))
}

// B64URLEncode encodes b as unpadded base64url, the encoding WebAuthn uses
// for every binary field.
func B64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// B64URLDecode decodes an unpadded base64url string. Padded input is accepted
// too, since some callers send standard base64url with padding.
func B64URLDecode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// Wipe zeroes the given byte slice in place. Used to drop key material from
// memory as soon as it is no longer needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
