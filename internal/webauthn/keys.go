package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// JWK is the persisted form of credential key material. Public and private
// keys are both stored as JWK JSON inside the vault; the private D member is
// omitted for public keys.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

// GenerateCredentialKey creates a fresh P-256 key pair for a new credential.
func GenerateCredentialKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	return key, nil
}

// MarshalPrivateJWK encodes a P-256 private key as JWK JSON.
func MarshalPrivateJWK(key *ecdsa.PrivateKey) ([]byte, error) {
	jwk := JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   common.B64URLEncode(padCoord(key.X)),
		Y:   common.B64URLEncode(padCoord(key.Y)),
		D:   common.B64URLEncode(padCoord(key.D)),
	}
	return json.Marshal(jwk)
}

// MarshalPublicJWK encodes a P-256 public key as JWK JSON.
func MarshalPublicJWK(key *ecdsa.PublicKey) ([]byte, error) {
	jwk := JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   common.B64URLEncode(padCoord(key.X)),
		Y:   common.B64URLEncode(padCoord(key.Y)),
	}
	return json.Marshal(jwk)
}

// UnmarshalPrivateJWK decodes JWK JSON into a usable P-256 private key.
func UnmarshalPrivateJWK(data []byte) (*ecdsa.PrivateKey, error) {
	var jwk JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: bad jwk json", common.ErrMalformedRequest)
	}
	if jwk.Kty != "EC" || jwk.Crv != "P-256" || jwk.D == "" {
		return nil, fmt.Errorf("%w: unsupported jwk", common.ErrMalformedRequest)
	}

	x, err := common.B64URLDecode(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: bad jwk x", common.ErrMalformedRequest)
	}
	y, err := common.B64URLDecode(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: bad jwk y", common.ErrMalformedRequest)
	}
	d, err := common.B64URLDecode(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("%w: bad jwk d", common.ErrMalformedRequest)
	}

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
		D: new(big.Int).SetBytes(d),
	}
	if !key.Curve.IsOnCurve(key.X, key.Y) {
		return nil, fmt.Errorf("%w: jwk point not on curve", common.ErrMalformedRequest)
	}
	return key, nil
}

// padCoord left-pads a curve coordinate to the 32-byte field size. big.Int
// drops leading zeroes, and JWK requires fixed-width coordinates.
func padCoord(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}
