package webauthn

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// ecdsaSignature is the DER SEQUENCE carrying (r, s).
type ecdsaSignature struct {
	R, S *big.Int
}

// SignAssertion signs authenticatorData || clientDataHash with ECDSA-SHA256
// and returns a DER signature canonicalized to low-S form.
func SignAssertion(key *ecdsa.PrivateKey, authData, clientDataHash []byte) ([]byte, error) {
	msg := make([]byte, 0, len(authData)+len(clientDataHash))
	msg = append(msg, authData...)
	msg = append(msg, clientDataHash...)
	digest := sha256.Sum256(msg)

	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}
	return canonicalizeLowS(sig, key.Curve.Params().N)
}

// canonicalizeLowS rewrites a DER signature so that s <= N/2, replacing a
// high s with N-s. WebAuthn requires the canonical form; high-S signatures
// are rejected by strict verifiers.
func canonicalizeLowS(der []byte, order *big.Int) ([]byte, error) {
	var sig ecdsaSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil || len(rest) != 0 {
		return nil, fmt.Errorf("parse der signature: %w", err)
	}

	halfOrder := new(big.Int).Rsh(order, 1)
	if sig.S.Cmp(halfOrder) > 0 {
		sig.S = new(big.Int).Sub(order, sig.S)
		return asn1.Marshal(sig)
	}
	return der, nil
}

// ParseSignature decodes a DER ECDSA signature into (r, s). Exposed for
// verification paths and tests.
func ParseSignature(der []byte) (r, s *big.Int, err error) {
	var sig ecdsaSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil || len(rest) != 0 {
		return nil, nil, fmt.Errorf("parse der signature: %w", err)
	}
	return sig.R, sig.S, nil
}
