package webauthn

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// coseKey is a COSE_Key for an EC2 P-256 public key (RFC 9053 §7.1), with
// integer map labels encoded via keyasint tags.
type coseKey struct {
	Kty int    `cbor:"1,keyasint"`  // 2 = EC2
	Alg int    `cbor:"3,keyasint"`  // -7 = ES256
	Crv int    `cbor:"-1,keyasint"` // 1 = P-256
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

// attestationObject is the CBOR map returned in attestationObject. The "none"
// format carries an empty attestation statement.
type attestationObject struct {
	Fmt      string         `cbor:"fmt"`
	AttStmt  map[string]any `cbor:"attStmt"`
	AuthData []byte         `cbor:"authData"`
}

// ctap2 encodes with CTAP2 canonical CBOR, the form relying parties expect
// from authenticators.
var ctap2 cbor.EncMode

func init() {
	var err error
	ctap2, err = cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// EncodeCOSEPublicKey serializes a P-256 public key as a canonical COSE_Key.
func EncodeCOSEPublicKey(key *ecdsa.PublicKey) ([]byte, error) {
	k := coseKey{
		Kty: 2,
		Alg: AlgES256,
		Crv: 1,
		X:   padCoord(key.X),
		Y:   padCoord(key.Y),
	}
	out, err := ctap2.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("encode cose key: %w", err)
	}
	return out, nil
}

// BuildAttestationObject wraps registration authenticator data in a
// fmt:"none" attestation object.
func BuildAttestationObject(authData []byte) ([]byte, error) {
	obj := attestationObject{
		Fmt:      "none",
		AttStmt:  map[string]any{},
		AuthData: authData,
	}
	out, err := ctap2.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode attestation object: %w", err)
	}
	return out, nil
}

// DecodeAttestationObject parses an attestation object back into its parts.
// Used in tests and by callers that need the embedded authenticator data.
func DecodeAttestationObject(data []byte) (format string, authData []byte, err error) {
	var obj attestationObject
	if err := cbor.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("decode attestation object: %w", err)
	}
	return obj.Fmt, obj.AuthData, nil
}
