package webauthn

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// Authenticator data flag bits (WebAuthn §6.1).
const (
	FlagUserPresent   byte = 1 << 0
	FlagUserVerified  byte = 1 << 2
	FlagAttestedCred  byte = 1 << 6
	FlagExtensionData byte = 1 << 7
)

// aaguid is all zeroes: this authenticator does not claim a registered model.
var aaguid [16]byte

// BuildAuthenticatorData assembles SHA-256(rpId) || flags || signCount ||
// [attestedCredentialData] || [extensions].
//
// The signature counter is always zero: the private key never leaves the
// vault, so the counter adds no cloning signal, and a zero counter tells the
// relying party to skip counter regression checks. The backup-eligible and
// backup-state bits stay zero as well.
func BuildAuthenticatorData(rpID string, userVerified bool, attestedCred, extensions []byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))

	flags := FlagUserPresent
	if userVerified {
		flags |= FlagUserVerified
	}
	if len(attestedCred) > 0 {
		flags |= FlagAttestedCred
	}
	if len(extensions) > 0 {
		flags |= FlagExtensionData
	}

	out := make([]byte, 0, 37+len(attestedCred)+len(extensions))
	out = append(out, rpIDHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, 0) // sign count
	out = append(out, attestedCred...)
	out = append(out, extensions...)
	return out
}

// BuildAttestedCredentialData assembles AAGUID || credIdLen || credId ||
// COSE public key for inclusion in registration authenticator data.
func BuildAttestedCredentialData(credentialID, cosePublicKey []byte) ([]byte, error) {
	if len(credentialID) == 0 || len(credentialID) > 1023 {
		return nil, fmt.Errorf("%w: invalid credential id length %d", common.ErrMalformedRequest, len(credentialID))
	}

	out := make([]byte, 0, 16+2+len(credentialID)+len(cosePublicKey))
	out = append(out, aaguid[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(credentialID)))
	out = append(out, credentialID...)
	out = append(out, cosePublicKey...)
	return out, nil
}
