package webauthn

import (
	"crypto/ecdsa"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// AttestationParams bundles the inputs for a registration response. The key
// pair and PRF secret are generated by the caller so it can persist them in
// the same transaction that records the new passkey.
type AttestationParams struct {
	CredentialID []byte
	Key          *ecdsa.PrivateKey
	PRFSecret    []byte

	Options *CreateOptions
	Origin  string
	// ClientDataHash, when set, is the platform-supplied hash; the
	// attestation ceremony does not sign it, but callers still validate the
	// options before trusting the request.
	ClientDataHash []byte
	UserVerified   bool
}

// BuildAttestation produces the complete registration response with a
// fmt:"none" attestation object.
func BuildAttestation(p AttestationParams) (*Credential, error) {
	if err := p.Options.Validate(); err != nil {
		return nil, err
	}

	clientDataJSON, err := BuildClientDataJSON(CeremonyCreate, p.Options.Challenge, p.Origin)
	if err != nil {
		return nil, err
	}

	cosePub, err := EncodeCOSEPublicKey(&p.Key.PublicKey)
	if err != nil {
		return nil, err
	}

	attested, err := BuildAttestedCredentialData(p.CredentialID, cosePub)
	if err != nil {
		return nil, err
	}

	authData := BuildAuthenticatorData(p.Options.RP.ID, p.UserVerified, attested, nil)

	attObj, err := BuildAttestationObject(authData)
	if err != nil {
		return nil, err
	}

	var prf *PRFOutput
	if p.Options.Extensions != nil && p.Options.Extensions.PRF != nil {
		enabled := len(p.PRFSecret) > 0
		prf = &PRFOutput{Enabled: &enabled}
	}

	credID := common.B64URLEncode(p.CredentialID)
	cred := &Credential{
		ID:                      credID,
		RawID:                   credID,
		Type:                    "public-key",
		AuthenticatorAttachment: AttachmentPlatform,
		Response: AttestationResponse{
			ClientDataJSON:    common.B64URLEncode(clientDataJSON),
			AttestationObject: common.B64URLEncode(attObj),
			Transports:        []string{"internal"},
		},
	}
	if prf != nil {
		cred.ClientExtensionResults.PRF = prf
	}
	return cred, nil
}
