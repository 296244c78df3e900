package webauthn

import (
	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// AssertionParams bundles everything needed to answer one authentication
// request: the resolved credential's key material plus the request context.
type AssertionParams struct {
	CredentialID  []byte
	PrivateKeyJWK []byte
	UserHandle    []byte // nil when the credential has no user handle
	PRFSecret     []byte

	Options *GetOptions
	Origin  string
	// ClientDataHash, when set, is the platform-supplied hash to sign instead
	// of SHA-256 of our own clientDataJSON.
	ClientDataHash []byte
	UserVerified   bool
}

// BuildAssertion produces the complete authentication response. Any failure
// aborts the ceremony; a partial response is never returned.
func BuildAssertion(p AssertionParams) (*Credential, error) {
	if err := p.Options.Validate(); err != nil {
		return nil, err
	}

	key, err := UnmarshalPrivateJWK(p.PrivateKeyJWK)
	if err != nil {
		return nil, err
	}

	clientDataJSON, err := BuildClientDataJSON(CeremonyGet, p.Options.Challenge, p.Origin)
	if err != nil {
		return nil, err
	}

	prf, err := EvalPRFExtension(p.PRFSecret, p.Options.Extensions)
	if err != nil {
		return nil, err
	}

	authData := BuildAuthenticatorData(p.Options.RPID, p.UserVerified, nil, nil)

	sig, err := SignAssertion(key, authData, ClientDataHash(clientDataJSON, p.ClientDataHash))
	if err != nil {
		return nil, err
	}

	var userHandle *string
	if len(p.UserHandle) > 0 {
		s := common.B64URLEncode(p.UserHandle)
		userHandle = &s
	}

	credID := common.B64URLEncode(p.CredentialID)
	cred := &Credential{
		ID:                      credID,
		RawID:                   credID,
		Type:                    "public-key",
		AuthenticatorAttachment: AttachmentPlatform,
		Response: AssertionResponse{
			ClientDataJSON:    common.B64URLEncode(clientDataJSON),
			AuthenticatorData: common.B64URLEncode(authData),
			Signature:         common.B64URLEncode(sig),
			UserHandle:        userHandle,
		},
	}
	if prf != nil {
		cred.ClientExtensionResults.PRF = prf
	}
	return cred, nil
}
