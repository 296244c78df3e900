// Package webauthn builds byte-exact WebAuthn registration and authentication
// responses: clientDataJSON, authenticatorData, canonical ECDSA signatures,
// COSE-encoded public keys, and the PRF extension. It is a pure library:
// it never touches storage and knows nothing about the vault.
package webauthn

import (
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// CreateOptions mirrors the options of navigator.credentials.create() as
// delivered by the platform credential-provider callback.
type CreateOptions struct {
	Challenge              string                  `json:"challenge"` // base64url
	RP                     RelyingParty            `json:"rp"`
	User                   User                    `json:"user"`
	PubKeyCredParams       []PubKeyCredParam       `json:"pubKeyCredParams"`
	ExcludeCredentials     []CredentialDescriptor  `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	Extensions             *Extensions             `json:"extensions,omitempty"`
}

// GetOptions mirrors the options of navigator.credentials.get().
type GetOptions struct {
	Challenge        string                 `json:"challenge"` // base64url
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
	Extensions       *Extensions            `json:"extensions,omitempty"`
}

// RelyingParty identifies the relying party.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User carries the account the credential is being created for.
type User struct {
	ID          string `json:"id"` // base64url user handle
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// PubKeyCredParam is a supported public-key algorithm.
type PubKeyCredParam struct {
	Type string `json:"type"` // always "public-key"
	Alg  int    `json:"alg"`  // -7 for ES256
}

// AlgES256 is the COSE algorithm identifier for ECDSA-SHA256 over P-256,
// the only algorithm this authenticator implements.
const AlgES256 = -7

// CredentialDescriptor identifies a single credential in allow/exclude lists.
type CredentialDescriptor struct {
	Type string `json:"type"` // always "public-key"
	ID   string `json:"id"`   // base64url credential id
}

// AuthenticatorSelection specifies authenticator requirements.
type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

// Extensions holds the client extension inputs we understand.
type Extensions struct {
	PRF *PRFExtension `json:"prf,omitempty"`
}

// PRFExtension is the prf extension input.
type PRFExtension struct {
	Eval *PRFEval `json:"eval,omitempty"`
}

// PRFEval carries one or two base64url salts to evaluate.
type PRFEval struct {
	First  string `json:"first"`
	Second string `json:"second,omitempty"`
}

// ClientExtensionResults is attached to every response.
type ClientExtensionResults struct {
	PRF *PRFOutput `json:"prf,omitempty"`
}

// PRFOutput wraps the evaluated PRF results.
type PRFOutput struct {
	Enabled *bool       `json:"enabled,omitempty"`
	Results *PRFResults `json:"results,omitempty"`
}

// PRFResults holds base64url PRF outputs for the supplied salts.
type PRFResults struct {
	First  string `json:"first"`
	Second string `json:"second,omitempty"`
}

// Credential is the top-level WebAuthn response JSON returned to the OS.
// Response is an AttestationResponse for registrations and an
// AssertionResponse for authentications.
type Credential struct {
	ID                      string                 `json:"id"`    // base64url credential id
	RawID                   string                 `json:"rawId"` // same bytes as ID
	Type                    string                 `json:"type"`  // "public-key"
	AuthenticatorAttachment string                 `json:"authenticatorAttachment"`
	Response                any                    `json:"response"`
	ClientExtensionResults  ClientExtensionResults `json:"clientExtensionResults"`
}

// AttestationResponse is the response member for credential creation.
type AttestationResponse struct {
	ClientDataJSON    string   `json:"clientDataJSON"`
	AttestationObject string   `json:"attestationObject"`
	Transports        []string `json:"transports"`
}

// AssertionResponse is the response member for authentication.
type AssertionResponse struct {
	ClientDataJSON    string  `json:"clientDataJSON"`
	AuthenticatorData string  `json:"authenticatorData"`
	Signature         string  `json:"signature"`
	UserHandle        *string `json:"userHandle"` // base64url, null when absent
}

// AttachmentPlatform is the authenticatorAttachment value for this provider.
const AttachmentPlatform = "platform"

// Validate checks the fields a registration cannot proceed without.
func (o *CreateOptions) Validate() error {
	if o.RP.ID == "" {
		return fmt.Errorf("%w: missing rp.id", common.ErrMalformedRequest)
	}
	if o.Challenge == "" {
		return fmt.Errorf("%w: missing challenge", common.ErrMalformedRequest)
	}
	if o.User.ID == "" {
		return fmt.Errorf("%w: missing user.id", common.ErrMalformedRequest)
	}
	if _, err := common.B64URLDecode(o.User.ID); err != nil {
		return fmt.Errorf("%w: user.id is not base64url", common.ErrMalformedRequest)
	}
	for _, p := range o.PubKeyCredParams {
		if p.Alg == AlgES256 {
			return nil
		}
	}
	if len(o.PubKeyCredParams) == 0 {
		// WebAuthn treats an empty list as "anything goes"; we pick ES256.
		return nil
	}
	return fmt.Errorf("%w: no supported algorithm in pubKeyCredParams", common.ErrMalformedRequest)
}

// Validate checks the fields an authentication cannot proceed without.
func (o *GetOptions) Validate() error {
	if o.RPID == "" {
		return fmt.Errorf("%w: missing rpId", common.ErrMalformedRequest)
	}
	if o.Challenge == "" {
		return fmt.Errorf("%w: missing challenge", common.ErrMalformedRequest)
	}
	return nil
}
