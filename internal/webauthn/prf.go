package webauthn

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// prfContext is the domain-separation prefix hashed into every PRF input,
// including the terminating NUL (WebAuthn §10.1.4).
var prfContext = []byte("WebAuthn PRF\x00")

// PRFSecretLen is the length of the per-credential PRF secret.
const PRFSecretLen = 32

// EvaluatePRF computes HMAC-SHA256(secret, SHA-256("WebAuthn PRF\0" || salt)).
func EvaluatePRF(secret, salt []byte) []byte {
	input := sha256.Sum256(append(append([]byte{}, prfContext...), salt...))
	mac := hmac.New(sha256.New, secret)
	mac.Write(input[:])
	return mac.Sum(nil)
}

// EvalPRFExtension evaluates the prf extension input against the credential's
// stored secret. Returns nil when the request carries no PRF evaluation, and
// ErrMalformedRequest when a salt is not valid base64url.
func EvalPRFExtension(secret []byte, ext *Extensions) (*PRFOutput, error) {
	if ext == nil || ext.PRF == nil {
		return nil, nil
	}
	if ext.PRF.Eval == nil {
		enabled := len(secret) > 0
		return &PRFOutput{Enabled: &enabled}, nil
	}
	if len(secret) == 0 {
		// Credential predates PRF support; report it as unsupported rather
		// than fabricating results.
		enabled := false
		return &PRFOutput{Enabled: &enabled}, nil
	}

	first, err := common.B64URLDecode(ext.PRF.Eval.First)
	if err != nil {
		return nil, fmt.Errorf("%w: prf.eval.first is not base64url", common.ErrMalformedRequest)
	}

	results := &PRFResults{First: common.B64URLEncode(EvaluatePRF(secret, first))}

	if ext.PRF.Eval.Second != "" {
		second, err := common.B64URLDecode(ext.PRF.Eval.Second)
		if err != nil {
			return nil, fmt.Errorf("%w: prf.eval.second is not base64url", common.ErrMalformedRequest)
		}
		results.Second = common.B64URLEncode(EvaluatePRF(secret, second))
	}

	return &PRFOutput{Results: results}, nil
}
