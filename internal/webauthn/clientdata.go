package webauthn

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// Ceremony types carried in clientDataJSON.
const (
	CeremonyCreate = "webauthn.create"
	CeremonyGet    = "webauthn.get"
)

// BuildClientDataJSON assembles clientDataJSON by hand instead of encoding a
// struct. Relying parties re-validate the transport hash against this exact
// byte sequence, so the output must match native JSON.stringify: fixed field
// order and no escaping of forward slashes in the origin.
func BuildClientDataJSON(ceremony, challenge, origin string) ([]byte, error) {
	for _, s := range []string{challenge, origin} {
		if strings.ContainsAny(s, `"\`) {
			return nil, fmt.Errorf("%w: field not JSON-safe", common.ErrMalformedRequest)
		}
	}
	var b strings.Builder
	b.WriteString(`{"type":"`)
	b.WriteString(ceremony)
	b.WriteString(`","challenge":"`)
	b.WriteString(challenge)
	b.WriteString(`","origin":"`)
	b.WriteString(origin)
	b.WriteString(`","crossOrigin":false}`)
	return []byte(b.String()), nil
}

// ClientDataHash returns the hash that is signed together with
// authenticatorData. A pre-computed hash from the platform is used verbatim,
// since some callers substitute their own clientDataJSON before hashing.
// Otherwise the JSON built here is hashed.
func ClientDataHash(clientDataJSON, precomputed []byte) []byte {
	if len(precomputed) > 0 {
		return precomputed
	}
	h := sha256.Sum256(clientDataJSON)
	return h[:]
}
