package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

type contextKey int

const userIDKey contextKey = iota

// userIDFrom returns the authenticated user ID stored by the auth middleware.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// authenticated validates the access token header and stores the user ID in
// the request context.
func (a *API) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(common.AccessTokenHeaderName)
		if token == "" {
			a.writeError(r, w, common.ErrorUnauthorized)
			return
		}

		userID, err := a.users.Authorize(token)
		if err != nil {
			a.writeError(r, w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}
