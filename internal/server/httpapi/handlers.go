package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// maxVaultImageSize bounds uploaded vault images.
const maxVaultImageSize = 64 << 20

type registerRequest struct {
	Username string `json:"username"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
}

type loginRequest struct {
	Username string `json:"username"`
	Verifier string `json:"verifier"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type revisionResponse struct {
	Revision int64 `json:"revision"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(r, w, fmt.Errorf("%w: %v", common.ErrMalformedRequest, err))
		return
	}

	salt, err := common.B64URLDecode(req.Salt)
	if err != nil {
		a.writeError(r, w, fmt.Errorf("%w: bad salt encoding", common.ErrMalformedRequest))
		return
	}
	verifier, err := common.B64URLDecode(req.Verifier)
	if err != nil {
		a.writeError(r, w, fmt.Errorf("%w: bad verifier encoding", common.ErrMalformedRequest))
		return
	}

	if _, err := a.users.Register(r.Context(), req.Username, salt, verifier); err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, struct{}{})
}

func (a *API) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		a.writeError(r, w, fmt.Errorf("%w: username required", common.ErrMalformedRequest))
		return
	}

	salt, err := a.users.GetSalt(r.Context(), username)
	if err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"salt": common.B64URLEncode(salt)})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(r, w, fmt.Errorf("%w: %v", common.ErrMalformedRequest, err))
		return
	}

	verifier, err := common.B64URLDecode(req.Verifier)
	if err != nil {
		a.writeError(r, w, fmt.Errorf("%w: bad verifier encoding", common.ErrMalformedRequest))
		return
	}

	pair, err := a.users.Login(r.Context(), req.Username, verifier)
	if err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(r, w, fmt.Errorf("%w: %v", common.ErrMalformedRequest, err))
		return
	}

	pair, err := a.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(r, w, fmt.Errorf("%w: %v", common.ErrMalformedRequest, err))
		return
	}

	if err := a.users.Logout(r.Context(), req.RefreshToken); err != nil {
		a.writeError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	revision, err := a.vaults.GetRevision(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, revisionResponse{Revision: revision})
}

func (a *API) handleGetVault(w http.ResponseWriter, r *http.Request) {
	image, revision, err := a.vaults.Get(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(r, w, err)
		return
	}

	w.Header().Set(common.VaultRevisionHeaderName, strconv.FormatInt(revision, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (a *API) handlePutVault(w http.ResponseWriter, r *http.Request) {
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVaultImageSize))
	if err != nil {
		a.writeError(r, w, fmt.Errorf("%w: %v", common.ErrMalformedRequest, err))
		return
	}

	// The revision header carries the base revision on a conditional
	// upload, and the client's last-synced revision on a forced one.
	h := r.Header.Get(common.VaultRevisionHeaderName)
	if h == "" {
		a.writeError(r, w, fmt.Errorf("%w: missing revision header", common.ErrMalformedRequest))
		return
	}
	baseRevision, err := strconv.ParseInt(h, 10, 64)
	if err != nil || baseRevision < 0 {
		a.writeError(r, w, fmt.Errorf("%w: bad base revision", common.ErrMalformedRequest))
		return
	}
	force := r.Header.Get(common.VaultForceHeaderName) != ""

	revision, err := a.vaults.Put(r.Context(), userIDFrom(r.Context()), image, baseRevision, force)
	if err != nil {
		a.writeError(r, w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, revisionResponse{Revision: revision})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to HTTP statuses and renders the JSON error
// body. Internal details never reach the client.
func (a *API) writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := common.ErrorInternal.Error()

	switch {
	case errors.Is(err, common.ErrMalformedRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrTokenExpired):
		// exact text, clients match on it to trigger a refresh
		status, msg = http.StatusUnauthorized, common.ErrTokenExpired.Error()
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrorUnauthorized):
		status, msg = http.StatusUnauthorized, common.ErrorUnauthorized.Error()
	case errors.Is(err, common.ErrorNotFound):
		status, msg = http.StatusNotFound, common.ErrorNotFound.Error()
	case errors.Is(err, common.ErrSyncConflict):
		status, msg = http.StatusConflict, common.ErrSyncConflict.Error()
	default:
		a.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	a.writeJSON(w, status, map[string]string{"error": msg})
}
