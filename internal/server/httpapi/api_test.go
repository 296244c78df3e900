package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
	"github.com/dmitrijs2005/passkeyvault/internal/server/services"
)

// stubUsers lets each test script the service behavior per method.
type stubUsers struct {
	register  func(username string, salt, verifier []byte) error
	getSalt   func(username string) ([]byte, error)
	login     func(username string, verifier []byte) (*services.TokenPair, error)
	refresh   func(token string) (*services.TokenPair, error)
	logout    func(token string) error
	authorize func(token string) (string, error)
}

func (s *stubUsers) Register(_ context.Context, username string, salt, verifier []byte) (*models.User, error) {
	if s.register == nil {
		return &models.User{ID: "user-1", Username: username}, nil
	}
	if err := s.register(username, salt, verifier); err != nil {
		return nil, err
	}
	return &models.User{ID: "user-1", Username: username}, nil
}

func (s *stubUsers) GetSalt(_ context.Context, username string) ([]byte, error) {
	return s.getSalt(username)
}

func (s *stubUsers) Login(_ context.Context, username string, verifier []byte) (*services.TokenPair, error) {
	return s.login(username, verifier)
}

func (s *stubUsers) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	return s.refresh(token)
}

func (s *stubUsers) Logout(_ context.Context, token string) error {
	if s.logout == nil {
		return nil
	}
	return s.logout(token)
}

func (s *stubUsers) Authorize(token string) (string, error) {
	if s.authorize == nil {
		if token == "valid" {
			return "user-1", nil
		}
		return "", common.ErrInvalidToken
	}
	return s.authorize(token)
}

type stubVaults struct {
	getRevision func(userID string) (int64, error)
	get         func(userID string) ([]byte, int64, error)
	put         func(userID string, image []byte, base int64, force bool) (int64, error)
}

func (s *stubVaults) GetRevision(_ context.Context, userID string) (int64, error) {
	return s.getRevision(userID)
}

func (s *stubVaults) Get(_ context.Context, userID string) ([]byte, int64, error) {
	return s.get(userID)
}

func (s *stubVaults) Put(_ context.Context, userID string, image []byte, base int64, force bool) (int64, error) {
	return s.put(userID, image, base, force)
}

func newTestServer(t *testing.T, users *stubUsers, vaults *stubVaults) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(users, vaults, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var eb struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eb))
	return eb.Error
}

func TestRegister(t *testing.T) {
	var gotSalt, gotVerifier []byte
	users := &stubUsers{register: func(username string, salt, verifier []byte) error {
		require.Equal(t, "alice", username)
		gotSalt, gotVerifier = salt, verifier
		return nil
	}}
	srv := newTestServer(t, users, &stubVaults{})

	body := map[string]string{
		"username": "alice",
		"salt":     common.B64URLEncode([]byte("salt")),
		"verifier": common.B64URLEncode([]byte("verifier")),
	}
	payload, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("salt"), gotSalt)
	require.Equal(t, []byte("verifier"), gotVerifier)
}

func TestRegister_BadEncoding(t *testing.T) {
	srv := newTestServer(t, &stubUsers{}, &stubVaults{})

	payload := []byte(`{"username": "alice", "salt": "%%%", "verifier": "dg"}`)
	resp, err := http.Post(srv.URL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSalt(t *testing.T) {
	users := &stubUsers{getSalt: func(username string) ([]byte, error) {
		require.Equal(t, "alice", username)
		return []byte("the-salt"), nil
	}}
	srv := newTestServer(t, users, &stubVaults{})

	resp, err := http.Get(srv.URL + "/api/auth/salt?username=alice")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Salt string `json:"salt"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, common.B64URLEncode([]byte("the-salt")), body.Salt)
}

func TestGetSalt_MissingUsername(t *testing.T) {
	srv := newTestServer(t, &stubUsers{}, &stubVaults{})

	resp, err := http.Get(srv.URL + "/api/auth/salt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	users := &stubUsers{login: func(username string, verifier []byte) (*services.TokenPair, error) {
		if username == "alice" && bytes.Equal(verifier, []byte("good")) {
			return &services.TokenPair{AccessToken: "at", RefreshToken: "rt"}, nil
		}
		return nil, common.ErrorUnauthorized
	}}
	srv := newTestServer(t, users, &stubVaults{})

	payload, _ := json.Marshal(map[string]string{
		"username": "alice",
		"verifier": common.B64URLEncode([]byte("good")),
	})
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	require.Equal(t, "at", tokens.AccessToken)
	require.Equal(t, "rt", tokens.RefreshToken)
}

func TestLogin_Unauthorized(t *testing.T) {
	users := &stubUsers{login: func(string, []byte) (*services.TokenPair, error) {
		return nil, common.ErrorUnauthorized
	}}
	srv := newTestServer(t, users, &stubVaults{})

	payload, _ := json.Marshal(map[string]string{"username": "alice", "verifier": "dg"})
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, common.ErrorUnauthorized.Error(), decodeError(t, resp))
}

func TestRefresh_Expired(t *testing.T) {
	users := &stubUsers{refresh: func(string) (*services.TokenPair, error) {
		return nil, common.ErrRefreshTokenExpired
	}}
	srv := newTestServer(t, users, &stubVaults{})

	payload, _ := json.Marshal(map[string]string{"refresh_token": "stale"})
	resp, err := http.Post(srv.URL+"/api/auth/refresh", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_MissingToken(t *testing.T) {
	srv := newTestServer(t, &stubUsers{}, &stubVaults{})

	resp, err := http.Get(srv.URL + "/api/vault/revision")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ExpiredTokenBody(t *testing.T) {
	users := &stubUsers{authorize: func(string) (string, error) {
		return "", common.ErrTokenExpired
	}}
	srv := newTestServer(t, users, &stubVaults{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/vault/revision", nil)
	req.Header.Set(common.AccessTokenHeaderName, "stale")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	// clients match the exact expired-token text to trigger a refresh
	require.Equal(t, common.ErrTokenExpired.Error(), decodeError(t, resp))
}

func TestGetRevision(t *testing.T) {
	vaults := &stubVaults{getRevision: func(userID string) (int64, error) {
		require.Equal(t, "user-1", userID)
		return 7, nil
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/vault/revision", nil)
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Revision int64 `json:"revision"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(7), body.Revision)
}

func TestGetVault(t *testing.T) {
	vaults := &stubVaults{get: func(userID string) ([]byte, int64, error) {
		return []byte("raw-image"), 4, nil
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/vault", nil)
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "4", resp.Header.Get(common.VaultRevisionHeaderName))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("raw-image"), body)
}

func TestGetVault_NotFound(t *testing.T) {
	vaults := &stubVaults{get: func(string) ([]byte, int64, error) {
		return nil, 0, common.ErrorNotFound
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/vault", nil)
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutVault_Conditional(t *testing.T) {
	vaults := &stubVaults{put: func(userID string, image []byte, base int64, force bool) (int64, error) {
		require.Equal(t, []byte("new-image"), image)
		require.Equal(t, int64(3), base)
		require.False(t, force)
		return 4, nil
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/vault", bytes.NewReader([]byte("new-image")))
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	req.Header.Set(common.VaultRevisionHeaderName, "3")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Revision int64 `json:"revision"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(4), body.Revision)
}

func TestPutVault_Forced(t *testing.T) {
	vaults := &stubVaults{put: func(userID string, image []byte, base int64, force bool) (int64, error) {
		require.Equal(t, int64(5), base)
		require.True(t, force)
		return 6, nil
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/vault", bytes.NewReader([]byte("img")))
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	req.Header.Set(common.VaultRevisionHeaderName, "5")
	req.Header.Set(common.VaultForceHeaderName, "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Revision int64 `json:"revision"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(6), body.Revision)
}

func TestPutVault_MissingRevisionHeader(t *testing.T) {
	srv := newTestServer(t, &stubUsers{}, &stubVaults{})

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/vault", bytes.NewReader([]byte("img")))
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutVault_Conflict(t *testing.T) {
	vaults := &stubVaults{put: func(string, []byte, int64, bool) (int64, error) {
		return 0, common.ErrSyncConflict
	}}
	srv := newTestServer(t, &stubUsers{}, vaults)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/vault", bytes.NewReader([]byte("img")))
	req.Header.Set(common.AccessTokenHeaderName, "valid")
	req.Header.Set(common.VaultRevisionHeaderName, "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, &stubUsers{}, &stubVaults{})

	resp, err := http.Get(srv.URL + "/api/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
