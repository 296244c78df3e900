package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

func TestLoginStoresTokensAndSendsAccessHeader(t *testing.T) {
	var seenToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
			})
		case "/api/vault/revision":
			seenToken = r.Header.Get(common.AccessTokenHeaderName)
			json.NewEncoder(w).Encode(map[string]int64{"revision": 7})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, "alice", []byte("verifier")))

	rev, err := c.CurrentRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rev)
	assert.Equal(t, "access-1", seenToken)
}

func TestExpiredTokenIsRefreshedAndRetried(t *testing.T) {
	var revisionCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "stale",
				"refresh_token": "refresh-1",
			})
		case "/api/auth/refresh":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refresh-1", body["refresh_token"])
			json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "fresh",
				"refresh_token": "refresh-2",
			})
		case "/api/vault/revision":
			revisionCalls++
			if r.Header.Get(common.AccessTokenHeaderName) != "fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": common.ErrTokenExpired.Error()})
				return
			}
			json.NewEncoder(w).Encode(map[string]int64{"revision": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", []byte("verifier")))

	rev, err := c.CurrentRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)
	assert.Equal(t, 2, revisionCalls)
}

func TestHardRejectionIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "account disabled"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)

	_, err := c.CurrentRevision(context.Background())
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1, calls)
}

func TestUploadConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.Header.Get(common.VaultRevisionHeaderName))
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "revision mismatch"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)

	_, err := c.UploadVault(context.Background(), []byte(`{"blob":"AQ"}`), 5)
	assert.ErrorIs(t, err, common.ErrSyncConflict)
}

func TestForceUploadSendsClaimedRevisionAndForceMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.Header.Get(common.VaultRevisionHeaderName))
		assert.NotEmpty(t, r.Header.Get(common.VaultForceHeaderName))
		json.NewEncoder(w).Encode(map[string]int64{"revision": 6})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)

	rev, err := c.ForceUploadVault(context.Background(), []byte(`{"blob":"AQ"}`), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), rev)
}

func TestUploadSendsBaseRevisionWithoutForceMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.Header.Get(common.VaultRevisionHeaderName))
		_, present := r.Header[http.CanonicalHeaderKey(common.VaultForceHeaderName)]
		assert.False(t, present)
		json.NewEncoder(w).Encode(map[string]int64{"revision": 1})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)

	rev, err := c.UploadVault(context.Background(), []byte(`{"blob":"AQ"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
}

func TestDownloadVault(t *testing.T) {
	image := []byte(`{"header":{},"blob":"AQID"}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(common.VaultRevisionHeaderName, "9")
		w.Write(image)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)

	got, rev, err := c.DownloadVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), rev)
	assert.Equal(t, image, got)
}

func TestUnreachableServerMapsToOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := NewHTTPClient(srv.URL, nil, nil)

	_, err := c.CurrentRevision(context.Background())
	assert.ErrorIs(t, err, common.ErrSyncOffline)
}
