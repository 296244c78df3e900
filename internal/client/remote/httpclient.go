package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
)

// HTTPClient talks to the vault server over its JSON API. A request failing
// with an expired access token is retried once after a token refresh, the
// same recovery a streaming interceptor would do.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient returns a client for the server at baseURL. httpClient may be
// nil, in which case http.DefaultClient semantics apply.
func NewHTTPClient(baseURL string, httpClient *http.Client, log logging.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    httpClient,
		log:     log.With("component", "remote"),
	}
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type errorBody struct {
	Error string `json:"error"`
}

type revisionBody struct {
	Revision int64 `json:"revision"`
}

func (c *HTTPClient) Register(ctx context.Context, username string, salt, verifier []byte) error {
	body := map[string]string{
		"username": username,
		"salt":     common.B64URLEncode(salt),
		"verifier": common.B64URLEncode(verifier),
	}
	return c.call(ctx, http.MethodPost, "/api/auth/register", nil, body, nil)
}

func (c *HTTPClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var resp struct {
		Salt string `json:"salt"`
	}
	q := url.Values{"username": {username}}
	if err := c.call(ctx, http.MethodGet, "/api/auth/salt", q, nil, &resp); err != nil {
		return nil, err
	}
	return common.B64URLDecode(resp.Salt)
}

func (c *HTTPClient) Login(ctx context.Context, username string, verifier []byte) error {
	body := map[string]string{
		"username": username,
		"verifier": common.B64URLEncode(verifier),
	}
	var tokens tokenPair
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", nil, body, &tokens); err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) Logout() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()
}

func (c *HTTPClient) CurrentRevision(ctx context.Context) (int64, error) {
	var resp revisionBody
	if err := c.call(ctx, http.MethodGet, "/api/vault/revision", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Revision, nil
}

func (c *HTTPClient) DownloadVault(ctx context.Context) ([]byte, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/vault", nil, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.send(req, nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, 0, err
	}

	revision, err := strconv.ParseInt(resp.Header.Get(common.VaultRevisionHeaderName), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("server sent no usable revision: %w", err)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read vault image: %w", err)
	}
	return image, revision, nil
}

func (c *HTTPClient) UploadVault(ctx context.Context, image []byte, baseRevision int64) (int64, error) {
	return c.putVault(ctx, image, baseRevision, false)
}

func (c *HTTPClient) ForceUploadVault(ctx context.Context, image []byte, claimedRevision int64) (int64, error) {
	return c.putVault(ctx, image, claimedRevision, true)
}

func (c *HTTPClient) putVault(ctx context.Context, image []byte, revision int64, force bool) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/vault", nil, image)
	if err != nil {
		return 0, err
	}
	req.Header.Set(common.VaultRevisionHeaderName, strconv.FormatInt(revision, 10))
	if force {
		req.Header.Set(common.VaultForceHeaderName, "1")
	}

	resp, err := c.send(req, image)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return 0, err
	}

	var rb revisionBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return 0, fmt.Errorf("decode upload response: %w", err)
	}
	return rb.Revision, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/api/ping", nil, nil, nil)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call performs a JSON request/response round trip for the small API calls.
func (c *HTTPClient) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		return err
	}

	resp, err := c.send(req, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, query url.Values, payload []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send attaches the access token, performs the request, and retries once
// after refreshing an expired token. payload is needed to rebuild the body
// for the retry.
func (c *HTTPClient) send(req *http.Request, payload []byte) (*http.Response, error) {
	c.mu.Lock()
	access := c.accessToken
	c.mu.Unlock()
	if access != "" {
		req.Header.Set(common.AccessTokenHeaderName, access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.offline(err)
	}

	if resp.StatusCode != http.StatusUnauthorized || !c.isTokenExpired(resp) {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refresh(req.Context()); err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if payload != nil {
		retry.Body = io.NopCloser(bytes.NewReader(payload))
		retry.ContentLength = int64(len(payload))
	}
	c.mu.Lock()
	retry.Header.Set(common.AccessTokenHeaderName, c.accessToken)
	c.mu.Unlock()

	resp, err = c.http.Do(retry)
	if err != nil {
		return nil, c.offline(err)
	}
	return resp, nil
}

// isTokenExpired reads (and consumes) the error body of a 401 response to
// distinguish an expired access token from a hard rejection.
func (c *HTTPClient) isTokenExpired(resp *http.Response) bool {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	var eb errorBody
	if json.Unmarshal(data, &eb) != nil {
		return false
	}
	return eb.Error == common.ErrTokenExpired.Error()
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return common.ErrorUnauthorized
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/refresh", nil, payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.offline(err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	var tokens tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.mu.Unlock()

	c.log.Debug(ctx, "access token refreshed")
	return nil
}

func (c *HTTPClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var msg string
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			msg = eb.Error
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrorUnauthorized
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		return common.ErrSyncConflict
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrMalformedRequest, msg)
	default:
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%w: %s", common.ErrorInternal, msg)
	}
}

func (c *HTTPClient) offline(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrSyncOffline, err)
}
