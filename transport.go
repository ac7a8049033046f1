package kiroku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// TransportConfig holds the settings needed to construct the HTTP transport.
type TransportConfig struct {
	// BaseURL is the root URL of the logging backend (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the secret used to obtain a JWT token.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// httpTransport delivers commit batches over HTTP. Safe for concurrent use.
type httpTransport struct {
	baseURL   string
	client    *http.Client
	tokenMgr  *tokenManager
	sessionID string // per-process correlation id sent with every request
}

// NewHTTPTransport creates the default Transport. Returns an error if
// BaseURL or APIKey is empty.
func NewHTTPTransport(cfg TransportConfig) (Transport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kiroku: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kiroku: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &httpTransport{
		baseURL:   baseURL,
		client:    httpClient,
		tokenMgr:  newTokenManager(baseURL, cfg.APIKey, httpClient),
		sessionID: uuid.NewString(),
	}, nil
}

// pushBody is the wire format for POST /v1/repositories/{id}/commits.
type pushBody struct {
	Commits []json.RawMessage `json:"commits"`
}

// PushCommits sends one batch of serialized commits, preserving order.
func (t *httpTransport) PushCommits(ctx context.Context, repositoryID string, entries []CommitLog) error {
	body := pushBody{Commits: make([]json.RawMessage, len(entries))}
	for i, e := range entries {
		body.Commits[i] = e.Serialize()
	}

	path := "/v1/repositories/" + repositoryID + "/commits"
	return t.post(ctx, path, body, nil)
}

// Close releases idle connections. The transport must not be used afterwards.
func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// apiEnvelope is the backend's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the backend's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *httpTransport) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kiroku: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("kiroku: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kiroku-go/"+Version)
	req.Header.Set("X-Kiroku-Session", t.sessionID)

	token, err := t.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("kiroku: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kiroku: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the backend's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("kiroku: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}

// ---------------------------------------------------------------------------
// Token management
// ---------------------------------------------------------------------------

// tokenManager handles JWT token acquisition and refresh. Concurrent
// refreshes are collapsed into a single backend request. Safe for
// concurrent use.
type tokenManager struct {
	baseURL string
	apiKey  string
	client  *http.Client
	margin  time.Duration

	refreshGroup singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		token := tm.token
		tm.mu.Unlock()
		return token, nil
	}
	tm.mu.Unlock()

	v, err, _ := tm.refreshGroup.Do("refresh", func() (any, error) {
		return tm.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type authResponseEnvelope struct {
	Data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{APIKey: tm.apiKey})
	if err != nil {
		return "", fmt.Errorf("kiroku: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kiroku: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kiroku: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", parseErrorResponse(resp.StatusCode, respBody)
	}

	var envelope authResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("kiroku: decode auth response: %w", err)
	}
	if envelope.Data.Token == "" {
		return "", fmt.Errorf("kiroku: auth response missing token")
	}

	expiresAt := envelope.Data.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = tokenExpiry(envelope.Data.Token)
	}

	tm.mu.Lock()
	tm.token = envelope.Data.Token
	tm.expiresAt = expiresAt
	tm.mu.Unlock()

	return envelope.Data.Token, nil
}

// tokenExpiry extracts the exp claim from the token itself when the backend
// omits expires_at. The signature is not verified; the backend enforces
// validity, we only need a refresh schedule.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	// Opaque token with no expiry info: refresh every ten minutes.
	return time.Now().Add(10 * time.Minute)
}
