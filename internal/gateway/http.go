package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/asthmacare/companion/internal/domain"
)

// HTTPClient implements Client against the backend's JSON API. The
// cookie jar carries the server session across calls, mirroring a
// browser with credentials included.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// HTTPClientConfig holds configuration for the HTTP gateway.
type HTTPClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultHTTPClientConfig returns default configuration.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		BaseURL:        "http://localhost:5000",
		RequestTimeout: 30 * time.Second,
	}
}

// NewHTTPClient creates a gateway client for the backend at cfg.BaseURL.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHTTPClientConfig().BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultHTTPClientConfig().RequestTimeout
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", cfg.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}, nil
}

type authRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Username        string `json:"username"`
}

type predictRequest struct {
	domain.SymptomReport
	Username string `json:"username"`
}

// Login authenticates against POST /api/login.
func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	return c.postAuth(ctx, "/api/login", authRequest{Username: username, Password: password})
}

// Signup registers an account against POST /api/signup.
func (c *HTTPClient) Signup(ctx context.Context, username, password, confirmPassword string) error {
	return c.postAuth(ctx, "/api/signup", authRequest{
		Username:        username,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
}

func (c *HTTPClient) postAuth(ctx context.Context, path string, req authRequest) error {
	body, status, err := c.post(ctx, path, req)
	if err != nil {
		return err
	}

	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	// The backend reports rejections in the body, not only via status.
	if resp.Error != "" {
		return &RejectionError{Reason: resp.Error}
	}
	if status >= 400 {
		return fmt.Errorf("%s returned status %d", path, status)
	}
	return nil
}

// Logout invalidates the server session via POST /api/logout.
func (c *HTTPClient) Logout(ctx context.Context) error {
	_, status, err := c.post(ctx, "/api/logout", nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("/api/logout returned status %d", status)
	}
	return nil
}

// CheckSession queries GET /api/check-session.
func (c *HTTPClient) CheckSession(ctx context.Context) (domain.Session, error) {
	body, status, err := c.get(ctx, "/api/check-session")
	if err != nil {
		return domain.Session{}, err
	}
	if status >= 400 {
		return domain.Session{}, fmt.Errorf("/api/check-session returned status %d", status)
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Session{}, fmt.Errorf("decode check-session response: %w", err)
	}
	return domain.Session{IsAuthenticated: resp.IsAuthenticated, Username: resp.Username}, nil
}

// SubmitSymptoms posts a report to POST /api/predict.
func (c *HTTPClient) SubmitSymptoms(ctx context.Context, report domain.SymptomReport, username string) (domain.AssessmentResult, error) {
	body, status, err := c.post(ctx, "/api/predict", predictRequest{SymptomReport: report, Username: username})
	if err != nil {
		return domain.AssessmentResult{}, err
	}
	if status >= 400 {
		return domain.AssessmentResult{}, fmt.Errorf("/api/predict returned status %d", status)
	}

	var result domain.AssessmentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.AssessmentResult{}, fmt.Errorf("decode predict response: %w", err)
	}
	return result, nil
}

// FetchHistory lists archived assessments via GET /api/results.
func (c *HTTPClient) FetchHistory(ctx context.Context, username string) ([]domain.HistoryRecord, error) {
	path := "/api/results"
	if username != "" {
		path += "?username=" + url.QueryEscape(username)
	}

	body, status, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if status >= 400 {
		return nil, fmt.Errorf("/api/results returned status %d", status)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode results response: %w", err)
	}

	// Archived rows are not uniformly shaped; one stored with e.g. a
	// string where the symptoms array belongs must not fail the whole
	// fetch. Such rows are dropped, the rest go through.
	records := make([]domain.HistoryRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.HistoryRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			c.logger.Warn("dropping malformed history record", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "path", req.URL.Path, "error", err)
		return nil, 0, fmt.Errorf("call backend %s: %w", req.URL.Path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "path", req.URL.Path, "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read backend response: %w", err)
	}
	return body, resp.StatusCode, nil
}
