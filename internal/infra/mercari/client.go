package mercari

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the private web API host
	DefaultBaseURL = "https://api.mercari.jp"

	DefaultRequestsPerMinute = 200
	DefaultMaxConcurrent     = 5
	DefaultCountryCode       = "VN"

	searchPath      = "/v2/entities:search"
	itemInfoPath    = "/items/get"
	translationPath = "/v2/itemtranslations/"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36 Edg/134.0.0.0"
)

// ErrNoResponse is returned when the request never produced a usable response
var ErrNoResponse = errors.New("mercari: no response")

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       any // Decoded JSON when possible, raw text otherwise
}

func (e *HTTPError) Error() string {
	body, _ := json.Marshal(e.Body)
	text := string(body)
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	return fmt.Sprintf("mercari: %s %s: %s %s", e.Method, e.URL, e.Status, text)
}

// Config holds the client settings
type Config struct {
	BaseURL           string
	RequestsPerMinute int
	MaxConcurrent     int
	CountryCode       string
	HTTPClient        *http.Client
	Debug             bool
}

// Client is the signed, rate-limited Mercari API client.
// It owns the signing key; share one Client per process.
type Client struct {
	baseURL     string
	countryCode string
	httpClient  *http.Client
	limiter     *Limiter
	debug       bool

	mu  sync.RWMutex
	key *SigningKey

	now func() time.Time
}

// NewClient creates a client with a fresh signing key
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	key, err := GenerateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("failed to create signing key: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		countryCode: cfg.CountryCode,
		httpClient:  cfg.HTTPClient,
		limiter:     NewLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		debug:       cfg.Debug,
		key:         key,
		now:         time.Now,
	}, nil
}

// RefreshSession replaces the signing key and session id.
// Calls already signed keep the old key.
func (c *Client) RefreshSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	c.mu.Lock()
	c.key = key
	c.mu.Unlock()

	if c.debug {
		log.Printf("[Mercari] Session refreshed: %s", key.SessionID)
	}
	return nil
}

// SessionID returns the current session id
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key.SessionID
}

// Stats returns the limiter usage
func (c *Client) Stats() LimiterStats {
	return c.limiter.Stats()
}

// Call sends one signed request and returns the raw JSON body.
//
// POST params are sent as a JSON body. GET params (url.Values or
// map[string]string) are encoded into the query string; the proof is
// always bound to the URL without the query.
func (c *Client) Call(ctx context.Context, method, rawURL string, params any) (json.RawMessage, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("mercari: unsupported method %s", method)
	}

	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := c.newRequest(ctx, method, rawURL, params)
	if err != nil {
		return nil, err
	}

	// Sign after admission so the issued-at time is fresh
	proof, err := c.sign(method, rawURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("DPoP", proof)
	req.Header.Set("X-Platform", "web")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)

	if c.debug {
		log.Printf("[Mercari] %s %s", method, rawURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNoResponse, method, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNoResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       decodeBody(body),
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty body from %s %s", ErrNoResponse, method, rawURL)
	}
	return json.RawMessage(trimmed), nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, params any) (*http.Request, error) {
	if method == http.MethodPost {
		body, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		return http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	}

	target := rawURL
	query, err := encodeQuery(params)
	if err != nil {
		return nil, err
	}
	if query != "" {
		target += "?" + query
	}
	return http.NewRequestWithContext(ctx, method, target, nil)
}

// sign builds the proof with the current key, regenerating the key once if it is unusable
func (c *Client) sign(method, rawURL string) (string, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	proof, err := Sign(method, rawURL, key, c.now())
	if !errors.Is(err, ErrInvalidKey) {
		return proof, err
	}

	log.Printf("[Mercari] Signing key unusable, regenerating: %v", err)
	if err := c.RefreshSession(context.Background()); err != nil {
		return "", err
	}
	c.mu.RLock()
	key = c.key
	c.mu.RUnlock()
	return Sign(method, rawURL, key, c.now())
}

func encodeQuery(params any) (string, error) {
	switch p := params.(type) {
	case nil:
		return "", nil
	case url.Values:
		return p.Encode(), nil
	case map[string]string:
		values := url.Values{}
		for k, v := range p {
			values.Set(k, v)
		}
		return values.Encode(), nil
	default:
		return "", fmt.Errorf("mercari: unsupported GET params type %T", params)
	}
}

func decodeBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}
