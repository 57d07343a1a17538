// Package scanapi is a thin binding to the remote scan API. Every method is a single
// round-trip: no caching and no retries. Retry policy belongs to the poller.
package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "scanwatch/1.0"
	maxListLimit     = 100
)

// Payload is a decoded scan document whose shape depends on the server version
type Payload = map[string]any

// Client is the scan API surface consumed by the views
type Client interface {
	// StartScan submits a scan and returns its server-assigned id
	StartScan(ctx context.Context, target, portRange string) (string, error)

	// GetScan fetches one scan in whatever shape the server speaks
	GetScan(ctx context.Context, id string) (Payload, error)

	// ListScans returns at most limit scans, most recent first
	ListScans(ctx context.Context, limit int) ([]Payload, error)

	// DeleteScan removes a scan and returns the server's acknowledgement
	DeleteScan(ctx context.Context, id string) (string, error)

	// Health is a liveness probe
	Health(ctx context.Context) (*schema.Health, error)
}

type httpClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// Option customizes the client
type Option func(*httpClient)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *httpClient) { c.userAgent = ua }
}

// NewClient returns a Client talking to baseURL, e.g. http://localhost:8000/api
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		client:    &http.Client{Timeout: defaultTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartScan(ctx context.Context, target, portRange string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &ValidationError{Messages: []string{"target is required"}}
	}

	q := url.Values{}
	q.Set("target", target)
	q.Set("port_range", portRange)
	body := map[string]string{"target": target, "port_range": portRange}

	var result struct {
		ScanID string `json:"scan_id"`
	}
	if err := c.do(ctx, "start scan", http.MethodPost, "/scan?"+q.Encode(), body, "", &result); err != nil {
		return "", err
	}
	if result.ScanID == "" {
		return "", &UnknownError{StatusCode: http.StatusOK, Detail: "response carried no scan_id"}
	}
	return result.ScanID, nil
}

func (c *httpClient) GetScan(ctx context.Context, id string) (Payload, error) {
	var result Payload
	if err := c.do(ctx, "get scan", http.MethodGet, "/scan/"+url.PathEscape(id), nil, id, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *httpClient) ListScans(ctx context.Context, limit int) ([]Payload, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var result struct {
		Scans []Payload `json:"scans"`
	}
	if err := c.do(ctx, "list scans", http.MethodGet, "/scans?limit="+strconv.Itoa(limit), nil, "", &result); err != nil {
		return nil, err
	}
	if result.Scans == nil {
		return []Payload{}, nil
	}
	return result.Scans, nil
}

func (c *httpClient) DeleteScan(ctx context.Context, id string) (string, error) {
	var result struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "delete scan", http.MethodDelete, "/scan/"+url.PathEscape(id), nil, id, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

func (c *httpClient) Health(ctx context.Context) (*schema.Health, error) {
	var result schema.Health
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do performs one request and decodes a 2xx JSON body into out.
// id, when set, names the scan in NotFoundError.
func (c *httpClient) do(ctx context.Context, op, method, path string, data interface{}, id string, out interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return &UnknownError{Err: fmt.Errorf("%s: marshal request: %w", op, err)}
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &UnknownError{Err: fmt.Errorf("%s: create request: %w", op, err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := logger.WithFields(logrus.Fields{
		"op":         op,
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("scan api request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("scan api request done")

	if err := statusError(resp.StatusCode, respBody, id); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &UnknownError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s: decode response: %w", op, err)}
	}
	return nil
}

func statusError(code int, body []byte, id string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return &NotFoundError{ID: id}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		msgs := parseDetail(body)
		if len(msgs) == 0 {
			msgs = []string{strings.TrimSpace(string(body))}
		}
		return &ValidationError{Messages: msgs}
	default:
		detail := strings.Join(parseDetail(body), ", ")
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return &UnknownError{StatusCode: code, Detail: detail}
	}
}
