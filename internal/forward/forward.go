// Package forward ships ingested payloads to an external log-analytics
// collector over signed HTTP. Forwarding is best-effort: a delivery
// failure is logged and dropped, never propagated into the ingest path.
package forward

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultLogType = "CustomAppLogs"
	apiResource    = "/api/logs"
	apiVersion     = "2016-04-01"
)

// Config holds collector connection parameters. SharedKey is the
// base64-encoded signing key issued by the workspace.
type Config struct {
	Enabled     bool
	WorkspaceID string
	SharedKey   string
	LogType     string
	Endpoint    string // overrides the default workspace URL, for tests and proxies
	Timeout     time.Duration
}

// Client posts JSON payloads with a SharedKey HMAC-SHA256 signature.
type Client struct {
	cfg  Config
	key  []byte
	http *http.Client
	now  func() time.Time
}

// NewClient validates cfg and builds a client. Returns nil when
// forwarding is disabled.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.WorkspaceID) == "" {
		return nil, fmt.Errorf("forward: workspace id is required")
	}
	key, err := base64.StdEncoding.DecodeString(cfg.SharedKey)
	if err != nil {
		return nil, fmt.Errorf("forward: shared key is not valid base64: %w", err)
	}
	if cfg.LogType == "" {
		cfg.LogType = defaultLogType
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		key:  key,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}, nil
}

// Send posts one payload. The caller decides whether to run it in the
// background; SendAsync is the fire-and-forget form.
func (c *Client) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("forward: marshal payload: %w", err)
	}

	date := c.now().UTC().Format(http.TimeFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("forward: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.signature(date, len(body)))
	req.Header.Set("Log-Type", c.cfg.LogType)
	req.Header.Set("x-ms-date", date)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forward: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("forward: collector returned %d", resp.StatusCode)
	}
	return nil
}

// SendAsync forwards payload on its own goroutine, logging failures.
func (c *Client) SendAsync(payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		if err := c.Send(ctx, payload); err != nil {
			log.Printf("forward: dropped payload: %v", err)
		}
	}()
}

// signature builds the SharedKey authorization header over the canonical
// POST string: method, length, content type, x-ms-date header, resource.
func (c *Client) signature(date string, contentLength int) string {
	stringToHash := fmt.Sprintf("POST\n%d\napplication/json\nx-ms-date:%s\n%s",
		contentLength, date, apiResource)
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(stringToHash))
	encoded := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("SharedKey %s:%s", c.cfg.WorkspaceID, encoded)
}

func (c *Client) endpoint() string {
	base := c.cfg.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://%s.ods.opinsights.azure.com", c.cfg.WorkspaceID)
	}
	return fmt.Sprintf("%s%s?api-version=%s", strings.TrimRight(base, "/"), apiResource, apiVersion)
}
