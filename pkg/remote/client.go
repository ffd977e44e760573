// Package remote talks to the cloud bottle service.
//
// The service owns its own pool and pick algorithm; this client only maps
// its three endpoints onto bottle.RemoteAPI:
//   - POST /bottles/               create, returns {"bottle_id": n}
//   - POST /bottles/pick/{user_id} pick, 404 when nothing is left
//   - GET  /bottles/counts/active  {"total_active_bottles": n}
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// ErrNotConfigured is returned by every call when no base URL is set.
var ErrNotConfigured = errors.New("remote bottle service base URL not configured")

const DefaultTimeout = 10 * time.Second

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid remote base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid remote base URL %q: scheme must be http or https", cfg.BaseURL)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{baseURL: base, http: hc}, nil
}

// IsConfigured reports whether a base URL was provided.
func (c *Client) IsConfigured() bool { return c.baseURL != "" }

type createRequest struct {
	Content  string         `json:"content"`
	Images   []bottle.Image `json:"images"`
	Sender   string         `json:"sender"`
	SenderID string         `json:"sender_id"`
}

type createResponse struct {
	BottleID json.RawMessage `json:"bottle_id"`
}

type countResponse struct {
	TotalActiveBottles int `json:"total_active_bottles"`
}

// Create implements bottle.RemoteAPI.
func (c *Client) Create(ctx context.Context, d bottle.Draft) (string, error) {
	images := d.Images
	if images == nil {
		images = []bottle.Image{}
	}
	body := createRequest{Content: d.Content, Images: images, Sender: d.Sender, SenderID: d.SenderID}

	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/bottles/", nil, body, &out); err != nil {
		return "", err
	}

	id, err := bottle.ParseID(out.BottleID)
	if err != nil {
		return "", fmt.Errorf("decoding bottle_id: %w", err)
	}
	return id, nil
}

// Pick implements bottle.RemoteAPI. A 404 is reported as bottle.ErrNoBottles.
func (c *Client) Pick(ctx context.Context, userID string) (*bottle.Bottle, error) {
	var out bottle.Bottle
	err := c.do(ctx, http.MethodPost, "/bottles/pick/{user_id}",
		map[string]string{"user_id": userID}, nil, &out)
	if IsNotFound(err) {
		return nil, fmt.Errorf("%w: %w", bottle.ErrNoBottles, err)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveCount implements bottle.RemoteAPI.
func (c *Client) ActiveCount(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodGet, "/bottles/counts/active", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.TotalActiveBottles, nil
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	pathParams map[string]string,
	body, out any,
) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	req := c.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		logger.ErrorCF("remote", "Request failed", map[string]any{
			"method": method,
			"url":    c.baseURL + path,
			"error":  err.Error(),
		})
		return fmt.Errorf("%s %s%s: %w", method, c.baseURL, path, err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		se := &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
		// A 404 on pick is an ordinary empty sea; callers log it themselves.
		if se.StatusCode != http.StatusNotFound {
			logger.ErrorCF("remote", "Request returned error status", map[string]any{
				"method": method,
				"url":    c.baseURL + path,
				"status": se.StatusCode,
			})
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

var _ bottle.RemoteAPI = (*Client)(nil)
