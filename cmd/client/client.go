package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ErrSessionLost is returned when a refresh attempt fails and the caller
// must re-authenticate.
var ErrSessionLost = errors.New("client: session lost, login required")

// Paths that must never trigger the refresh interceptor: a 401 from these
// means the answer, not a stale token.
var exemptPaths = map[string]bool{
	"/auth/login":    true,
	"/auth/register": true,
	"/auth/verify":   true,
	"/auth/refresh":  true,
}

// Config controls the Wisata API client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.wisata.example".
	BaseURL string

	// WaitTimeout bounds how long a request queued behind an in-flight
	// refresh waits before failing. Defaults to 30s.
	WaitTimeout time.Duration

	// Timeout is the per-request HTTP timeout. Defaults to 30s.
	Timeout time.Duration

	// OnAuthFailure is invoked (once per failed refresh) with the path of
	// the request that triggered the failure, so UIs can redirect to login
	// and come back. May be nil.
	OnAuthFailure func(returnPath string)
}

// Client is an HTTP client for the Wisata API with cookie-based session
// transport and coalesced token refresh.
type Client struct {
	base  *url.URL
	hc    *http.Client
	coord *refreshCoordinator
	log   *slog.Logger

	onAuthFailure func(returnPath string)
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached if the provided client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// New constructs a Client with its own cookie jar.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		base:          base,
		coord:         newRefreshCoordinator(cfg.WaitTimeout),
		log:           slog.Default(),
		onAuthFailure: cfg.OnAuthFailure,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.hc == nil {
		c.hc = &http.Client{Timeout: timeout}
	}
	if c.hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.hc.Jar = jar
	}

	return c, nil
}

// Do sends the request, transparently refreshing the session and replaying
// once when the gateway answers 401 or 403 on a non-exempt path.
//
// Replay requires a rewindable body: requests with a one-shot body stream
// are returned as-is on auth failure.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if !c.shouldIntercept(req, resp) {
		return resp, nil
	}

	// The original response is consumed; the retry's response replaces it.
	drain(resp)

	if err := c.refreshSession(req.Context(), req.URL.Path); err != nil {
		return nil, err
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	return c.hc.Do(retry)
}

// Get issues a GET against an API path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.abs(path), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST with a JSON body against an API path.
func (c *Client) Post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.abs(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

func (c *Client) abs(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

func (c *Client) shouldIntercept(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return false
	}
	if exemptPaths[req.URL.Path] {
		return false
	}
	// One-shot body streams cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return false
	}
	return true
}

// refreshSession coalesces concurrent callers into one POST /auth/refresh.
// On failure, the session is written off: best-effort logout, auth-failure
// hook, and ErrSessionLost for every queued caller.
func (c *Client) refreshSession(ctx context.Context, returnPath string) error {
	return c.coord.run(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.abs("/auth/refresh"), nil)
		if err != nil {
			return err
		}
		resp, err := c.hc.Do(req)
		if err == nil {
			drain(resp)
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		c.log.Warn("client.refresh.fail", "err", err)
		c.bestEffortLogout(ctx)
		if c.onAuthFailure != nil {
			c.onAuthFailure(returnPath)
		}
		return ErrSessionLost
	})
}

func (c *Client) bestEffortLogout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.abs("/auth/logout"), nil)
	if err != nil {
		return
	}
	if resp, err := c.hc.Do(req); err == nil {
		drain(resp)
	}
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return retry, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
