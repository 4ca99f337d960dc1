// Package sessionclient provides HTTP client that keeps cookie based session alive.
//
// Expired access token is renewed by the refresh endpoint exactly once, no matter
// how many requests failed with 401 at the same time. Failed requests wait for the
// renewal and are sent again once.
package sessionclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/nkiryanov/queuedesk/internal/logger"
)

// Returned to every waiting request when session could not be renewed
var ErrSessionExpired = errors.New("session expired")

var defaultExemptPaths = []string{
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/auth/logout",
}

var defaultSessionCookies = []http.Cookie{
	{Name: "access_token", Path: "/"},
	{Name: "refresh_token", Path: "/api/auth"},
}

const maxDrainSize = 64 << 10

type Config struct {
	// Absolute URL of the refresh endpoint
	// Required to be set
	RefreshURL string

	// Paths that never start renewal: 401 from them is returned as is
	// If not set than default is used
	ExemptPaths []string

	// Cookies expired locally when session is lost (name and path)
	// If not set than default is used
	SessionCookies []http.Cookie

	// Called once per failed renewal. Application should ask user to login again
	OnSessionLost func(err error)

	Logger logger.Logger
}

type Coordinator struct {
	client     *http.Client
	refreshURL *url.URL
	exempt     map[string]struct{}
	cookies    []http.Cookie
	onLost     func(error)
	logger     logger.Logger

	mu       sync.Mutex
	inFlight bool
	queue    []chan error

	// Incremented on every completed renewal, successful or not
	generation uint64
	// Generation set by the last successful renewal
	renewedAt uint64
	// Outcome of the last failed renewal
	lostErr error
}

// New wraps client. Cookie jar is created if client has none
func New(client *http.Client, cfg Config) (*Coordinator, error) {
	refreshURL, err := url.Parse(cfg.RefreshURL)
	if err != nil || !refreshURL.IsAbs() {
		return nil, fmt.Errorf("refresh url has to be absolute, got %q", cfg.RefreshURL)
	}

	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cant create cookie jar. Err: %w", err)
		}
		client.Jar = jar
	}

	exemptPaths := cfg.ExemptPaths
	if len(exemptPaths) == 0 {
		exemptPaths = defaultExemptPaths
	}
	exempt := make(map[string]struct{}, len(exemptPaths)+1)
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	exempt[refreshURL.Path] = struct{}{}

	cookies := cfg.SessionCookies
	if len(cookies) == 0 {
		cookies = defaultSessionCookies
	}

	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Coordinator{
		client:     client,
		refreshURL: refreshURL,
		exempt:     exempt,
		cookies:    cookies,
		onLost:     cfg.OnSessionLost,
		logger:     l,
	}, nil
}

// Client returns wrapped client. Requests sent with it directly are not coordinated
func (c *Coordinator) Client() *http.Client {
	return c.client
}

// Do sends request. On 401 it waits for session renewal and sends the request once more
// Cookie header of the retry is rebuilt from the jar
func (c *Coordinator) Do(req *http.Request) (*http.Response, error) {
	gen := c.currentGeneration()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || c.isExempt(req.URL.Path) || !replayable(req) {
		return resp, nil
	}
	drain(resp)

	err = c.awaitRenewal(req.Context(), gen)
	if err != nil {
		return nil, err
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, err
	}

	return c.client.Do(retry)
}

func (c *Coordinator) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Coordinator) isExempt(path string) bool {
	_, ok := c.exempt[path]
	return ok
}

// Join running renewal or start new one, then wait for its outcome
// gen is the generation the failed request was sent with
func (c *Coordinator) awaitRenewal(ctx context.Context, gen uint64) error {
	c.mu.Lock()

	// Renewal completed after the request was sent
	if c.generation != gen {
		renewed, lostErr := c.renewedAt > gen, c.lostErr
		c.mu.Unlock()
		if renewed {
			return nil
		}
		// Every renewal since the request failed: session is already lost
		return lostErr
	}

	done := make(chan error, 1)
	c.queue = append(c.queue, done)

	if !c.inFlight {
		c.inFlight = true
		go c.renew(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) renew(ctx context.Context) {
	err := c.refresh(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.mu.Lock()
	c.generation++
	if err == nil {
		c.renewedAt = c.generation
	} else {
		c.lostErr = err
	}
	queue := c.queue
	c.queue = nil
	c.inFlight = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Session renewal failed", "error", err, "waiting", len(queue))
		c.expireSessionCookies()
		if c.onLost != nil {
			c.onLost(err)
		}
	} else {
		c.logger.Debug("Session renewed", "waiting", len(queue))
	}

	for _, done := range queue {
		done <- err
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL.String(), http.NoBody)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request failed. Err: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	err = json.NewDecoder(io.LimitReader(resp.Body, maxDrainSize)).Decode(&body)
	if err != nil {
		return fmt.Errorf("refresh response is not readable. Err: %w", err)
	}
	if !body.Success {
		return errors.New("refresh response is not successful")
	}

	return nil
}

func (c *Coordinator) expireSessionCookies() {
	expired := make([]*http.Cookie, 0, len(c.cookies))
	for _, cookie := range c.cookies {
		expired = append(expired, &http.Cookie{
			Name:   cookie.Name,
			Path:   cookie.Path,
			Value:  "",
			MaxAge: -1,
		})
	}
	c.client.Jar.SetCookies(c.refreshURL, expired)
}

// Request body can be sent again
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	// Client added cookies from the jar to the original request, the retry needs renewed ones
	retry.Header.Del("Cookie")

	if req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("cant replay request body. Err: %w", err)
		}
		retry.Body = body
	}

	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	_ = resp.Body.Close()
}
