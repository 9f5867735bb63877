// Package syncbridge mirrors the client-held session to the application
// server, so server-rendered pages and API middleware see the user as signed
// in immediately after the auth flow completes.
package syncbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/logger"
)

// ErrSyncRejected is returned when the server refused the pushed session.
var ErrSyncRejected = errors.New("server rejected session sync")

// tokenPayload is the wire shape exchanged with the server endpoint.
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// statusPayload is the server's readback response.
type statusPayload struct {
	Active bool `json:"active"`
}

// ClientConfig carries the bridge client settings.
type ClientConfig struct {
	BaseURL string `env:"SYNC_BRIDGE_URL,required"`
	// SettleDelay is the pause after a successful push before Push returns,
	// giving the server time to propagate cookies before navigation loads
	// the next page.
	SettleDelay time.Duration `env:"SYNC_BRIDGE_SETTLE_DELAY" envDefault:"500ms"`
	// Readback verifies the pushed session with a follow-up status request.
	Readback bool          `env:"SYNC_BRIDGE_READBACK" envDefault:"false"`
	Timeout  time.Duration `env:"SYNC_BRIDGE_TIMEOUT" envDefault:"5s"`
}

// Client pushes sessions to the server's sync endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the client logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a bridge client for the given config. The default HTTP
// client carries a cookie jar: the server answers the push with session
// cookies, and the readback request must present them or the server reports
// the session inactive.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push mirrors the session to the server, waits out the settle delay, and
// optionally reads the session back to confirm it took. The settle delay is
// cut short if the context is cancelled.
func (c *Client) Push(ctx context.Context, sess identity.Session) error {
	body, err := json.Marshal(tokenPayload{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push session: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrSyncRejected, resp.StatusCode)
	}

	if err := c.settle(ctx); err != nil {
		return err
	}

	if c.cfg.Readback {
		if err := c.verify(ctx); err != nil {
			return err
		}
	}

	c.log.Debug("session synced to server", logger.Component("syncbridge"))
	return nil
}

// Drop clears the mirrored session on sign-out. Missing server state is not
// an error: dropping twice is as good as dropping once.
func (c *Client) Drop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/session", nil)
	if err != nil {
		return fmt.Errorf("build drop request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	resp.Body.Close()

	ok := (resp.StatusCode >= 200 && resp.StatusCode <= 299) || resp.StatusCode == http.StatusNotFound
	if !ok {
		return fmt.Errorf("%w: status %d", ErrSyncRejected, resp.StatusCode)
	}
	return nil
}

func (c *Client) settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/session", nil)
	if err != nil {
		return fmt.Errorf("build readback request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("read session back: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: readback status %d", ErrSyncRejected, resp.StatusCode)
	}

	var status statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode readback: %w", err)
	}
	if !status.Active {
		return fmt.Errorf("%w: session not active after push", ErrSyncRejected)
	}
	return nil
}
