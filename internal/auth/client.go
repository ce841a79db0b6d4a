package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kmoe-dl/kmoe/internal/mirror"
)

// LoginRequiredError signals that an operation needs a session and none is
// available.
type LoginRequiredError struct{}

func (e *LoginRequiredError) Error() string {
	return "not logged in (run the login command first)"
}

// SessionExpiredError signals that a persisted session was rejected by the
// server.
type SessionExpiredError struct{}

func (e *SessionExpiredError) Error() string {
	return "session expired, log in again"
}

// loggedInMarker appears on the home page only for authenticated sessions:
// the account-page link is not rendered for guests.
const loggedInMarker = "my.php"

// Client performs login and session checks through the mirror router, so
// authentication gets the same failover behavior as everything else.
type Client struct {
	router *mirror.Router
	store  *Store
	log    *slog.Logger
}

// NewClient builds an auth client. store may be nil when persistence is not
// wanted.
func NewClient(router *mirror.Router, store *Store, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{router: router, store: store, log: log}
}

// Login authenticates with the given credentials, installs the session
// cookies on the router, verifies them, and persists the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("passwd", password)
	form.Set("keepalive", "on")

	resp, err := c.router.Execute(ctx, mirror.Request{
		Method: http.MethodPost,
		Path:   "/login_do.php",
		Form:   form,
	})
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	cookies := make(map[string]string)
	for _, ck := range resp.Cookies() {
		if ck.Value != "" && ck.Value != "deleted" {
			cookies[ck.Name] = ck.Value
		}
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("login rejected: no session cookie issued")
	}
	c.router.SetCookies(cookies)

	if err := c.CheckSession(ctx); err != nil {
		c.router.SetCookies(nil)
		return nil, fmt.Errorf("login rejected: %w", err)
	}

	sess := &Session{Email: email, Cookies: cookies, SavedAt: time.Now().UTC()}
	if c.store != nil {
		if err := c.store.Save(sess); err != nil {
			c.log.Warn("saving session failed", "error", err)
		}
	}
	c.log.Info("logged in", "email", email)
	return sess, nil
}

// Restore loads the persisted session, installs its cookies on the router,
// and verifies it against the server. Returns LoginRequiredError when no
// session is stored and SessionExpiredError when the server rejects it.
func (c *Client) Restore(ctx context.Context) (*Session, error) {
	if c.store == nil {
		return nil, &LoginRequiredError{}
	}
	sess, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil || len(sess.Cookies) == 0 {
		return nil, &LoginRequiredError{}
	}

	c.router.SetCookies(sess.Cookies)
	if err := c.CheckSession(ctx); err != nil {
		c.router.SetCookies(nil)
		return nil, err
	}
	return sess, nil
}

// CheckSession fetches the home page and verifies the server still treats
// the current cookies as an authenticated session.
func (c *Client) CheckSession(ctx context.Context) error {
	resp, err := c.router.Execute(ctx, mirror.Request{
		Method: http.MethodGet,
		Path:   "/",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read home page: %w", err)
	}
	if !strings.Contains(string(body), loggedInMarker) {
		return &SessionExpiredError{}
	}
	return nil
}

// Logout clears the persisted session and the router cookies.
func (c *Client) Logout() error {
	c.router.SetCookies(nil)
	if c.store == nil {
		return nil
	}
	return c.store.Clear()
}
