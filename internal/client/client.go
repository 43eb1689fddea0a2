// Package client talks to guildhall API on behalf of a user and keeps the session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/guildhall/internal/client/session"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	store   session.Store
}

type Option func(c *Client, t *Transport)

// Transport requests are sent with, http.DefaultTransport by default
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(_ *Client, t *Transport) { t.Base = rt }
}

// Called when session was purged after failed refresh
func WithOnLogout(fn func()) Option {
	return func(_ *Client, t *Transport) { t.OnLogout = fn }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client, _ *Transport) { c.http.Timeout = d }
}

func New(baseURL string, store session.Store, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	t := &Transport{
		Store:      store,
		RefreshURL: baseURL + "/api/auth/refresh",
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: t, Timeout: defaultTimeout},
		store:   store,
	}
	for _, opt := range opts {
		opt(c, t)
	}

	return c
}

type authResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         session.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, username string, email string, password string) (session.User, error) {
	in := map[string]string{"username": username, "email": email, "password": password}
	return c.authenticate(ctx, "/api/auth/register", in)
}

func (c *Client) Login(ctx context.Context, email string, password string) (session.User, error) {
	in := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/api/auth/login", in)
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (session.User, error) {
	var out authResponse
	if err := c.do(withoutRefresh(ctx), http.MethodPost, path, in, &out); err != nil {
		return session.User{}, err
	}

	err := c.store.Save(ctx, session.Session{
		AccessToken:  out.Token,
		RefreshToken: out.RefreshToken,
		User:         &out.User,
	})
	if err != nil {
		return out.User, fmt.Errorf("failed to save session: %w", err)
	}
	return out.User, nil
}

// Logout on server and purge local session even if server is not reachable
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	return errors.Join(err, c.store.Clear(ctx))
}

// Fetch current user and refresh cached snapshot
func (c *Client) Me(ctx context.Context) (session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return u, err
	}
	return u, c.cacheUser(ctx, u)
}

// Nil fields are left as is
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodPut, "/api/auth/me", update, &u); err != nil {
		return u, err
	}
	return u, c.cacheUser(ctx, u)
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/auth/me", nil, nil); err != nil {
		return err
	}
	return c.store.Clear(ctx)
}

// Cached user snapshot, nil if not logged in
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	sess, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sess.User, nil
}

func (c *Client) cacheUser(ctx context.Context, u session.User) error {
	sess, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	// Session may be purged meanwhile, don't resurrect it
	if sess.RefreshToken == "" {
		return nil
	}
	sess.User = &u
	return c.store.Save(ctx, sess)
}

// Send JSON request and decode JSON response into out, if not nil
// Non 2xx responses are returned as *APIError
func (c *Client) do(ctx context.Context, method string, path string, in any, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
