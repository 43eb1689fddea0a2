package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/guildhall/internal/client/session"
)

type retriedKey struct{}

var (
	errPurgeFailed = errors.New("failed to purge session")
	errLoggedOut   = errors.New("session purged")
)

// Transport attaches access token to every request and, on 401, refreshes it once and
// replays the request. Concurrent 401s share the same refresh call.
// Session is purged and OnLogout called when refresh fails.
type Transport struct {
	// http.DefaultTransport if nil
	Base http.RoundTripper

	Store session.Store

	// Full URL of refresh endpoint
	RefreshURL string

	// Called after session was purged because refresh failed
	OnLogout func()

	group singleflight.Group
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	sess, err := t.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	resp, err := t.base().RoundTrip(withToken(req, sess.AccessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// Anonymous request or already replayed one: 401 is the answer
	if ctx.Value(retriedKey{}) != nil || sess.RefreshToken == "" || req.URL.String() == t.RefreshURL {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	access, err := t.freshToken(ctx, sess.AccessToken)
	switch {
	case errors.Is(err, errPurgeFailed):
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, err
	case err != nil:
		return resp, nil
	}

	retry, err := replay(req, access)
	if err != nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.base().RoundTrip(retry)
}

// Access token to replay request with
// Another request may have refreshed it already, then no refresh needed
func (t *Transport) freshToken(ctx context.Context, sent string) (string, error) {
	sess, err := t.Store.Load(ctx)
	if err != nil {
		return "", err
	}
	if sess.AccessToken != "" && sess.AccessToken != sent {
		return sess.AccessToken, nil
	}

	// Purged by another request meanwhile
	if sess.RefreshToken == "" {
		return "", errLoggedOut
	}

	v, err, _ := t.group.Do("refresh", func() (any, error) {
		// Refresh is not bound to the caller context: other callers may wait for it
		ctx := context.WithoutCancel(ctx)

		token, err := t.refresh(ctx, sess.RefreshToken)
		if err == nil {
			return token, nil
		}

		// Only the caller that ran refresh purges the session, waiters share the result
		if clearErr := t.Store.Clear(ctx); clearErr != nil {
			return "", fmt.Errorf("%w: %w", errPurgeFailed, clearErr)
		}
		if t.OnLogout != nil {
			t.OnLogout()
		}
		return "", err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Transport) refresh(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, nil)
	if err != nil {
		return "", err
	}
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshToken})

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("refresh returned no token")
	}

	sess, err := t.Store.Load(ctx)
	if err != nil {
		return "", err
	}
	sess.AccessToken = body.Token
	sess.RefreshToken = refreshToken
	if err := t.Store.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to save refreshed token: %w", err)
	}

	return body.Token, nil
}

// 401 of requests made with this context is returned as is, e.g. wrong password on login
func withoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func withToken(req *http.Request, access string) *http.Request {
	r := req.Clone(req.Context())
	if access != "" {
		r.Header.Set("Authorization", "Bearer "+access)
	}
	return r
}

// Same request with new token and fresh body, marked as retried
func replay(req *http.Request, access string) (*http.Request, error) {
	r := withToken(req.WithContext(withoutRefresh(req.Context())), access)

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}
