package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotsync/internal/shared"
	fake "github.com/desertthunder/spotsync/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testConfig() shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:0/callback",
		Scopes:       []string{"user-library-read", "user-library-modify"},
	}
}

// tokenEndpoint serves a token response for any code except "bad".
func tokenEndpoint(t *testing.T) *oauth2.Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") == "bad" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": "invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token": "at", "refresh_token": "rt", "token_type": "Bearer", "expires_in": 3600, "scope": "user-library-read user-library-modify"}`)
	}))
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

// visit plays the user's browser: it follows the consent URL straight to the callback.
func visit(t *testing.T, query func(state string) url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)

		callback, err := url.Parse(u.Query().Get("redirect_uri"))
		require.NoError(t, err)
		callback.RawQuery = query(u.Query().Get("state")).Encode()

		go func() {
			resp, err := http.Get(callback.String())
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func approve(code string) func(string) url.Values {
	return func(state string) url.Values {
		return url.Values{"state": {state}, "code": {code}}
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the credential", func(t *testing.T) {
		store := fake.NewMemoryStore()
		var prompted string
		flow := NewFlow(testConfig(), store, Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open:      visit(t, approve("good")),
			Prompt:    func(u string) { prompted = u },
		})

		cred, err := flow.Login(ctx, "home")
		require.NoError(t, err)
		assert.Equal(t, "at", cred.AccessToken)
		assert.Equal(t, "rt", cred.RefreshToken)
		assert.Equal(t, []string{"user-library-read", "user-library-modify"}, cred.Scopes)

		stored, err := store.Get(ctx, "home")
		require.NoError(t, err)
		assert.Equal(t, "rt", stored.RefreshToken)

		consent, err := url.Parse(prompted)
		require.NoError(t, err)
		assert.Equal(t, "true", consent.Query().Get("show_dialog"))
		assert.Equal(t, "client", consent.Query().Get("client_id"))
		assert.True(t, strings.HasPrefix(consent.String(), "https://accounts.spotify.com/authorize"))
	})

	t.Run("user denies", func(t *testing.T) {
		store := fake.NewMemoryStore()
		flow := NewFlow(testConfig(), store, Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open: visit(t, func(state string) url.Values {
				return url.Values{"state": {state}, "error": {"access_denied"}}
			}),
		})

		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrAuthDenied)
		_, err = store.Get(ctx, "home")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("state mismatch", func(t *testing.T) {
		flow := NewFlow(testConfig(), fake.NewMemoryStore(), Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open: visit(t, func(string) url.Values {
				return url.Values{"state": {"forged"}, "code": {"good"}}
			}),
		})

		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrAuthProtocol)
	})

	t.Run("exchange rejected", func(t *testing.T) {
		flow := NewFlow(testConfig(), fake.NewMemoryStore(), Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open:      visit(t, approve("bad")),
		})

		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrAuthProtocol)
	})

	t.Run("times out without a callback", func(t *testing.T) {
		flow := NewFlow(testConfig(), fake.NewMemoryStore(), Options{
			Timeout:   50 * time.Millisecond,
			Exchanger: tokenEndpoint(t),
			Open:      func(string) error { return errors.New("no browser") },
		})

		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrAuthTimeout)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		flow := NewFlow(testConfig(), fake.NewMemoryStore(), Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open: func(string) error {
				cancel()
				return nil
			},
		})

		_, err := flow.Login(cctx, "home")
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := fake.NewMemoryStore()
		store.PutErr = shared.ErrStorageIO
		flow := NewFlow(testConfig(), store, Options{
			Timeout:   5 * time.Second,
			Exchanger: tokenEndpoint(t),
			Open:      visit(t, approve("good")),
		})

		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrStorageIO)
	})

	t.Run("requires a name", func(t *testing.T) {
		flow := NewFlow(testConfig(), fake.NewMemoryStore(), Options{})
		_, err := flow.Login(ctx, "")
		require.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("invalid redirect", func(t *testing.T) {
		cfg := testConfig()
		cfg.RedirectURI = "not a url"
		flow := NewFlow(cfg, fake.NewMemoryStore(), Options{})
		_, err := flow.Login(ctx, "home")
		require.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}
