// Package auth runs the interactive authorization-code login for one named account.
//
// [Flow.Login] serves a single-use callback on the registered redirect address, sends the user
// to the provider's consent page and stores the resulting credential. It blocks until the
// callback arrives, the context ends or the login window closes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/server"
	"github.com/desertthunder/spotsync/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds how long Login waits for the user.
const DefaultTimeout = 2 * time.Minute

// Store is where a successful login is written.
type Store interface {
	Put(ctx context.Context, cred *models.Credential) error
}

// Options configures a [Flow].
type Options struct {
	Timeout time.Duration
	Logger  *log.Logger

	// Exchanger replaces the Spotify token exchange.
	Exchanger server.Exchanger
	// Open launches the consent page. Defaults to the system browser.
	Open func(url string) error
	// Prompt receives the consent URL on every attempt so it can be opened by hand.
	Prompt func(url string)
}

// Flow acquires credentials for named accounts.
type Flow struct {
	cfg   shared.SpotifyConfig
	store Store
	opts  Options
}

// NewFlow creates a login flow for the registered application in cfg.
func NewFlow(cfg shared.SpotifyConfig, store Store, opts Options) *Flow {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.Open == nil {
		opts.Open = shared.OpenBrowser
	}
	if opts.Prompt == nil {
		opts.Prompt = func(string) {}
	}
	return &Flow{cfg: cfg, store: store, opts: opts}
}

func (f *Flow) authenticator(redirectURL string) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(f.cfg.ClientID),
		spotifyauth.WithClientSecret(f.cfg.ClientSecret),
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithScopes(f.cfg.Scopes...),
	)
}

// Login authorizes account name and persists its credential.
//
// Errors: [shared.ErrAuthDenied] when the user declines, [shared.ErrAuthTimeout] when the window
// closes, [shared.ErrAuthProtocol] for a malformed or failed callback, and the store's error
// when the credential cannot be saved. Each attempt is independent; nothing is stored on failure.
func (f *Flow) Login(ctx context.Context, name string) (*models.Credential, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: account name", shared.ErrMissingArgument)
	}

	redirect, err := url.Parse(f.cfg.RedirectURI)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: redirect uri %q", shared.ErrInvalidConfig, f.cfg.RedirectURI)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	// an ephemeral port is only known once bound
	if redirect.Port() == "0" {
		redirect.Host = ln.Addr().String()
	}

	logger := f.opts.Logger.With("account", name)
	authn := f.authenticator(redirect.String())

	var exchanger server.Exchanger = authn
	if f.opts.Exchanger != nil {
		exchanger = f.opts.Exchanger
	}

	handler := server.NewOAuthHandler(exchanger, state, redirect.Path)
	router := server.NewCallbackRouter()
	router.Use(server.RequestLogger(logger))
	router.Handler(handler)

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Debug("callback server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := authn.AuthURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
	f.opts.Prompt(authURL)
	if err := f.opts.Open(authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	timeout := time.NewTimer(f.opts.Timeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("%w: callback server failed: %v", shared.ErrAuthProtocol, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("%w: no callback within %s", shared.ErrAuthTimeout, f.opts.Timeout)
	}

	if err := result.Error(); err != nil {
		logger.Warn("authorization failed", "error", err)
		return nil, err
	}

	cred := models.CredentialFromToken(name, result.Token)
	if len(cred.Scopes) == 0 {
		cred.Scopes = append([]string(nil), f.cfg.Scopes...)
	}
	if err := f.store.Put(ctx, cred); err != nil {
		return nil, err
	}

	logger.Info("account authorized", "expiry", cred.Expiry)
	return cred, nil
}
