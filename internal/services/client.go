package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	jitterFraction = 0.25

	// DefaultRefreshTimeout bounds one token exchange.
	DefaultRefreshTimeout = 30 * time.Second
)

// Refresher collapses concurrent refreshes of the same account into one exchange.
//
// Clients that share a credential store should share a Refresher; clients over different
// stores must not, since the exchange result is keyed by account name only.
type Refresher struct {
	group singleflight.Group
}

// NewRefresher creates a Refresher for one credential store.
func NewRefresher() *Refresher {
	return &Refresher{}
}

// ClientOptions tunes token refresh, retries and pacing.
type ClientOptions struct {
	RefreshMargin     time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64 // zero disables pacing
	RefreshTimeout    time.Duration
	Logger            *log.Logger

	// Refresher is shared by clients over the same store; nil gives the client its own.
	Refresher *Refresher

	// Sleep waits between retries; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the clock used for expiry checks; nil uses [time.Now].
	Now func() time.Time
}

// DefaultClientOptions mirrors the defaults of the [client] config section.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RefreshMargin:     60 * time.Second,
		MaxRetries:        5,
		BaseBackoff:       time.Second,
		MaxBackoff:        60 * time.Second,
		RequestsPerSecond: 8,
		RefreshTimeout:    DefaultRefreshTimeout,
	}
}

// ClientOptionsFromConfig builds options from the [client] config section.
func ClientOptionsFromConfig(cfg shared.ClientConfig, logger *log.Logger) ClientOptions {
	return ClientOptions{
		RefreshMargin:     cfg.RefreshMargin.Duration,
		MaxRetries:        cfg.MaxRetries,
		BaseBackoff:       cfg.BaseBackoff.Duration,
		MaxBackoff:        cfg.MaxBackoff.Duration,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RefreshTimeout:    DefaultRefreshTimeout,
		Logger:            logger,
	}
}

// Client performs provider calls for one stored account.
//
// Safe for concurrent use.
type Client struct {
	account  string
	store    CredentialStore
	provider Provider
	opts     ClientOptions
	limiter  *rate.Limiter
	logger   *log.Logger

	mu     sync.Mutex
	cred   *models.Credential
	userID string
}

// NewClient creates a client for account. The credential is loaded from store on first use.
func NewClient(account string, store CredentialStore, provider Provider, opts ClientOptions) *Client {
	if opts.Sleep == nil {
		opts.Sleep = timeSleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.Refresher == nil {
		opts.Refresher = NewRefresher()
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	return &Client{
		account:  account,
		store:    store,
		provider: provider,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With("account", account),
	}
}

// Account returns the account name this client acts for.
func (c *Client) Account() string {
	return c.account
}

// UserID returns the provider user id behind the account, fetched once.
func (c *Client) UserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	user, err := call(ctx, c, "current user", func(tok *oauth2.Token) (*User, error) {
		return c.provider.CurrentUser(ctx, tok)
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.userID = user.ID
	c.mu.Unlock()
	return user.ID, nil
}

// Playlists lists the account's playlists without tracks.
func (c *Client) Playlists() *Pager[models.Playlist] {
	return NewPager(PlaylistsPageSize, func(ctx context.Context, offset, limit int) (*Page[models.Playlist], error) {
		return call(ctx, c, "list playlists", func(tok *oauth2.Token) (*Page[models.Playlist], error) {
			return c.provider.PlaylistsPage(ctx, tok, offset, limit)
		})
	})
}

// PlaylistTracks lists the tracks of one playlist in order.
func (c *Client) PlaylistTracks(playlistID string) *Pager[models.Track] {
	return NewPager(PlaylistTracksPageSize, func(ctx context.Context, offset, limit int) (*Page[models.Track], error) {
		return call(ctx, c, "list playlist tracks", func(tok *oauth2.Token) (*Page[models.Track], error) {
			return c.provider.PlaylistTracksPage(ctx, tok, playlistID, offset, limit)
		})
	})
}

// LikedTracks lists saved tracks, most recent first.
func (c *Client) LikedTracks() *Pager[models.Track] {
	return NewPager(LikedTracksPageSize, func(ctx context.Context, offset, limit int) (*Page[models.Track], error) {
		return call(ctx, c, "list liked tracks", func(tok *oauth2.Token) (*Page[models.Track], error) {
			return c.provider.LikedTracksPage(ctx, tok, offset, limit)
		})
	})
}

// CreatePlaylist creates an empty playlist with pl's name, description and visibility.
func (c *Client) CreatePlaylist(ctx context.Context, pl models.Playlist) (*models.Playlist, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return call(ctx, c, "create playlist", func(tok *oauth2.Token) (*models.Playlist, error) {
		return c.provider.CreatePlaylist(ctx, tok, userID, pl)
	})
}

// AddTracksToPlaylist appends trackIDs in order, [MaxPlaylistBatch] per request.
// It stops at the first failed request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	for batch := range slices.Chunk(trackIDs, MaxPlaylistBatch) {
		_, err := call(ctx, c, "add playlist tracks", func(tok *oauth2.Token) (struct{}, error) {
			return struct{}{}, c.provider.AddTracksToPlaylist(ctx, tok, playlistID, batch)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AddLikedTracks saves trackIDs, [MaxLikedBatch] per request. It stops at the first failed request.
func (c *Client) AddLikedTracks(ctx context.Context, trackIDs []string) error {
	for batch := range slices.Chunk(trackIDs, MaxLikedBatch) {
		_, err := call(ctx, c, "add liked tracks", func(tok *oauth2.Token) (struct{}, error) {
			return struct{}{}, c.provider.AddLikedTracks(ctx, tok, batch)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LibraryStats counts liked songs, playlists and the songs across both.
func (c *Client) LibraryStats(ctx context.Context) (*models.LibraryStats, error) {
	liked, err := call(ctx, c, "count liked tracks", func(tok *oauth2.Token) (*Page[models.Track], error) {
		return c.provider.LikedTracksPage(ctx, tok, 0, 1)
	})
	if err != nil {
		return nil, err
	}

	stats := &models.LibraryStats{LikedSongs: uint64(liked.Total)}
	for page, err := range c.Playlists().Pages(ctx) {
		if err != nil {
			return nil, err
		}
		for _, pl := range page {
			stats.Playlists++
			stats.TotalSongs += uint64(pl.TrackCount)
		}
	}
	stats.TotalSongs += stats.LikedSongs
	return stats, nil
}

// call runs fn with a fresh token, handling unauthorized responses, rate limits and pacing.
func call[T any](ctx context.Context, c *Client, op string, fn func(tok *oauth2.Token) (T, error)) (T, error) {
	var zero T
	retried := false
	retries := 0

	for {
		tok, err := c.token(ctx)
		if err != nil {
			return zero, err
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}

		v, err := fn(tok)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		var rl *RateLimitError
		switch {
		case errors.Is(err, shared.ErrUnauthorized):
			if retried {
				return zero, fmt.Errorf("%w: %s rejected after refresh: %v", shared.ErrReauthRequired, op, err)
			}
			retried = true
			c.logger.Debug("token rejected, refreshing", "op", op)
			if _, err := c.refresh(ctx, tok.AccessToken); err != nil {
				return zero, err
			}
			continue

		case errors.As(err, &rl):
			if retries >= c.opts.MaxRetries {
				return zero, fmt.Errorf("%w: %s after %d retries", shared.ErrRateLimitExceeded, op, retries)
			}
			wait := rl.RetryAfter
			if wait <= 0 {
				wait = c.backoff(retries)
			}
			retries++
			c.logger.Warn("rate limited", "op", op, "wait", wait, "attempt", retries)
			if err := c.opts.Sleep(ctx, wait); err != nil {
				return zero, err
			}
			continue

		case errors.Is(err, shared.ErrServiceUnavailable):
			if retries >= c.opts.MaxRetries {
				return zero, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
			}
			wait := c.backoff(retries)
			retries++
			c.logger.Warn("service unavailable, retrying", "op", op, "wait", wait, "attempt", retries)
			if err := c.opts.Sleep(ctx, wait); err != nil {
				return zero, err
			}
			continue

		case errors.Is(err, shared.ErrAPIRequest), errors.Is(err, shared.ErrInvalidArgument):
			return zero, fmt.Errorf("%s: %w", op, err)

		default:
			return zero, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
		}
	}
}

// token returns a usable access token, refreshing ahead of expiry.
func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	if cred == nil {
		loaded, err := c.store.Get(ctx, c.account)
		if err != nil {
			return nil, err
		}
		c.setCredential(loaded)
		cred = loaded
	}

	if cred.ExpiresWithin(c.opts.RefreshMargin, c.opts.Now()) {
		refreshed, err := c.refresh(ctx, cred.AccessToken)
		if err != nil {
			return nil, err
		}
		cred = refreshed
	}
	return cred.Token(), nil
}

// refresh replaces the credential whose access token is stale.
//
// Concurrent callers for the same account share one exchange. When the store already holds a
// different, unexpired token (another caller rotated it), that token is reused without an exchange.
// The rotated credential is stored before any caller sees it.
//
// The exchange outlives a cancelled caller, so a rotated refresh token is never lost, but it is
// bounded by RefreshTimeout and the caller stops waiting as soon as ctx ends.
func (c *Client) refresh(ctx context.Context, stale string) (*models.Credential, error) {
	ch := c.opts.Refresher.group.DoChan(c.account, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
		defer cancel()

		current, err := c.store.Get(ctx, c.account)
		if err != nil {
			return nil, err
		}
		if current.AccessToken != stale && !current.ExpiresWithin(c.opts.RefreshMargin, c.opts.Now()) {
			return current, nil
		}
		if current.RefreshToken == "" {
			return nil, fmt.Errorf("%w: no refresh token stored for %s", shared.ErrReauthRequired, c.account)
		}

		tok, err := c.provider.RefreshToken(ctx, current.RefreshToken)
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: token refresh timed out after %s", shared.ErrAPIRequest, c.opts.RefreshTimeout)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrReauthRequired, err)
		}

		next := current.Rotate(tok)
		if err := c.store.Put(ctx, next); err != nil {
			if !errors.Is(err, shared.ErrStorageIO) {
				err = fmt.Errorf("%w: %v", shared.ErrStorageIO, err)
			}
			return nil, err
		}
		c.logger.Info("access token refreshed", "expiry", next.Expiry)
		return next, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	cred := res.Val.(*models.Credential)
	if res.Shared {
		c.logger.Debug("reused concurrent refresh")
	}
	c.setCredential(cred)
	return cred, nil
}

// isTimeout reports whether err is a deadline or a network timeout rather than a rejection.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func (c *Client) setCredential(cred *models.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// backoff computes exponential backoff with ±25% jitter, capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	backoff := float64(c.opts.BaseBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(c.opts.MaxBackoff) {
		backoff = float64(c.opts.MaxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
