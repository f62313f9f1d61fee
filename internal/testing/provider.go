package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"golang.org/x/oauth2"
)

// Operation names used for call counting and failure injection.
const (
	OpCurrentUser    = "current_user"
	OpPlaylists      = "playlists"
	OpPlaylistTracks = "playlist_tracks"
	OpLikedTracks    = "liked_tracks"
	OpCreatePlaylist = "create_playlist"
	OpAddToPlaylist  = "add_to_playlist"
	OpAddLiked       = "add_liked"
	OpRefresh        = "refresh"
)

// FakeProvider is an in-memory music library implementing [services.Provider] for one user.
//
// Tokens named in Revoke are answered with [shared.ErrUnauthorized]. Injected failures are
// consumed in order, one per call of the matching operation.
type FakeProvider struct {
	mu sync.Mutex

	UserID    string
	playlists []*models.Playlist
	liked     []models.Track // most recent first
	catalog   map[string]models.Track

	revoked  map[string]bool
	failures map[string][]error
	failWhen map[string]func(ids []string) error
	calls    map[string]int
	nextID   int

	// RefreshDelay holds every refresh exchange open, making concurrent refreshes overlap.
	RefreshDelay time.Duration
	// RotateRefreshToken issues a new refresh token on every exchange.
	RotateRefreshToken bool
	// TokenLifetime is the expiry given to refreshed tokens. Defaults to one hour.
	TokenLifetime time.Duration
}

var _ services.Provider = (*FakeProvider)(nil)

// NewFakeProvider creates an empty library owned by userID.
func NewFakeProvider(userID string) *FakeProvider {
	return &FakeProvider{
		UserID:   userID,
		catalog:  make(map[string]models.Track),
		revoked:  make(map[string]bool),
		failures: make(map[string][]error),
		failWhen: make(map[string]func([]string) error),
		calls:    make(map[string]int),
	}
}

// AddPlaylist seeds a playlist, returning its generated id. Tracks join the catalog.
func (f *FakeProvider) AddPlaylist(pl models.Playlist) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pl.ID == "" {
		f.nextID++
		pl.ID = fmt.Sprintf("%s-pl-%d", f.UserID, f.nextID)
	}
	if pl.OwnerID == "" {
		pl.OwnerID = f.UserID
	}
	pl.Tracks = slices.Clone(pl.Tracks)
	pl.TrackCount = len(pl.Tracks)
	for _, t := range pl.Tracks {
		f.remember(t)
	}
	f.playlists = append(f.playlists, &pl)
	return pl.ID
}

// Like seeds liked tracks given oldest first, so the last one is the most recent.
func (f *FakeProvider) Like(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.remember(t)
		f.liked = append([]models.Track{t}, f.liked...)
	}
}

// Catalog registers tracks so adds by id carry full metadata.
func (f *FakeProvider) Catalog(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.remember(t)
	}
}

func (f *FakeProvider) remember(t models.Track) {
	if t.ID != "" {
		f.catalog[t.ID] = t
	}
}

// Revoke makes calls carrying accessToken fail as unauthorized.
func (f *FakeProvider) Revoke(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[accessToken] = true
}

// FailNext queues errors returned by the next calls of op.
func (f *FakeProvider) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// FailWhen installs a check run against the ids of every add call of op.
func (f *FakeProvider) FailWhen(op string, check func(ids []string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWhen[op] = check
}

// Calls returns how many times op was invoked.
func (f *FakeProvider) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Playlist returns a copy of the named playlist, first match wins.
func (f *FakeProvider) Playlist(name string) (models.Playlist, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pl := range f.playlists {
		if pl.Name == name {
			out := *pl
			out.Tracks = slices.Clone(pl.Tracks)
			return out, true
		}
	}
	return models.Playlist{}, false
}

// PlaylistNames returns the name of every playlist in library order.
func (f *FakeProvider) PlaylistNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.playlists))
	for _, pl := range f.playlists {
		names = append(names, pl.Name)
	}
	return names
}

// Liked returns the liked collection, most recent first.
func (f *FakeProvider) Liked() []models.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.liked)
}

// enter records a call and returns the injected or authorization failure for it.
func (f *FakeProvider) enter(op string, token *oauth2.Token) error {
	f.calls[op]++
	if token != nil && f.revoked[token.AccessToken] {
		return fmt.Errorf("%w: token revoked", shared.ErrUnauthorized)
	}
	if queue := f.failures[op]; len(queue) > 0 {
		f.failures[op] = queue[1:]
		if queue[0] != nil {
			return queue[0]
		}
	}
	return nil
}

func (f *FakeProvider) CurrentUser(ctx context.Context, token *oauth2.Token) (*services.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCurrentUser, token); err != nil {
		return nil, err
	}
	return &services.User{ID: f.UserID, DisplayName: f.UserID}, nil
}

func (f *FakeProvider) PlaylistsPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*services.Page[models.Playlist], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpPlaylists, token); err != nil {
		return nil, err
	}

	window, hasNext := paginate(f.playlists, offset, limit)
	items := make([]models.Playlist, 0, len(window))
	for _, pl := range window {
		summary := *pl
		summary.Tracks = nil
		summary.TrackCount = len(pl.Tracks)
		items = append(items, summary)
	}
	return &services.Page[models.Playlist]{Items: items, Total: len(f.playlists), HasNext: hasNext}, nil
}

func (f *FakeProvider) PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset, limit int) (*services.Page[models.Track], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpPlaylistTracks, token); err != nil {
		return nil, err
	}

	pl := f.find(playlistID)
	if pl == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	window, hasNext := paginate(pl.Tracks, offset, limit)
	return &services.Page[models.Track]{Items: slices.Clone(window), Total: len(pl.Tracks), HasNext: hasNext}, nil
}

func (f *FakeProvider) LikedTracksPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*services.Page[models.Track], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpLikedTracks, token); err != nil {
		return nil, err
	}

	window, hasNext := paginate(f.liked, offset, limit)
	return &services.Page[models.Track]{Items: slices.Clone(window), Total: len(f.liked), HasNext: hasNext}, nil
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, pl models.Playlist) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCreatePlaylist, token); err != nil {
		return nil, err
	}

	f.nextID++
	created := &models.Playlist{
		ID:            fmt.Sprintf("%s-pl-%d", f.UserID, f.nextID),
		Name:          pl.Name,
		Description:   pl.Description,
		OwnerID:       userID,
		Public:        pl.Public,
		Collaborative: pl.Collaborative,
	}
	f.playlists = append(f.playlists, created)

	out := *created
	return &out, nil
}

func (f *FakeProvider) AddTracksToPlaylist(ctx context.Context, token *oauth2.Token, playlistID string, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpAddToPlaylist, token); err != nil {
		return err
	}
	if len(trackIDs) > services.MaxPlaylistBatch {
		return fmt.Errorf("%w: batch of %d", shared.ErrInvalidArgument, len(trackIDs))
	}
	if check := f.failWhen[OpAddToPlaylist]; check != nil {
		if err := check(trackIDs); err != nil {
			return err
		}
	}

	pl := f.find(playlistID)
	if pl == nil {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	for _, id := range trackIDs {
		pl.Tracks = append(pl.Tracks, f.lookup(id))
	}
	pl.TrackCount = len(pl.Tracks)
	return nil
}

func (f *FakeProvider) AddLikedTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpAddLiked, token); err != nil {
		return err
	}
	if len(trackIDs) > services.MaxLikedBatch {
		return fmt.Errorf("%w: batch of %d", shared.ErrInvalidArgument, len(trackIDs))
	}
	if check := f.failWhen[OpAddLiked]; check != nil {
		if err := check(trackIDs); err != nil {
			return err
		}
	}

	// Saving an already liked track is a no-op. The last id of a request ends up most recent.
	for _, id := range trackIDs {
		if slices.ContainsFunc(f.liked, func(t models.Track) bool { return t.ID == id }) {
			continue
		}
		f.liked = append([]models.Track{f.lookup(id)}, f.liked...)
	}
	return nil
}

func (f *FakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	err := f.enter(OpRefresh, nil)
	n := f.calls[OpRefresh]
	delay := f.RefreshDelay
	lifetime := f.TokenLifetime
	rotate := f.RotateRefreshToken
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lifetime == 0 {
		lifetime = time.Hour
	}

	tok := &oauth2.Token{
		AccessToken: fmt.Sprintf("%s-access-%d", f.UserID, n),
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(lifetime),
	}
	if rotate {
		tok.RefreshToken = fmt.Sprintf("%s-refresh-%d", f.UserID, n)
	}
	return tok, nil
}

func (f *FakeProvider) find(id string) *models.Playlist {
	for _, pl := range f.playlists {
		if pl.ID == id {
			return pl
		}
	}
	return nil
}

func (f *FakeProvider) lookup(id string) models.Track {
	if t, ok := f.catalog[id]; ok {
		return t
	}
	return models.Track{ID: id, URI: "spotify:track:" + id}
}

func paginate[T any](items []T, offset, limit int) ([]T, bool) {
	if offset >= len(items) {
		return nil, false
	}
	end := min(offset+limit, len(items))
	return items[offset:end], end < len(items)
}

// Track builds a catalog track whose id is derived from the title.
func Track(id, title, artist string) models.Track {
	return models.Track{ID: id, URI: "spotify:track:" + id, Title: title, Artist: artist}
}

// FreshCredential returns a credential that will not need a refresh for an hour.
func FreshCredential(name string) *models.Credential {
	return &models.Credential{
		Name:         name,
		AccessToken:  name + "-access-0",
		RefreshToken: name + "-refresh-0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

// ExpiredCredential returns a credential whose access token has already expired.
func ExpiredCredential(name string) *models.Credential {
	c := FreshCredential(name)
	c.Expiry = time.Now().Add(-time.Minute)
	return c
}
