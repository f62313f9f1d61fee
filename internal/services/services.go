// package services defines the provider capability and the per-account client
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spotsync/internal/models"
	"golang.org/x/oauth2"
)

const (
	PlaylistsPageSize      = 50
	PlaylistTracksPageSize = 100
	LikedTracksPageSize    = 50

	MaxPlaylistBatch = 100 // tracks per add-to-playlist request
	MaxLikedBatch    = 50  // tracks per save-to-library request
)

// Provider is the set of streaming-service operations a transfer needs.
type Provider interface {
	// CurrentUser returns the profile that owns token.
	CurrentUser(ctx context.Context, token *oauth2.Token) (*User, error)

	// PlaylistsPage lists the user's playlists without their tracks.
	PlaylistsPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*Page[models.Playlist], error)

	// PlaylistTracksPage lists the tracks of a playlist in playlist order.
	PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset, limit int) (*Page[models.Track], error)

	// LikedTracksPage lists saved tracks, most recently saved first.
	LikedTracksPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*Page[models.Track], error)

	// CreatePlaylist creates an empty playlist owned by userID with pl's metadata.
	CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, pl models.Playlist) (*models.Playlist, error)

	// AddTracksToPlaylist appends trackIDs, in order, to the end of a playlist.
	AddTracksToPlaylist(ctx context.Context, token *oauth2.Token, playlistID string, trackIDs []string) error

	// AddLikedTracks saves trackIDs to the user's library.
	AddLikedTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) error

	// RefreshToken exchanges a refresh token for a new token set.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// User is the account profile behind a token.
type User struct {
	ID          string
	DisplayName string
}

// Page is one slice of an offset-paginated listing.
type Page[T any] struct {
	Items   []T
	Total   int
	HasNext bool
}

// CredentialStore persists credentials by account name.
type CredentialStore interface {
	Put(ctx context.Context, cred *models.Credential) error
	Get(ctx context.Context, name string) (*models.Credential, error)
}

// RateLimitError reports an HTTP 429 from the provider.
//
// RetryAfter is zero when the response carried no usable Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}
