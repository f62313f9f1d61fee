// Package services talks to the streaming provider on behalf of one stored account.
//
// # Provider
//
// [Provider] is the narrow capability set the transfer needs: list playlists, list playlist
// items, list liked tracks, create a playlist, add tracks, save tracks and refresh a token.
// Every call receives the access token explicitly; a provider never refreshes on its own.
// [SpotifyProvider] implements it over github.com/zmb3/spotify/v2.
//
// # Client
//
// [Client] wraps a provider for one account name and applies the same rules to every call:
//   - refresh the token when it is about to expire, once per account even under concurrency,
//     and persist the rotated credential before continuing
//   - on an unauthorized response, force one refresh and retry once
//   - on HTTP 429, wait (Retry-After or jittered exponential backoff) and retry
//   - pace requests with a per-account [rate.Limiter]
//
// # Errors
//
// Failures surface as the sentinels in the shared package:
//   - [shared.ErrReauthRequired] : refresh failed or the token was rejected twice
//   - [shared.ErrRateLimitExceeded] : retries were exhausted
//   - [shared.ErrStorageIO] : the rotated credential could not be saved
//   - [shared.ErrAPIRequest] : any other provider failure, scoped to the one call
//
// # Pagination
//
// [Pager] turns offset-based listing into a lazy [iter.Seq2] of pages.
package services
