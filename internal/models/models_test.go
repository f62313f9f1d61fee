package models

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestLibrarySnapshotTrackCount(t *testing.T) {
	snap := &LibrarySnapshot{
		Playlists: []Playlist{
			{Name: "Road Trip", Tracks: []Track{{ID: "T1"}, {ID: "T2"}}},
			{Name: "Empty"},
			{Name: "Drive", Tracks: []Track{{ID: "T3"}}},
		},
		Liked: []Track{{ID: "T4"}},
	}
	if got := snap.TrackCount(); got != 3 {
		t.Errorf("TrackCount() = %d, want 3 (liked songs excluded)", got)
	}
}

func TestTrackKey(t *testing.T) {
	withID := Track{ID: "4uLU6hMCjMI75M1A2tKUQC", Title: "Never Gonna Give You Up", Artist: "Rick Astley"}
	if got := withID.Key(); got != "4uLU6hMCjMI75M1A2tKUQC" {
		t.Errorf("Key() = %s, want content identifier", got)
	}

	local := Track{Title: "Demo Take", Artist: "Me", IsLocal: true}
	same := Track{Title: "demo  take", Artist: "ME", IsLocal: true}
	if local.Key() != same.Key() {
		t.Errorf("fallback keys differ: %s vs %s", local.Key(), same.Key())
	}
	if local.Key() == "demo take|me" {
		t.Error("fallback key must not collide with a content identifier namespace")
	}

	if local.Addable() {
		t.Error("local track should not be addable")
	}
	if !withID.Addable() {
		t.Error("track with ID should be addable")
	}
}

func TestCredential(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ExpiresWithin", func(t *testing.T) {
		tests := []struct {
			name string
			cred Credential
			want bool
		}{
			{name: "fresh", cred: Credential{AccessToken: "a", Expiry: now.Add(time.Hour)}, want: false},
			{name: "inside margin", cred: Credential{AccessToken: "a", Expiry: now.Add(30 * time.Second)}, want: true},
			{name: "expired", cred: Credential{AccessToken: "a", Expiry: now.Add(-time.Minute)}, want: true},
			{name: "unknown expiry", cred: Credential{AccessToken: "a"}, want: true},
			{name: "no access token", cred: Credential{Expiry: now.Add(time.Hour)}, want: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.cred.ExpiresWithin(time.Minute, now); got != tt.want {
					t.Errorf("ExpiresWithin() = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("FromToken reads scopes", func(t *testing.T) {
		tok := (&oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now}).
			WithExtra(map[string]any{"scope": "user-library-read playlist-modify-private"})

		cred := CredentialFromToken("source", tok)
		if cred.Name != "source" || cred.RefreshToken != "r" {
			t.Errorf("unexpected credential: %+v", cred)
		}
		if len(cred.Scopes) != 2 || cred.Scopes[1] != "playlist-modify-private" {
			t.Errorf("scopes = %v", cred.Scopes)
		}
		if cred.Token().TokenType != "Bearer" {
			t.Errorf("token type should default to Bearer")
		}
	})

	t.Run("Rotate keeps refresh token", func(t *testing.T) {
		cred := &Credential{Name: "source", AccessToken: "old", RefreshToken: "r1", Scopes: []string{"user-library-read"}}

		next := cred.Rotate(&oauth2.Token{AccessToken: "new", Expiry: now.Add(time.Hour)})
		if next.AccessToken != "new" || next.RefreshToken != "r1" {
			t.Errorf("Rotate() = %+v", next)
		}
		if len(next.Scopes) != 1 {
			t.Errorf("scopes should carry over, got %v", next.Scopes)
		}

		rotated := cred.Rotate(&oauth2.Token{AccessToken: "new", RefreshToken: "r2"})
		if rotated.RefreshToken != "r2" {
			t.Errorf("new refresh token should win, got %s", rotated.RefreshToken)
		}
	})
}

func TestRunValidate(t *testing.T) {
	start := time.Now()
	valid := Run{Source: "a", Target: "b", Status: RunCompleted, StartedAt: start, FinishedAt: start.Add(time.Second)}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid run, got %v", err)
	}

	bad := valid
	bad.Status = "exploded"
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid status error")
	}

	noTarget := valid
	noTarget.Target = ""
	if err := noTarget.Validate(); err == nil {
		t.Error("expected missing target error")
	}
}
