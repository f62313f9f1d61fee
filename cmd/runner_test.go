package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/repositories"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	fake "github.com/desertthunder/spotsync/internal/testing"
)

// routedProvider sends each call to the fake account whose name prefixes the token.
type routedProvider struct {
	accounts map[string]*fake.FakeProvider
}

func (p *routedProvider) route(token, marker string) *fake.FakeProvider {
	name, _, _ := strings.Cut(token, marker)
	if f, ok := p.accounts[name]; ok {
		return f
	}
	return fake.NewFakeProvider("nobody")
}

func (p *routedProvider) by(token *oauth2.Token) *fake.FakeProvider {
	return p.route(token.AccessToken, "-access-")
}

func (p *routedProvider) CurrentUser(ctx context.Context, token *oauth2.Token) (*services.User, error) {
	return p.by(token).CurrentUser(ctx, token)
}

func (p *routedProvider) PlaylistsPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*services.Page[models.Playlist], error) {
	return p.by(token).PlaylistsPage(ctx, token, offset, limit)
}

func (p *routedProvider) PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset, limit int) (*services.Page[models.Track], error) {
	return p.by(token).PlaylistTracksPage(ctx, token, playlistID, offset, limit)
}

func (p *routedProvider) LikedTracksPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*services.Page[models.Track], error) {
	return p.by(token).LikedTracksPage(ctx, token, offset, limit)
}

func (p *routedProvider) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, pl models.Playlist) (*models.Playlist, error) {
	return p.by(token).CreatePlaylist(ctx, token, userID, pl)
}

func (p *routedProvider) AddTracksToPlaylist(ctx context.Context, token *oauth2.Token, playlistID string, trackIDs []string) error {
	return p.by(token).AddTracksToPlaylist(ctx, token, playlistID, trackIDs)
}

func (p *routedProvider) AddLikedTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) error {
	return p.by(token).AddLikedTracks(ctx, token, trackIDs)
}

func (p *routedProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return p.route(refreshToken, "-refresh-").RefreshToken(ctx, refreshToken)
}

type fakeAuthenticator struct {
	store *repositories.CredentialRepository
}

func (a *fakeAuthenticator) Login(ctx context.Context, name string) (*models.Credential, error) {
	cred := fake.FreshCredential(name)
	if err := a.store.Put(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

type testEnv struct {
	runner *Runner
	output *bytes.Buffer
	input  *bytes.Buffer
	db     *sql.DB
	creds  *repositories.CredentialRepository
	alice  *fake.FakeProvider
	bob    *fake.FakeProvider
}

func newTestEnv(t *testing.T, accounts ...string) *testEnv {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: shared.MemoryDatabase})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		output: &bytes.Buffer{},
		input:  &bytes.Buffer{},
		db:     db,
		creds:  repositories.NewCredentialRepository(db),
		alice:  fake.NewFakeProvider("alice"),
		bob:    fake.NewFakeProvider("bob"),
	}
	for _, name := range accounts {
		if err := env.creds.Put(context.Background(), fake.FreshCredential(name)); err != nil {
			t.Fatalf("failed to store credential: %v", err)
		}
	}

	config := shared.DefaultConfig()
	config.Database.Path = shared.MemoryDatabase
	config.Client.RequestsPerSecond = 0
	config.Client.MaxRetries = 1
	config.Client.BaseBackoff = shared.Duration{Duration: time.Millisecond}
	config.Client.MaxBackoff = shared.Duration{Duration: time.Millisecond}

	env.runner = NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.DiscardLogger(),
		Output: env.output,
		Input:  env.input,
		DB:     db,
		Provider: &routedProvider{accounts: map[string]*fake.FakeProvider{
			"alice": env.alice,
			"bob":   env.bob,
		}},
		Authenticator: &fakeAuthenticator{store: env.creds},
	})
	return env
}

func (e *testEnv) run(args ...string) error {
	return e.runner.app().Run(context.Background(), append([]string{"spotsync"}, args...))
}

var (
	highway = fake.Track("T1", "Highway Star", "Deep Purple")
	radar   = fake.Track("T2", "Radar Love", "Golden Earring")
	drive   = fake.Track("T3", "Drive", "The Cars")
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output == nil {
				t.Error("expected default output to be set")
			}
			if runner.input == nil {
				t.Error("expected default input to be set")
			}
			if runner.db != nil {
				t.Error("expected database to open lazily")
			}
		})

		t.Run("with injected database wires repositories", func(t *testing.T) {
			env := newTestEnv(t)

			if env.runner.credentials == nil || env.runner.runs == nil {
				t.Fatal("expected repositories to be set")
			}
			if err := env.runner.Close(); err != nil {
				t.Fatalf("unexpected close error: %v", err)
			}
			if err := env.db.Ping(); err != nil {
				t.Errorf("expected injected database to stay open: %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("propagates write errors", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &fake.FWriter{}})
			if err := runner.writePlain("hello %s", "world"); err == nil {
				t.Error("expected write error")
			}
		})

		t.Run("fails once the writer gives out", func(t *testing.T) {
			var buf bytes.Buffer
			w := fake.NewLimitedWriter(1, 0, &buf)
			runner := NewRunner(RunnerOpts{Output: &w})

			if err := runner.writePlain("first\n"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := runner.writePlainln("second"); err == nil {
				t.Error("expected write error after the limit")
			}
			if buf.String() != "first\n" {
				t.Errorf("output = %q", buf.String())
			}
		})
	})

	t.Run("confirm", func(t *testing.T) {
		tests := []struct {
			input string
			want  bool
		}{
			{"y\n", true},
			{"YES\n", true},
			{"n\n", false},
			{"\n", false},
			{"", false},
		}
		for _, tt := range tests {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Input: strings.NewReader(tt.input)})
			if got := runner.confirm("merge?"); got != tt.want {
				t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
		}
	})

	t.Run("fail", func(t *testing.T) {
		t.Run("suggests login for the failing account", func(t *testing.T) {
			env := newTestEnv(t)
			err := &tasks.AccountError{Op: "write", Account: "bob", Err: shared.ErrReauthRequired}

			env.runner.fail(err)

			if !strings.Contains(env.output.String(), "spotsync login bob") {
				t.Errorf("expected login hint for bob, got %q", env.output.String())
			}
		})
	})
}

func TestTransferCommand(t *testing.T) {
	t.Run("copies playlists and liked songs", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway, radar}})
		env.alice.Like(drive)

		if err := env.run("transfer", "alice", "bob"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		pl, ok := env.bob.Playlist("Road Trip")
		if !ok {
			t.Fatal("expected Road Trip to be created for bob")
		}
		if len(pl.Tracks) != 2 || pl.Tracks[0].ID != "T1" || pl.Tracks[1].ID != "T2" {
			t.Errorf("unexpected tracks: %+v", pl.Tracks)
		}
		if liked := env.bob.Liked(); len(liked) != 1 || liked[0].ID != "T3" {
			t.Errorf("unexpected liked songs: %+v", liked)
		}

		out := env.output.String()
		for _, want := range []string{"Transferred alice → bob", "1 created", "Road Trip"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("second run adds nothing", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway, radar}})

		if err := env.run("transfer", "alice", "bob"); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if err := env.run("transfer", "alice", "bob"); err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		if names := env.bob.PlaylistNames(); len(names) != 1 {
			t.Errorf("expected a single playlist, got %v", names)
		}
		pl, _ := env.bob.Playlist("Road Trip")
		if len(pl.Tracks) != 2 {
			t.Errorf("expected 2 tracks after rerun, got %d", len(pl.Tracks))
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway}})

		if err := env.run("transfer", "--dry-run", "alice", "bob"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if env.bob.Calls(fake.OpCreatePlaylist) != 0 || env.bob.Calls(fake.OpAddToPlaylist) != 0 {
			t.Error("expected no writes during dry run")
		}
		if !strings.Contains(env.output.String(), "Would transfer") {
			t.Errorf("expected dry run summary, got:\n%s", env.output.String())
		}
	})

	t.Run("ask merge reads the answer from input", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway, radar}})
		env.bob.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{radar}})
		env.input.WriteString("y\n")

		if err := env.run("transfer", "--merge", "ask", "alice", "bob"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(env.output.String(), "Merge into it?") {
			t.Errorf("expected merge prompt, got:\n%s", env.output.String())
		}
		if names := env.bob.PlaylistNames(); len(names) != 1 {
			t.Errorf("expected merge into the existing playlist, got %v", names)
		}
		pl, _ := env.bob.Playlist("Road Trip")
		if len(pl.Tracks) != 2 {
			t.Errorf("expected 2 tracks after merge, got %d", len(pl.Tracks))
		}
	})

	t.Run("writes a report", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway}})
		path := filepath.Join(t.TempDir(), "report.json")

		if err := env.run("transfer", "--report", path, "alice", "bob"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		fake.AssertFileExists(t, path)
		if report := fake.MustReadFile(t, path); !strings.Contains(report, `"Road Trip"`) {
			t.Errorf("expected report to mention the playlist, got %s", report)
		}
	})

	t.Run("rejects the same account twice", func(t *testing.T) {
		env := newTestEnv(t, "alice")

		err := env.run("transfer", "alice", "alice")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects an unknown merge policy", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")

		err := env.run("transfer", "--merge", "sometimes", "alice", "bob")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("names the account that is not logged in", func(t *testing.T) {
		env := newTestEnv(t, "alice")

		err := env.run("transfer", "alice", "carol")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		var accountErr *tasks.AccountError
		if !errors.As(err, &accountErr) || accountErr.Account != "carol" {
			t.Errorf("expected error attributed to carol, got %v", err)
		}

		env.runner.fail(err)
		if !strings.Contains(env.output.String(), "spotsync login carol") {
			t.Errorf("expected login hint, got:\n%s", env.output.String())
		}
	})

	t.Run("rate limited target aborts the run", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway}})
		env.bob.FailNext(fake.OpCreatePlaylist, &services.RateLimitError{}, &services.RateLimitError{})

		err := env.run("transfer", "alice", "bob")
		if !errors.Is(err, shared.ErrRateLimitExceeded) {
			t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Transfer aborted") {
			t.Errorf("expected abort banner, got:\n%s", env.output.String())
		}
	})

	t.Run("records history", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway}})

		if err := env.run("transfer", "alice", "bob"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		env.output.Reset()

		if err := env.run("history"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "alice") || !strings.Contains(out, string(models.RunCompleted)) {
			t.Errorf("expected the run in history, got:\n%s", out)
		}
	})
}

func TestAccountCommands(t *testing.T) {
	t.Run("login stores a credential", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("login", "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := env.creds.Get(context.Background(), "alice"); err != nil {
			t.Errorf("expected stored credential: %v", err)
		}
		if !strings.Contains(env.output.String(), "Logged in as alice (Spotify user alice)") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}
	})

	t.Run("login requires a name", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("login"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("logout removes the account", func(t *testing.T) {
		env := newTestEnv(t, "alice")

		if err := env.run("logout", "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := env.creds.Get(context.Background(), "alice"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected credential to be gone, got %v", err)
		}
		if err := env.run("logout", "alice"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second logout, got %v", err)
		}
	})

	t.Run("list shows library counts", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway, radar}})
		env.alice.Like(drive)

		if err := env.run("list"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := env.output.String()
		for _, want := range []string{"alice", "bob", "PLAYLISTS"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("list shows per-account errors inline", func(t *testing.T) {
		env := newTestEnv(t, "alice", "bob")
		env.bob.Revoke("bob-access-0")
		env.bob.FailNext(fake.OpRefresh, shared.ErrReauthRequired)

		if err := env.run("list"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(env.output.String(), "error:") {
			t.Errorf("expected inline error for bob, got:\n%s", env.output.String())
		}
	})

	t.Run("list with no accounts", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("list", "--offline"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(env.output.String(), "No accounts stored") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}
	})

	t.Run("preview lists playlists and tracks", func(t *testing.T) {
		env := newTestEnv(t, "alice")
		env.alice.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{highway, radar}})

		if err := env.run("preview", "--tracks", "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := env.output.String()
		for _, want := range []string{"Road Trip", "Deep Purple - Highway Star", "1 playlists, 0 liked songs"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})
}

func TestSetupCommand(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := env.run("--config", path, "setup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.AssertFileExists(t, path)
	if !strings.Contains(env.output.String(), "Created "+path) {
		t.Errorf("unexpected output:\n%s", env.output.String())
	}

	env.output.Reset()
	if err := env.run("--config", path, "setup"); err != nil {
		t.Fatalf("second setup failed: %v", err)
	}
	if strings.Contains(env.output.String(), "Created") {
		t.Error("expected existing config to be kept")
	}
}
