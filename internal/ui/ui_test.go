package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/tasks"
	fake "github.com/desertthunder/spotsync/internal/testing"
)

// blockingLibrary never finishes reading the account until the transfer is cancelled.
type blockingLibrary struct {
	tasks.Library
}

func (b blockingLibrary) UserID(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fixture struct {
	model    *Model
	src, dst *fake.FakeProvider
	clients  map[string]tasks.Library
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		src:     fake.NewFakeProvider("alice"),
		dst:     fake.NewFakeProvider("bob"),
		clients: map[string]tasks.Library{},
	}
	for name, p := range map[string]*fake.FakeProvider{"alice": f.src, "bob": f.dst} {
		opts := services.DefaultClientOptions()
		opts.RequestsPerSecond = 0
		f.clients[name] = services.NewClient(name, fake.NewMemoryStore(fake.FreshCredential(name)), p, opts)
	}

	f.model = NewModel(context.Background(), Config{
		Accounts: func(context.Context) ([]string, error) { return []string{"alice", "bob"}, nil },
		Connect:  func(account string) tasks.Library { return f.clients[account] },
		Engine:   tasks.NewSyncEngine(nil, nil),
	})
	f.send(tea.WindowSizeMsg{Width: 100, Height: 40})
	f.send(f.model.Init()())
	return f
}

func (f *fixture) send(msg tea.Msg) tea.Cmd {
	_, cmd := f.model.Update(msg)
	return cmd
}

func (f *fixture) press(keys ...string) {
	for _, k := range keys {
		switch k {
		case "enter":
			f.send(tea.KeyMsg{Type: tea.KeyEnter})
		case "esc":
			f.send(tea.KeyMsg{Type: tea.KeyEsc})
		default:
			f.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
}

// drain feeds transfer messages back into the model until the result view is shown.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for range 1000 {
		if f.model.view == ResultView {
			return
		}
		wait := f.model.waitForTransfer()
		if wait == nil {
			t.Fatal("no transfer in flight")
		}
		f.send(wait())
	}
	t.Fatal("transfer never completed")
}

func TestAccountSelection(t *testing.T) {
	f := newFixture(t)
	m := f.model

	if got := len(m.list.Items()); got != 2 {
		t.Fatalf("expected 2 accounts, got %d", got)
	}

	f.press("enter")
	if m.view != TargetView || m.source != "alice" {
		t.Fatalf("expected target view with source alice, got view %d source %q", m.view, m.source)
	}
	items := m.list.Items()
	if len(items) != 1 || items[0].(accountItem).name != "bob" {
		t.Errorf("source must not be offered as target, got %v", items)
	}

	f.press("esc")
	if m.view != SourceView || m.source != "" {
		t.Errorf("esc should return to the source picker")
	}

	f.press("enter", "enter")
	if m.view != ConfirmView || m.target != "bob" {
		t.Fatalf("expected confirm view with target bob, got view %d target %q", m.view, m.target)
	}

	f.press("d")
	if !m.dryRun {
		t.Error("d should enable dry run")
	}
	if !strings.Contains(m.View(), "dry run") {
		t.Errorf("confirm view should show dry run mode, got:\n%s", m.View())
	}
	f.press("d", "n")
	if m.dryRun || m.view != TargetView {
		t.Errorf("expected dry run off and back on the target picker")
	}
}

func TestTransferFlow(t *testing.T) {
	f := newFixture(t)
	f.src.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{fake.Track("T1", "Highway Star", "Deep Purple")}})
	f.src.Like(fake.Track("T2", "Drive", "The Cars"))

	f.press("enter", "enter", "y")
	if f.model.view != TransferView {
		t.Fatalf("expected transfer view, got %d", f.model.view)
	}
	f.drain(t)

	m := f.model
	if m.err != nil || m.result == nil || !m.result.Complete() {
		t.Fatalf("expected a complete result, got %v / %v", m.result, m.err)
	}
	if _, ok := f.dst.Playlist("Road Trip"); !ok {
		t.Error("playlist was not created on the target")
	}
	if len(m.log) == 0 {
		t.Error("progress messages were not recorded")
	}
	if got := len(m.list.Items()); got != 1 {
		t.Errorf("expected one playlist outcome, got %d", got)
	}
	if !strings.Contains(m.View(), "Transfer complete") {
		t.Errorf("unexpected result view:\n%s", m.View())
	}

	f.press("r")
	if m.view != SourceView || m.result != nil || m.source != "" {
		t.Error("r should restart from the source picker")
	}
}

func TestTransferDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.src.AddPlaylist(models.Playlist{Name: "Road Trip", Tracks: []models.Track{fake.Track("T1", "Highway Star", "Deep Purple")}})

	f.press("enter", "enter", "d", "y")
	f.drain(t)

	if !f.model.result.DryRun {
		t.Error("result should be a dry run")
	}
	if n := f.dst.Calls(fake.OpCreatePlaylist); n != 0 {
		t.Errorf("dry run created %d playlists", n)
	}
}

func TestTransferCancel(t *testing.T) {
	f := newFixture(t)
	f.clients["bob"] = blockingLibrary{f.clients["bob"]}

	f.press("enter", "enter", "y")
	f.press("esc")
	if !f.model.cancelling {
		t.Fatal("esc should cancel the running transfer")
	}
	if !strings.Contains(f.model.View(), "Cancelling") {
		t.Errorf("transfer view should show cancellation, got:\n%s", f.model.View())
	}

	f.drain(t)
	m := f.model
	if !errors.Is(m.err, context.Canceled) || m.result == nil || !m.result.Cancelled() {
		t.Fatalf("expected a cancelled result, got %v / %v", m.result, m.err)
	}
	if !strings.Contains(m.View(), "Transfer cancelled") {
		t.Errorf("unexpected result view:\n%s", m.View())
	}
}

func TestAccountsError(t *testing.T) {
	m := NewModel(context.Background(), Config{
		Accounts: func(context.Context) ([]string, error) { return nil, errors.New("database is locked") },
	})
	m.Update(m.Init()())
	if !strings.Contains(m.View(), "database is locked") {
		t.Errorf("expected load error in view, got:\n%s", m.View())
	}
}

func TestNoAccounts(t *testing.T) {
	m := NewModel(context.Background(), Config{
		Accounts: func(context.Context) ([]string, error) { return nil, nil },
	})
	m.Update(m.Init()())
	if !strings.Contains(m.View(), "spotsync login") {
		t.Errorf("expected login hint, got:\n%s", m.View())
	}
}
