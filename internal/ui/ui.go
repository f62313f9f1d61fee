package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SourceView ViewState = iota
	TargetView
	ConfirmView
	TransferView
	ResultView
)

const logLines = 8

// Config wires the TUI to stored accounts and the transfer engine.
type Config struct {
	Accounts func(ctx context.Context) ([]string, error) // stored account names
	Connect  func(account string) tasks.Library
	Engine   *tasks.SyncEngine
	Options  tasks.Options // base options, DryRun is toggled in the confirm view
}

// transferRun is the in-flight transfer goroutine.
type transferRun struct {
	progress chan tasks.ProgressUpdate
	done     chan transferComplete
	cancel   context.CancelFunc
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	cfg      Config
	view     ViewState
	width    int
	height   int
	accounts []string
	list     list.Model
	source   string
	target   string
	dryRun   bool

	run        *transferRun
	cancelling bool
	update     tasks.ProgressUpdate
	log        []string
	spinner    spinner.Model
	bar        progress.Model

	result *tasks.TransferResult
	err    error

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, cfg Config) *Model {
	return &Model{
		ctx:     ctx,
		cfg:     cfg,
		view:    SourceView,
		list:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		dryRun:  cfg.Options.DryRun,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init loads the stored accounts.
func (m *Model) Init() tea.Cmd {
	return m.loadAccounts()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch m.view {
		case SourceView, TargetView:
			return m.handleAccountKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case TransferView:
			return m.handleTransferKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != TransferView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgAccountsLoaded:
		data := msg.data.(accountsLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.accounts = data.accounts
		m.showAccounts()
		return m, nil

	case MsgProgressUpdate:
		m.update = msg.data.(tasks.ProgressUpdate)
		if m.update.Message != "" {
			m.log = append(m.log, m.update.Message)
			if len(m.log) > logLines {
				m.log = m.log[len(m.log)-logLines:]
			}
		}
		return m, m.waitForTransfer()

	case MsgTransferComplete:
		data := msg.data.(transferComplete)
		m.result, m.err = data.result, data.err
		if m.run != nil {
			m.run.cancel()
			m.run = nil
		}
		m.cancelling = false
		m.view = ResultView
		m.showOutcomes()
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.result == nil {
		helpKeys := []key.Binding{m.keys.quit}
		if m.view == ResultView {
			helpKeys = []key.Binding{m.keys.restart, m.keys.quit}
		}
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.help.ShortHelpView(helpKeys)
	}

	switch m.view {
	case SourceView, TargetView:
		return m.renderAccounts()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleAccountKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case m.view == TargetView && key.Matches(msg, m.keys.back):
		m.view, m.source = SourceView, ""
		m.showAccounts()
		return m, nil
	case key.Matches(msg, m.keys.enter):
		item, ok := m.list.SelectedItem().(accountItem)
		if !ok {
			return m, nil
		}
		if m.view == SourceView {
			m.source, m.view = item.name, TargetView
			m.showAccounts()
		} else {
			m.target, m.view = item.name, ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.dryRun):
		m.dryRun = !m.dryRun
	case key.Matches(msg, m.keys.yes):
		m.view = TransferView
		return m, m.startTransfer()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view, m.target = TargetView, ""
		m.showAccounts()
	}
	return m, nil
}

func (m *Model) handleTransferKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && m.run != nil && !m.cancelling {
		m.cancelling = true
		m.run.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) reset() {
	m.view = SourceView
	m.source, m.target = "", ""
	m.result, m.err = nil, nil
	m.update, m.log = tasks.ProgressUpdate{}, nil
	m.dryRun = m.cfg.Options.DryRun
	m.showAccounts()
}

func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	m.list.SetSize(m.width-4, max(m.height-8, 4))
	m.bar.Width = min(m.width-4, 60)
}

// showAccounts fills the list for the current picker. The source is not offered as a target.
func (m *Model) showAccounts() {
	title, role := "Transfer from", "source"
	accounts := m.accounts
	if m.view == TargetView {
		title, role = fmt.Sprintf("Transfer %s into", m.source), "target"
		accounts = slices.DeleteFunc(slices.Clone(accounts), func(a string) bool { return a == m.source })
	}

	items := make([]list.Item, len(accounts))
	for i, a := range accounts {
		items[i] = accountItem{name: a, role: role}
	}
	m.list = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.list.Title = title
	m.list.SetShowHelp(false)
	m.resize()
}

func (m *Model) showOutcomes() {
	var items []list.Item
	if m.result != nil {
		for _, out := range m.result.Playlists {
			items = append(items, outcomeItem{outcome: out})
		}
	}
	m.list = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.list.Title = "Playlists"
	m.list.SetShowHelp(false)
	m.resize()
	if m.width > 0 {
		m.list.SetSize(m.width-4, max(m.height-16, 4))
	}
}

func (m *Model) loadAccounts() tea.Cmd {
	return func() tea.Msg {
		accounts, err := m.cfg.Accounts(m.ctx)
		return accountsLoadedMsg(accounts, err)
	}
}

func (m *Model) startTransfer() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	run := &transferRun{
		progress: make(chan tasks.ProgressUpdate, 64),
		done:     make(chan transferComplete, 1),
		cancel:   cancel,
	}
	m.run = run
	m.log = nil

	source, target := m.cfg.Connect(m.source), m.cfg.Connect(m.target)
	opts := m.cfg.Options
	opts.DryRun = m.dryRun
	engine := m.cfg.Engine

	go func() {
		result, err := engine.Transfer(ctx, source, target, opts, run.progress)
		run.done <- transferComplete{result, err}
	}()

	return tea.Batch(m.waitForTransfer(), m.spinner.Tick)
}

// waitForTransfer delivers the next progress update, or the result once the transfer returns.
func (m *Model) waitForTransfer() tea.Cmd {
	run := m.run
	if run == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update := <-run.progress:
			return progressUpdateMsg(update)
		case out := <-run.done:
			return transferCompleteMsg(out.result, out.err)
		}
	}
}

func (m *Model) renderAccounts() string {
	if len(m.accounts) == 0 {
		return styles.warn.Render("No accounts stored. Run `spotsync login <name>` for each account first.") +
			"\n\n" + m.help.ShortHelpView([]key.Binding{m.keys.quit})
	}
	if m.view == TargetView && len(m.accounts) < 2 {
		return styles.warn.Render("A transfer needs two accounts. Log in to another one with `spotsync login <name>`.") +
			"\n\n" + m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	if m.view == TargetView {
		helpKeys = []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	}
	return fmt.Sprintf("%s\n\n%s", m.list.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Start transfer?")

	mode := "write"
	if m.dryRun {
		mode = styles.warn.Render("dry run (nothing is written)")
	}
	info := styles.box.Render(fmt.Sprintf(
		"Source: %s\nTarget: %s\nMerge:  %s\nMode:   %s",
		m.source, m.target, mergeLabel(m.cfg.Options.Merge), mode,
	))

	helpKeys := []key.Binding{m.keys.yes, m.keys.dryRun, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTransfer() string {
	title := styles.title.Render(fmt.Sprintf("Transferring %s → %s", m.source, m.target))

	status := fmt.Sprintf("%s %s", m.spinner.View(), phaseLabel(m.update.Phase))
	if m.cancelling {
		status = styles.warn.Render("Cancelling after the current batch...")
	}

	var bar string
	if m.update.Total > 0 {
		bar = "\n" + m.bar.ViewAs(float64(m.update.Step)/float64(m.update.Total)) + "\n"
	}

	logView := styles.help.Render(strings.Join(m.log, "\n"))
	return fmt.Sprintf("%s\n%s\n%s\n%s\n\n%s", title, status, bar, logView, m.help.ShortHelpView([]key.Binding{m.keys.cancel}))
}

func (m *Model) renderResult() string {
	if m.result == nil {
		return styles.err.Render(fmt.Sprintf("Transfer failed: %v", m.err)) + "\n\n" +
			m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	}

	var title string
	switch {
	case m.result.Cancelled():
		title = styles.warn.Render("Transfer cancelled")
	case m.result.Aborted != nil:
		title = styles.err.Render(fmt.Sprintf("✗ Transfer aborted: %v", m.result.Aborted))
	case m.result.HasFailures():
		title = styles.warn.Render("Transfer complete with failures")
	default:
		title = styles.ok.Render("✓ Transfer complete!")
	}

	summary := formatter.Summary(m.result)

	var failures string
	if lines := formatter.Failures(m.result); len(lines) > 0 {
		shown := lines[:min(len(lines), 5)]
		failures = "\n" + styles.warn.Render(fmt.Sprintf("%d failures:", len(lines)))
		for _, l := range shown {
			failures += "\n  • " + l
		}
		if len(lines) > len(shown) {
			failures += fmt.Sprintf("\n  … %d more", len(lines)-len(shown))
		}
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s%s\n\n%s\n%s", title, summary, failures, m.list.View(), m.help.ShortHelpView(helpKeys))
}

func phaseLabel(p tasks.Phase) string {
	switch p {
	case tasks.SnapshotSource, tasks.SnapshotTarget:
		return "Reading libraries..."
	case tasks.Planning:
		return "Planning..."
	case tasks.TransferPlaylists:
		return "Copying playlists..."
	case tasks.TransferLiked:
		return "Saving liked songs..."
	case tasks.Done:
		return "Finishing..."
	default:
		return "Starting transfer..."
	}
}

func mergeLabel(p tasks.MergePolicy) string {
	if p == "" {
		return string(tasks.MergeAuto)
	}
	return string(p)
}
