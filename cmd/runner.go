package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/auth"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/repositories"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
)

// Authenticator logs in a named account ([auth.Flow]).
type Authenticator interface {
	Login(ctx context.Context, name string) (*models.Credential, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage, the Spotify provider and the login flow are created on first use from the resolved config,
// unless injected through [RunnerOpts].
type Runner struct {
	config   *shared.Config
	logger   *log.Logger
	output   io.Writer
	input    *bufio.Reader
	mu       sync.Mutex
	db       *sql.DB
	ownsDB   bool
	provider services.Provider
	authn    Authenticator

	// one per credential store, shared by every client the runner builds
	refresher *services.Refresher

	credentials *repositories.CredentialRepository
	runs        *repositories.RunRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config        *shared.Config
	Logger        *log.Logger
	Output        io.Writer
	Input         io.Reader
	DB            *sql.DB
	Provider      services.Provider
	Authenticator Authenticator
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	r := &Runner{
		config:    opts.Config,
		logger:    opts.Logger,
		output:    opts.Output,
		input:     bufio.NewReader(opts.Input),
		provider:  opts.Provider,
		authn:     opts.Authenticator,
		refresher: services.NewRefresher(),
	}
	if opts.DB != nil {
		r.useDB(opts.DB, false)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, loginCommand, logoutCommand, listCommand, previewCommand, transferCommand, historyCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before resolves the configuration and log level for every command.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.config != nil {
		return ctx, nil
	}

	config, err := shared.ResolveConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.logger.Debug("configuration resolved", "path", cmd.String("config"), "database", config.Database.Path)
	return ctx, nil
}

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Runner) useDB(db *sql.DB, owned bool) {
	r.db = db
	r.ownsDB = owned
	r.credentials = repositories.NewCredentialRepository(db)
	r.runs = repositories.NewRunRepository(db)
}

// storage opens the configured database and runs pending migrations.
func (r *Runner) storage() error {
	if r.db != nil {
		return nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return err
	}
	r.useDB(db, true)
	return nil
}

// spotify returns the provider, validating the application credentials first.
func (r *Runner) spotify() (services.Provider, error) {
	if r.provider != nil {
		return r.provider, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("%w (set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or edit the config file)", err)
	}
	r.provider = services.NewSpotifyProvider(r.config.Spotify)
	return r.provider, nil
}

// client builds the rate-limited, self-refreshing client for a stored account.
func (r *Runner) client(account string) (*services.Client, error) {
	if err := r.storage(); err != nil {
		return nil, err
	}
	provider, err := r.spotify()
	if err != nil {
		return nil, err
	}
	return r.connect(account, provider, r.logger), nil
}

// connect builds a client once storage and the provider are ready.
func (r *Runner) connect(account string, provider services.Provider, logger *log.Logger) *services.Client {
	opts := services.ClientOptionsFromConfig(r.config.Client, logger.With("account", account))
	opts.Refresher = r.refresher
	return services.NewClient(account, r.credentials, provider, opts)
}

func (r *Runner) engine(logger *log.Logger) *tasks.SyncEngine {
	return tasks.NewSyncEngine(logger, r.runs)
}

// fail prints a terminal error with a next step where one is known.
func (r *Runner) fail(err error) {
	r.logger.Error(err.Error())

	var accountErr *tasks.AccountError
	account := "<name>"
	if errors.As(err, &accountErr) {
		account = accountErr.Account
	}

	switch {
	case errors.Is(err, shared.ErrReauthRequired), errors.Is(err, shared.ErrNotFound):
		r.writePlain("run `spotsync login %s` and try again\n", account)
	case errors.Is(err, shared.ErrRateLimitExceeded):
		r.writePlain("Spotify kept rate limiting requests; wait a few minutes and run the same command again\n")
	case errors.Is(err, shared.ErrInvalidConfig), errors.Is(err, shared.ErrMissingConfig):
		r.writePlain("run `spotsync setup` to create a config file\n")
	}
}

func (r *Runner) writePlain(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// confirm asks a yes/no question on the runner's input. Anything but y/yes is no.
func (r *Runner) confirm(format string, args ...any) bool {
	r.writePlain(format+" [y/N] ", args...)
	line, err := r.input.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (r *Runner) authenticator(noBrowser bool) Authenticator {
	if r.authn != nil {
		return r.authn
	}
	opts := auth.Options{
		Timeout: r.config.Auth.Timeout.Duration,
		Logger:  r.logger,
		Prompt: func(url string) {
			r.writePlain("Open this URL to authorize:\n\n  %s\n\n", url)
		},
	}
	if noBrowser {
		opts.Open = func(string) error { return nil }
	}
	return auth.NewFlow(r.config.Spotify, r.credentials, opts)
}
