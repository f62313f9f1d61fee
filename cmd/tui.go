package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	"github.com/desertthunder/spotsync/internal/ui"
)

// TUI launches the interactive terminal UI for account-to-account transfers.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	merge, err := tasks.ParseMergePolicy(cmd.String("merge"))
	if err != nil {
		return err
	}
	if merge == tasks.MergeAsk {
		return fmt.Errorf("%w: --merge ask is only supported by the transfer command", shared.ErrInvalidArgument)
	}

	if err := r.storage(); err != nil {
		return err
	}
	provider, err := r.spotify()
	if err != nil {
		return err
	}

	// Logs go to a file so they do not tear the alt screen.
	logPath := filepath.Join(shared.HomeDir(), "spotsync-tui.log")
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if cmd.Bool("verbose") {
		shared.SetLogLevel(fileLogger, log.DebugLevel)
	}

	model := ui.NewModel(ctx, ui.Config{
		Accounts: func(ctx context.Context) ([]string, error) {
			creds, err := r.credentials.List(ctx)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(creds))
			for _, cred := range creds {
				names = append(names, cred.Name)
			}
			return names, nil
		},
		Connect: func(account string) tasks.Library {
			return r.connect(account, provider, fileLogger)
		},
		Engine:  r.engine(fileLogger),
		Options: tasks.Options{Merge: merge},
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
