// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/shared"
)

// app builds the root command with global flags.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "spotsync",
		Usage:   "Copy playlists and liked songs between Spotify accounts",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   shared.DefaultConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file (if missing) and run database migrations",
		Action: r.Setup,
	}
}

// loginCommand authorizes a named account.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Authorize a Spotify account and store it under a name",
		ArgsUsage: "<name>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "name"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.Login,
	}
}

// logoutCommand removes a stored account.
func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "logout",
		Usage:     "Forget a stored account",
		ArgsUsage: "<name>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "name"},
		},
		Action: r.Logout,
	}
}

// listCommand shows stored accounts.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls", "accounts"},
		Usage:   "List stored accounts with library statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Only show stored accounts, without calling Spotify",
			},
		},
		Action: r.List,
	}
}

// previewCommand shows what a transfer from an account would read.
func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Show the playlists and liked songs of an account",
		ArgsUsage: "<source>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "source"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tracks",
				Usage: "List the tracks of every playlist",
			},
		},
		Action: r.Preview,
	}
}

// transferCommand copies one account's library into another.
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Copy playlists and liked songs from source into target",
		ArgsUsage: "<source> <target>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "source"},
			&cli.StringArg{Name: "target"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show the plan without writing anything",
			},
			&cli.StringFlag{
				Name:  "merge",
				Usage: "Same-named target playlists: auto (merge), never (create new), ask",
				Value: "auto",
			},
			&cli.StringSliceFlag{
				Name:  "playlist",
				Usage: "Only transfer the named playlist (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "skip-liked",
				Usage: "Do not transfer liked songs",
			},
			&cli.BoolFlag{
				Name:  "skip-playlists",
				Usage: "Do not transfer playlists",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a report (.txt, .csv, .md or .json)",
			},
		},
		Action: r.Transfer,
	}
}

// historyCommand lists recorded transfers.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent transfers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "account",
				Usage: "Only runs involving this account",
			},
		},
		Action: r.History,
	}
}

// tuiCommand returns the top-level TUI command for interactive transfers.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for account transfer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "merge",
				Usage: "Same-named target playlists: auto or never",
				Value: "auto",
			},
		},
		Action: r.TUI,
	}
}
