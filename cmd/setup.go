package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/shared"
)

// Setup writes the default config file when missing and initializes the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := shared.ExpandPath(cmd.String("config"))

	if err := shared.CreateConfigFile(configPath); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.logger.Info("config file already exists", "path", configPath)
	} else {
		r.logger.Info("config file created", "path", configPath)
		r.writePlain("✓ Created %s\n", configPath)
		if config, err := shared.ResolveConfig(configPath); err == nil {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if err := r.storage(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)

	if err := r.config.Validate(); err != nil {
		r.writePlainln("Next steps:")
		r.writePlain("1. Register an app at https://developer.spotify.com/dashboard with redirect URI %s\n", r.config.Spotify.RedirectURI)
		r.writePlain("2. Set client_id and client_secret in %s (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)\n", configPath)
		r.writePlain("3. Run 'spotsync login <name>' for each account\n")
		return nil
	}

	r.writePlainln("Run 'spotsync login <name>' for each account you want to transfer between.")
	return nil
}
