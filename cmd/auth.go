package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/shared"
)

func accountArg(cmd *cli.Command, name string) (string, error) {
	value := strings.TrimSpace(cmd.StringArg(name))
	if value == "" {
		return "", fmt.Errorf("%w: %s account name is required", shared.ErrMissingArgument, name)
	}
	return value, nil
}

// Login runs the authorization flow for a named account and stores the credential.
//
// Logging in again under an existing name replaces its credential.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	name, err := accountArg(cmd, "name")
	if err != nil {
		return err
	}
	if r.authn == nil {
		if err := r.config.Validate(); err != nil {
			return fmt.Errorf("%w (set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or edit the config file)", err)
		}
	}
	if err := r.storage(); err != nil {
		return err
	}

	r.logger.Info("starting login", "account", name)
	r.writePlain("Log in to the Spotify account to store as %q.\n", name)
	r.writePlain("Use a private window if your browser is signed in to a different account.\n\n")

	cred, err := r.authenticator(cmd.Bool("no-browser")).Login(ctx, name)
	if err != nil {
		return fmt.Errorf("login failed for %s: %w", name, err)
	}

	client, err := r.client(cred.Name)
	if err != nil {
		return err
	}
	userID, err := client.UserID(ctx)
	if err != nil {
		r.logger.Warn("stored credential but could not look up the Spotify user", "account", name, "error", err)
		r.writePlain("✓ Logged in as %s\n", cred.Name)
		return nil
	}

	r.writePlain("✓ Logged in as %s (Spotify user %s)\n", cred.Name, userID)
	return nil
}

// Logout forgets a stored account.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	name, err := accountArg(cmd, "name")
	if err != nil {
		return err
	}
	if err := r.storage(); err != nil {
		return err
	}

	if err := r.credentials.Delete(ctx, name); err != nil {
		return err
	}

	r.logger.Info("account removed", "account", name)
	r.writePlain("✓ Removed %s\n", name)
	return nil
}
