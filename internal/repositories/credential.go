package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// CredentialRepository stores one credential per account name.
//
// Writes replace the whole record inside a transaction, so a reader never observes a new
// access token paired with a stale refresh token.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Put inserts or replaces the credential for cred.Name.
func (r *CredentialRepository) Put(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.Name == "" {
		return fmt.Errorf("%w: credential requires an account name", shared.ErrInvalidArgument)
	}

	now := time.Now()
	cred.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorageIO, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO credentials (
			name, access_token, refresh_token, token_type, expiry, scopes, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at
	`

	var expiry any
	if !cred.Expiry.IsZero() {
		expiry = cred.Expiry
	}

	if _, err := tx.ExecContext(ctx, query,
		cred.Name,
		cred.AccessToken,
		cred.RefreshToken,
		cred.TokenType,
		expiry,
		strings.Join(cred.Scopes, " "),
		now,
		now,
	); err != nil {
		return fmt.Errorf("%w: failed to write credential %s: %v", shared.ErrStorageIO, cred.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit credential %s: %v", shared.ErrStorageIO, cred.Name, err)
	}
	return nil
}

// Get retrieves the credential for an account name.
func (r *CredentialRepository) Get(ctx context.Context, name string) (*models.Credential, error) {
	query := `
		SELECT name, access_token, refresh_token, token_type, expiry, scopes, updated_at
		FROM credentials
		WHERE name = ?
	`

	cred, err := r.scan(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no credential for account %q", shared.ErrNotFound, name)
	}
	return cred, err
}

// List returns every stored credential ordered by account name.
func (r *CredentialRepository) List(ctx context.Context) ([]*models.Credential, error) {
	query := `
		SELECT name, access_token, refresh_token, token_type, expiry, scopes, updated_at
		FROM credentials
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query credentials: %v", shared.ErrStorageIO, err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorageIO, err)
	}
	return creds, nil
}

// Delete removes the credential for an account name.
func (r *CredentialRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("%w: failed to delete credential: %v", shared.ErrStorageIO, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorageIO, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no credential for account %q", shared.ErrNotFound, name)
	}
	return nil
}

func (r *CredentialRepository) scan(row scanner) (*models.Credential, error) {
	var (
		cred   models.Credential
		expiry sql.NullTime
		scopes string
	)

	err := row.Scan(
		&cred.Name, &cred.AccessToken, &cred.RefreshToken, &cred.TokenType,
		&expiry, &scopes, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan credential: %v", shared.ErrStorageIO, err)
	}

	if expiry.Valid {
		cred.Expiry = expiry.Time
	}
	cred.Scopes = strings.Fields(scopes)
	return &cred, nil
}
