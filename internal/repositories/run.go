package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// RunRepository implements models.Repository[*models.Run] for transfer history.
type RunRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a finished run with generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.Sequence = sequence

	query := `
		INSERT INTO runs (
			id, sequence, source, target, status, dry_run,
			playlists_created, playlists_merged, tracks_added, tracks_skipped,
			tracks_failed, error_message, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage any = run.ErrorMessage
	if run.ErrorMessage == "" {
		errorMessage = nil
	}

	_, err = r.db.Exec(query,
		run.ID(),
		run.Sequence,
		run.Source,
		run.Target,
		string(run.Status),
		run.DryRun,
		run.PlaylistsCreated,
		run.PlaylistsMerged,
		run.TracksAdded,
		run.TracksSkipped,
		run.TracksFailed,
		errorMessage,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert run: %v", shared.ErrStorageIO, err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `
		SELECT
			id, sequence, source, target, status, dry_run,
			playlists_created, playlists_merged, tracks_added, tracks_skipped,
			tracks_failed, error_message, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// List retrieves runs newest first. Supported criteria: "account" (source or target),
// "status" and "limit".
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `
		SELECT
			id, sequence, source, target, status, dry_run,
			playlists_created, playlists_merged, tracks_added, tracks_skipped,
			tracks_failed, error_message, started_at, finished_at
		FROM runs
		WHERE 1 = 1
	`

	args := []any{}

	if account, ok := criteria["account"].(string); ok && account != "" {
		query += " AND (source = ? OR target = ?)"
		args = append(args, account, account)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query runs: %v", shared.ErrStorageIO, err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorageIO, err)
	}
	return runs, nil
}

func (r *RunRepository) scan(row scanner) (*models.Run, error) {
	var (
		run          models.Run
		id           string
		status       string
		errorMessage sql.NullString
	)

	err := row.Scan(
		&id, &run.Sequence, &run.Source, &run.Target, &status, &run.DryRun,
		&run.PlaylistsCreated, &run.PlaylistsMerged, &run.TracksAdded, &run.TracksSkipped,
		&run.TracksFailed, &errorMessage, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan run: %v", shared.ErrStorageIO, err)
	}

	run.SetID(id)
	run.Status = models.RunStatus(status)
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	return &run, nil
}
