// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/spotsync/internal/shared"
)

// scanner is satisfied by [sql.Row] and [sql.Rows]
type scanner interface {
	Scan(dest ...any) error
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers are shown by the history command and used for ordering.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorageIO, err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	_, err = tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to increment sequence: %v", shared.ErrStorageIO, err)
	}

	var sequence int
	err = tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get sequence value: %v", shared.ErrStorageIO, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit sequence transaction: %v", shared.ErrStorageIO, err)
	}

	return sequence, nil
}
