package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn in a transaction with lock waits bounded by lockTimeout.
// The transaction is committed when fn returns nil and rolled back otherwise.
func withTx(ctx context.Context, db *sqlx.DB, lockTimeout time.Duration, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if lockTimeout > 0 {
		// SET LOCAL cannot take bind parameters; set_config(..., true) is its parameterised form
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, formatLockTimeout(lockTimeout)); err != nil {
			return classifyError(fmt.Errorf("failed to set lock timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func formatLockTimeout(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
