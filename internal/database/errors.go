package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// PostgreSQL SQLSTATE codes the repositories react to
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
)

// sqlState extracts the SQLSTATE code from either driver's error type
func sqlState(err error) (code string, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

// isUniqueViolation reports whether err violates the named unique constraint.
// An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	code, name, ok := sqlState(err)
	if !ok || code != codeUniqueViolation {
		return false
	}
	return constraint == "" || name == constraint
}

// isTransientState reports lock and serialization failures that succeed on retry
func isTransientState(err error) bool {
	code, _, ok := sqlState(err)
	if !ok {
		return false
	}
	switch code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
		return true
	}
	return false
}

// classifyError turns contention failures into models.ErrTransient and leaves
// domain errors untouched
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := models.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTransientState(err) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	return err
}
