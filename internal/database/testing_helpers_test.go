package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const testLockTimeout = 2 * time.Second

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectTxStart(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
		WithArgs("2000ms").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

var tripColumnNames = []string{
	"id", "sacco_id", "vehicle_id", "driver_id", "route_region", "departure_at",
	"total_seats", "available_seats", "cost_per_seat", "status", "version", "created_at", "updated_at",
}

func tripRow(id uuid.UUID, saccoID uuid.UUID, total, available int, status string, departure time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(tripColumnNames).AddRow(
		id.String(), saccoID.String(), uuid.NewString(), uuid.NewString(), "Westlands - Parklands", departure,
		total, available, 150, status, 1, now, now,
	)
}

var bookingColumnNames = []string{
	"id", "trip_id", "student_id", "parent_id", "reservation_id", "fare", "status",
	"cancellation_reason", "created_at", "updated_at", "confirmed_at", "cancelled_at", "completed_at",
}

func bookingRow(id, tripID uuid.UUID, status string, fare int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingColumnNames).AddRow(
		id.String(), tripID.String(), uuid.NewString(), uuid.NewString(), uuid.NewString(), fare, status,
		nil, now, now, nil, nil, nil,
	)
}
