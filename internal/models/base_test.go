package models

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	db, mock := newMockGorm(t)

	// First run inserts both defaults, the second finds them present;
	// either way the statement tolerates existing codes and no duplicate
	// rows are produced.
	for _, affected := range []int64{2, 0} {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "test_types" .* ON CONFLICT DO NOTHING`).
			WithArgs("HBA1C", "Hemoglobin A1c", "%", "GLUCOSE", "Glucose", "mg/dL").
			WillReturnResult(sqlmock.NewResult(0, affected))
		mock.ExpectCommit()

		require.NoError(t, SeedCatalog(db))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMonthlySummaryIsIdempotent(t *testing.T) {
	db, mock := newMockGorm(t)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`CREATE MATERIALIZED VIEW IF NOT EXISTS lab_monthly_summary`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, EnsureMonthlySummary(db))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
