package models

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InitDB initializes the database connection and makes sure the schema
// exists. Creation is idempotent: running it twice produces no duplicate
// tables and no duplicate seed rows.
func InitDB(config DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto migrate the database models
	err = db.AutoMigrate(
		&LabResult{},
		&PatientProfile{},
		&TestType{},
	)
	if err != nil {
		return nil, err
	}

	if err := SeedCatalog(db); err != nil {
		return nil, err
	}

	return db, nil
}

// SeedCatalog inserts the default catalog entries. Existing codes are
// left untouched.
func SeedCatalog(db *gorm.DB) error {
	seed := []TestType{
		{Code: "HBA1C", Name: "Hemoglobin A1c", Unit: "%"},
		{Code: "GLUCOSE", Name: "Glucose", Unit: "mg/dL"},
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
}

// MonthlySummaryView is the precomputed monthly aggregate the analytics
// endpoints read from. It is refreshed out-of-band (REFRESH MATERIALIZED
// VIEW lab_monthly_summary); readers degrade to an empty result set when
// the view is missing.
const MonthlySummaryView = `
CREATE MATERIALIZED VIEW IF NOT EXISTS lab_monthly_summary AS
SELECT
    patient_id,
    test_code,
    date_trunc('month', test_date)::date AS month,
    AVG(value)   AS average,
    MIN(value)   AS min,
    MAX(value)   AS max,
    COUNT(*)     AS count
FROM lab_results
GROUP BY patient_id, test_code, date_trunc('month', test_date)::date;
`

// EnsureMonthlySummary creates the monthly rollup view if it does not
// exist yet. Callers treat a failure here as non-fatal.
func EnsureMonthlySummary(db *gorm.DB) error {
	return db.Exec(MonthlySummaryView).Error
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DSN string
}
