package models

import (
	"time"
)

// LabResult represents one observed lab measurement. Rows are insert-only:
// value and unit are captured at ingestion time and never updated when the
// catalog entry changes later.
type LabResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PatientID  string    `gorm:"size:100;index" json:"patient_id"`
	TestCode   string    `gorm:"size:50;index" json:"test_code"`
	TestName   string    `gorm:"size:150" json:"test_name"`
	Value      float64   `gorm:"type:numeric(10,2)" json:"value"`
	Unit       string    `gorm:"size:30" json:"unit"`
	TestDate   time.Time `json:"test_date"`
	IngestedAt time.Time `gorm:"autoCreateTime" json:"ingested_at"`
}

// TableName overrides the table name used by GORM
func (LabResult) TableName() string {
	return "lab_results"
}

// LabResultSubmission is the wire format for a single result, both on the
// ingestion HTTP endpoint and on the queue (the gateway forwards the
// validated body unchanged).
type LabResultSubmission struct {
	PatientID string     `json:"patient_id" binding:"required"`
	TestCode  string     `json:"test_code" binding:"required"`
	TestName  string     `json:"test_name"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	TestDate  *time.Time `json:"test_date"`
}

// ToLabResult converts a submission into a row ready for insert. A missing
// observation timestamp falls back to the time of ingestion.
func (s LabResultSubmission) ToLabResult() LabResult {
	testDate := time.Now()
	if s.TestDate != nil {
		testDate = *s.TestDate
	}
	return LabResult{
		PatientID: s.PatientID,
		TestCode:  s.TestCode,
		TestName:  s.TestName,
		Value:     s.Value,
		Unit:      s.Unit,
		TestDate:  testDate,
	}
}
