package models

import (
	"time"
)

// PatientProfile is the demographic record for one patient. The primary key
// equals the identity provider's subject/username claim, so a patient can
// only ever write their own row. Deleting a profile does not cascade to
// lab_results; orphaned results are tolerated and surfaced as such.
type PatientProfile struct {
	PatientID string    `gorm:"primaryKey;size:100" json:"patient_id"`
	FullName  string    `gorm:"size:200" json:"full_name"`
	DOB       string    `gorm:"column:dob;type:date" json:"dob"`
	Gender    string    `gorm:"size:20" json:"gender"`
	Email     string    `gorm:"size:255" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name used by GORM
func (PatientProfile) TableName() string {
	return "patient_profiles"
}
