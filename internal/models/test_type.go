package models

// TestType is a catalog entry describing a kind of lab test. Codes are
// stored upper-case and inserts are idempotent (conflict on an existing
// code is a no-op).
type TestType struct {
	Code string `gorm:"primaryKey;size:50" json:"code"`
	Name string `gorm:"size:150" json:"name"`
	Unit string `gorm:"size:50" json:"unit"`
}

// TableName overrides the table name used by GORM
func (TestType) TableName() string {
	return "test_types"
}

// Role represents a group claim issued by the identity provider.
type Role string

const (
	RolePatient Role = "Patients"
	RoleDoctor  Role = "Doctors"
	RoleLab     Role = "Labs"
	RoleAdmin   Role = "Admins"
)
