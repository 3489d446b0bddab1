package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthtrends-server/internal/middleware"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/utils"
)

// PatientHandler handles patient profile management and the combined
// patient listing.
type PatientHandler struct {
	DB *gorm.DB
}

// NewPatientHandler creates a new PatientHandler.
func NewPatientHandler(db *gorm.DB) *PatientHandler {
	return &PatientHandler{DB: db}
}

// UpdateProfileRequest represents the request body for a profile upsert.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required"`
	DOB      string `json:"dob" binding:"required"`
	Gender   string `json:"gender" binding:"required"`
}

// UpdateProfile handles POST /patients/profile. The patient identifier is
// always the caller's own subject claim; re-submission overwrites all
// fields.
func (h *PatientHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "Subject claim not found in token")
		return
	}
	email, _ := middleware.GetEmailFromContext(c)

	profile := models.PatientProfile{
		PatientID: patientID,
		FullName:  req.FullName,
		DOB:       req.DOB,
		Gender:    req.Gender,
		Email:     email,
	}
	err := h.DB.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "dob", "gender", "email"}),
		}).
		Create(&profile).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to save profile: "+err.Error())
		return
	}

	utils.Success(c, "Profile updated", profile)
}

// PatientListEntry is one row of the combined patient listing. HasProfile
// distinguishes registered patients from "ghost" identifiers that only
// exist in lab_results.
type PatientListEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	HasProfile bool   `json:"has_profile"`
}

// ListPatients handles GET /patients. One set-based query unions profile
// holders and results-only identifiers so every patient id appearing in
// either table shows up exactly once, tagged by provenance.
func (h *PatientHandler) ListPatients(c *gin.Context) {
	var rows []struct {
		ID         string
		FullName   string
		Email      string
		HasProfile bool
	}
	err := h.DB.WithContext(c.Request.Context()).Raw(`
		SELECT COALESCE(p.patient_id, l.patient_id) AS id,
		       COALESCE(p.full_name, '')            AS full_name,
		       COALESCE(p.email, '')                AS email,
		       p.patient_id IS NOT NULL             AS has_profile
		FROM patient_profiles p
		FULL OUTER JOIN (SELECT DISTINCT patient_id FROM lab_results) l
		  ON p.patient_id = l.patient_id
		ORDER BY full_name, id
	`).Scan(&rows).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to list patients: "+err.Error())
		return
	}

	entries := make([]PatientListEntry, 0, len(rows))
	for _, row := range rows {
		name := row.FullName
		if name == "" {
			name = fmt.Sprintf("Unnamed (ID: %s)", truncateID(row.ID))
		} else if row.Email != "" {
			name = fmt.Sprintf("%s (%s)", name, row.Email)
		}
		entries = append(entries, PatientListEntry{
			ID:         row.ID,
			Name:       name,
			Email:      row.Email,
			HasProfile: row.HasProfile,
		})
	}
	utils.Success(c, "Patients loaded", entries)
}

// DeletePatient handles DELETE /admin/patients/:patient_id. The parameter
// may be a patient identifier or a profile email; the profile and all lab
// results for the resolved identifier are removed in one transaction.
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	target := c.Param("patient_id")

	// Resolve an email to its patient identifier when a profile exists.
	patientID := target
	var profile models.PatientProfile
	err := h.DB.WithContext(c.Request.Context()).
		Where("patient_id = ? OR email = ?", target, target).
		First(&profile).Error
	if err == nil {
		patientID = profile.PatientID
	} else if err != gorm.ErrRecordNotFound {
		utils.InternalServerError(c, "Failed to resolve patient: "+err.Error())
		return
	}

	var deletedResults, deletedProfiles int64
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("patient_id = ?", patientID).Delete(&models.LabResult{})
		if res.Error != nil {
			return res.Error
		}
		deletedResults = res.RowsAffected

		res = tx.Where("patient_id = ?", patientID).Delete(&models.PatientProfile{})
		if res.Error != nil {
			return res.Error
		}
		deletedProfiles = res.RowsAffected
		return nil
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete patient: "+err.Error())
		return
	}

	if deletedResults == 0 && deletedProfiles == 0 {
		utils.NotFound(c, "No patient data found for that identifier")
		return
	}
	utils.Success(c, "Patient data deleted", gin.H{
		"patient_id":      patientID,
		"deleted_profile": deletedProfiles > 0,
		"deleted_results": deletedResults,
	})
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
