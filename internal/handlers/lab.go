package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"healthtrends-server/internal/models"
	"healthtrends-server/internal/utils"
)

// LabHandler handles the privileged lab operations: bulk synchronous
// uploads that bypass the queue, and range deletions.
type LabHandler struct {
	DB *gorm.DB
}

// NewLabHandler creates a new LabHandler.
func NewLabHandler(db *gorm.DB) *LabHandler {
	return &LabHandler{DB: db}
}

// UploadResults handles POST /lab/upload-results. The whole array is
// written in a single transaction; a failure inserts nothing.
func (h *LabHandler) UploadResults(c *gin.Context) {
	var submissions []models.LabResultSubmission
	if err := c.ShouldBindJSON(&submissions); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	if len(submissions) == 0 {
		utils.BadRequest(c, "No results to upload")
		return
	}

	rows := make([]models.LabResult, 0, len(submissions))
	for _, sub := range submissions {
		rows = append(rows, sub.ToLabResult())
	}

	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to insert results: "+err.Error())
		return
	}

	utils.Success(c, fmt.Sprintf("Processed: %d records inserted", len(rows)), gin.H{"count": len(rows)})
}

// DeleteResults handles DELETE /lab/delete-results. It removes results for
// one patient and test code within an inclusive date range and reports how
// many rows were deleted.
func (h *LabHandler) DeleteResults(c *gin.Context) {
	patientID := c.Query("patient_id")
	testCode := c.Query("test_code")
	startRaw := c.Query("start_date")
	endRaw := c.Query("end_date")
	if patientID == "" || testCode == "" || startRaw == "" || endRaw == "" {
		utils.BadRequest(c, "patient_id, test_code, start_date and end_date are required")
		return
	}

	startDate, err := time.Parse("2006-01-02", startRaw)
	if err != nil {
		utils.BadRequest(c, "Invalid start_date, expected YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", endRaw)
	if err != nil {
		utils.BadRequest(c, "Invalid end_date, expected YYYY-MM-DD")
		return
	}

	// ::date comparison keeps both boundary days fully included.
	result := h.DB.WithContext(c.Request.Context()).
		Where("patient_id = ? AND test_code = ? AND test_date::date >= ? AND test_date::date <= ?",
			patientID, testCode, startDate.Format("2006-01-02"), endDate.Format("2006-01-02")).
		Delete(&models.LabResult{})
	if result.Error != nil {
		utils.InternalServerError(c, "Failed to delete results: "+result.Error.Error())
		return
	}

	if result.RowsAffected == 0 {
		utils.Success(c, "No records found in that range", gin.H{"count": 0})
		return
	}
	utils.Success(c, fmt.Sprintf("Deleted %d records", result.RowsAffected), gin.H{"count": result.RowsAffected})
}
