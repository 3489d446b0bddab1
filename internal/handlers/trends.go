package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthtrends-server/internal/analytics"
	"healthtrends-server/internal/config"
	"healthtrends-server/internal/middleware"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/utils"
)

// TrendsHandler serves the read-only analytics endpoints over lab_results.
type TrendsHandler struct {
	DB     *gorm.DB
	Cfg    config.AnalyticsConfig
	Logger *zap.Logger
}

// NewTrendsHandler creates a new TrendsHandler.
func NewTrendsHandler(db *gorm.DB, cfg config.AnalyticsConfig, logger *zap.Logger) *TrendsHandler {
	return &TrendsHandler{DB: db, Cfg: cfg, Logger: logger}
}

// requirePatientAccess enforces the ownership rule: patients may only read
// their own identifier, elevated roles may read anyone.
func (h *TrendsHandler) requirePatientAccess(c *gin.Context) (string, bool) {
	patientID := c.Param("patient_id")
	if !middleware.CanAccessPatient(c, patientID) {
		utils.Forbidden(c, "You may only access your own results.")
		return "", false
	}
	return patientID, true
}

// AvailableTests handles GET /trends/patient/:patient_id/available_tests.
func (h *TrendsHandler) AvailableTests(c *gin.Context) {
	patientID, ok := h.requirePatientAccess(c)
	if !ok {
		return
	}

	var tests []struct {
		TestCode string `json:"test_code"`
		TestName string `json:"test_name"`
	}
	err := h.DB.WithContext(c.Request.Context()).Raw(`
		SELECT DISTINCT test_code, test_name
		FROM lab_results
		WHERE patient_id = ?
		ORDER BY test_name
	`, patientID).Scan(&tests).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to load available tests: "+err.Error())
		return
	}
	utils.Success(c, "Available tests loaded", tests)
}

// TrendPoint is one observation in a raw trend series, carrying its
// trailing moving average over the filtered series.
type TrendPoint struct {
	TestDate  time.Time `json:"test_date"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	MovingAvg float64   `json:"moving_avg_3_points"`
}

// GetTrends handles GET /trends/patient/:patient_id/trends/:test_code.
// Optional inclusive start_date/end_date narrow the series; the moving
// average is computed over the filtered series only.
func (h *TrendsHandler) GetTrends(c *gin.Context) {
	patientID, ok := h.requirePatientAccess(c)
	if !ok {
		return
	}
	testCode := c.Param("test_code")

	query := h.DB.WithContext(c.Request.Context()).
		Model(&models.LabResult{}).
		Where("patient_id = ? AND test_code = ?", patientID, testCode)

	if raw := c.Query("start_date"); raw != "" {
		start, _, err := parseDateParam(raw)
		if err != nil {
			utils.BadRequest(c, "Invalid start_date: "+err.Error())
			return
		}
		query = query.Where("test_date >= ?", start)
	}
	if raw := c.Query("end_date"); raw != "" {
		end, bare, err := parseDateParam(raw)
		if err != nil {
			utils.BadRequest(c, "Invalid end_date: "+err.Error())
			return
		}
		// A bare date means "through the end of that day". An explicit
		// timestamp, even one at midnight, is taken as-is.
		if bare {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		query = query.Where("test_date <= ?", end)
	}

	var results []models.LabResult
	if err := query.Order("test_date ASC").Find(&results).Error; err != nil {
		utils.InternalServerError(c, "Failed to load trend: "+err.Error())
		return
	}

	values := make([]float64, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	averages := analytics.MovingAverage(values, h.Cfg.MovingAvgWindow)

	history := make([]TrendPoint, len(results))
	for i, r := range results {
		history[i] = TrendPoint{
			TestDate:  r.TestDate,
			Value:     r.Value,
			Unit:      r.Unit,
			MovingAvg: averages[i],
		}
	}

	utils.Success(c, "Trend loaded", gin.H{
		"patient_id": patientID,
		"test_code":  testCode,
		"history":    history,
	})
}

// monthlyPoint is one month of the precomputed rollup.
type monthlyPoint struct {
	Date    time.Time `json:"date"`
	Average float64   `json:"average"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Count   int64     `json:"count"`
}

// MonthlyTrends handles GET /trends/patient/:patient_id/monthly-trends/:test_code.
// It reads the precomputed monthly aggregate; if the aggregate is
// unavailable it degrades to an empty result set rather than failing.
func (h *TrendsHandler) MonthlyTrends(c *gin.Context) {
	patientID, ok := h.requirePatientAccess(c)
	if !ok {
		return
	}
	testCode := c.Param("test_code")

	months := make([]monthlyPoint, 0)
	err := h.DB.WithContext(c.Request.Context()).Raw(`
		SELECT month AS date,
		       ROUND(average::numeric, 2) AS average,
		       min, max, count
		FROM lab_monthly_summary
		WHERE patient_id = ? AND test_code = ?
		ORDER BY month ASC
	`, patientID, testCode).Scan(&months).Error
	if err != nil {
		h.Logger.Warn("monthly summary unavailable, returning empty rollup",
			zap.String("patient_id", patientID),
			zap.String("test_code", testCode),
			zap.Error(err),
		)
		months = months[:0]
	}

	utils.Success(c, "Monthly rollup loaded", gin.H{
		"patient_id":   patientID,
		"test_code":    testCode,
		"monthly_data": months,
	})
}

// RiskAnalysis handles GET /trends/patient/:patient_id/risk-analysis/:test_code.
func (h *TrendsHandler) RiskAnalysis(c *gin.Context) {
	patientID, ok := h.requirePatientAccess(c)
	if !ok {
		return
	}
	testCode := c.Param("test_code")

	// Most recent observations, oldest first for the assessment.
	var recent []models.LabResult
	err := h.DB.WithContext(c.Request.Context()).
		Where("patient_id = ? AND test_code = ?", patientID, testCode).
		Order("test_date DESC").
		Limit(h.Cfg.RiskFetchLimit).
		Find(&recent).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to load recent results: "+err.Error())
		return
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	values := make([]float64, len(recent))
	for i, r := range recent {
		values[i] = r.Value
	}
	assessment := analytics.Assess(values, h.Cfg)

	response := gin.H{
		"patient_id":    patientID,
		"test_code":     testCode,
		"trend":         assessment.Trend,
		"alert_level":   assessment.AlertLevel,
		"alert_message": assessment.AlertMessage,
		"data_points":   len(recent),
	}
	if assessment.ChangePercent != nil {
		response["change_percent"] = *assessment.ChangePercent
	}
	if len(recent) > 0 {
		latest := recent[len(recent)-1]
		response["latest_value"] = latest.Value
		response["latest_date"] = latest.TestDate
		response["unit"] = latest.Unit
	}

	utils.Success(c, "Risk analysis complete", response)
}

// Dashboard handles GET /patient/:patient_id/dashboard: the latest
// observation for every test the patient has results for.
func (h *TrendsHandler) Dashboard(c *gin.Context) {
	patientID, ok := h.requirePatientAccess(c)
	if !ok {
		return
	}

	var latest []struct {
		TestCode string    `json:"test_code"`
		TestName string    `json:"test_name"`
		Value    float64   `json:"value"`
		Unit     string    `json:"unit"`
		TestDate time.Time `json:"test_date"`
	}
	err := h.DB.WithContext(c.Request.Context()).Raw(`
		SELECT DISTINCT ON (test_code)
		       test_code, test_name, value, unit, test_date
		FROM lab_results
		WHERE patient_id = ?
		ORDER BY test_code, test_date DESC
	`, patientID).Scan(&latest).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to load dashboard: "+err.Error())
		return
	}

	utils.Success(c, "Dashboard loaded", gin.H{
		"patient_id": patientID,
		"dashboard":  latest,
	})
}

// parseDateParam accepts either a bare date or a full RFC 3339 timestamp
// and reports which form it was given.
func parseDateParam(raw string) (t time.Time, bare bool, err error) {
	if t, err = time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	return t, false, err
}
