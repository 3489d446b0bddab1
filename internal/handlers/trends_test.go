package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthtrends-server/internal/config"
)

func analyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		MovingAvgWindow: 3,
		RiskFetchLimit:  9,
		RiskMeanWindow:  3,
		RiskMinPoints:   3,
		WarningPercent:  5,
		CriticalPercent: 15,
	}
}

func trendsRouter(db *gorm.DB, identity gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(identity)
	h := NewTrendsHandler(db, analyticsConfig(), zap.NewNop())
	trends := router.Group("/trends/patient/:patient_id")
	{
		trends.GET("/available_tests", h.AvailableTests)
		trends.GET("/trends/:test_code", h.GetTrends)
		trends.GET("/monthly-trends/:test_code", h.MonthlyTrends)
		trends.GET("/risk-analysis/:test_code", h.RiskAnalysis)
	}
	router.GET("/patient/:patient_id/dashboard", h.Dashboard)
	return router
}

func labResultRows(patientID, testCode string, values ...float64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "patient_id", "test_code", "test_name", "value", "unit", "test_date", "ingested_at",
	})
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, v := range values {
		rows.AddRow(int64(i+1), patientID, testCode, "Glucose", v, "mg/dL",
			base.AddDate(0, 0, i), base.AddDate(0, 0, i))
	}
	return rows
}

func TestGetTrendsComputesMovingAverage(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	mock.ExpectQuery(`SELECT \* FROM "lab_results" WHERE patient_id = \$1 AND test_code = \$2 ORDER BY test_date ASC`).
		WithArgs("p-1", "GLUCOSE").
		WillReturnRows(labResultRows("p-1", "GLUCOSE", 10, 20, 30, 40))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/trends/GLUCOSE", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			PatientID string       `json:"patient_id"`
			TestCode  string       `json:"test_code"`
			History   []TrendPoint `json:"history"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.History, 4)
	assert.Equal(t, []float64{10, 15, 20, 30}, []float64{
		resp.Data.History[0].MovingAvg,
		resp.Data.History[1].MovingAvg,
		resp.Data.History[2].MovingAvg,
		resp.Data.History[3].MovingAvg,
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrendsEndDateBoundaries(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	// A bare end date covers the whole day.
	mock.ExpectQuery(`SELECT \* FROM "lab_results" WHERE \(patient_id = \$1 AND test_code = \$2\) AND test_date <= \$3`).
		WithArgs("p-1", "GLUCOSE", time.Date(2026, 1, 1, 23, 59, 59, 999999999, time.UTC)).
		WillReturnRows(labResultRows("p-1", "GLUCOSE", 10))

	w := doRequest(router, http.MethodGet,
		"/trends/patient/p-1/trends/GLUCOSE?end_date=2026-01-01", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// An explicit midnight timestamp is taken as-is, not widened by a day.
	mock.ExpectQuery(`SELECT \* FROM "lab_results" WHERE \(patient_id = \$1 AND test_code = \$2\) AND test_date <= \$3`).
		WithArgs("p-1", "GLUCOSE", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(labResultRows("p-1", "GLUCOSE", 10))

	w = doRequest(router, http.MethodGet,
		"/trends/patient/p-1/trends/GLUCOSE?end_date=2026-01-02T00:00:00Z", "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrendsRejectsBadDateFilter(t *testing.T) {
	db, _ := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	w := doRequest(router, http.MethodGet,
		"/trends/patient/p-1/trends/GLUCOSE?start_date=not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatientCannotReadAnotherPatientsTrends(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-2", "p2@example.com"))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/trends/GLUCOSE", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorCanReadAnyPatientsTrends(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asStaff("Doctors"))

	mock.ExpectQuery(`SELECT \* FROM "lab_results"`).
		WithArgs("p-1", "GLUCOSE").
		WillReturnRows(labResultRows("p-1", "GLUCOSE", 10))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/trends/GLUCOSE", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyTrendsDegradesToEmptyWhenRollupMissing(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	mock.ExpectQuery(`FROM lab_monthly_summary`).
		WithArgs("p-1", "HBA1C").
		WillReturnError(errors.New(`pq: relation "lab_monthly_summary" does not exist`))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/monthly-trends/HBA1C", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monthly_data":[]`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskAnalysisFlagsWorsening(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	// Returned newest first; the recent period mean (8) is 60% above the
	// prior period mean (5).
	mock.ExpectQuery(`SELECT \* FROM "lab_results" WHERE patient_id = \$1 AND test_code = \$2 ORDER BY test_date DESC`).
		WithArgs("p-1", "GLUCOSE", 9).
		WillReturnRows(labResultRows("p-1", "GLUCOSE", 8, 8, 8, 5, 5, 5))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/risk-analysis/GLUCOSE", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Trend         string  `json:"trend"`
			AlertLevel    string  `json:"alert_level"`
			ChangePercent float64 `json:"change_percent"`
			DataPoints    int     `json:"data_points"`
			LatestValue   float64 `json:"latest_value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "worsening", resp.Data.Trend)
	assert.Equal(t, "CRITICAL", resp.Data.AlertLevel)
	assert.InDelta(t, 60.0, resp.Data.ChangePercent, 0.01)
	assert.Equal(t, 6, resp.Data.DataPoints)
	assert.InDelta(t, 8.0, resp.Data.LatestValue, 0.01)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskAnalysisWithNoHistory(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	mock.ExpectQuery(`SELECT \* FROM "lab_results"`).
		WithArgs("p-1", "GLUCOSE", 9).
		WillReturnRows(labResultRows("p-1", "GLUCOSE"))

	w := doRequest(router, http.MethodGet, "/trends/patient/p-1/risk-analysis/GLUCOSE", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trend":"insufficient_data"`)
	assert.Contains(t, w.Body.String(), `"data_points":0`)
	assert.NotContains(t, w.Body.String(), "latest_value")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardReturnsLatestPerTest(t *testing.T) {
	db, mock := newMockDB(t)
	router := trendsRouter(db, asPatient("p-1", "p1@example.com"))

	mock.ExpectQuery(`SELECT DISTINCT ON \(test_code\)`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"test_code", "test_name", "value", "unit", "test_date"}).
			AddRow("GLUCOSE", "Glucose", 97.0, "mg/dL", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)).
			AddRow("HBA1C", "Hemoglobin A1c", 5.4, "%", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))

	w := doRequest(router, http.MethodGet, "/patient/p-1/dashboard", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"GLUCOSE"`)
	assert.Contains(t, w.Body.String(), `"HBA1C"`)
	require.NoError(t, mock.ExpectationsWereMet())
}
