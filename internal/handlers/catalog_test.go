package handlers

import (
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogRouter(h *CatalogHandler) *gin.Engine {
	router := gin.New()
	router.Use(asStaff("Admins"))
	router.GET("/catalog/tests", h.ListTestTypes)
	router.POST("/catalog/tests", h.CreateTestType)
	router.DELETE("/catalog/tests/:code", h.DeleteTestType)
	router.POST("/catalog/tests/sync", h.SyncCatalog)
	return router
}

func TestCreateTestTypeUppercasesAndIgnoresConflict(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "test_types" .* ON CONFLICT DO NOTHING`).
		WithArgs("WBC", "White Blood Cells", "10^3/uL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doRequest(router, http.MethodPost, "/catalog/tests",
		`{"code":"wbc","name":"White Blood Cells","unit":"10^3/uL"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTestTypeBlockedWithoutCascade(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "lab_results"`).
		WithArgs("GLUCOSE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	w := doRequest(router, http.MethodDelete, "/catalog/tests/glucose", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	// No delete may have been attempted.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTestTypeCascades(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "lab_results"`).
		WithArgs("GLUCOSE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "lab_results"`).
		WithArgs("GLUCOSE").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`DELETE FROM "test_types"`).
		WithArgs("GLUCOSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doRequest(router, http.MethodDelete, "/catalog/tests/GLUCOSE?cascade=true", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cascaded_results":5`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTestTypeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "lab_results"`).
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "test_types"`).
		WithArgs("NOPE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	w := doRequest(router, http.MethodDelete, "/catalog/tests/NOPE", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCatalogBackfillsOrphans(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectQuery(`SELECT DISTINCT r.test_code, r.test_name, r.unit`).
		WillReturnRows(sqlmock.NewRows([]string{"test_code", "test_name", "unit"}).
			AddRow("WBC", "White Blood Cells", "10^3/uL").
			AddRow("CREAT", "Creatinine", ""))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "test_types" .* ON CONFLICT DO NOTHING`).
		WithArgs("WBC", "White Blood Cells", "10^3/uL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "test_types" .* ON CONFLICT DO NOTHING`).
		WithArgs("CREAT", "Creatinine", "N/A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doRequest(router, http.MethodPost, "/catalog/tests/sync", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":2`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCatalogNoOpWhenInSync(t *testing.T) {
	db, mock := newMockDB(t)
	router := catalogRouter(NewCatalogHandler(db))

	mock.ExpectQuery(`SELECT DISTINCT r.test_code, r.test_name, r.unit`).
		WillReturnRows(sqlmock.NewRows([]string{"test_code", "test_name", "unit"}))

	w := doRequest(router, http.MethodPost, "/catalog/tests/sync", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already in sync")
	require.NoError(t, mock.ExpectationsWereMet())
}
