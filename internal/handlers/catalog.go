package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthtrends-server/internal/models"
	"healthtrends-server/internal/utils"
)

// CatalogHandler handles the test-type catalog.
type CatalogHandler struct {
	DB *gorm.DB
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{DB: db}
}

// CreateTestTypeRequest represents the request body for a catalog entry.
type CreateTestTypeRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
	Unit string `json:"unit" binding:"required"`
}

// ListTestTypes handles GET /catalog/tests.
func (h *CatalogHandler) ListTestTypes(c *gin.Context) {
	var tests []models.TestType
	if err := h.DB.WithContext(c.Request.Context()).Order("name").Find(&tests).Error; err != nil {
		utils.InternalServerError(c, "Failed to load catalog: "+err.Error())
		return
	}
	utils.Success(c, "Catalog loaded", tests)
}

// CreateTestType handles POST /catalog/tests. Insertion is idempotent: a
// conflict on an existing code is a no-op, not an error.
func (h *CatalogHandler) CreateTestType(c *gin.Context) {
	var req CreateTestTypeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	test := models.TestType{
		Code: strings.ToUpper(req.Code),
		Name: req.Name,
		Unit: req.Unit,
	}
	err := h.DB.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&test).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to create test type: "+err.Error())
		return
	}

	utils.Created(c, "Test type created", test)
}

var errTestTypeNotFound = errors.New("test type not found")

// DeleteTestType handles DELETE /catalog/tests/:code. Deletion is blocked
// with a 409 while dependent results exist, unless cascade=true is passed,
// in which case the dependent rows are removed first and their count
// reported.
func (h *CatalogHandler) DeleteTestType(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	cascade := c.Query("cascade") == "true"

	var dependents int64
	if err := h.DB.WithContext(c.Request.Context()).
		Model(&models.LabResult{}).Where("test_code = ?", code).Count(&dependents).Error; err != nil {
		utils.InternalServerError(c, "Failed to check dependent results: "+err.Error())
		return
	}

	if dependents > 0 && !cascade {
		utils.Conflict(c, fmt.Sprintf(
			"%d patient results reference this test. Pass cascade=true to delete them as well.", dependents))
		return
	}

	var cascaded int64
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if dependents > 0 {
			res := tx.Where("test_code = ?", code).Delete(&models.LabResult{})
			if res.Error != nil {
				return res.Error
			}
			cascaded = res.RowsAffected
		}

		res := tx.Where("code = ?", code).Delete(&models.TestType{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTestTypeNotFound
		}
		return nil
	})
	if errors.Is(err, errTestTypeNotFound) {
		utils.NotFound(c, "Test type not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to delete test type: "+err.Error())
		return
	}

	msg := fmt.Sprintf("Test type %s deleted", code)
	if cascaded > 0 {
		msg += fmt.Sprintf(" (%d historical results removed)", cascaded)
	}
	utils.Success(c, msg, gin.H{"cascaded_results": cascaded})
}

// SyncCatalog handles POST /catalog/tests/sync. It back-fills catalog
// entries for test codes that appear in results but not in the catalog,
// using an observed name and unit. Running it again is a no-op.
func (h *CatalogHandler) SyncCatalog(c *gin.Context) {
	var orphans []struct {
		TestCode string
		TestName string
		Unit     string
	}
	err := h.DB.WithContext(c.Request.Context()).Raw(`
		SELECT DISTINCT r.test_code, r.test_name, r.unit
		FROM lab_results r
		LEFT JOIN test_types t ON r.test_code = t.code
		WHERE t.code IS NULL
	`).Scan(&orphans).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to scan for uncatalogued tests: "+err.Error())
		return
	}
	if len(orphans) == 0 {
		utils.Success(c, "Catalog already in sync", gin.H{"created": 0})
		return
	}

	var created int64
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, o := range orphans {
			unit := o.Unit
			if unit == "" {
				unit = "N/A"
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.TestType{
				Code: o.TestCode,
				Name: o.TestName,
				Unit: unit,
			})
			if res.Error != nil {
				return res.Error
			}
			created += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to sync catalog: "+err.Error())
		return
	}

	if created == 0 {
		utils.Success(c, "Catalog already in sync", gin.H{"created": 0})
		return
	}
	utils.Success(c, fmt.Sprintf("Recovered %d missing tests into the catalog", created), gin.H{"created": created})
}
