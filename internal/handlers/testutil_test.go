package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"healthtrends-server/internal/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newMockDB returns a gorm handle backed by sqlmock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

// fakeQueue is an in-memory Queue standing in for the Redis stream.
type fakeQueue struct {
	EnqueueFunc func(ctx context.Context, body []byte) error
	Enqueued    [][]byte
}

func (q *fakeQueue) Enqueue(ctx context.Context, body []byte) error {
	if q.EnqueueFunc != nil {
		if err := q.EnqueueFunc(ctx, body); err != nil {
			return err
		}
	}
	q.Enqueued = append(q.Enqueued, body)
	return nil
}

func (q *fakeQueue) ReceiveBatch(ctx context.Context) ([]queue.Message, error) { return nil, nil }
func (q *fakeQueue) Ack(ctx context.Context, id string) error                  { return nil }

var _ queue.Queue = (*fakeQueue)(nil)

// asStaff attaches claims for an elevated caller to every request.
func asStaff(groups ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", "staff-user")
		c.Set("userEmail", "staff@example.com")
		c.Set("userGroups", groups)
		c.Next()
	}
}

// asPatient attaches claims for a patient caller to every request.
func asPatient(patientID, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", patientID)
		c.Set("userEmail", email)
		c.Set("userGroups", []string{"Patients"})
		c.Next()
	}
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
