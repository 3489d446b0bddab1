package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"healthtrends-server/internal/models"
	"healthtrends-server/internal/queue"
	"healthtrends-server/internal/utils"
)

// IngestHandler is the stateless ingestion gateway: it validates a single
// submission and puts it on the durable queue. It never touches the
// database and never waits for the write; "accepted" means enqueued.
type IngestHandler struct {
	Queue  queue.Queue
	Logger *zap.Logger
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(q queue.Queue, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{Queue: q, Logger: logger}
}

// SubmitResult handles POST /ingest. A missing body, malformed JSON or a
// submission without patient_id/test_code is a 400; a queue failure is a
// 500 that the client must retry (the gateway performs no retries and no
// deduplication).
func (h *IngestHandler) SubmitResult(c *gin.Context) {
	var sub models.LabResultSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		utils.BadRequest(c, "Invalid submission: "+err.Error())
		return
	}

	// Forward the validated body unchanged.
	body, err := json.Marshal(sub)
	if err != nil {
		utils.InternalServerError(c, "Failed to serialize submission")
		return
	}

	if err := h.Queue.Enqueue(c.Request.Context(), body); err != nil {
		h.Logger.Error("failed to enqueue submission",
			zap.String("patient_id", sub.PatientID),
			zap.String("test_code", sub.TestCode),
			zap.Error(err),
		)
		utils.InternalServerError(c, "Failed to enqueue result for processing")
		return
	}

	utils.Accepted(c, "Result accepted and queued for processing")
}
