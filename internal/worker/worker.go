package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthtrends-server/internal/config"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/queue"
)

// Worker drains the ingestion queue into lab_results. It is built to run
// forever: parse failures are isolated per message, batch insert failures
// leave the batch on the queue for redelivery, database connection loss
// triggers a reconnect, and anything else is logged and retried after a
// fixed backoff.
type Worker struct {
	queue   queue.Queue
	db      *gorm.DB
	connect func() (*gorm.DB, error)
	cfg     config.WorkerConfig
	logger  *zap.Logger
}

// New creates a Worker. connect is called once up front and again whenever
// the database session is lost.
func New(q queue.Queue, connect func() (*gorm.DB, error), cfg config.WorkerConfig, logger *zap.Logger) (*Worker, error) {
	db, err := connect()
	if err != nil {
		return nil, fmt.Errorf("initial database connection: %w", err)
	}
	return &Worker{
		queue:   q,
		db:      db,
		connect: connect,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Run is the perpetual poll loop. It only returns when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("ingestion worker started",
		zap.Int64("batch_size", w.cfg.BatchSize),
		zap.Duration("poll_wait", w.cfg.PollWait),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingestion worker stopping")
			return
		default:
		}

		if err := w.ProcessBatch(ctx); err != nil {
			// Queue-side failures never mean the database session is
			// gone; they wait out the backoff like any other error.
			if !errors.Is(err, errQueueReceive) && isConnectionError(err) {
				w.logger.Warn("database connection lost, reconnecting", zap.Error(err))
				w.reconnect(ctx)
				continue
			}
			w.logger.Error("batch processing failed", zap.Error(err), zap.Duration("backoff", w.cfg.ErrorBackoff))
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ErrorBackoff):
			}
		}
	}
}

// errQueueReceive marks a failure on the receive side of the queue.
var errQueueReceive = errors.New("receive batch failed")

// ProcessBatch pulls one batch, inserts every message that parses in a
// single transaction, and acks only the messages that were both parsed and
// committed. Messages left unacked come back via the queue's own
// visibility-timeout redelivery.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	msgs, err := w.queue.ReceiveBatch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errQueueReceive, err)
	}
	if len(msgs) == 0 {
		return nil
	}
	w.logger.Info("received messages", zap.Int("count", len(msgs)))

	var rows []models.LabResult
	var parsed []queue.Message
	for _, msg := range msgs {
		row, err := parseMessage(msg.Body)
		if err != nil {
			// A malformed message only fails itself, not its siblings.
			w.logger.Error("failed to parse message", zap.String("id", msg.ID), zap.Error(err))
			w.dropIfPoison(ctx, msg)
			continue
		}
		rows = append(rows, row)
		parsed = append(parsed, msg)
	}

	if len(rows) == 0 {
		return nil
	}

	// One transaction per batch; a partial failure rolls back everything
	// and the whole batch is redelivered.
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("insert batch of %d: %w", len(rows), err)
	}
	w.logger.Info("batch committed", zap.Int("inserted", len(rows)))

	for _, msg := range parsed {
		if err := w.queue.Ack(ctx, msg.ID); err != nil {
			// The row is committed; a failed ack means a duplicate insert
			// on redelivery, which the store accepts.
			w.logger.Warn("failed to ack message", zap.String("id", msg.ID), zap.Error(err))
		}
	}
	return nil
}

// dropIfPoison acks away a message that keeps failing to parse once it has
// exhausted its deliveries, the stream-side analogue of a queue redrive
// policy. Earlier deliveries stay unacked so the queue retries them.
func (w *Worker) dropIfPoison(ctx context.Context, msg queue.Message) {
	if msg.Deliveries < w.cfg.MaxDeliveries {
		return
	}
	w.logger.Error("dropping poison message",
		zap.String("id", msg.ID),
		zap.Int64("deliveries", msg.Deliveries),
	)
	if err := w.queue.Ack(ctx, msg.ID); err != nil {
		w.logger.Warn("failed to drop poison message", zap.String("id", msg.ID), zap.Error(err))
	}
}

func (w *Worker) reconnect(ctx context.Context) {
	// Release the discarded session's pool before dialing a new one.
	if w.db != nil {
		if sqlDB, err := w.db.DB(); err == nil {
			sqlDB.Close()
		}
		w.db = nil
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		db, err := w.connect()
		if err == nil {
			w.db = db
			w.logger.Info("database reconnected")
			return
		}
		w.logger.Error("reconnect failed", zap.Error(err), zap.Duration("backoff", w.cfg.ErrorBackoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.ErrorBackoff):
		}
	}
}

// parseMessage decodes a queue message body into an insertable row.
func parseMessage(body []byte) (models.LabResult, error) {
	var sub models.LabResultSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		return models.LabResult{}, fmt.Errorf("malformed message body: %w", err)
	}
	if sub.PatientID == "" || sub.TestCode == "" {
		return models.LabResult{}, errors.New("message missing patient_id or test_code")
	}
	return sub.ToLabResult(), nil
}

// isConnectionError reports whether err is a connection-level failure that
// calls for discarding the session, as opposed to a statement error.
func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, probe := range []string{
		"bad connection",
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected EOF",
		"conn closed",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}
