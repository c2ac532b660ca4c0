package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
)

const defaultIdempotencyRetention = 30 * 24 * time.Hour

// KeyCleaner deletes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyPurgeJob removes settlement idempotency keys past retention.
type IdempotencyPurgeJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob wires dependencies for the purge handler.
func NewIdempotencyPurgeJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	return &IdempotencyPurgeJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyPurge tasks.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency purge: handler not configured")
	}
	retention := defaultIdempotencyRetention
	if len(t.Payload()) > 0 {
		var payload PurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OlderThan != "" {
			d, err := time.ParseDuration(payload.OlderThan)
			if err != nil || d <= 0 {
				return asynq.SkipRetry
			}
			retention = d
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyPurge)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("purge idempotency keys", slog.String("job", TaskIdempotencyPurge), slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddProcessed(TaskIdempotencyPurge, removed)
	logger.Info("purged idempotency keys", slog.String("job", TaskIdempotencyPurge), slog.Int64("removed", removed))
	return tracker.End(nil)
}
