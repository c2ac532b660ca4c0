package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
	"github.com/odyssey-erp/odyssey-finance/internal/transactions"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Materializer creates the installments of recurring series that came due.
type Materializer interface {
	MaterializeDue(ctx context.Context, today time.Time, batch int) (transactions.MaterializeReport, error)
	Today() time.Time
}

// RecurrenceJob runs the recurrence materialisation on a schedule.
type RecurrenceJob struct {
	Service Materializer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Batch   int
}

// NewRecurrenceJob wires dependencies for the recurrence handler.
func NewRecurrenceJob(service Materializer, batch int, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurrenceJob {
	return &RecurrenceJob{Service: service, Batch: batch, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRecurrenceGenerate tasks. A run that leaves failed
// series returns an error so the task is retried; series that succeeded
// are not generated twice.
func (j *RecurrenceJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("recurrence: handler not configured")
	}
	var payload RecurrencePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	today := j.Service.Today()
	if payload.Date != "" {
		parsed, err := time.Parse(dateLayout, payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		today = parsed
	}

	tracker := j.metrics().Track(TaskRecurrenceGenerate)
	logger := j.logger().With(slog.String("date", today.Format(dateLayout)))
	logger.Info("starting recurrence run")
	start := time.Now()

	report, err := j.Service.MaterializeDue(ctx, today, j.Batch)
	j.metrics().AddInstallments(report.Created)
	j.metrics().AddFailedSeries(report.Failed)
	if err != nil {
		logger.Error("recurrence run", slog.Int("failed", report.Failed), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed recurrence run",
		slog.Int("series", report.Series),
		slog.Int("created", report.Created),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RecurrenceJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurrenceGenerate))
	}
	return slog.Default().With(slog.String("job", TaskRecurrenceGenerate))
}

func (j *RecurrenceJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
