package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
	"github.com/odyssey-erp/odyssey-finance/internal/transactions"
)

// OverdueSource reports open transactions past their due date.
type OverdueSource interface {
	Overdue(ctx context.Context, today time.Time) ([]transactions.OverdueSummary, error)
	Today() time.Time
}

// OverdueGauge publishes overdue totals per kind.
type OverdueGauge interface {
	SetOverdue(kind string, count int, amount float64)
}

// OverdueSweepJob publishes how much is overdue. Rows are never mutated;
// vencido stays a display status.
type OverdueSweepJob struct {
	Source  OverdueSource
	Gauge   OverdueGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueSweepJob wires dependencies for the sweep handler.
func NewOverdueSweepJob(source OverdueSource, gauge OverdueGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{Source: source, Gauge: gauge, Logger: logger, Metrics: metrics}
}

// Handle processes TaskOverdueSweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskOverdueSweep)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskOverdueSweep))

	summaries, err := j.Source.Overdue(ctx, j.Source.Today())
	if err != nil {
		logger.Error("load overdue totals", slog.Any("error", err))
		return tracker.End(err)
	}

	type total struct {
		count  int
		amount decimal.Decimal
	}
	totals := map[shared.TransactionKind]*total{
		shared.KindPayable:    {amount: decimal.Zero},
		shared.KindReceivable: {amount: decimal.Zero},
	}
	for _, s := range summaries {
		t, ok := totals[s.Kind]
		if !ok {
			continue
		}
		t.count += s.Count
		t.amount = t.amount.Add(s.Amount)
		if s.Count > 0 {
			logger.Info("overdue transactions",
				slog.Int64("owner_id", s.OwnerID),
				slog.String("kind", string(s.Kind)),
				slog.Int("count", s.Count),
				slog.String("amount", s.Amount.StringFixed(2)))
		}
	}
	for kind, t := range totals {
		if j.Gauge != nil {
			j.Gauge.SetOverdue(string(kind), t.count, t.amount.InexactFloat64())
		}
	}
	return tracker.End(nil)
}
