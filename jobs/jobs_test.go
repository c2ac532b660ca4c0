package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
	"github.com/odyssey-erp/odyssey-finance/internal/transactions"
)

var june = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

type fakeMaterializer struct {
	calls  []time.Time
	batch  int
	report transactions.MaterializeReport
	err    error
}

func (f *fakeMaterializer) MaterializeDue(ctx context.Context, today time.Time, batch int) (transactions.MaterializeReport, error) {
	f.calls = append(f.calls, today)
	f.batch = batch
	return f.report, f.err
}

func (f *fakeMaterializer) Today() time.Time { return june }

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestRecurrenceJobRunsForToday(t *testing.T) {
	svc := &fakeMaterializer{report: transactions.MaterializeReport{Series: 2, Created: 3}}
	job := NewRecurrenceJob(svc, 100, nil, testMetrics())

	task, err := NewRecurrenceGenerateTask(time.Time{})
	require.NoError(t, err)
	require.Equal(t, TaskRecurrenceGenerate, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, []time.Time{june}, svc.calls)
	require.Equal(t, 100, svc.batch)
}

func TestRecurrenceJobHonoursPinnedDate(t *testing.T) {
	svc := &fakeMaterializer{}
	job := NewRecurrenceJob(svc, 10, nil, testMetrics())

	task, err := NewRecurrenceGenerateTask(time.Date(2025, 5, 31, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), svc.calls[0])
}

func TestRecurrenceJobSurfacesSeriesFailures(t *testing.T) {
	boom := errors.New("insert failed")
	svc := &fakeMaterializer{report: transactions.MaterializeReport{Series: 2, Created: 1, Failed: 1}, err: boom}
	job := NewRecurrenceJob(svc, 10, nil, testMetrics())

	task, err := NewRecurrenceGenerateTask(time.Time{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestRecurrenceJobRejectsBadPayload(t *testing.T) {
	job := NewRecurrenceJob(&fakeMaterializer{}, 10, nil, testMetrics())
	data, _ := json.Marshal(RecurrencePayload{Date: "31/05/2025"})
	err := job.Handle(context.Background(), asynq.NewTask(TaskRecurrenceGenerate, data))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *RecurrenceJob
	require.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskRecurrenceGenerate, nil)))
}

type fakeOverdue struct {
	summaries []transactions.OverdueSummary
	err       error
}

func (f fakeOverdue) Overdue(ctx context.Context, today time.Time) ([]transactions.OverdueSummary, error) {
	return f.summaries, f.err
}

func (f fakeOverdue) Today() time.Time { return june }

type gaugeCall struct {
	count  int
	amount float64
}

type recordingGauge map[string]gaugeCall

func (g recordingGauge) SetOverdue(kind string, count int, amount float64) {
	g[kind] = gaugeCall{count: count, amount: amount}
}

func TestOverdueSweepAggregatesPerKind(t *testing.T) {
	source := fakeOverdue{summaries: []transactions.OverdueSummary{
		{OwnerID: 1, Kind: shared.KindPayable, Count: 2, Amount: decimal.RequireFromString("150.25")},
		{OwnerID: 2, Kind: shared.KindPayable, Count: 1, Amount: decimal.RequireFromString("49.75")},
		{OwnerID: 2, Kind: shared.KindReceivable, Count: 4, Amount: decimal.RequireFromString("1000")},
	}}
	gauge := recordingGauge{}
	job := NewOverdueSweepJob(source, gauge, nil, testMetrics())

	require.NoError(t, job.Handle(context.Background(), NewOverdueSweepTask()))
	require.Equal(t, gaugeCall{count: 3, amount: 200}, gauge["payable"])
	require.Equal(t, gaugeCall{count: 4, amount: 1000}, gauge["receivable"])
}

func TestOverdueSweepResetsGaugeWhenNothingIsLate(t *testing.T) {
	gauge := recordingGauge{"payable": {count: 9, amount: 9}}
	job := NewOverdueSweepJob(fakeOverdue{}, gauge, nil, testMetrics())
	require.NoError(t, job.Handle(context.Background(), NewOverdueSweepTask()))
	require.Equal(t, gaugeCall{}, gauge["payable"])
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, nil
}

func TestIdempotencyPurge(t *testing.T) {
	store := &fakeCleaner{removed: 5}
	job := NewIdempotencyPurgeJob(store, nil, testMetrics())

	task, err := NewIdempotencyPurgeTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyPurge, nil)))
	require.Equal(t, defaultIdempotencyRetention, store.olderThan)

	bad, _ := json.Marshal(PurgePayload{OlderThan: "-1h"})
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyPurge, bad)), asynq.SkipRetry)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	opts := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}
	_, err := NewWorker(WorkerConfig{
		RedisOpts: opts,
		Cron:      []CronRegistration{{Spec: "not a cron", Task: NewOverdueSweepTask()}},
	})
	require.Error(t, err)
}
