package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurrenceGenerate materialises due installments of recurring series.
	TaskRecurrenceGenerate = "finance:recurrence:generate"
	// TaskOverdueSweep publishes overdue totals.
	TaskOverdueSweep = "finance:overdue:sweep"
	// TaskIdempotencyPurge drops expired settlement idempotency keys.
	TaskIdempotencyPurge = "finance:idempotency:purge"

	dateLayout = "2006-01-02"
)

// RecurrencePayload optionally pins the business date of a run, which lets an
// operator replay a missed day. An empty date means today.
type RecurrencePayload struct {
	Date string `json:"date,omitempty"`
}

// NewRecurrenceGenerateTask constructs the recurrence task. A zero date runs for today.
func NewRecurrenceGenerateTask(date time.Time) (*asynq.Task, error) {
	payload := RecurrencePayload{}
	if !date.IsZero() {
		payload.Date = date.Format(dateLayout)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurrenceGenerate, data, asynq.Unique(time.Hour)), nil
}

// NewOverdueSweepTask constructs the overdue sweep task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

// PurgePayload sets how long idempotency keys are retained.
type PurgePayload struct {
	OlderThan string `json:"older_than"`
}

// NewIdempotencyPurgeTask constructs the purge task.
func NewIdempotencyPurgeTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PurgePayload{OlderThan: olderThan.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyPurge, data), nil
}
