package recurrence

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// ErrSingleOccurrence is returned when dates are requested for a unica series.
var ErrSingleOccurrence = errors.New("recurrence: single transaction has no schedule")

// MaxInstallments caps how many installments one series may generate up front.
const MaxInstallments = 600

// AddMonths moves d by n calendar months. When the day of month does not
// exist in the target month it is clamped to the month's last day, so
// Jan 31 + 1 month is Feb 28 (Feb 29 in leap years).
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// NextDate returns the occurrence after current. The second result is false
// for unica, which has no next occurrence.
func NextDate(current time.Time, t Type) (time.Time, bool) {
	step, ok := stepMonths(t)
	if !ok {
		return time.Time{}, false
	}
	return AddMonths(current, step), true
}

// OccurrenceAt returns the date of the zero-based index-th occurrence of a
// series starting on start, reached by applying NextDate index times. The
// second result is false for unica.
func OccurrenceAt(start time.Time, t Type, index int) (time.Time, bool) {
	if _, ok := stepMonths(t); !ok || index < 0 {
		return time.Time{}, false
	}
	d := start
	for i := 0; i < index; i++ {
		d, _ = NextDate(d, t)
	}
	return d, true
}

// GenerateInstallmentDates returns count due dates beginning at start, each
// one NextDate of the previous. A clamped day carries forward: Jan 31 gives
// Feb 28 and then Mar 28.
func GenerateInstallmentDates(start time.Time, t Type, count int) ([]time.Time, error) {
	if _, ok := stepMonths(t); !ok {
		if t == TypeUnica {
			return nil, ErrSingleOccurrence
		}
		return nil, shared.NewValidationError("unknown recurrence type " + string(t))
	}
	if count < 1 || count > MaxInstallments {
		return nil, shared.NewValidationError("installment count must be between 1 and 600")
	}
	if start.IsZero() {
		return nil, shared.NewValidationError("recurrence start date is required")
	}
	dates := make([]time.Time, count)
	dates[0] = start
	for i := 1; i < count; i++ {
		dates[i], _ = NextDate(dates[i-1], t)
	}
	return dates, nil
}

// ShouldGenerateNext decides whether the next installment of a series is due
// to be materialized on today. Dates compare at day granularity.
func ShouldGenerateNext(t Type, status Status, nextDate, endDate *time.Time, today time.Time) bool {
	if !t.Recurring() {
		return false
	}
	switch status {
	case StatusAtiva:
	case StatusPausada, StatusConcluida:
		return false
	default:
		return false
	}
	if nextDate == nil || nextDate.IsZero() {
		return false
	}
	day := shared.DateOf(today)
	if day.Before(shared.DateOf(*nextDate)) {
		return false
	}
	if endDate != nil && !endDate.IsZero() && day.After(shared.DateOf(*endDate)) {
		return false
	}
	return true
}
