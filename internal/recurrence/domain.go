// Package recurrence generates due dates and installment schedules for
// recurring payables and receivables.
package recurrence

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Type is the cadence of a recurring series.
type Type string

const (
	TypeUnica      Type = "unica"
	TypeMensal     Type = "mensal"
	TypeTrimestral Type = "trimestral"
	TypeAnual      Type = "anual"
)

// ParseType validates a raw cadence value. An empty value means a single transaction.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if raw == "" {
		return TypeUnica, nil
	}
	if _, ok := stepMonths(t); !ok && t != TypeUnica {
		return "", fmt.Errorf("unknown recurrence type %q", raw)
	}
	return t, nil
}

// Recurring reports whether the cadence produces more than one occurrence.
func (t Type) Recurring() bool {
	_, ok := stepMonths(t)
	return ok
}

// stepMonths returns the month distance between occurrences.
func stepMonths(t Type) (int, bool) {
	switch t {
	case TypeUnica:
		return 0, false
	case TypeMensal:
		return 1, true
	case TypeTrimestral:
		return 3, true
	case TypeAnual:
		return 12, true
	default:
		return 0, false
	}
}

// Status is the lifecycle state of a recurring series.
type Status string

const (
	StatusAtiva     Status = "ativa"
	StatusPausada   Status = "pausada"
	StatusConcluida Status = "concluida"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusAtiva, StatusPausada, StatusConcluida:
		return true
	default:
		return false
	}
}

// Config describes how a transaction repeats. It is stored inline on the
// parent transaction row.
type Config struct {
	Type      Type       `json:"type"`
	Count     int        `json:"count"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Status    Status     `json:"status"`
}

// Single returns the configuration of a non-recurring transaction.
func Single() Config {
	return Config{Type: TypeUnica, Status: StatusConcluida}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	verr := &shared.ValidationError{}
	switch c.Type {
	case TypeUnica:
		return nil
	case TypeMensal, TypeTrimestral, TypeAnual:
	default:
		verr.Addf("unknown recurrence type %q", c.Type)
		return verr
	}
	if c.Count < 1 {
		verr.Addf("recurrence count must be at least 1")
	}
	if c.StartDate.IsZero() {
		verr.Addf("recurrence start date is required")
	}
	if c.EndDate != nil && !c.StartDate.IsZero() && shared.DateOf(*c.EndDate).Before(shared.DateOf(c.StartDate)) {
		verr.Addf("recurrence end date must not be before start date")
	}
	if c.Status != "" && !c.Status.Valid() {
		verr.Addf("unknown recurrence status %q", c.Status)
	}
	return verr.Err()
}
