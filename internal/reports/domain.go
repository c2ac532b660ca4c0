// Package reports builds the DRE income statement and spreadsheet exports
// from settled payables and receivables.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// DREFilter scopes a report to one owner and an inclusive payment-date range.
type DREFilter struct {
	OwnerID int64
	From    time.Time
	To      time.Time
}

// CategoryTotal is what one category settled in the period.
type CategoryTotal struct {
	Kind       shared.TransactionKind `json:"kind"`
	CategoryID *int64                 `json:"category_id,omitempty"`
	Amount     decimal.Decimal        `json:"amount"`
}

// CostCenterTotal is the allocated share of settlements for one cost center.
type CostCenterTotal struct {
	Kind         shared.TransactionKind `json:"kind"`
	CostCenterID string                 `json:"cost_center_id"`
	Amount       decimal.Decimal        `json:"amount"`
}

// CategoryLine is one row of the DRE body.
type CategoryLine struct {
	CategoryID *int64          `json:"category_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// CostCenterLine is the result contributed by one cost center.
type CostCenterLine struct {
	CostCenterID string          `json:"cost_center_id"`
	Revenue      decimal.Decimal `json:"revenue"`
	Expenses     decimal.Decimal `json:"expenses"`
	Net          decimal.Decimal `json:"net"`
}

// DRE is the income statement of a period: settled receivables minus
// settled payables.
type DRE struct {
	OwnerID     int64            `json:"owner_id"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Revenue     decimal.Decimal  `json:"revenue"`
	Expenses    decimal.Decimal  `json:"expenses"`
	Net         decimal.Decimal  `json:"net"`
	Revenues    []CategoryLine   `json:"revenues"`
	Costs       []CategoryLine   `json:"costs"`
	CostCenters []CostCenterLine `json:"cost_centers"`
}
