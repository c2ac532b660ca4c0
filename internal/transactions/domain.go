// Package transactions stores payables and receivables, their recurring
// installment series and their cost-center allocations.
package transactions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Recurrence is the series configuration carried inline by a parent row.
type Recurrence struct {
	recurrence.Config
	NextOccurrence *time.Time `json:"next_occurrence,omitempty"`
}

// Transaction is a payable or receivable.
type Transaction struct {
	ID                int64                  `json:"id"`
	OwnerID           int64                  `json:"owner_id"`
	Kind              shared.TransactionKind `json:"kind"`
	Description       string                 `json:"description"`
	CategoryID        *int64                 `json:"category_id,omitempty"`
	CounterpartyName  string                 `json:"counterparty_name,omitempty"`
	TotalAmount       decimal.Decimal        `json:"total_amount"`
	AmountSettled     decimal.Decimal        `json:"amount_settled"`
	Status            settlement.Status      `json:"status"`
	DueDate           time.Time              `json:"due_date"`
	Recurrence        Recurrence             `json:"recurrence"`
	InstallmentNumber int                    `json:"installment_number"`
	ParentID          *int64                 `json:"parent_id,omitempty"`
	Allocations       []allocation.Line      `json:"allocations,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Settlement projects the fields the settlement state machine works on.
func (t Transaction) Settlement() settlement.Transaction {
	return settlement.Transaction{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		Kind:          t.Kind,
		TotalAmount:   t.TotalAmount,
		AmountSettled: t.AmountSettled,
		Status:        t.Status,
		DueDate:       t.DueDate,
	}
}

// Remaining is the unpaid balance, never negative.
func (t Transaction) Remaining() decimal.Decimal {
	return settlement.RemainingBalance(t.Settlement())
}

// IsSeriesParent reports whether the row owns a recurring series.
func (t Transaction) IsSeriesParent() bool {
	return t.ParentID == nil && t.Recurrence.Type.Recurring()
}

// ListFilter narrows a listing. A vencido status filter matches open rows
// due before Today.
type ListFilter struct {
	OwnerID  int64
	Kind     shared.TransactionKind
	Status   settlement.Status
	DueFrom  *time.Time
	DueTo    *time.Time
	ParentID *int64
	Page     int
	PerPage  int
	Today    time.Time
}

// Page is one page of transactions.
type Page struct {
	Items      []Transaction     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// OverdueSummary aggregates open transactions past their due date.
type OverdueSummary struct {
	OwnerID int64                  `json:"owner_id"`
	Kind    shared.TransactionKind `json:"kind"`
	Count   int                    `json:"count"`
	Amount  decimal.Decimal        `json:"amount"`
}
