package transactions

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// AllocationRequest is one cost-center share on the wire.
type AllocationRequest struct {
	CostCenterID string `json:"cost_center_id"`
	Percentage   string `json:"percentage" validate:"required"`
}

// RecurrenceRequest configures a recurring series.
type RecurrenceRequest struct {
	Type      string `json:"type" validate:"omitempty,oneof=unica mensal trimestral anual"`
	Count     int    `json:"count" validate:"gte=0,lte=600"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Status    string `json:"status" validate:"omitempty,oneof=ativa pausada concluida"`
}

// InstallmentRequest is one caller-edited installment.
type InstallmentRequest struct {
	Number  int    `json:"installment_number" validate:"gte=1"`
	DueDate string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Amount  string `json:"amount" validate:"required"`
}

// CreateRequest is the body of POST /finance/{kind}.
type CreateRequest struct {
	Description      string               `json:"description" validate:"required,max=255"`
	CategoryID       *int64               `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	CounterpartyName string               `json:"counterparty_name" validate:"max=255"`
	TotalAmount      string               `json:"total_amount" validate:"required"`
	DueDate          string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Allocations      []AllocationRequest  `json:"allocations" validate:"omitempty,max=100,dive"`
	Recurrence       *RecurrenceRequest   `json:"recurrence,omitempty"`
	Installments     []InstallmentRequest `json:"installments" validate:"omitempty,max=600,dive"`
}

// Input converts the request into service input.
func (req CreateRequest) Input(ownerID, actorID int64, kind shared.TransactionKind) (CreateInput, error) {
	if err := httpx.Validate(req); err != nil {
		return CreateInput{}, err
	}
	verr := &shared.ValidationError{}
	in := CreateInput{
		OwnerID:          ownerID,
		ActorID:          actorID,
		Kind:             kind,
		Description:      req.Description,
		CategoryID:       req.CategoryID,
		CounterpartyName: req.CounterpartyName,
		TotalAmount:      httpx.ParseAmount(verr, "total_amount", req.TotalAmount),
		Allocations:      parseAllocations(verr, req.Allocations),
	}
	if due := httpx.ParseDate(verr, "due_date", req.DueDate); due != nil {
		in.DueDate = *due
	}
	if rr := req.Recurrence; rr != nil {
		typ, err := recurrence.ParseType(rr.Type)
		if err != nil {
			verr.Addf("recurrence.type: %v", err)
		}
		in.Recurrence = recurrence.Config{
			Type:    typ,
			Count:   rr.Count,
			EndDate: httpx.ParseDate(verr, "recurrence.end_date", rr.EndDate),
			Status:  recurrence.Status(rr.Status),
		}
		if start := httpx.ParseDate(verr, "recurrence.start_date", rr.StartDate); start != nil {
			in.Recurrence.StartDate = *start
		}
	}
	for i, item := range req.Installments {
		due := httpx.ParseDate(verr, fmt.Sprintf("installments[%d].due_date", i), item.DueDate)
		inst := recurrence.Installment{
			Number: item.Number,
			Amount: httpx.ParseAmount(verr, fmt.Sprintf("installments[%d].amount", i), item.Amount),
		}
		if due != nil {
			inst.DueDate = *due
		}
		in.Installments = append(in.Installments, inst)
	}
	return in, verr.Err()
}

func parseAllocations(verr *shared.ValidationError, reqs []AllocationRequest) []allocation.Entry {
	if len(reqs) == 0 {
		return nil
	}
	entries := make([]allocation.Entry, 0, len(reqs))
	for i, a := range reqs {
		entries = append(entries, allocation.Entry{
			CostCenterID: a.CostCenterID,
			Percentage:   httpx.ParseAmount(verr, fmt.Sprintf("allocations[%d].percentage", i), a.Percentage),
		})
	}
	return entries
}

// AllocationsRequest is the body of PUT /finance/{kind}/{id}/allocations.
type AllocationsRequest struct {
	Allocations []AllocationRequest `json:"allocations" validate:"max=100,dive"`
}

// EqualSplitRequest is the body of POST /finance/allocations/equal-split.
type EqualSplitRequest struct {
	CostCenterIDs []string `json:"cost_center_ids" validate:"max=100"`
	TotalAmount   string   `json:"total_amount"`
}

// EqualSplitResponse carries the generated entries and, when a total was
// sent, the amounts they produce.
type EqualSplitResponse struct {
	Entries []allocation.Entry `json:"entries"`
	Lines   []allocation.Line  `json:"lines,omitempty"`
}

// PreviewRequest is the body of POST /finance/{kind}/preview.
type PreviewRequest struct {
	Type      string               `json:"type" validate:"required,oneof=mensal trimestral anual"`
	Count     int                  `json:"count" validate:"required,gte=1,lte=600"`
	StartDate string               `json:"start_date" validate:"required,datetime=2006-01-02"`
	Amount    string               `json:"amount" validate:"required"`
	Edits     []InstallmentEditDTO `json:"edits" validate:"omitempty,dive"`
}

// InstallmentEditDTO overrides one previewed installment.
type InstallmentEditDTO struct {
	Number  int    `json:"installment_number" validate:"gte=1"`
	DueDate string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Amount  string `json:"amount"`
}

// Input converts the request into service input.
func (req PreviewRequest) Input() (PreviewInput, error) {
	if err := httpx.Validate(req); err != nil {
		return PreviewInput{}, err
	}
	verr := &shared.ValidationError{}
	in := PreviewInput{
		Type:   recurrence.Type(req.Type),
		Count:  req.Count,
		Amount: httpx.ParseAmount(verr, "amount", req.Amount),
	}
	if start := httpx.ParseDate(verr, "start_date", req.StartDate); start != nil {
		in.StartDate = *start
	}
	for i, e := range req.Edits {
		edit := InstallmentEdit{Number: e.Number, DueDate: httpx.ParseDate(verr, fmt.Sprintf("edits[%d].due_date", i), e.DueDate)}
		if e.Amount != "" {
			amount := httpx.ParseAmount(verr, fmt.Sprintf("edits[%d].amount", i), e.Amount)
			edit.Amount = &amount
		}
		in.Edits = append(in.Edits, edit)
	}
	return in, verr.Err()
}

// PreviewResponse is an installment schedule with its informational total.
type PreviewResponse struct {
	Installments []recurrence.Installment `json:"installments"`
	Total        decimal.Decimal          `json:"total"`
}

// SeriesStatusRequest is the body of PUT /finance/{kind}/{id}/series/status.
type SeriesStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ativa pausada concluida"`
}
