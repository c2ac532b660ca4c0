package transactions

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Logger   *slog.Logger
	Clock    shared.Clock
	Location *time.Location
	Audit    AuditRecorder
}

// Service manages payables and receivables.
type Service struct {
	repo   Repository
	logger *slog.Logger
	clock  shared.Clock
	loc    *time.Location
	audit  AuditRecorder
}

// NewService constructs the transactions service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = shared.SystemClock
	}
	return &Service{repo: repo, logger: cfg.Logger, clock: cfg.Clock, loc: cfg.Location, audit: cfg.Audit}
}

// Today is the current calendar date in the configured location.
func (s *Service) Today() time.Time {
	return shared.Today(s.clock, s.loc)
}

// CreateInput describes a single transaction or a recurring series.
type CreateInput struct {
	OwnerID          int64
	ActorID          int64
	Kind             shared.TransactionKind
	Description      string
	CategoryID       *int64
	CounterpartyName string
	TotalAmount      decimal.Decimal
	DueDate          time.Time
	Allocations      []allocation.Entry
	Recurrence       recurrence.Config
	// Installments, when set, replaces the generated schedule of a series
	// with one the caller edited.
	Installments []recurrence.Installment
}

func (in CreateInput) validate() error {
	verr := &shared.ValidationError{}
	if in.OwnerID <= 0 {
		verr.Addf("owner is required")
	}
	if !in.Kind.Valid() {
		verr.Addf("unknown transaction type %q", in.Kind)
	}
	if in.Description == "" {
		verr.Addf("description is required")
	}
	if in.TotalAmount.IsNegative() {
		verr.Addf("total amount must not be negative")
	}
	if in.Recurrence.Type == "" || in.Recurrence.Type == recurrence.TypeUnica {
		if in.DueDate.IsZero() {
			verr.Addf("due date is required")
		}
		if len(in.Installments) > 0 {
			verr.Addf("installments require a recurring type")
		}
	} else {
		verr.Merge(in.Recurrence.Validate())
	}
	if len(in.Allocations) > 0 {
		verr.Merge(allocation.Validate(in.Allocations))
	}
	return verr.Err()
}

// Create persists a transaction. A recurring configuration produces one row
// per installment in a single database transaction; the first row is the
// series parent and the rest reference it. Each row gets its own copy of the
// allocation set computed against its own amount.
func (s *Service) Create(ctx context.Context, in CreateInput) ([]Transaction, error) {
	if n := len(in.Installments); n > 0 {
		if in.Recurrence.Count == 0 {
			in.Recurrence.Count = n
		}
		if in.Recurrence.StartDate.IsZero() {
			in.Recurrence.StartDate = in.Installments[0].DueDate
		}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Recurrence.Type == "" {
		in.Recurrence.Type = recurrence.TypeUnica
	}

	var rows []Transaction
	if in.Recurrence.Type == recurrence.TypeUnica {
		row, err := s.buildRow(in, 1, shared.DateOf(in.DueDate), shared.RoundMoney(in.TotalAmount))
		if err != nil {
			return nil, err
		}
		row.Recurrence = Recurrence{Config: recurrence.Single()}
		rows = []Transaction{row}
	} else {
		preview, err := s.schedule(in)
		if err != nil {
			return nil, err
		}
		items := preview.Installments()
		rows = make([]Transaction, 0, len(items))
		for _, item := range items {
			row, err := s.buildRow(in, item.Number, shared.DateOf(item.DueDate), shared.RoundMoney(item.Amount))
			if err != nil {
				return nil, err
			}
			row.Recurrence = Recurrence{Config: recurrence.Config{
				Type:      in.Recurrence.Type,
				StartDate: shared.DateOf(in.Recurrence.StartDate),
				Status:    recurrence.StatusConcluida,
			}}
			rows = append(rows, row)
		}
		rows[0].Recurrence = seriesHead(in.Recurrence, len(items))
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range rows {
			if i > 0 {
				parentID := rows[0].ID
				rows[i].ParentID = &parentID
			}
			id, err := tx.Insert(ctx, rows[i])
			if err != nil {
				return err
			}
			rows[i].ID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.OwnerID, in.ActorID, "create", rows[0], map[string]any{
		"installments": len(rows),
		"recurrence":   string(in.Recurrence.Type),
	})
	s.logger.Info("transaction created",
		slog.String("kind", string(in.Kind)),
		slog.Int64("id", rows[0].ID),
		slog.Int("installments", len(rows)),
	)
	return rows, nil
}

func (s *Service) schedule(in CreateInput) (*recurrence.Preview, error) {
	if len(in.Installments) > 0 {
		return recurrence.FromInstallments(in.Installments)
	}
	return recurrence.BuildPreview(in.Recurrence.StartDate, in.Recurrence.Type, in.Recurrence.Count, in.TotalAmount)
}

// seriesHead is the inline recurrence stored on a series parent after count
// installments exist. The series stays active only while an end date leaves
// room for further occurrences.
func seriesHead(cfg recurrence.Config, count int) Recurrence {
	cfg.StartDate = shared.DateOf(cfg.StartDate)
	cfg.Count = count
	if cfg.Status == "" {
		cfg.Status = recurrence.StatusAtiva
	}
	head := Recurrence{Config: cfg}
	if cfg.Status == recurrence.StatusConcluida {
		return head
	}
	next, ok := recurrence.OccurrenceAt(cfg.StartDate, cfg.Type, count)
	if !ok || cfg.EndDate == nil || shared.DateOf(next).After(shared.DateOf(*cfg.EndDate)) {
		head.Status = recurrence.StatusConcluida
		return head
	}
	head.NextOccurrence = &next
	return head
}

func (s *Service) buildRow(in CreateInput, number int, due time.Time, amount decimal.Decimal) (Transaction, error) {
	row := Transaction{
		OwnerID:           in.OwnerID,
		Kind:              in.Kind,
		Description:       in.Description,
		CategoryID:        in.CategoryID,
		CounterpartyName:  in.CounterpartyName,
		TotalAmount:       amount,
		AmountSettled:     decimal.Zero,
		Status:            settlement.DeriveStatus(amount, decimal.Zero),
		DueDate:           due,
		InstallmentNumber: number,
	}
	if len(in.Allocations) > 0 {
		lines, err := allocation.ComputeAmounts(in.Allocations, amount)
		if err != nil {
			return Transaction{}, err
		}
		row.Allocations = lines
	}
	return row, nil
}

// PreviewInput describes a schedule to preview together with edits to apply.
type PreviewInput struct {
	Type      recurrence.Type
	Count     int
	StartDate time.Time
	Amount    decimal.Decimal
	Edits     []InstallmentEdit
}

// InstallmentEdit overrides the date and/or amount of one installment.
type InstallmentEdit struct {
	Number  int
	DueDate *time.Time
	Amount  *decimal.Decimal
}

// Preview builds an installment schedule without persisting anything.
func (s *Service) Preview(in PreviewInput) (*recurrence.Preview, error) {
	if in.Amount.IsNegative() {
		return nil, shared.NewValidationError("amount must not be negative")
	}
	preview, err := recurrence.BuildPreview(in.StartDate, in.Type, in.Count, in.Amount)
	if err != nil {
		if errors.Is(err, recurrence.ErrSingleOccurrence) {
			return nil, shared.NewValidationError("a single transaction has no installments to preview")
		}
		return nil, err
	}
	verr := &shared.ValidationError{}
	for _, edit := range in.Edits {
		verr.Merge(preview.Edit(edit.Number, edit.DueDate, edit.Amount))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return preview, nil
}

// Get loads one transaction with its display status.
func (s *Service) Get(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	txn, err := s.repo.Get(ctx, ownerID, kind, id)
	if err != nil {
		return Transaction{}, err
	}
	return s.display(txn, s.Today()), nil
}

// List returns a page of transactions with display statuses applied.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if !filter.Kind.Valid() {
		return Page{}, shared.NewValidationError("unknown transaction type " + string(filter.Kind))
	}
	if filter.Status != "" {
		if _, err := settlement.ParseStatus(string(filter.Status)); err != nil {
			return Page{}, shared.NewValidationError(err.Error())
		}
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	if filter.Today.IsZero() {
		filter.Today = s.Today()
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	for i := range items {
		items[i] = s.display(items[i], filter.Today)
	}
	return Page{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) display(txn Transaction, today time.Time) Transaction {
	txn.Status = settlement.DisplayStatus(txn.Settlement(), today)
	return txn
}

// ReplaceAllocations swaps the whole allocation set of a transaction.
func (s *Service) ReplaceAllocations(ctx context.Context, ownerID, actorID int64, kind shared.TransactionKind, id int64, entries []allocation.Entry) (Transaction, error) {
	if err := allocation.Validate(entries); err != nil {
		return Transaction{}, err
	}
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.LockForUpdate(ctx, ownerID, kind, id)
		if err != nil {
			return err
		}
		lines, err := allocation.ComputeAmounts(entries, txn.TotalAmount)
		if err != nil {
			return err
		}
		if err := tx.ReplaceAllocations(ctx, ownerID, kind, id, lines); err != nil {
			return err
		}
		txn.Allocations = lines
		out = txn
		return nil
	})
	if err != nil {
		var rounding *allocation.RoundingInvariantViolation
		if errors.As(err, &rounding) {
			s.logger.Error("allocation rounding invariant violated", slog.Int64("id", id), slog.Any("error", err))
		}
		return Transaction{}, err
	}
	s.record(ctx, ownerID, actorID, "allocations.replace", out, map[string]any{"entries": len(entries)})
	return s.display(out, s.Today()), nil
}

// Cancel moves an open transaction to cancelado.
func (s *Service) Cancel(ctx context.Context, ownerID, actorID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.LockForUpdate(ctx, ownerID, kind, id)
		if err != nil {
			return err
		}
		status, err := settlement.Cancel(txn.Settlement())
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, ownerID, kind, id, status); err != nil {
			return err
		}
		txn.Status = status
		out = txn
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, ownerID, actorID, "cancel", out, nil)
	return out, nil
}

// SetSeriesStatus pauses, resumes or ends a recurring series. Concluded
// series cannot be reopened.
func (s *Service) SetSeriesStatus(ctx context.Context, ownerID, actorID int64, kind shared.TransactionKind, id int64, status recurrence.Status) (Transaction, error) {
	if !status.Valid() {
		return Transaction{}, shared.NewValidationError("unknown recurrence status " + string(status))
	}
	var out Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.LockForUpdate(ctx, ownerID, kind, id)
		if err != nil {
			return err
		}
		if !txn.IsSeriesParent() {
			return ErrNotSeriesParent
		}
		from := txn.Recurrence.Status
		if from == recurrence.StatusConcluida && status != recurrence.StatusConcluida {
			return &SeriesStateError{From: from, To: status}
		}
		txn.Recurrence.Status = status
		if status == recurrence.StatusConcluida {
			txn.Recurrence.NextOccurrence = nil
		}
		if err := tx.UpdateRecurrence(ctx, ownerID, kind, id, txn.Recurrence); err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, ownerID, actorID, "series."+string(status), out, nil)
	return s.display(out, s.Today()), nil
}

// MaterializeReport summarises one materialization run.
type MaterializeReport struct {
	Series  int
	Created int
	Failed  int
}

// MaterializeDue creates the installments of active series that came due by
// today. A series that fell behind catches up to today, or to its end date
// when that passed first. Failures are isolated per series.
func (s *Service) MaterializeDue(ctx context.Context, today time.Time, batch int) (MaterializeReport, error) {
	if today.IsZero() {
		today = s.Today()
	}
	today = shared.DateOf(today)
	refs, err := s.repo.DueSeries(ctx, today, batch)
	if err != nil {
		return MaterializeReport{}, err
	}
	report := MaterializeReport{Series: len(refs)}
	var errs []error
	for _, ref := range refs {
		created, err := s.materializeSeries(ctx, ref, today)
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			s.logger.Error("materialize series", slog.Int64("owner_id", ref.OwnerID), slog.Int64("id", ref.ID), slog.Any("error", err))
			continue
		}
		report.Created += created
	}
	return report, errors.Join(errs...)
}

func (s *Service) materializeSeries(ctx context.Context, ref SeriesRef, today time.Time) (int, error) {
	created := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = 0
		parent, err := tx.LockForUpdate(ctx, ref.OwnerID, ref.Kind, ref.ID)
		if err != nil {
			return err
		}
		if !parent.IsSeriesParent() {
			return ErrNotSeriesParent
		}
		last, err := tx.MaxInstallmentNumber(ctx, ref.OwnerID, ref.Kind, parent.ID)
		if err != nil {
			return err
		}
		rec := parent.Recurrence
		horizon := today
		if rec.EndDate != nil && rec.EndDate.Before(horizon) {
			horizon = shared.DateOf(*rec.EndDate)
		}
		entries := allocation.Entries(parent.Allocations)
		parentID := parent.ID

		for recurrence.ShouldGenerateNext(rec.Type, rec.Status, rec.NextOccurrence, rec.EndDate, horizon) {
			if created >= recurrence.MaxInstallments {
				break
			}
			last++
			child := Transaction{
				OwnerID:           parent.OwnerID,
				Kind:              parent.Kind,
				Description:       parent.Description,
				CategoryID:        parent.CategoryID,
				CounterpartyName:  parent.CounterpartyName,
				TotalAmount:       parent.TotalAmount,
				AmountSettled:     decimal.Zero,
				Status:            settlement.DeriveStatus(parent.TotalAmount, decimal.Zero),
				DueDate:           shared.DateOf(*rec.NextOccurrence),
				InstallmentNumber: last,
				ParentID:          &parentID,
				Recurrence: Recurrence{Config: recurrence.Config{
					Type:      rec.Type,
					StartDate: rec.StartDate,
					Status:    recurrence.StatusConcluida,
				}},
			}
			if len(entries) > 0 {
				lines, err := allocation.ComputeAmounts(entries, child.TotalAmount)
				if err != nil {
					return err
				}
				child.Allocations = lines
			}
			if _, err := tx.Insert(ctx, child); err != nil {
				return err
			}
			created++

			next, _ := recurrence.NextDate(*rec.NextOccurrence, rec.Type)
			rec.NextOccurrence = &next
			rec.Count = last
			if rec.EndDate != nil && shared.DateOf(next).After(shared.DateOf(*rec.EndDate)) {
				rec.Status = recurrence.StatusConcluida
				rec.NextOccurrence = nil
			}
		}
		if rec.Status == recurrence.StatusAtiva && rec.EndDate != nil && today.After(shared.DateOf(*rec.EndDate)) {
			rec.Status = recurrence.StatusConcluida
			rec.NextOccurrence = nil
		}
		if created == 0 && rec.Status == parent.Recurrence.Status {
			return nil
		}
		return tx.UpdateRecurrence(ctx, ref.OwnerID, ref.Kind, parent.ID, rec)
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.logger.Info("series installments materialized",
			slog.Int64("owner_id", ref.OwnerID),
			slog.Int64("id", ref.ID),
			slog.Int("created", created),
		)
	}
	return created, nil
}

// Overdue summarises open transactions due before today, per owner and kind.
func (s *Service) Overdue(ctx context.Context, today time.Time) ([]OverdueSummary, error) {
	if today.IsZero() {
		today = s.Today()
	}
	return s.repo.Overdue(ctx, shared.DateOf(today))
}

func (s *Service) record(ctx context.Context, ownerID, actorID int64, action string, txn Transaction, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  ownerID,
		ActorID:  actorID,
		Action:   action,
		Entity:   string(txn.Kind),
		EntityID: strconv.FormatInt(txn.ID, 10),
		Meta:     meta,
		At:       s.clock(),
	})
	if err != nil {
		s.logger.Warn("audit transaction", slog.String("action", action), slog.Any("error", err))
	}
}
