package transactions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

type memoryTxnRepo struct {
	mu         sync.Mutex
	rows       map[int64]Transaction
	nextID     int64
	failInsert int
	inserts    int
}

func newMemoryTxnRepo() *memoryTxnRepo {
	return &memoryTxnRepo{rows: make(map[int64]Transaction)}
}

type memoryTxnTx struct {
	repo *memoryTxnRepo
	rows map[int64]Transaction
}

func (r *memoryTxnRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := make(map[int64]Transaction, len(r.rows))
	for k, v := range r.rows {
		staged[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTxnTx{repo: r, rows: staged}); err != nil {
		r.nextID = nextID
		return err
	}
	r.rows = staged
	return nil
}

func (r *memoryTxnRepo) Get(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lookup(r.rows, ownerID, kind, id)
}

func lookup(rows map[int64]Transaction, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	txn, ok := rows[id]
	if !ok || txn.OwnerID != ownerID || txn.Kind != kind {
		return Transaction{}, ErrTransactionNotFound
	}
	txn.Allocations = append([]allocation.Line(nil), txn.Allocations...)
	return txn, nil
}

func (r *memoryTxnRepo) sorted() []Transaction {
	out := make([]Transaction, 0, len(r.rows))
	for _, t := range r.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memoryTxnRepo) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Transaction
	for _, t := range r.sorted() {
		if t.OwnerID != filter.OwnerID || t.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && settlement.DisplayStatus(t.Settlement(), filter.Today) != filter.Status {
			continue
		}
		if filter.ParentID != nil && t.ID != *filter.ParentID && (t.ParentID == nil || *t.ParentID != *filter.ParentID) {
			continue
		}
		matched = append(matched, t)
	}
	offset := shared.Offset(filter.Page, filter.PerPage)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + filter.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], len(matched), nil
}

func (r *memoryTxnRepo) DueSeries(ctx context.Context, today time.Time, limit int) ([]SeriesRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SeriesRef
	for _, t := range r.sorted() {
		rec := t.Recurrence
		if t.IsSeriesParent() && rec.Status == recurrence.StatusAtiva && rec.NextOccurrence != nil && !rec.NextOccurrence.After(today) {
			out = append(out, SeriesRef{OwnerID: t.OwnerID, Kind: t.Kind, ID: t.ID})
		}
	}
	return out, nil
}

func (r *memoryTxnRepo) Overdue(ctx context.Context, today time.Time) ([]OverdueSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey := map[[2]any]*OverdueSummary{}
	var keys [][2]any
	for _, t := range r.sorted() {
		if settlement.DisplayStatus(t.Settlement(), today) != settlement.StatusVencido {
			continue
		}
		key := [2]any{t.OwnerID, t.Kind}
		s, ok := byKey[key]
		if !ok {
			s = &OverdueSummary{OwnerID: t.OwnerID, Kind: t.Kind, Amount: decimal.Zero}
			byKey[key] = s
			keys = append(keys, key)
		}
		s.Count++
		s.Amount = s.Amount.Add(t.TotalAmount.Sub(t.AmountSettled))
	}
	out := make([]OverdueSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out, nil
}

func (tx *memoryTxnTx) Insert(ctx context.Context, txn Transaction) (int64, error) {
	tx.repo.inserts++
	if tx.repo.failInsert > 0 && tx.repo.inserts == tx.repo.failInsert {
		return 0, errors.New("insert failed")
	}
	tx.repo.nextID++
	txn.ID = tx.repo.nextID
	tx.rows[txn.ID] = txn
	return txn.ID, nil
}

func (tx *memoryTxnTx) LockForUpdate(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	return lookup(tx.rows, ownerID, kind, id)
}

func (tx *memoryTxnTx) ReplaceAllocations(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, lines []allocation.Line) error {
	txn, err := lookup(tx.rows, ownerID, kind, id)
	if err != nil {
		return err
	}
	txn.Allocations = append([]allocation.Line(nil), lines...)
	tx.rows[id] = txn
	return nil
}

func (tx *memoryTxnTx) UpdateStatus(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, status settlement.Status) error {
	txn, err := lookup(tx.rows, ownerID, kind, id)
	if err != nil {
		return err
	}
	txn.Status = status
	tx.rows[id] = txn
	return nil
}

func (tx *memoryTxnTx) UpdateRecurrence(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, rec Recurrence) error {
	txn, err := lookup(tx.rows, ownerID, kind, id)
	if err != nil {
		return err
	}
	txn.Recurrence.Count = rec.Count
	txn.Recurrence.Status = rec.Status
	txn.Recurrence.NextOccurrence = rec.NextOccurrence
	tx.rows[id] = txn
	return nil
}

func (tx *memoryTxnTx) MaxInstallmentNumber(ctx context.Context, ownerID int64, kind shared.TransactionKind, parentID int64) (int, error) {
	max := 0
	for _, t := range tx.rows {
		if t.OwnerID != ownerID || t.Kind != kind {
			continue
		}
		if t.ID == parentID || (t.ParentID != nil && *t.ParentID == parentID) {
			if t.InstallmentNumber > max {
				max = t.InstallmentNumber
			}
		}
	}
	return max, nil
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func clockAt(t time.Time) shared.Clock {
	return func() time.Time { return t }
}

func newTestService(repo Repository, now time.Time) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	return NewService(repo, ServiceConfig{Clock: clockAt(now), Audit: audit}), audit
}

func TestCreateSingleTransaction(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, audit := newTestService(repo, day(2025, 1, 10))

	rows, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindPayable,
		Description: "Aluguel",
		TotalAmount: dec("1000"),
		DueDate:     day(2025, 1, 20),
		Allocations: []allocation.Entry{
			{CostCenterID: "adm", Percentage: dec("33.33")},
			{CostCenterID: "ops", Percentage: dec("33.33")},
			{CostCenterID: "ti", Percentage: dec("33.34")},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	txn := rows[0]
	require.Equal(t, settlement.StatusPendente, txn.Status)
	require.Equal(t, recurrence.TypeUnica, txn.Recurrence.Type)
	require.Nil(t, txn.ParentID)
	require.Len(t, txn.Allocations, 3)
	require.True(t, allocation.Sum(txn.Allocations).Equal(dec("1000")))
	require.Equal(t, []string{"create"}, audit.actions)
}

func TestCreateCollectsValidationErrors(t *testing.T) {
	svc, _ := newTestService(newMemoryTxnRepo(), day(2025, 1, 10))

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindReceivable,
		TotalAmount: dec("-5"),
		Allocations: []allocation.Entry{
			{CostCenterID: "A", Percentage: dec("50")},
			{CostCenterID: "A", Percentage: dec("50")},
		},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Messages, "description is required")
	require.Contains(t, verr.Messages, "total amount must not be negative")
	require.Contains(t, verr.Messages, "due date is required")
	require.Contains(t, verr.Messages, "cost center A appears more than once")
}

func TestCreateRecurringSeries(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 1, 10))
	end := day(2025, 12, 31)

	rows, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindReceivable,
		Description: "Mensalidade",
		TotalAmount: dec("250"),
		Allocations: []allocation.Entry{{CostCenterID: "vendas", Percentage: dec("60")}, {CostCenterID: "mkt", Percentage: dec("40")}},
		Recurrence: recurrence.Config{
			Type:      recurrence.TypeMensal,
			Count:     3,
			StartDate: day(2025, 1, 31),
			EndDate:   &end,
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, []time.Time{day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 28)},
		[]time.Time{rows[0].DueDate, rows[1].DueDate, rows[2].DueDate})
	parent := rows[0]
	require.True(t, parent.IsSeriesParent())
	require.Equal(t, recurrence.StatusAtiva, parent.Recurrence.Status)
	require.Equal(t, 3, parent.Recurrence.Count)
	require.NotNil(t, parent.Recurrence.NextOccurrence)
	require.Equal(t, day(2025, 4, 28), *parent.Recurrence.NextOccurrence)
	for i, row := range rows {
		require.Equal(t, i+1, row.InstallmentNumber)
		require.True(t, row.TotalAmount.Equal(dec("250")))
		require.Equal(t, "150.00", row.Allocations[0].Amount.StringFixed(2))
		require.Equal(t, "100.00", row.Allocations[1].Amount.StringFixed(2))
		if i > 0 {
			require.Equal(t, parent.ID, *row.ParentID)
			require.False(t, row.IsSeriesParent())
		}
	}
}

func TestCreateSeriesWithoutEndDateIsConcluded(t *testing.T) {
	svc, _ := newTestService(newMemoryTxnRepo(), day(2025, 1, 10))
	rows, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindPayable,
		Description: "Parcelamento",
		TotalAmount: dec("100"),
		Recurrence:  recurrence.Config{Type: recurrence.TypeTrimestral, Count: 4, StartDate: day(2025, 1, 15)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, day(2025, 10, 15), rows[3].DueDate)
	require.Equal(t, recurrence.StatusConcluida, rows[0].Recurrence.Status)
	require.Nil(t, rows[0].Recurrence.NextOccurrence)
}

func TestCreateUsesEditedInstallments(t *testing.T) {
	svc, _ := newTestService(newMemoryTxnRepo(), day(2025, 1, 10))
	rows, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindPayable,
		Description: "Equipamento",
		TotalAmount: dec("300"),
		Recurrence:  recurrence.Config{Type: recurrence.TypeMensal},
		Installments: []recurrence.Installment{
			{Number: 1, DueDate: day(2025, 2, 10), Amount: dec("100")},
			{Number: 2, DueDate: day(2025, 3, 12), Amount: dec("150.5")},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, day(2025, 3, 12), rows[1].DueDate)
	require.Equal(t, "150.50", rows[1].TotalAmount.StringFixed(2))
	require.Equal(t, 2, rows[0].Recurrence.Count)
}

func TestCreateSeriesIsAtomic(t *testing.T) {
	repo := newMemoryTxnRepo()
	repo.failInsert = 3
	svc, _ := newTestService(repo, day(2025, 1, 10))

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindPayable,
		Description: "Serie",
		TotalAmount: dec("10"),
		Recurrence:  recurrence.Config{Type: recurrence.TypeMensal, Count: 5, StartDate: day(2025, 1, 1)},
	})
	require.Error(t, err)
	require.Empty(t, repo.rows)
}

func TestGetAndListApplyOverdueView(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 3, 1))
	ctx := context.Background()

	for _, due := range []time.Time{day(2025, 2, 1), day(2025, 3, 10)} {
		_, err := svc.Create(ctx, CreateInput{OwnerID: 1, Kind: shared.KindReceivable, Description: "x", TotalAmount: dec("10"), DueDate: due})
		require.NoError(t, err)
	}

	got, err := svc.Get(ctx, 1, shared.KindReceivable, 1)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusVencido, got.Status)
	require.Equal(t, settlement.StatusPendente, repo.rows[1].Status, "overdue is never stored")

	page, err := svc.List(ctx, ListFilter{OwnerID: 1, Kind: shared.KindReceivable, Status: settlement.StatusVencido})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, page.Pagination.Total)

	page, err = svc.List(ctx, ListFilter{OwnerID: 1, Kind: shared.KindReceivable})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, settlement.StatusPendente, page.Items[1].Status)

	_, err = svc.Get(ctx, 2, shared.KindReceivable, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.List(ctx, ListFilter{OwnerID: 1, Kind: shared.KindReceivable, Status: "aberto"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestReplaceAllocationsSwapsWholeSet(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, audit := newTestService(repo, day(2025, 1, 1))
	ctx := context.Background()
	rows, err := svc.Create(ctx, CreateInput{
		OwnerID: 1, Kind: shared.KindPayable, Description: "x", TotalAmount: dec("100"), DueDate: day(2025, 1, 5),
		Allocations: []allocation.Entry{{CostCenterID: "a", Percentage: dec("100")}},
	})
	require.NoError(t, err)

	txn, err := svc.ReplaceAllocations(ctx, 1, 0, shared.KindPayable, rows[0].ID, []allocation.Entry{
		{CostCenterID: "b", Percentage: dec("50")},
		{CostCenterID: "c", Percentage: dec("50")},
	})
	require.NoError(t, err)
	require.Len(t, txn.Allocations, 2)
	require.Equal(t, "b", repo.rows[rows[0].ID].Allocations[0].CostCenterID)
	require.Equal(t, "50.00", repo.rows[rows[0].ID].Allocations[1].Amount.StringFixed(2))
	require.Equal(t, []string{"create", "allocations.replace"}, audit.actions)

	_, err = svc.ReplaceAllocations(ctx, 1, 0, shared.KindPayable, rows[0].ID, []allocation.Entry{{CostCenterID: "b", Percentage: dec("90")}})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, repo.rows[rows[0].ID].Allocations, 2)
}

func TestCancel(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 1, 1))
	ctx := context.Background()
	rows, err := svc.Create(ctx, CreateInput{OwnerID: 1, Kind: shared.KindPayable, Description: "x", TotalAmount: dec("100"), DueDate: day(2025, 1, 5)})
	require.NoError(t, err)

	txn, err := svc.Cancel(ctx, 1, 0, shared.KindPayable, rows[0].ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusCancelado, txn.Status)

	_, err = svc.Cancel(ctx, 1, 0, shared.KindPayable, rows[0].ID)
	var stateErr *settlement.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestPreviewAppliesEdits(t *testing.T) {
	svc, _ := newTestService(newMemoryTxnRepo(), day(2025, 1, 1))
	moved := day(2025, 2, 20)
	amount := dec("80")
	preview, err := svc.Preview(PreviewInput{
		Type:      recurrence.TypeMensal,
		Count:     3,
		StartDate: day(2025, 1, 15),
		Amount:    dec("100"),
		Edits:     []InstallmentEdit{{Number: 2, DueDate: &moved, Amount: &amount}},
	})
	require.NoError(t, err)
	items := preview.Installments()
	require.Equal(t, moved, items[1].DueDate)
	require.Equal(t, day(2025, 3, 15), items[2].DueDate)
	require.Equal(t, "280.00", preview.Total().StringFixed(2))

	_, err = svc.Preview(PreviewInput{Type: recurrence.TypeUnica, Count: 1, StartDate: day(2025, 1, 1), Amount: dec("1")})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Preview(PreviewInput{Type: recurrence.TypeMensal, Count: 2, StartDate: day(2025, 1, 1), Amount: dec("1"), Edits: []InstallmentEdit{{Number: 5}}})
	require.ErrorAs(t, err, &verr)
}

func createOpenSeries(t *testing.T, svc *Service, end time.Time) Transaction {
	t.Helper()
	rows, err := svc.Create(context.Background(), CreateInput{
		OwnerID:     1,
		Kind:        shared.KindReceivable,
		Description: "Assinatura",
		TotalAmount: dec("99.90"),
		Allocations: []allocation.Entry{{CostCenterID: "a", Percentage: dec("70")}, {CostCenterID: "b", Percentage: dec("30")}},
		Recurrence: recurrence.Config{
			Type:      recurrence.TypeMensal,
			Count:     1,
			StartDate: day(2025, 1, 31),
			EndDate:   &end,
		},
	})
	require.NoError(t, err)
	return rows[0]
}

func TestMaterializeDueCatchesUp(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 1, 1))
	parent := createOpenSeries(t, svc, day(2025, 12, 31))

	report, err := svc.MaterializeDue(context.Background(), day(2025, 4, 1), 0)
	require.NoError(t, err)
	require.Equal(t, MaterializeReport{Series: 1, Created: 2}, report)

	page, err := svc.List(context.Background(), ListFilter{OwnerID: 1, Kind: shared.KindReceivable, ParentID: &parent.ID, Today: day(2025, 1, 1)})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.Equal(t, day(2025, 2, 28), page.Items[1].DueDate)
	require.Equal(t, day(2025, 3, 28), page.Items[2].DueDate)
	require.Equal(t, 3, page.Items[2].InstallmentNumber)
	require.Equal(t, "29.97", page.Items[2].Allocations[1].Amount.StringFixed(2))

	head := repo.rows[parent.ID].Recurrence
	require.Equal(t, recurrence.StatusAtiva, head.Status)
	require.Equal(t, day(2025, 4, 28), *head.NextOccurrence)
	require.Equal(t, 3, head.Count)

	report, err = svc.MaterializeDue(context.Background(), day(2025, 4, 1), 0)
	require.NoError(t, err)
	require.Zero(t, report.Created)
}

func TestMaterializeDueStopsAtEndDate(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 1, 1))
	parent := createOpenSeries(t, svc, day(2025, 3, 15))

	report, err := svc.MaterializeDue(context.Background(), day(2025, 6, 1), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created, "only the February occurrence falls inside the end date")

	head := repo.rows[parent.ID].Recurrence
	require.Equal(t, recurrence.StatusConcluida, head.Status)
	require.Nil(t, head.NextOccurrence)
}

func TestMaterializeSkipsPausedSeries(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, audit := newTestService(repo, day(2025, 1, 1))
	parent := createOpenSeries(t, svc, day(2025, 12, 31))
	ctx := context.Background()

	_, err := svc.SetSeriesStatus(ctx, 1, 0, shared.KindReceivable, parent.ID, recurrence.StatusPausada)
	require.NoError(t, err)
	report, err := svc.MaterializeDue(ctx, day(2025, 5, 1), 0)
	require.NoError(t, err)
	require.Zero(t, report.Series)

	_, err = svc.SetSeriesStatus(ctx, 1, 0, shared.KindReceivable, parent.ID, recurrence.StatusAtiva)
	require.NoError(t, err)
	_, err = svc.SetSeriesStatus(ctx, 1, 0, shared.KindReceivable, parent.ID, recurrence.StatusConcluida)
	require.NoError(t, err)
	_, err = svc.SetSeriesStatus(ctx, 1, 0, shared.KindReceivable, parent.ID, recurrence.StatusAtiva)
	var stateErr *SeriesStateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, []string{"create", "series.pausada", "series.ativa", "series.concluida"}, audit.actions)
}

func TestSetSeriesStatusRejectsPlainRows(t *testing.T) {
	svc, _ := newTestService(newMemoryTxnRepo(), day(2025, 1, 1))
	rows, err := svc.Create(context.Background(), CreateInput{OwnerID: 1, Kind: shared.KindPayable, Description: "x", TotalAmount: dec("1"), DueDate: day(2025, 1, 2)})
	require.NoError(t, err)
	_, err = svc.SetSeriesStatus(context.Background(), 1, 0, shared.KindPayable, rows[0].ID, recurrence.StatusPausada)
	require.ErrorIs(t, err, ErrNotSeriesParent)
}

func TestOverdueSummary(t *testing.T) {
	repo := newMemoryTxnRepo()
	svc, _ := newTestService(repo, day(2025, 1, 1))
	ctx := context.Background()
	for _, amount := range []string{"10", "15.50"} {
		_, err := svc.Create(ctx, CreateInput{OwnerID: 1, Kind: shared.KindPayable, Description: "x", TotalAmount: dec(amount), DueDate: day(2025, 1, 5)})
		require.NoError(t, err)
	}

	summary, err := svc.Overdue(ctx, day(2025, 2, 1))
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 2, summary[0].Count)
	require.Equal(t, "25.50", summary[0].Amount.StringFixed(2))
}
