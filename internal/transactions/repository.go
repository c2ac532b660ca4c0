package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// SeriesRef identifies a series parent due for materialization.
type SeriesRef struct {
	OwnerID int64
	Kind    shared.TransactionKind
	ID      int64
}

// Repository defines transaction data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
	DueSeries(ctx context.Context, today time.Time, limit int) ([]SeriesRef, error)
	Overdue(ctx context.Context, today time.Time) ([]OverdueSummary, error)
}

// TxRepository defines operations that must commit together.
type TxRepository interface {
	Insert(ctx context.Context, txn Transaction) (int64, error)
	LockForUpdate(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error)
	ReplaceAllocations(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, lines []allocation.Line) error
	UpdateStatus(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, status settlement.Status) error
	UpdateRecurrence(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, rec Recurrence) error
	MaxInstallmentNumber(ctx context.Context, ownerID int64, kind shared.TransactionKind, parentID int64) (int, error)
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const selectColumns = `SELECT id, owner_id, kind, description, category_id, counterparty_name,
	total_amount, amount_settled, status, due_date,
	recurrence_type, recurrence_count, recurrence_start, recurrence_end, recurrence_status, next_occurrence,
	installment_number, parent_id, created_at, updated_at
FROM finance_transactions`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn   Transaction
		start *time.Time
	)
	err := row.Scan(&txn.ID, &txn.OwnerID, &txn.Kind, &txn.Description, &txn.CategoryID, &txn.CounterpartyName,
		&txn.TotalAmount, &txn.AmountSettled, &txn.Status, &txn.DueDate,
		&txn.Recurrence.Type, &txn.Recurrence.Count, &start, &txn.Recurrence.EndDate, &txn.Recurrence.Status, &txn.Recurrence.NextOccurrence,
		&txn.InstallmentNumber, &txn.ParentID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	if start != nil {
		txn.Recurrence.StartDate = *start
	}
	return txn, nil
}

func getTransaction(ctx context.Context, q querier, ownerID int64, kind shared.TransactionKind, id int64, lock bool) (Transaction, error) {
	sql := selectColumns + ` WHERE id = $1 AND owner_id = $2 AND kind = $3`
	if lock {
		sql += ` FOR UPDATE`
	}
	txn, err := scanTransaction(q.QueryRow(ctx, sql, id, ownerID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: get: %w", err)
	}
	lines, err := loadAllocations(ctx, q, ownerID, kind, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Allocations = lines
	return txn, nil
}

func loadAllocations(ctx context.Context, q querier, ownerID int64, kind shared.TransactionKind, id int64) ([]allocation.Line, error) {
	rows, err := q.Query(ctx, `SELECT cost_center_id, percentage, amount FROM finance_allocations
WHERE owner_id = $1 AND transaction_kind = $2 AND transaction_id = $3 ORDER BY position`, ownerID, kind, id)
	if err != nil {
		return nil, fmt.Errorf("transactions: load allocations: %w", err)
	}
	defer rows.Close()
	var lines []allocation.Line
	for rows.Next() {
		var l allocation.Line
		if err := rows.Scan(&l.CostCenterID, &l.Percentage, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	return getTransaction(ctx, r.pool, ownerID, kind, id, false)
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	where := []string{"owner_id = $1", "kind = $2"}
	args := []any{filter.OwnerID, filter.Kind}
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	today := shared.DateOf(filter.Today)
	switch filter.Status {
	case "":
	case settlement.StatusVencido:
		add("status IN ('pendente','parcial','vencido') AND due_date < $%d", today)
	case settlement.StatusPendente, settlement.StatusParcial:
		add("status = $%d", filter.Status)
		add("due_date >= $%d", today)
	default:
		add("status = $%d", filter.Status)
	}
	if filter.DueFrom != nil {
		add("due_date >= $%d", shared.DateOf(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		add("due_date <= $%d", shared.DateOf(*filter.DueTo))
	}
	if filter.ParentID != nil {
		add("(id = $%[1]d OR parent_id = $%[1]d)", *filter.ParentID)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM finance_transactions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("transactions: count: %w", err)
	}

	args = append(args, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))
	sql := fmt.Sprintf(`%s WHERE %s ORDER BY due_date, id LIMIT $%d OFFSET $%d`, selectColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: list: %w", err)
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range items {
		lines, err := loadAllocations(ctx, r.pool, filter.OwnerID, filter.Kind, items[i].ID)
		if err != nil {
			return nil, 0, err
		}
		items[i].Allocations = lines
	}
	return items, total, nil
}

func (r *pgRepository) DueSeries(ctx context.Context, today time.Time, limit int) ([]SeriesRef, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT owner_id, kind, id FROM finance_transactions
WHERE parent_id IS NULL AND recurrence_type <> $1 AND recurrence_status = $2
  AND next_occurrence IS NOT NULL AND next_occurrence <= $3
ORDER BY next_occurrence, id LIMIT $4`, recurrence.TypeUnica, recurrence.StatusAtiva, shared.DateOf(today), limit)
	if err != nil {
		return nil, fmt.Errorf("transactions: due series: %w", err)
	}
	defer rows.Close()
	var out []SeriesRef
	for rows.Next() {
		var ref SeriesRef
		if err := rows.Scan(&ref.OwnerID, &ref.Kind, &ref.ID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *pgRepository) Overdue(ctx context.Context, today time.Time) ([]OverdueSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT owner_id, kind, COUNT(*), COALESCE(SUM(total_amount - amount_settled), 0)
FROM finance_transactions
WHERE status IN ('pendente','parcial','vencido') AND due_date < $1
GROUP BY owner_id, kind ORDER BY owner_id, kind`, shared.DateOf(today))
	if err != nil {
		return nil, fmt.Errorf("transactions: overdue: %w", err)
	}
	defer rows.Close()
	var out []OverdueSummary
	for rows.Next() {
		var s OverdueSummary
		if err := rows.Scan(&s.OwnerID, &s.Kind, &s.Count, &s.Amount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) Insert(ctx context.Context, txn Transaction) (int64, error) {
	var start *time.Time
	if !txn.Recurrence.StartDate.IsZero() {
		start = &txn.Recurrence.StartDate
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO finance_transactions (
	owner_id, kind, description, category_id, counterparty_name,
	total_amount, amount_settled, status, due_date,
	recurrence_type, recurrence_count, recurrence_start, recurrence_end, recurrence_status, next_occurrence,
	installment_number, parent_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
RETURNING id`,
		txn.OwnerID, txn.Kind, txn.Description, txn.CategoryID, txn.CounterpartyName,
		txn.TotalAmount, txn.AmountSettled, txn.Status, txn.DueDate,
		txn.Recurrence.Type, txn.Recurrence.Count, start, txn.Recurrence.EndDate, txn.Recurrence.Status, txn.Recurrence.NextOccurrence,
		txn.InstallmentNumber, txn.ParentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("transactions: insert: %w", err)
	}
	if err := r.insertAllocations(ctx, txn.OwnerID, txn.Kind, id, txn.Allocations); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *pgTxRepository) insertAllocations(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, lines []allocation.Line) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(`INSERT INTO finance_allocations (owner_id, transaction_kind, transaction_id, position, cost_center_id, percentage, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, ownerID, kind, id, i, l.CostCenterID, l.Percentage, l.Amount)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("transactions: insert allocations: %w", err)
	}
	return nil
}

func (r *pgTxRepository) LockForUpdate(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	return getTransaction(ctx, r.tx, ownerID, kind, id, true)
}

func (r *pgTxRepository) ReplaceAllocations(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, lines []allocation.Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM finance_allocations WHERE owner_id = $1 AND transaction_kind = $2 AND transaction_id = $3`, ownerID, kind, id); err != nil {
		return fmt.Errorf("transactions: delete allocations: %w", err)
	}
	return r.insertAllocations(ctx, ownerID, kind, id, lines)
}

func (r *pgTxRepository) UpdateStatus(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, status settlement.Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE finance_transactions SET status = $4, updated_at = NOW() WHERE id = $1 AND owner_id = $2 AND kind = $3`, id, ownerID, kind, status)
	if err != nil {
		return fmt.Errorf("transactions: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *pgTxRepository) UpdateRecurrence(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, rec Recurrence) error {
	tag, err := r.tx.Exec(ctx, `UPDATE finance_transactions
SET recurrence_count = $4, recurrence_status = $5, next_occurrence = $6, updated_at = NOW()
WHERE id = $1 AND owner_id = $2 AND kind = $3`, id, ownerID, kind, rec.Count, rec.Status, rec.NextOccurrence)
	if err != nil {
		return fmt.Errorf("transactions: update recurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *pgTxRepository) MaxInstallmentNumber(ctx context.Context, ownerID int64, kind shared.TransactionKind, parentID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(installment_number), 0) FROM finance_transactions
WHERE owner_id = $1 AND kind = $2 AND (id = $3 OR parent_id = $3)`, ownerID, kind, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("transactions: max installment: %w", err)
	}
	return n, nil
}
