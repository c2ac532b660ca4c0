package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository defines settlement data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPayments(ctx context.Context, ownerID int64, kind shared.TransactionKind, transactionID int64) ([]PaymentRecord, error)
}

// TxRepository defines operations that must commit together.
type TxRepository interface {
	LockTransaction(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error)
	InsertPayment(ctx context.Context, record PaymentRecord) (int64, error)
	UpdateSettlement(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, settled decimal.Decimal, status Status) error
	AdjustBankBalance(ctx context.Context, ownerID int64, instruction BalanceInstruction) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx runs fn at read committed so that SELECT ... FOR UPDATE waits for a
// concurrent settlement and then reads its committed amount.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

func (r *pgRepository) ListPayments(ctx context.Context, ownerID int64, kind shared.TransactionKind, transactionID int64) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, owner_id, reference, transaction_kind, transaction_id, method, bank_account_id, amount, payment_date, note, created_at
FROM finance_payments WHERE owner_id = $1 AND transaction_kind = $2 AND transaction_id = $3 ORDER BY payment_date, id`, ownerID, kind, transactionID)
	if err != nil {
		return nil, fmt.Errorf("settlement: list payments: %w", err)
	}
	defer rows.Close()
	var out []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Reference, &rec.TransactionKind, &rec.TransactionID, &rec.Method,
			&rec.BankAccountID, &rec.Amount, &rec.PaymentDate, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) LockTransaction(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64) (Transaction, error) {
	var txn Transaction
	err := r.tx.QueryRow(ctx, `SELECT id, owner_id, kind, total_amount, amount_settled, status, due_date
FROM finance_transactions WHERE id = $1 AND owner_id = $2 AND kind = $3 FOR UPDATE`, id, ownerID, kind).
		Scan(&txn.ID, &txn.OwnerID, &txn.Kind, &txn.TotalAmount, &txn.AmountSettled, &txn.Status, &txn.DueDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("settlement: lock transaction: %w", err)
	}
	return txn, nil
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, rec PaymentRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO finance_payments (owner_id, reference, transaction_kind, transaction_id, method, bank_account_id, amount, payment_date, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		rec.OwnerID, rec.Reference, rec.TransactionKind, rec.TransactionID, rec.Method, rec.BankAccountID, rec.Amount, rec.PaymentDate, rec.Note, rec.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("settlement: insert payment: %w", err)
	}
	return id, nil
}

func (r *pgTxRepository) UpdateSettlement(ctx context.Context, ownerID int64, kind shared.TransactionKind, id int64, settled decimal.Decimal, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE finance_transactions SET amount_settled = $1, status = $2, updated_at = NOW()
WHERE id = $3 AND owner_id = $4 AND kind = $5`, settled, status, id, ownerID, kind)
	if err != nil {
		return fmt.Errorf("settlement: update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *pgTxRepository) AdjustBankBalance(ctx context.Context, ownerID int64, ins BalanceInstruction) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3`,
		ins.Delta, ins.BankAccountID, ownerID)
	if err != nil {
		return fmt.Errorf("settlement: adjust bank balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBankAccountNotFound
	}
	return nil
}
