package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// CategoryTotals sums payments made in the period per transaction category.
func (r *pgRepository) CategoryTotals(ctx context.Context, filter DREFilter) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.kind, t.category_id, SUM(p.amount)
FROM finance_payments p
JOIN finance_transactions t ON t.id = p.transaction_id AND t.owner_id = p.owner_id AND t.kind = p.transaction_kind
WHERE p.owner_id = $1 AND p.payment_date BETWEEN $2 AND $3
GROUP BY t.kind, t.category_id
ORDER BY t.kind, t.category_id NULLS LAST`, filter.OwnerID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("reports: category totals: %w", err)
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var c CategoryTotal
		if err := rows.Scan(&c.Kind, &c.CategoryID, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CostCenterTotals spreads each payment over the allocation set of its
// transaction.
func (r *pgRepository) CostCenterTotals(ctx context.Context, filter DREFilter) ([]CostCenterTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.transaction_kind, p.amount, a.cost_center_id, a.percentage
FROM finance_payments p
JOIN finance_allocations a ON a.owner_id = p.owner_id AND a.transaction_kind = p.transaction_kind AND a.transaction_id = p.transaction_id
WHERE p.owner_id = $1 AND p.payment_date BETWEEN $2 AND $3
ORDER BY p.id, a.position`, filter.OwnerID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("reports: cost center totals: %w", err)
	}
	defer rows.Close()
	var shares []PaymentShare
	for rows.Next() {
		var sh PaymentShare
		if err := rows.Scan(&sh.PaymentID, &sh.Kind, &sh.Amount, &sh.CostCenterID, &sh.Percentage); err != nil {
			return nil, err
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return SpreadPayments(shares)
}
