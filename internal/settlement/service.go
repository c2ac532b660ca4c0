package settlement

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// IdempotencyModule namespaces settlement keys in the idempotency store.
const IdempotencyModule = "finance.settlement"

// IdempotencyStore guards against replayed settlement requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, ownerID int64, key, module string) error
	Delete(ctx context.Context, ownerID int64, key string) error
}

// CacheInvalidator drops cached reports after money moves.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts settlements for metrics.
type Recorder interface {
	ObserveSettlement(kind, status string)
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Policy      OverpaymentPolicy
	Idempotency IdempotencyStore
	Cache       CacheInvalidator
	Audit       AuditRecorder
	Metrics     Recorder
	Logger      *slog.Logger
	Clock       shared.Clock
	Location    *time.Location
}

// Service records payments against payables and receivables.
type Service struct {
	repo    Repository
	machine Machine
	cfg     ServiceConfig
}

// NewService constructs the settlement service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = shared.SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{repo: repo, machine: Machine{Policy: cfg.Policy}, cfg: cfg}
}

// SettleInput describes one payment.
type SettleInput struct {
	OwnerID        int64
	ActorID        int64
	Kind           shared.TransactionKind
	TransactionID  int64
	Method         Method
	BankAccountID  *int64
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Note           string
	IdempotencyKey string
}

// SettleOutcome is what a successful settlement produced.
type SettleOutcome struct {
	Transaction Transaction
	Payment     PaymentRecord
	Remaining   decimal.Decimal
}

func (in SettleInput) validate() error {
	verr := &shared.ValidationError{}
	if in.OwnerID <= 0 {
		verr.Addf("owner is required")
	}
	if !in.Kind.Valid() {
		verr.Addf("unknown transaction type %q", in.Kind)
	}
	if in.TransactionID <= 0 {
		verr.Addf("transaction id is required")
	}
	if !in.Method.Valid() {
		verr.Addf("unknown payment method %q", in.Method)
	}
	if in.BankAccountID != nil && *in.BankAccountID <= 0 {
		verr.Addf("bank account id must be positive")
	}
	return verr.Err()
}

// Settle applies a payment inside one database transaction: the transaction
// row is locked, the state machine runs, the payment is inserted, the
// transaction is updated and the bank account balance is adjusted.
func (s *Service) Settle(ctx context.Context, in SettleInput) (SettleOutcome, error) {
	if err := in.validate(); err != nil {
		return SettleOutcome{}, err
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = shared.Today(s.cfg.Clock, s.cfg.Location)
	}
	if in.IdempotencyKey != "" && s.cfg.Idempotency != nil {
		if err := s.cfg.Idempotency.CheckAndInsert(ctx, in.OwnerID, in.IdempotencyKey, IdempotencyModule); err != nil {
			return SettleOutcome{}, err
		}
	}

	var out SettleOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.LockTransaction(ctx, in.OwnerID, in.Kind, in.TransactionID)
		if err != nil {
			return err
		}
		res, err := s.machine.Apply(txn, in.Amount)
		if err != nil {
			return err
		}
		record := PaymentRecord{
			OwnerID:         in.OwnerID,
			Reference:       uuid.NewString(),
			TransactionKind: in.Kind,
			TransactionID:   in.TransactionID,
			Method:          in.Method,
			BankAccountID:   in.BankAccountID,
			Amount:          res.Applied,
			PaymentDate:     shared.DateOf(in.PaymentDate),
			Note:            in.Note,
			CreatedAt:       s.cfg.Clock(),
		}
		instruction, err := BalanceAdjustment(in.Kind, in.BankAccountID, record.Amount)
		if err != nil {
			return err
		}
		id, err := tx.InsertPayment(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id

		if err := tx.UpdateSettlement(ctx, in.OwnerID, in.Kind, in.TransactionID, res.AmountSettled, res.Status); err != nil {
			return err
		}
		if instruction != nil {
			if err := tx.AdjustBankBalance(ctx, in.OwnerID, *instruction); err != nil {
				return err
			}
		}

		txn.AmountSettled = res.AmountSettled
		txn.Status = res.Status
		out = SettleOutcome{Transaction: txn, Payment: record, Remaining: res.Remaining}
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.cfg.Idempotency != nil {
			if delErr := s.cfg.Idempotency.Delete(ctx, in.OwnerID, in.IdempotencyKey); delErr != nil {
				s.cfg.Logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return SettleOutcome{}, err
	}

	s.afterSettle(ctx, in, out)
	return out, nil
}

func (s *Service) afterSettle(ctx context.Context, in SettleInput, out SettleOutcome) {
	logger := s.cfg.Logger
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Bump(ctx); err != nil {
			logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	if s.cfg.Audit != nil {
		err := s.cfg.Audit.Record(ctx, shared.AuditLog{
			OwnerID:  in.OwnerID,
			ActorID:  in.ActorID,
			Action:   "settle",
			Entity:   string(in.Kind),
			EntityID: strconv.FormatInt(in.TransactionID, 10),
			Meta: map[string]any{
				"payment_id": out.Payment.ID,
				"amount":     shared.FormatMoney(out.Payment.Amount),
				"method":     string(out.Payment.Method),
				"status":     string(out.Transaction.Status),
			},
			At: out.Payment.CreatedAt,
		})
		if err != nil {
			logger.Warn("audit settlement", slog.Any("error", err))
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveSettlement(string(in.Kind), string(out.Transaction.Status))
	}
	logger.Info("transaction settled",
		slog.String("kind", string(in.Kind)),
		slog.Int64("id", in.TransactionID),
		slog.String("amount", shared.FormatMoney(out.Payment.Amount)),
		slog.String("status", string(out.Transaction.Status)),
	)
}

// ListPayments returns the payment history of one transaction.
func (s *Service) ListPayments(ctx context.Context, ownerID int64, kind shared.TransactionKind, transactionID int64) ([]PaymentRecord, error) {
	if !kind.Valid() {
		return nil, shared.NewValidationError("unknown transaction type " + string(kind))
	}
	return s.repo.ListPayments(ctx, ownerID, kind, transactionID)
}
