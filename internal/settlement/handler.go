package settlement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// SettleRequest is the body of POST /finance/{kind}/{id}/settlements.
type SettleRequest struct {
	Method        string `json:"method" validate:"required,oneof=dinheiro pix boleto transferencia cartao_credito cartao_debito cheque outro"`
	BankAccountID *int64 `json:"bank_account_id,omitempty" validate:"omitempty,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	PaymentDate   string `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Note          string `json:"note" validate:"max=500"`
}

// SettleResponse reports the updated transaction and the recorded payment.
type SettleResponse struct {
	Transaction Transaction     `json:"transaction"`
	Payment     PaymentRecord   `json:"payment"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// Handler exposes settlement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers settlement routes relative to /finance.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{kind}/{id}/settlements", h.settle)
	r.Get("/{kind}/{id}/settlements", h.listPayments)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	owner, err := httpx.Owner(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	kind, err := httpx.KindParam(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req SettleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	verr := &shared.ValidationError{}
	in := SettleInput{
		OwnerID:        owner,
		ActorID:        shared.ActorFromContext(r.Context()),
		Kind:           kind,
		TransactionID:  id,
		Method:         Method(req.Method),
		BankAccountID:  req.BankAccountID,
		Amount:         httpx.ParseAmount(verr, "amount", req.Amount),
		Note:           req.Note,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	if date := httpx.ParseDate(verr, "payment_date", req.PaymentDate); date != nil {
		in.PaymentDate = *date
	}
	if err := verr.Err(); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out, err := h.service.Settle(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, SettleResponse{Transaction: out.Transaction, Payment: out.Payment, Remaining: out.Remaining})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	owner, err := httpx.Owner(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	kind, err := httpx.KindParam(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), owner, kind, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []PaymentRecord{}
	}
	httpx.JSON(w, http.StatusOK, payments)
}
