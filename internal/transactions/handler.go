package transactions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/settlement"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// InstallmentExporter renders an installment schedule as a spreadsheet.
type InstallmentExporter interface {
	InstallmentsXLSX(kind shared.TransactionKind, items []recurrence.Installment) ([]byte, error)
}

// Handler exposes transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter InstallmentExporter
}

// NewHandler builds a Handler. exporter may be nil, which disables the
// spreadsheet preview.
func NewHandler(logger *slog.Logger, service *Service, exporter InstallmentExporter) *Handler {
	return &Handler{logger: logger, service: service, exporter: exporter}
}

// MountRoutes registers transaction routes relative to /finance.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/allocations/equal-split", h.equalSplit)

	r.Get("/{kind}", h.list)
	r.Post("/{kind}", h.create)
	r.Post("/{kind}/preview", h.preview)
	if h.exporter != nil {
		r.Post("/{kind}/preview.xlsx", h.previewXLSX)
	}
	r.Get("/{kind}/{id}", h.get)
	r.Put("/{kind}/{id}/allocations", h.replaceAllocations)
	r.Post("/{kind}/{id}/cancel", h.cancel)
	r.Put("/{kind}/{id}/series/status", h.setSeriesStatus)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.RespondError(w, h.logger, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	owner, err := httpx.Owner(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	kind, err := httpx.KindParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	in, err := req.Input(owner, shared.ActorFromContext(r.Context()), kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(rows) == 1 {
		httpx.JSON(w, http.StatusCreated, rows[0])
		return
	}
	httpx.JSON(w, http.StatusCreated, rows)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, err := httpx.Owner(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	kind, err := httpx.KindParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	verr := &shared.ValidationError{}
	filter := ListFilter{
		OwnerID: owner,
		Kind:    kind,
		Status:  settlement.Status(q.Get("status")),
		DueFrom: httpx.ParseDate(verr, "due_from", q.Get("due_from")),
		DueTo:   httpx.ParseDate(verr, "due_to", q.Get("due_to")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if raw := q.Get("parent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Addf("parent_id must be an integer")
		} else {
			filter.ParentID = &id
		}
	}
	if err := verr.Err(); err != nil {
		h.fail(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	owner, kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	txn, err := h.service.Get(r.Context(), owner, kind, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) replaceAllocations(w http.ResponseWriter, r *http.Request) {
	owner, kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req AllocationsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, err)
		return
	}
	verr := &shared.ValidationError{}
	entries := parseAllocations(verr, req.Allocations)
	if err := verr.Err(); err != nil {
		h.fail(w, err)
		return
	}
	txn, err := h.service.ReplaceAllocations(r.Context(), owner, shared.ActorFromContext(r.Context()), kind, id, entries)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	owner, kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	txn, err := h.service.Cancel(r.Context(), owner, shared.ActorFromContext(r.Context()), kind, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) setSeriesStatus(w http.ResponseWriter, r *http.Request) {
	owner, kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req SeriesStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, err)
		return
	}
	txn, err := h.service.SetSeriesStatus(r.Context(), owner, shared.ActorFromContext(r.Context()), kind, id, recurrence.Status(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) buildPreview(r *http.Request) (*recurrence.Preview, shared.TransactionKind, error) {
	kind, err := httpx.KindParam(r)
	if err != nil {
		return nil, "", err
	}
	var req PreviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return nil, "", err
	}
	in, err := req.Input()
	if err != nil {
		return nil, "", err
	}
	preview, err := h.service.Preview(in)
	return preview, kind, err
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	preview, _, err := h.buildPreview(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, PreviewResponse{Installments: preview.Installments(), Total: preview.Total()})
}

func (h *Handler) previewXLSX(w http.ResponseWriter, r *http.Request) {
	preview, kind, err := h.buildPreview(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	body, err := h.exporter.InstallmentsXLSX(kind, preview.Installments())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, fmt.Sprintf("parcelas-%s.xlsx", kind), body)
}

func (h *Handler) equalSplit(w http.ResponseWriter, r *http.Request) {
	var req EqualSplitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, err)
		return
	}
	resp := EqualSplitResponse{Entries: allocation.EqualSplit(req.CostCenterIDs)}
	if req.TotalAmount != "" && len(resp.Entries) > 0 {
		verr := &shared.ValidationError{}
		total := httpx.ParseAmount(verr, "total_amount", req.TotalAmount)
		if err := verr.Err(); err != nil {
			h.fail(w, err)
			return
		}
		lines, err := allocation.ComputeAmounts(resp.Entries, total)
		if err != nil {
			h.fail(w, err)
			return
		}
		resp.Lines = lines
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) target(r *http.Request) (int64, shared.TransactionKind, int64, error) {
	owner, err := httpx.Owner(r)
	if err != nil {
		return 0, "", 0, err
	}
	kind, err := httpx.KindParam(r)
	if err != nil {
		return 0, "", 0, err
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return 0, "", 0, err
	}
	return owner, kind, id, nil
}
