package reports

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes report endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter *Exporter
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, exporter *Exporter) *Handler {
	return &Handler{logger: logger, service: service, exporter: exporter}
}

// MountRoutes registers report routes relative to /finance.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/dre", h.dre)
	r.Get("/reports/dre.xlsx", h.dreXLSX)
}

func (h *Handler) load(r *http.Request) (DRE, error) {
	owner, err := httpx.Owner(r)
	if err != nil {
		return DRE{}, err
	}
	q := r.URL.Query()
	verr := &shared.ValidationError{}
	from := httpx.ParseDate(verr, "from", q.Get("from"))
	to := httpx.ParseDate(verr, "to", q.Get("to"))
	if from == nil || to == nil {
		verr.Addf("from and to are required")
	}
	if err := verr.Err(); err != nil {
		return DRE{}, err
	}
	return h.service.DRE(r.Context(), DREFilter{OwnerID: owner, From: *from, To: *to})
}

func (h *Handler) dre(w http.ResponseWriter, r *http.Request) {
	report, err := h.load(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) dreXLSX(w http.ResponseWriter, r *http.Request) {
	report, err := h.load(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := h.exporter.DREXLSX(report)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	name := fmt.Sprintf("dre_%s_%s.xlsx", report.From.Format("20060102"), report.To.Format("20060102"))
	httpx.Attachment(w, xlsxContentType, name, body)
}
