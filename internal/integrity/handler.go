package integrity

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/produce-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Handler exposes integrity scans over JSON.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers integrity routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/integrity/check", h.check)
	r.Get("/integrity/last", h.last)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	repair := false
	if raw := r.URL.Query().Get("repair"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("repair", "must be a boolean"))
			return
		}
		repair = v
	}
	report, err := h.service.Run(r.Context(), repair)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) last(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Last(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
