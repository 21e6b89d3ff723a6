package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/observability"
	"github.com/odyssey-erp/produce-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
	"github.com/odyssey-erp/produce-ledger/jobs"
)

// Pinger reports backing store health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	IntegrityHandler *integrity.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics

	// Idempotency is optional and guards /api/v1 mutations.
	Idempotency *shared.IdempotencyStore
	// Ready is optional. Without it /readyz mirrors /healthz.
	Ready Pinger
}

// NewRouter constructs the chi.Router with the ledger API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Ready.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", err.Error())
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.Idempotency != nil {
			r.Use(Idempotency(params.Idempotency, params.Logger))
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.IntegrityHandler != nil {
			params.IntegrityHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
