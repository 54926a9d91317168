package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/envelope"
	"github.com/atinyakov/veil/internal/middleware"
)

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	// Veil configures envelope handling.
	Veil middleware.VeilOptions
	// ExposeAudit mounts GET /api/audit. The route has no access control:
	// enable it only where every caller is an operator.
	ExposeAudit bool
}

// NewRouter constructs the gateway handler.
//
// Routes:
//
//	POST /api/search        → searchHandler.Search
//	GET  /api/audit         → searchHandler.Audit (only with opts.ExposeAudit)
//	GET  /api/examples      → catalogHandler.Examples
//	GET  /api/models        → catalogHandler.Models
//	POST /api/validate-key  → catalogHandler.ValidateKey
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. WithRequestLogging(logger)
//  3. ClientVersion
//  4. AllowContentType("application/json") for requests with a body
//  5. Veil(b, logger, opts.Veil), opening and producing envelopes
func NewRouter(
	searchHandler *SearchHandler,
	catalogHandler *CatalogHandler,
	b *envelope.Builder,
	opts RouterOptions,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.ClientVersion)
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.Veil(b, logger, opts.Veil))

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", searchHandler.Search)
		if opts.ExposeAudit {
			r.Get("/audit", searchHandler.Audit)
		}
		r.Get("/examples", catalogHandler.Examples)
		r.Get("/models", catalogHandler.Models)
		r.Post("/validate-key", catalogHandler.ValidateKey)
	})

	return r
}
