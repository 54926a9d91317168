// Package http provides the gateway's HTTP handlers and router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/logger"
	"github.com/atinyakov/veil/internal/middleware"
	"github.com/atinyakov/veil/internal/models"
	"github.com/atinyakov/veil/internal/service"
)

// SearchService defines the search operations required by SearchHandler.
type SearchService interface {
	// Search relays req upstream and audits it with meta.
	Search(ctx context.Context, req models.SearchRequest, meta service.RequestMeta) (*models.SearchResponse, error)
	// Recent returns the latest audit entries.
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// SearchHandler handles card searches and the audit view.
type SearchHandler struct {
	SearchService SearchService
	Log           *zap.Logger
}

// Search handles POST /api/search. The body is plaintext JSON by the time it
// gets here: Veil has already opened any envelope.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	info := middleware.EnvelopeInfoFromContext(ctx)
	meta := service.RequestMeta{
		RequestID:     chiMiddleware.GetReqID(ctx),
		Path:          r.URL.Path,
		ClientVersion: middleware.GetClientVersionFromContext(ctx),
		Enveloped:     info.Enveloped,
		Signed:        info.Signed,
	}

	log := h.logger()
	masked := req.Masked()
	log.Debug("search",
		zap.String("query", masked.Query),
		zap.String("provider", masked.Provider),
		logger.APIKey(masked.APIKey),
	)

	resp, err := h.SearchService.Search(ctx, req, meta)
	if errors.Is(err, service.ErrEmptyQuery) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeUpstreamError(w, err, log)
		return
	}
	writeJSON(w, resp)
}

// Audit handles GET /api/audit?limit=N.
func (h *SearchHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.SearchService.Recent(r.Context(), limit)
	if err != nil {
		h.logger().Error("failed to read audit log", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (h *SearchHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
