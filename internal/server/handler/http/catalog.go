package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/models"
	"github.com/atinyakov/veil/internal/service"
)

// CatalogService defines the lookups required by CatalogHandler.
type CatalogService interface {
	Examples(ctx context.Context) (*models.Examples, error)
	Models(ctx context.Context, provider string) (*models.ModelsResponse, error)
	ValidateKey(ctx context.Context, key string) (*models.ValidationResponse, error)
}

// CatalogHandler serves examples, models and key validation.
type CatalogHandler struct {
	CatalogService CatalogService
	Log            *zap.Logger
}

// Examples handles GET /api/examples.
func (h *CatalogHandler) Examples(w http.ResponseWriter, r *http.Request) {
	resp, err := h.CatalogService.Examples(r.Context())
	if err != nil {
		writeUpstreamError(w, err, h.logger())
		return
	}
	writeJSON(w, resp)
}

// Models handles GET /api/models with an optional provider query parameter.
func (h *CatalogHandler) Models(w http.ResponseWriter, r *http.Request) {
	resp, err := h.CatalogService.Models(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		writeUpstreamError(w, err, h.logger())
		return
	}
	writeJSON(w, resp)
}

// ValidateKey handles POST /api/validate-key.
func (h *CatalogHandler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp, err := h.CatalogService.ValidateKey(r.Context(), req.APIKey)
	if errors.Is(err, service.ErrEmptyKey) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeUpstreamError(w, err, h.logger())
		return
	}
	writeJSON(w, resp)
}

func (h *CatalogHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
