package service

import (
	"context"
	"errors"

	"github.com/atinyakov/veil/internal/models"
)

// ErrEmptyKey is returned by ValidateKey when no key was given.
var ErrEmptyKey = errors.New("api_key is required")

// CatalogService relays the read-only backend endpoints.
type CatalogService struct {
	upstream Upstream
}

// NewCatalogService constructs a CatalogService on top of upstream.
func NewCatalogService(upstream Upstream) *CatalogService {
	return &CatalogService{upstream: upstream}
}

func (s *CatalogService) Examples(ctx context.Context) (*models.Examples, error) {
	return s.upstream.GetExamples(ctx)
}

// Models lists the models of provider, or of every provider when it is empty.
func (s *CatalogService) Models(ctx context.Context, provider string) (*models.ModelsResponse, error) {
	return s.upstream.FetchModels(ctx, provider)
}

func (s *CatalogService) ValidateKey(ctx context.Context, key string) (*models.ValidationResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return s.upstream.ValidateAPIKey(ctx, key)
}
