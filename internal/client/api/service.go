package api

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/logger"
	"github.com/atinyakov/veil/internal/models"
)

const (
	pathSearch      = "/api/search"
	pathExamples    = "/api/examples"
	pathModels      = "/api/models"
	pathValidateKey = "/api/validate-key"
)

// Settings are the caller's stored AI preferences. Empty fields leave the
// corresponding request fields as they are.
type Settings struct {
	APIKey   string
	Model    string
	Provider string
}

// Service exposes the backend API on top of a Client.
type Service struct {
	client   *Client
	settings Settings
	log      *zap.Logger
}

// NewService creates a Service that fills requests from settings.
func NewService(c *Client, settings Settings, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: c, settings: settings, log: log}
}

// SearchCards sends a search, completing it with the stored API key, model
// and provider.
func (s *Service) SearchCards(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if s.settings.APIKey != "" {
		req.APIKey = s.settings.APIKey
	}
	if s.settings.Model != "" {
		req.Model = s.settings.Model
	}
	if req.Provider == "" || s.settings.Provider != "" {
		req.Provider = s.SelectedProvider()
	}

	masked := req.Masked()
	s.log.Info("sending search request",
		zap.String("query", masked.Query),
		zap.String("language", masked.Language),
		zap.String("model", masked.Model),
		zap.String("provider", masked.Provider),
		logger.APIKey(masked.APIKey),
	)

	var resp models.SearchResponse
	if err := s.client.Do(ctx, http.MethodPost, pathSearch, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetExamples returns the sample queries.
func (s *Service) GetExamples(ctx context.Context) (*models.Examples, error) {
	var resp models.Examples
	if err := s.client.Do(ctx, http.MethodGet, pathExamples, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchModels returns the full models answer for provider ("" for all).
func (s *Service) FetchModels(ctx context.Context, provider string) (*models.ModelsResponse, error) {
	var query url.Values
	if provider != "" {
		query = url.Values{"provider": {provider}}
	}
	var resp models.ModelsResponse
	if err := s.client.Do(ctx, http.MethodGet, pathModels, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetModels is FetchModels for display: failures are logged and yield an empty list.
func (s *Service) GetModels(ctx context.Context, provider string) []models.Model {
	resp, err := s.FetchModels(ctx, provider)
	if err != nil {
		s.log.Error("failed to get models", zap.String("provider", provider), zap.Error(err))
		return []models.Model{}
	}
	if resp.Models == nil {
		return []models.Model{}
	}
	return resp.Models
}

// ValidateAPIKey asks the backend whether key is usable.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) (*models.ValidationResponse, error) {
	s.log.Info("validating API key", logger.APIKey("***"))

	var resp models.ValidationResponse
	if err := s.client.Do(ctx, http.MethodPost, pathValidateKey, nil, models.ValidateKeyRequest{APIKey: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HasAPIKey reports whether an API key is configured.
func (s *Service) HasAPIKey() bool {
	return s.settings.APIKey != ""
}

// MaskedAPIKey returns the configured key masked for display, or "" if none.
func (s *Service) MaskedAPIKey() string {
	return models.MaskAPIKey(s.settings.APIKey)
}

// SelectedModel returns the configured model id.
func (s *Service) SelectedModel() string {
	return s.settings.Model
}

// SelectedProvider returns the configured provider or models.DefaultProvider.
func (s *Service) SelectedProvider() string {
	if s.settings.Provider != "" {
		return s.settings.Provider
	}
	return models.DefaultProvider
}

// APIURL returns the backend base URL.
func (s *Service) APIURL() string {
	return s.client.BaseURL()
}
