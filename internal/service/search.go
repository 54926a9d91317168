// Package service holds the gateway's business logic: forwarding card
// searches and catalog lookups to the upstream backend and keeping an audit
// trail of what passed through.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/models"
)

// ErrEmptyQuery is returned by Search for a request without a query.
var ErrEmptyQuery = errors.New("query is required")

// Upstream is the real backend the gateway relays to.
type Upstream interface {
	SearchCards(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	GetExamples(ctx context.Context) (*models.Examples, error)
	FetchModels(ctx context.Context, provider string) (*models.ModelsResponse, error)
	ValidateAPIKey(ctx context.Context, key string) (*models.ValidationResponse, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	// RecordRequest stores one entry.
	RecordRequest(ctx context.Context, e models.AuditEntry) error
	// RecentRequests returns up to limit entries, newest first.
	RecentRequests(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// RequestMeta is what the transport layer knows about a request.
type RequestMeta struct {
	RequestID     string
	Path          string
	ClientVersion string
	Enveloped     bool
	Signed        bool
}

// SearchService forwards searches upstream and audits them.
type SearchService struct {
	upstream Upstream
	audit    AuditRepository
	log      *zap.Logger
	now      func() time.Time
}

// NewSearchService constructs a SearchService.
func NewSearchService(upstream Upstream, audit AuditRepository, log *zap.Logger) *SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{upstream: upstream, audit: audit, log: log, now: time.Now}
}

// Search records the request in the audit log and relays it upstream.
// A failing audit write is logged and does not fail the search.
func (s *SearchService) Search(ctx context.Context, req models.SearchRequest, meta RequestMeta) (*models.SearchResponse, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	entry := models.AuditEntry{
		ID:            meta.RequestID,
		Path:          meta.Path,
		Query:         req.Query,
		Model:         req.Model,
		Provider:      req.Provider,
		ClientVersion: meta.ClientVersion,
		Enveloped:     meta.Enveloped,
		Signed:        meta.Signed,
		ReceivedAt:    s.now().UTC(),
	}
	if err := s.audit.RecordRequest(ctx, entry); err != nil {
		s.log.Error("failed to record audit entry", zap.String("request_id", meta.RequestID), zap.Error(err))
	}

	return s.upstream.SearchCards(ctx, req)
}

// Recent returns the latest audit entries. limit is clamped to [1, 100].
func (s *SearchService) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	entries, err := s.audit.RecentRequests(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
