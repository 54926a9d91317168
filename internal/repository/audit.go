// Package repository provides persistence for the gateway audit log.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/atinyakov/veil/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresAuditRepository stores audit entries in the audit_log table.
type PostgresAuditRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuditRepository creates a PostgresAuditRepository on db.
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{DB: db}
}

// RecordRequest inserts e. The request id becomes the row id when it is a
// UUID; otherwise a fresh one is generated. Recording the same request twice
// is not an error.
func (r *PostgresAuditRepository) RecordRequest(ctx context.Context, e models.AuditEntry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO audit_log (id, path, query, model, provider, client_version, enveloped, signed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id.String(), e.Path, e.Query, e.Model, e.Provider, e.ClientVersion, e.Enveloped, e.Signed, e.ReceivedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil
	}
	if err != nil {
		return fmt.Errorf("RecordRequest: %w", err)
	}
	return nil
}

// RecentRequests returns up to limit entries, newest first.
func (r *PostgresAuditRepository) RecentRequests(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, path, query, model, provider, client_version, enveloped, signed, received_at
		  FROM audit_log
		 ORDER BY received_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentRequests: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Path, &e.Query, &e.Model, &e.Provider, &e.ClientVersion, &e.Enveloped, &e.Signed, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NopAuditRepository discards entries. The gateway uses it when no database
// is configured.
type NopAuditRepository struct{}

func (NopAuditRepository) RecordRequest(context.Context, models.AuditEntry) error { return nil }

func (NopAuditRepository) RecentRequests(context.Context, int) ([]models.AuditEntry, error) {
	return []models.AuditEntry{}, nil
}
