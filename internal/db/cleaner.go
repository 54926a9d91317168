package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartAuditCleaner deletes audit entries older than retention every interval
// until ctx is done.
func StartAuditCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).UTC()
				res, err := db.ExecContext(ctx, `DELETE FROM audit_log WHERE received_at < $1`, cutoff)
				if err != nil {
					log.Error("failed to clean audit log", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("cleaned audit log", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
