package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupService deletes interview records past the retention period.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
	now           func() time.Time
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays, now: time.Now}
}

// CleanupOldData removes records not updated within the retention period and
// returns how many were deleted.
func (s *CleanupService) CleanupOldData(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.RetentionDays)
	tag, err := s.Pool.Exec(ctx, `DELETE FROM interview_records WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.run: %w", err)
	}
	slog.Info("data cleanup completed",
		slog.Int64("deleted_records", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return tag.RowsAffected(), nil
}

// RunPeriodic runs the cleanup now and then every interval until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
