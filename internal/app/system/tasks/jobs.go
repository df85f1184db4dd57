// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionCleanupInterval is how often expired sessions are purged. The TTL
// index on sessions.expires_at also removes them, but only about once a
// minute and not at all on some hosted servers.
const SessionCleanupInterval = time.Hour

// ExpiredSessionDeleter is the slice of the session store the cleanup job
// needs.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionCleanupJob creates a job that removes expired sessions.
func SessionCleanupJob(sessions ExpiredSessionDeleter, logger *zap.Logger) Job {
	return Job{
		Name:     "session-cleanup",
		Interval: SessionCleanupInterval,
		Run: func(ctx context.Context) error {
			deleted, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("cleaned up expired sessions",
					zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}
