package sessiondedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const secondsPerDay = 24 * 60 * 60

// Cleanup deletes sessions inactive for more than maxAgeDays, then
// deduplicates every remaining owner's sessions. A maxAgeDays of 0 expires
// every session last active before now; a negative one returns
// ErrInvalidRetention. RetentionDays reports the configured window.
//
// A failure of the bulk expiry aborts the run and store errors are
// returned as is. A failure while
// deduplicating one user is logged and recorded in Failures; the other
// users still run. Each user is committed independently, so cancelling ctx
// keeps completed work; the partial result is returned with ctx.Err().
func (m *Manager) Cleanup(ctx context.Context, maxAgeDays int) (*CleanupResult, error) {
	if maxAgeDays < 0 {
		return nil, ErrInvalidRetention
	}

	begin := time.Now()
	cutoff := m.now().Unix() - int64(maxAgeDays)*secondsPerDay
	result := &CleanupResult{}

	expired, err := m.sessions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Expired = expired
	m.logger.Info("expired sessions deleted",
		zap.Int("max_age_days", maxAgeDays),
		zap.Int64("deleted", expired),
	)

	userIDs, err := m.sessions.SelectDistinctUserIDs(ctx)
	if err != nil {
		return result, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.config.CleanupConcurrency)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}

		userID := userID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			n, err := m.DeduplicateInPlace(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.logger.Warn("failed to deduplicate user sessions",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				result.Failures = append(result.Failures, UserFailure{UserID: userID, Err: err})
				return nil
			}
			result.Duplicates += int64(n)
			result.Users++
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("session cleanup completed",
		zap.Int64("expired", result.Expired),
		zap.Int64("duplicates", result.Duplicates),
		zap.Int("users", result.Users),
		zap.Int("failed_users", len(result.Failures)),
		zap.Duration("took", time.Since(begin)),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
