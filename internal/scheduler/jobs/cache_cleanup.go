package jobs

import (
	"context"

	"github.com/wonny/signalhub/pkg/logger"
)

// CacheCleaner 오래된 시세 캐시를 정리하는 대상 (feed.Manager)
type CacheCleaner interface {
	CleanCache() int
}

// CacheCleanupJob cleans stale prices from the feed cache
type CacheCleanupJob struct {
	cleaner CacheCleaner
	logger  *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(cleaner CacheCleaner, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cleaner: cleaner,
		logger:  log,
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CacheCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	count := j.cleaner.CleanCache()
	if count > 0 {
		j.logger.WithField("removed", count).Info("Price cache cleanup completed")
	}
	return nil
}
