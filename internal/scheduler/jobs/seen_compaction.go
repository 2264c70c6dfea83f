package jobs

import (
	"context"
	"time"

	"github.com/wonny/signalhub/pkg/logger"
)

// SeenCompactor 처리한 메시지 키 집합 (pipeline.Pipeline)
type SeenCompactor interface {
	CompactSeen(cutoff time.Time) int
}

// SeenCompactionJob forgets idempotency keys older than the retention
type SeenCompactionJob struct {
	compactor SeenCompactor
	retention time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewSeenCompactionJob creates a new seen-set compaction job
// retention 은 공유 seen-set(Redis) TTL 과 맞춘다
func NewSeenCompactionJob(compactor SeenCompactor, retention time.Duration, log *logger.Logger) *SeenCompactionJob {
	return &SeenCompactionJob{
		compactor: compactor,
		retention: retention,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *SeenCompactionJob) Name() string {
	return "seen_compaction"
}

// Schedule returns the cron schedule (every 10 minutes)
func (j *SeenCompactionJob) Schedule() string {
	return "0 */10 * * * *"
}

// Run executes the compaction
func (j *SeenCompactionJob) Run(ctx context.Context) error {
	removed := j.compactor.CompactSeen(j.now().Add(-j.retention))
	if removed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"removed":   removed,
			"retention": j.retention.String(),
		}).Info("Seen-set compacted")
	}
	return nil
}
