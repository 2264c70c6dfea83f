package jobs

import (
	"context"
	"time"

	"github.com/wonny/signalhub/pkg/logger"
)

// WindowPruner 중복 판정 윈도우를 정리하는 대상 (pipeline.Pipeline)
type WindowPruner interface {
	Prune(ctx context.Context, now time.Time) int
}

// WindowPruneJob evicts signals older than the dedup window and closes their groups
type WindowPruneJob struct {
	pruner WindowPruner
	logger *logger.Logger
	now    func() time.Time
}

// NewWindowPruneJob creates a new dedup window prune job
func NewWindowPruneJob(pruner WindowPruner, log *logger.Logger) *WindowPruneJob {
	return &WindowPruneJob{pruner: pruner, logger: log, now: time.Now}
}

// Name returns the job name
func (j *WindowPruneJob) Name() string {
	return "window_prune"
}

// Schedule returns the cron schedule (every minute)
func (j *WindowPruneJob) Schedule() string {
	return "0 * * * * *"
}

// Run executes the prune
func (j *WindowPruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	closed := j.pruner.Prune(ctx, j.now())
	if closed > 0 {
		j.logger.WithField("closed_groups", closed).Info("Dedup window pruned")
	}
	return nil
}
