package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/pkg/logger"
	"github.com/wonny/signalhub/pkg/redis"
)

// ReputationSource 평판 스냅샷 제공자 (reputation.Aggregator)
type ReputationSource interface {
	Ranking() []contracts.SourceReputation
	All() []contracts.SourceReputation
}

// ReportCache 리포트 저장소 (redis.Cache). nil 이면 로그만 남김
type ReportCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReputationReport 운영자용 평판 요약
type ReputationReport struct {
	GeneratedAt time.Time                            `json:"generated_at"`
	Sources     int                                  `json:"sources"`
	Eligible    int                                  `json:"eligible"`
	Categories  map[contracts.ReputationCategory]int `json:"categories"`
	Ranking     []contracts.SourceReputation         `json:"ranking"`
}

// ReputationReportJob builds the reputation report and caches it
type ReputationReportJob struct {
	source ReputationSource
	cache  ReportCache
	logger *logger.Logger
	now    func() time.Time
}

// NewReputationReportJob creates a new reputation report job
func NewReputationReportJob(source ReputationSource, cache ReportCache, log *logger.Logger) *ReputationReportJob {
	return &ReputationReportJob{
		source: source,
		cache:  cache,
		logger: log,
		now:    time.Now,
	}
}

// Name returns the job name
func (j *ReputationReportJob) Name() string {
	return "reputation_report"
}

// Schedule returns the cron schedule (every 15 minutes)
func (j *ReputationReportJob) Schedule() string {
	return "0 */15 * * * *"
}

// Build 현재 스냅샷으로 리포트 생성
func (j *ReputationReportJob) Build() ReputationReport {
	all := j.source.All()
	ranking := j.source.Ranking()

	report := ReputationReport{
		GeneratedAt: j.now(),
		Sources:     len(all),
		Eligible:    len(ranking),
		Categories:  make(map[contracts.ReputationCategory]int),
		Ranking:     ranking,
	}
	for _, rep := range all {
		report.Categories[rep.Category]++
	}
	return report
}

// Run executes the report
func (j *ReputationReportJob) Run(ctx context.Context) error {
	report := j.Build()

	fields := map[string]interface{}{
		"sources":  report.Sources,
		"eligible": report.Eligible,
	}
	if len(report.Ranking) > 0 {
		fields["top_source"] = report.Ranking[0].SourceID
		fields["top_rank"] = report.Ranking[0].CompositeRank
	}
	j.logger.WithFields(fields).Info("Reputation report generated")

	if j.cache == nil {
		return nil
	}
	if err := j.cache.Set(ctx, redis.ReputationReportKey(), report, redis.TTLMedium); err != nil {
		return fmt.Errorf("cache reputation report: %w", err)
	}
	return nil
}
