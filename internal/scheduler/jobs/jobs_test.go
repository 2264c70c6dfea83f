package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/pkg/logger"
	"github.com/wonny/signalhub/pkg/redis"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.NewNop()
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanCache() int { f.calls++; return 3 }

type fakePruner struct{ at time.Time }

func (f *fakePruner) Prune(_ context.Context, t time.Time) int { f.at = t; return 1 }

type fakeCompactor struct{ cutoff time.Time }

func (f *fakeCompactor) CompactSeen(cutoff time.Time) int { f.cutoff = cutoff; return 2 }

type fakeReputation struct{ all []contracts.SourceReputation }

func (f fakeReputation) All() []contracts.SourceReputation { return f.all }
func (f fakeReputation) Ranking() []contracts.SourceReputation {
	var out []contracts.SourceReputation
	for _, r := range f.all {
		if r.Eligible {
			out = append(out, r)
		}
	}
	return out
}

type fakeCache struct {
	key   string
	value interface{}
	ttl   time.Duration
	err   error
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	f.key, f.value, f.ttl = key, value, ttl
	return f.err
}

type scheduled interface {
	Name() string
	Schedule() string
}

func TestSchedules(t *testing.T) {
	log := testLogger()
	tests := []struct {
		name     string
		job      scheduled
		schedule string
	}{
		{"cache_cleanup", NewCacheCleanupJob(&fakeCleaner{}, log), "0 */5 * * * *"},
		{"window_prune", NewWindowPruneJob(&fakePruner{}, log), "0 * * * * *"},
		{"seen_compaction", NewSeenCompactionJob(&fakeCompactor{}, time.Hour, log), "0 */10 * * * *"},
		{"reputation_report", NewReputationReportJob(fakeReputation{}, nil, log), "0 */15 * * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.job.Name())
			assert.Equal(t, tt.schedule, tt.job.Schedule())
		})
	}
}

func TestCacheCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	require.NoError(t, NewCacheCleanupJob(cleaner, testLogger()).Run(context.Background()))
	assert.Equal(t, 1, cleaner.calls)
}

func TestWindowPruneJob(t *testing.T) {
	pruner := &fakePruner{}
	job := NewWindowPruneJob(pruner, testLogger())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now, pruner.at)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}

func TestSeenCompactionJob(t *testing.T) {
	compactor := &fakeCompactor{}
	job := NewSeenCompactionJob(compactor, 24*time.Hour, testLogger())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), compactor.cutoff)
}

func TestReputationReportJob(t *testing.T) {
	src := fakeReputation{all: []contracts.SourceReputation{
		{SourceID: "alpha", Eligible: true, CompositeRank: 0.8, Category: contracts.CategoryHighAccuracy},
		{SourceID: "beta", Eligible: true, CompositeRank: 0.3, Category: contracts.CategoryHighRisk},
		{SourceID: "gamma", Category: contracts.CategoryNewcomer},
	}}
	cache := &fakeCache{}
	job := NewReputationReportJob(src, cache, testLogger())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, redis.ReputationReportKey(), cache.key)
	assert.Equal(t, redis.TTLMedium, cache.ttl)

	report, ok := cache.value.(ReputationReport)
	require.True(t, ok)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, 3, report.Sources)
	assert.Equal(t, 2, report.Eligible)
	assert.Equal(t, 1, report.Categories[contracts.CategoryNewcomer])
	assert.Equal(t, "alpha", report.Ranking[0].SourceID)

	cache.err = errors.New("redis down")
	assert.Error(t, job.Run(context.Background()))

	// 캐시 없이도 리포트는 생성
	assert.NoError(t, NewReputationReportJob(src, nil, testLogger()).Run(context.Background()))
}
