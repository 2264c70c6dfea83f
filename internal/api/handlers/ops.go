package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/signalhub/internal/lifecycle"
	"github.com/wonny/signalhub/internal/pipeline"
	"github.com/wonny/signalhub/internal/realtime/feed"
	"github.com/wonny/signalhub/internal/scheduler"
	"github.com/wonny/signalhub/pkg/database"
	"github.com/wonny/signalhub/pkg/logger"
)

// HealthChecker DB 상태 확인 (database.DB)
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// Pinger 캐시 연결 확인 (redis.Client)
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedStats 시세 제공자 상태 (feed.Manager)
type FeedStats interface {
	Stats() feed.Stats
}

// PipelineStatus 파이프라인 상태 (pipeline.Pipeline)
type PipelineStatus interface {
	Stats() pipeline.Stats
	ConfigHash() string
	TrackerStatus() []lifecycle.AssetStatus
}

// JobStats 스케줄러 잡 통계 (scheduler.Scheduler)
type JobStats interface {
	GetJobStats() map[string]scheduler.JobStats
}

// OpsHandler handles operator endpoints
// ⭐ SSOT: 운영 조회 API 핸들러는 이 구조체에서만
type OpsHandler struct {
	db       HealthChecker // nil 이면 persistence 비활성
	cache    Pinger        // nil 이면 확인 생략
	feeds    FeedStats
	pipeline PipelineStatus
	jobs     JobStats
	logger   *logger.Logger
}

// NewOpsHandler creates a new ops handler
func NewOpsHandler(db HealthChecker, cache Pinger, feeds FeedStats, p PipelineStatus, jobs JobStats, log *logger.Logger) *OpsHandler {
	return &OpsHandler{
		db:       db,
		cache:    cache,
		feeds:    feeds,
		pipeline: p,
		jobs:     jobs,
		logger:   log,
	}
}

// Health returns service health; 503 when the database or cache is unreachable
// GET /healthz
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "signalhub",
	}
	if h.pipeline != nil {
		body["config_hash"] = h.pipeline.ConfigHash()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	healthy := true
	if h.db != nil {
		status, err := h.db.HealthCheck(ctx)
		body["database"] = status
		if err != nil {
			h.logger.WithError(err).Warn("Database health check failed")
			healthy = false
		}
	}
	if h.cache != nil {
		body["redis"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("Redis health check failed")
			body["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

// FeedsResponse 피드 제공자 + 자산별 추적 상태
type FeedsResponse struct {
	Feed   *feed.Stats             `json:"feed,omitempty"`
	Assets []lifecycle.AssetStatus `json:"assets"`
}

// GetFeeds returns provider counters and per-asset polling status
// GET /v1/feeds
func (h *OpsHandler) GetFeeds(w http.ResponseWriter, r *http.Request) {
	resp := FeedsResponse{Assets: []lifecycle.AssetStatus{}}
	if h.feeds != nil {
		st := h.feeds.Stats()
		resp.Feed = &st
	}
	if h.pipeline != nil {
		if assets := h.pipeline.TrackerStatus(); len(assets) > 0 {
			resp.Assets = assets
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetStats returns pipeline counters
// GET /v1/stats
func (h *OpsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "Pipeline not running")
		return
	}
	respondJSON(w, http.StatusOK, h.pipeline.Stats())
}

// GetJobs returns scheduler job statistics
// GET /v1/jobs
func (h *OpsHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]scheduler.JobStats{})
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}
