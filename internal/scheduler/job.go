package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled maintenance job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Run(ctx context.Context) error
	// Schedule cron 표현식 (초 단위 포함 6필드) 또는 "@every 10m"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit 잡별로 보관하는 최근 실행 결과 수
const historyLimit = 100

// JobHistory 최근 실행 결과 (오래된 순). Scheduler.mu 아래에서만 접근
type JobHistory struct {
	Results []JobResult
}

// Add appends a result, keeping the latest historyLimit
func (h *JobHistory) Add(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = append(h.Results[:0:0], h.Results[len(h.Results)-historyLimit:]...)
	}
}

// Latest returns up to n most recent results, newest last
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// Failures 실패 건수
func (h *JobHistory) Failures() int {
	n := 0
	for _, r := range h.Results {
		if !r.Success {
			n++
		}
	}
	return n
}

// ConsecutiveFailures 마지막 성공 이후 연속 실패 수
func (h *JobHistory) ConsecutiveFailures() int {
	n := 0
	for i := len(h.Results) - 1; i >= 0 && !h.Results[i].Success; i-- {
		n++
	}
	return n
}

// SuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	return float64(len(h.Results)-h.Failures()) / float64(len(h.Results))
}

// lastWhere 조건에 맞는 가장 최근 실행 시각
func (h *JobHistory) lastWhere(match func(JobResult) bool) *time.Time {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if match(h.Results[i]) {
			at := h.Results[i].StartTime
			return &at
		}
	}
	return nil
}
