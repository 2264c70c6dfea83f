package contracts

import "time"

// ReputationCategory 평판 분류
type ReputationCategory string

const (
	CategoryNewcomer        ReputationCategory = "newcomer"
	CategoryHighRisk        ReputationCategory = "high-risk"
	CategoryUnderperforming ReputationCategory = "underperforming"
	CategoryStable          ReputationCategory = "stable"
	CategoryHighAccuracy    ReputationCategory = "high-accuracy"
)

// Degraded 신뢰도 하락 카테고리 여부
func (c ReputationCategory) Degraded() bool {
	return c == CategoryHighRisk || c == CategoryUnderperforming
}

// SourceReputation 소스별 성과 통계
// ⭐ SSOT: Reputation Aggregator 만 기록, 나머지는 읽기 전용 스냅샷
type SourceReputation struct {
	SourceID      string             `json:"source_id"`
	TotalResolved int                `json:"total_resolved"` // 진입 후 종결된 건수
	Successes     int                `json:"successes"`
	Voided        int                `json:"voided"` // 진입 전 만료/취소
	SuccessRate   float64            `json:"success_rate"`
	AvgReturn     float64            `json:"avg_return"`
	Drawdown      float64            `json:"drawdown"` // 누적 수익 곡선 최대 낙폭
	RiskAdjusted  float64            `json:"risk_adjusted"`
	CompositeRank float64            `json:"composite_rank"` // 0~1
	Category      ReputationCategory `json:"category"`
	Eligible      bool               `json:"eligible"` // 랭킹 최소 건수 충족
	LastUpdated   time.Time          `json:"last_updated"`
}
