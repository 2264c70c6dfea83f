package contracts

import "time"

// LifecycleState 시그널 생애주기 상태
type LifecycleState string

const (
	StatePending   LifecycleState = "PENDING"
	StateActive    LifecycleState = "ACTIVE"
	StateTargetHit LifecycleState = "TARGET_HIT"
	StateStopHit   LifecycleState = "STOP_HIT"
	StateExpired   LifecycleState = "EXPIRED"
	StateCancelled LifecycleState = "CANCELLED"
)

// IsTerminal 종결 상태 여부
func (s LifecycleState) IsTerminal() bool {
	switch s {
	case StateTargetHit, StateStopHit, StateExpired, StateCancelled:
		return true
	}
	return false
}

// Transition 상태 전이 기록 (가격, 시각 포함)
type Transition struct {
	SignalID string         `json:"signal_id"`
	From     LifecycleState `json:"from"`
	To       LifecycleState `json:"to"`
	Price    float64        `json:"price"`
	At       time.Time      `json:"at"`
	Reason   string         `json:"reason,omitempty"`
}

// Resolution 종결 이벤트, 평판 집계기의 입력
type Resolution struct {
	SignalID   string         `json:"signal_id"`
	SourceID   string         `json:"source_id"`
	Asset      string         `json:"asset"`
	Direction  Direction      `json:"direction"`
	FinalState LifecycleState `json:"final_state"`
	Entered    bool           `json:"entered"` // ACTIVE 를 거쳤는지 (미진입 종결은 통계 제외)
	ReturnPct  float64        `json:"return_pct"`
	Price      float64        `json:"price"`
	ResolvedAt time.Time      `json:"resolved_at"`
}

// Success 목표가 도달 여부
func (r Resolution) Success() bool {
	return r.FinalState == StateTargetHit
}
