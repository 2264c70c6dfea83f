package pipeline

import "github.com/wonny/signalhub/internal/contracts"

// Status 메시지/후보 처리 결과
type Status string

const (
	StatusAccepted Status = "accepted" // 새 시그널로 추적 시작
	StatusMerged   Status = "merged"   // 기존 윈도우 멤버와 연결 (그룹 병합)
	StatusRejected Status = "rejected" // 검증 실패 (reason 포함)
	StatusReplayed Status = "replayed" // 이미 처리한 메시지
	StatusInvalid  Status = "invalid"  // RawMessage 필드 누락/형식 오류
	StatusNoSignal Status = "no_signal"
	StatusFailed   Status = "failed" // 저장 실패 등 인프라 오류
)

// Candidate 메시지에서 추출된 자산별 후보 하나의 결과
type Candidate struct {
	Asset      string                     `json:"asset"`
	Direction  contracts.Direction        `json:"direction"`
	Status     Status                     `json:"status"`
	Reason     contracts.RejectReason     `json:"reason,omitempty"`
	Detail     string                     `json:"detail,omitempty"`
	SignalID   string                     `json:"signal_id,omitempty"`
	GroupID    string                     `json:"group_id,omitempty"`
	MatchKind  contracts.MatchKind        `json:"match_kind,omitempty"`
	Confidence float64                    `json:"confidence,omitempty"`
	Signal     *contracts.CanonicalSignal `json:"-"`
}

// MessageResult 메시지 한 건의 처리 결과. Ingest 는 에러를 반환하지 않고 이것만 돌려준다
type MessageResult struct {
	Key        string      `json:"key"`
	Status     Status      `json:"status"`
	Detail     string      `json:"detail,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// summarize 후보 결과로 메시지 상태 결정 (accepted > merged > failed > rejected)
func summarize(cands []Candidate) Status {
	rank := map[Status]int{StatusAccepted: 4, StatusMerged: 3, StatusFailed: 2, StatusRejected: 1}
	best := StatusNoSignal
	for _, c := range cands {
		if rank[c.Status] > rank[best] {
			best = c.Status
		}
	}
	return best
}
