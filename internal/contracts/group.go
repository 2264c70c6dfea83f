package contracts

import "time"

// GroupClassification 합의 분류
type GroupClassification string

const (
	ConsensusSingle   GroupClassification = "single"
	ConsensusModerate GroupClassification = "moderate-consensus" // 2개
	ConsensusStrong   GroupClassification = "strong-consensus"   // 3개 이상
)

// ClassifyMembers 멤버 수로 분류
func ClassifyMembers(n int) GroupClassification {
	switch {
	case n >= 3:
		return ConsensusStrong
	case n == 2:
		return ConsensusModerate
	default:
		return ConsensusSingle
	}
}

// MatchKind 중복 판정 종류 (강한 순서: exact > paraphrase > partial)
type MatchKind string

const (
	MatchNone       MatchKind = ""
	MatchPartial    MatchKind = "partial"
	MatchParaphrase MatchKind = "paraphrase"
	MatchExact      MatchKind = "exact"
)

// Strength 비교용 강도
func (k MatchKind) Strength() int {
	switch k {
	case MatchExact:
		return 3
	case MatchParaphrase:
		return 2
	case MatchPartial:
		return 1
	}
	return 0
}

// SignalGroup 여러 소스가 같은 콜을 낸 합의 그룹
// 윈도우가 닫히면(Closed) 더 이상 변경되지 않음
type SignalGroup struct {
	ID             string              `json:"id"`
	Asset          string              `json:"asset"`
	Direction      Direction           `json:"direction"`
	MemberIDs      []string            `json:"member_ids"` // 정렬됨
	SourceIDs      []string            `json:"source_ids"` // 정렬, 중복 제거
	PrimaryID      string              `json:"primary_id"`
	ConsensusScore float64             `json:"consensus_score"` // 멤버 confidence 평균
	Classification GroupClassification `json:"classification"`
	MeanEntry      *float64            `json:"mean_entry,omitempty"`
	MatchKind      MatchKind           `json:"match_kind"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Closed         bool                `json:"closed"`
}

// Size 멤버 수
func (g *SignalGroup) Size() int { return len(g.MemberIDs) }

// Clone deep copy
func (g *SignalGroup) Clone() *SignalGroup {
	c := *g
	c.MemberIDs = append([]string(nil), g.MemberIDs...)
	c.SourceIDs = append([]string(nil), g.SourceIDs...)
	c.MeanEntry = cloneFloat(g.MeanEntry)
	return &c
}
