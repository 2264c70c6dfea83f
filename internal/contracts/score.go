package contracts

// CompletenessTier 추출 완성도 등급
type CompletenessTier string

const (
	TierComplete      CompletenessTier = "complete"       // entry/target/stop/leverage/timeframe 모두
	TierMost          CompletenessTier = "most"           // entry + 5개 중 3개 이상
	TierEntry         CompletenessTier = "entry"          // entry + direction
	TierDirectionOnly CompletenessTier = "direction_only" // direction 만
)

// ScoreBreakdown 설명 가능한 점수 내역 (감사 재현용)
type ScoreBreakdown struct {
	Tier          CompletenessTier `json:"tier"`
	Base          float64          `json:"base"`
	DirectionMod  float64          `json:"direction_mod"`
	LeverageMod   float64          `json:"leverage_mod"`
	TimeframeMod  float64          `json:"timeframe_mod"`
	LinguisticMod float64          `json:"linguistic_mod"`
	ReputationMod float64          `json:"reputation_mod"`
	RankUsed      *float64         `json:"rank_used,omitempty"` // nil = 이력 부족, 중립값 사용
	Capped        bool             `json:"capped"`              // target/stop 부재로 상한 적용
	Extraction    float64          `json:"extraction"`
	Final         float64          `json:"final"`
}
