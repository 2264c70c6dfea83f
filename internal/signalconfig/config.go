package signalconfig

import (
	"strings"
	"time"
)

// Config 파이프라인 튜닝 테이블 전체
// 임계값/가중치는 코드에 박지 않고 모두 여기서 주입
type Config struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Assets     Assets     `yaml:"assets" json:"assets"`
	Extraction Extraction `yaml:"extraction" json:"extraction"`
	Validation Validation `yaml:"validation" json:"validation"`
	Scoring    Scoring    `yaml:"scoring" json:"scoring"`
	Dedup      Dedup      `yaml:"dedup" json:"dedup"`
	Lifecycle  Lifecycle  `yaml:"lifecycle" json:"lifecycle"`
	Reputation Reputation `yaml:"reputation" json:"reputation"`
}

// Meta 메타 정보
type Meta struct {
	ConfigID string `yaml:"config_id" json:"config_id" default:"signalhub-default"`
	Version  string `yaml:"version" json:"version" default:"1"`
}

// Assets 지원 자산 집합
type Assets struct {
	DefaultQuote string      `yaml:"default_quote" json:"default_quote" default:"USDT"`
	Quotes       []string    `yaml:"quotes" json:"quotes"`               // 인식하는 quote 접미사
	BandQuotes   []string    `yaml:"band_quotes" json:"band_quotes"`     // 가격 밴드를 적용하는 (USD 계열) quote
	Symbols      []AssetSpec `yaml:"symbols" json:"symbols"`
}

// AssetSpec 자산별 설정
type AssetSpec struct {
	Symbol      string   `yaml:"symbol" json:"symbol"`             // BTC
	Aliases     []string `yaml:"aliases" json:"aliases"`           // bitcoin (대소문자 무시)
	MinPrice    float64  `yaml:"min_price" json:"min_price"`       // 진입가 허용 밴드 (USD)
	MaxPrice    float64  `yaml:"max_price" json:"max_price"`
	CoinGeckoID string   `yaml:"coingecko_id" json:"coingecko_id"` // 시세 폴백용
}

// Find looks up a base symbol (case-insensitive)
func (a Assets) Find(base string) (AssetSpec, bool) {
	for _, s := range a.Symbols {
		if strings.EqualFold(s.Symbol, base) {
			return s, true
		}
	}
	return AssetSpec{}, false
}

// HasQuote reports whether quote is a recognised quote currency
func (a Assets) HasQuote(quote string) bool {
	return containsFold(a.Quotes, quote)
}

// BandApplies reports whether the per-asset price band is meaningful for quote
func (a Assets) BandApplies(quote string) bool {
	return containsFold(a.BandQuotes, quote)
}

// Extraction 추출기 설정
type Extraction struct {
	DefaultStopPct float64 `yaml:"default_stop_pct" json:"default_stop_pct" default:"0.02"` // 손절 합성 오프셋
	MaxTargets     int     `yaml:"max_targets" json:"max_targets" default:"3"`
}

// Validation 검증기 설정
type Validation struct {
	MinLeverage int `yaml:"min_leverage" json:"min_leverage" default:"1"`
	MaxLeverage int `yaml:"max_leverage" json:"max_leverage" default:"100"`
}

// Scoring 신뢰도 점수 테이블
type Scoring struct {
	TierBase TierBase `yaml:"tier_base" json:"tier_base"`

	ModifierMin float64 `yaml:"modifier_min" json:"modifier_min" default:"0.5"`
	ModifierMax float64 `yaml:"modifier_max" json:"modifier_max" default:"1.5"`

	// 방향 비대칭 (조정 가능한 상수, 검증된 값 아님)
	LongFactor  float64 `yaml:"long_factor" json:"long_factor" default:"1.05"`
	ShortFactor float64 `yaml:"short_factor" json:"short_factor" default:"1.0"`

	LeverageBands []LeverageBand `yaml:"leverage_bands" json:"leverage_bands"`

	TimeframeSubHour  float64 `yaml:"timeframe_sub_hour" json:"timeframe_sub_hour" default:"0.9"`
	TimeframeIntraday float64 `yaml:"timeframe_intraday" json:"timeframe_intraday" default:"1.0"`
	TimeframeMultiDay float64 `yaml:"timeframe_multi_day" json:"timeframe_multi_day" default:"1.05"`

	HypePenalty   float64 `yaml:"hype_penalty" json:"hype_penalty" default:"0.05"`
	HedgePenalty  float64 `yaml:"hedge_penalty" json:"hedge_penalty" default:"0.03"`
	LabelBonus    float64 `yaml:"label_bonus" json:"label_bonus" default:"0.02"`
	LinguisticMin float64 `yaml:"linguistic_min" json:"linguistic_min" default:"0.8"`
	LinguisticMax float64 `yaml:"linguistic_max" json:"linguistic_max" default:"1.05"`

	// reputation_mod = floor + span * composite_rank
	ReputationFloor float64 `yaml:"reputation_floor" json:"reputation_floor" default:"0.75"`
	ReputationSpan  float64 `yaml:"reputation_span" json:"reputation_span" default:"0.5"`

	NoExitCeiling float64 `yaml:"no_exit_ceiling" json:"no_exit_ceiling" default:"0.35"`
	FinalMin      float64 `yaml:"final_min" json:"final_min" default:"0.05"`
	FinalMax      float64 `yaml:"final_max" json:"final_max" default:"0.95"`
}

// TierBase 완성도 등급별 기본 점수
type TierBase struct {
	Complete      float64 `yaml:"complete" json:"complete" default:"0.8"`
	Most          float64 `yaml:"most" json:"most" default:"0.65"`
	Entry         float64 `yaml:"entry" json:"entry" default:"0.45"`
	DirectionOnly float64 `yaml:"direction_only" json:"direction_only" default:"0.25"`
}

// LeverageBand 레버리지 상한별 계수 (MaxLeverage 0 = 상한 없음)
type LeverageBand struct {
	MaxLeverage int     `yaml:"max_leverage" json:"max_leverage"`
	Factor      float64 `yaml:"factor" json:"factor"`
}

// Dedup 중복/합의 그룹 설정
type Dedup struct {
	Window                time.Duration `yaml:"window" json:"window" default:"24h"`
	ExactEntryTolerance   float64       `yaml:"exact_entry_tolerance" json:"exact_entry_tolerance" default:"0.01"`
	ExactTimeWindow       time.Duration `yaml:"exact_time_window" json:"exact_time_window" default:"6h"`
	TextSimilarity        float64       `yaml:"text_similarity_threshold" json:"text_similarity_threshold" default:"0.9"`
	PartialEntryTolerance float64       `yaml:"partial_entry_tolerance" json:"partial_entry_tolerance" default:"0.05"`
	GroupSingletons       bool          `yaml:"group_singletons" json:"group_singletons"`
}

// Lifecycle 가격 추적기 설정
type Lifecycle struct {
	EntryTolerance float64       `yaml:"entry_tolerance" json:"entry_tolerance" default:"0.005"`
	DefaultExpiry  time.Duration `yaml:"default_expiry" json:"default_expiry" default:"72h"`
	DegradedAfter  int           `yaml:"degraded_after" json:"degraded_after" default:"3"`
	BackoffMax     time.Duration `yaml:"backoff_max" json:"backoff_max" default:"2m"`
	StaleAfter     time.Duration `yaml:"stale_after" json:"stale_after" default:"2m"` // 이보다 오래된 틱은 사용하지 않음
}

// Reputation 평판 집계 설정
type Reputation struct {
	MinResolved  int `yaml:"min_resolved" json:"min_resolved" default:"5"`
	HistoryLimit int `yaml:"history_limit" json:"history_limit" default:"500"`

	SuccessWeight  float64 `yaml:"success_weight" json:"success_weight" default:"0.4"`
	ReturnWeight   float64 `yaml:"return_weight" json:"return_weight" default:"0.25"`
	RiskAdjWeight  float64 `yaml:"risk_adj_weight" json:"risk_adj_weight" default:"0.2"`
	DrawdownWeight float64 `yaml:"drawdown_weight" json:"drawdown_weight" default:"0.15"`

	ReturnScale   float64 `yaml:"return_scale" json:"return_scale" default:"0.1"`     // 평균 수익률 정규화 기준
	RiskAdjScale  float64 `yaml:"risk_adj_scale" json:"risk_adj_scale" default:"2.0"` // 위험조정 비율 정규화 기준
	DrawdownScale float64 `yaml:"drawdown_scale" json:"drawdown_scale" default:"0.5"` // 이 낙폭이면 패널티 최대

	HighRiskDrawdown    float64 `yaml:"high_risk_drawdown" json:"high_risk_drawdown" default:"0.3"`
	UnderperformSuccess float64 `yaml:"underperform_success" json:"underperform_success" default:"0.4"`
	HighAccuracySuccess float64 `yaml:"high_accuracy_success" json:"high_accuracy_success" default:"0.7"`
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
