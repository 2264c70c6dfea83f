package contracts

import (
	"fmt"
	"time"
)

// Direction 매매 방향
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Valid reports whether d is LONG or SHORT
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// PriceZone 진입 가격 구간 (단일 가격이면 Low == High)
type PriceZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// SinglePrice builds a zero-width zone
func SinglePrice(p float64) PriceZone {
	return PriceZone{Low: p, High: p}
}

// NewZone orders the bounds so Low <= High
func NewZone(a, b float64) PriceZone {
	if a > b {
		a, b = b, a
	}
	return PriceZone{Low: a, High: b}
}

// Mid 구간 중앙값
func (z PriceZone) Mid() float64 {
	return (z.Low + z.High) / 2
}

// IsRange reports whether the zone has width
func (z PriceZone) IsRange() bool {
	return z.High > z.Low
}

// Contains reports whether price lies within the zone widened by tol (fraction)
func (z PriceZone) Contains(price, tol float64) bool {
	return price >= z.Low*(1-tol) && price <= z.High*(1+tol)
}

func (z PriceZone) String() string {
	if z.IsRange() {
		return fmt.Sprintf("%g-%g", z.Low, z.High)
	}
	return fmt.Sprintf("%g", z.Low)
}

// Timeframe 보유 기간 태그
type Timeframe struct {
	Tag     string        `json:"tag"`     // 원문 표기 정규화 (15m, 4h, 1d, swing ...)
	Horizon time.Duration `json:"horizon"` // 점수 계산용 대표 기간
}

// LinguisticFeatures 추출 단계에서 세는 언어적 특징
type LinguisticFeatures struct {
	HypeTerms     int  `json:"hype_terms"`     // moon, guaranteed, 🚀🚀 ...
	HedgeTerms    int  `json:"hedge_terms"`    // maybe, might, not sure ...
	LabeledFields int  `json:"labeled_fields"` // entry/tp/sl 등 라벨로 잡힌 필드 수
	Positional    bool `json:"positional"`     // 위치 휴리스틱으로 가격을 배정했는지
}

// Draft 추출기가 만든 미검증 시그널
// 필드가 없으면 nil (포인터) 로 표현, 느슨한 map 을 쓰지 않음
type Draft struct {
	Asset           string             `json:"asset"` // BASE/QUOTE
	Direction       Direction          `json:"direction"`
	Entry           *PriceZone         `json:"entry,omitempty"`
	Targets         []float64          `json:"targets"` // 0~3개, 방향 기준 가까운 순
	Stop            *float64           `json:"stop,omitempty"`
	StopSynthesized bool               `json:"stop_synthesized"`
	Leverage        *int               `json:"leverage,omitempty"`
	Timeframe       *Timeframe         `json:"timeframe,omitempty"`
	Features        LinguisticFeatures `json:"features"`
}

// HasEntry reports whether an entry price was extracted
func (d *Draft) HasEntry() bool { return d.Entry != nil }

// HasTargets reports whether at least one target was extracted
func (d *Draft) HasTargets() bool { return len(d.Targets) > 0 }

// HasExtractedStop reports a stop that came from the text, not synthesis
func (d *Draft) HasExtractedStop() bool { return d.Stop != nil && !d.StopSynthesized }

// FirstTarget 첫 번째 목표가 (없으면 0, false)
func (d *Draft) FirstTarget() (float64, bool) {
	if len(d.Targets) == 0 {
		return 0, false
	}
	return d.Targets[0], true
}

// RejectReason 검증 결과 코드
type RejectReason string

const (
	ReasonOK                  RejectReason = "ok"
	ReasonUnsupportedAsset    RejectReason = "unsupported_asset"
	ReasonNonPositivePrice    RejectReason = "non_positive_price"
	ReasonPriceOrderViolation RejectReason = "price_order_violation"
	ReasonPriceOutOfBand      RejectReason = "price_out_of_band"
	ReasonLeverageOutOfBounds RejectReason = "leverage_out_of_bounds"
)

// ValidationResult 검증 결과
type ValidationResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason"`
	Detail   string       `json:"detail,omitempty"`
}

// Accept 통과 결과
func Accept() ValidationResult {
	return ValidationResult{Accepted: true, Reason: ReasonOK}
}

// Reject 거절 결과
func Reject(reason RejectReason, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// CanonicalSignal 정규화된 시그널
// ⭐ SSOT: Confidence 는 Scorer 가 한 번 기록 후 고정, State 는 Tracker 만 변경
type CanonicalSignal struct {
	ID string `json:"id"`
	Draft

	// 출처
	Platform  string `json:"platform"`
	SourceID  string `json:"source_id"`
	Author    string `json:"author,omitempty"`
	MessageID string `json:"message_id"`
	RawText   string `json:"raw_text"`

	// 점수
	ExtractionConfidence float64        `json:"extraction_confidence"`
	Confidence           float64        `json:"confidence"`
	Score                ScoreBreakdown `json:"score"`
	ConfigHash           string         `json:"config_hash"`

	Validation ValidationResult `json:"validation"`
	State      LifecycleState   `json:"state"`
	GroupID    string           `json:"group_id,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	ActivationPrice *float64   `json:"activation_price,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionPrice *float64   `json:"resolution_price,omitempty"`
	ReturnPct       *float64   `json:"return_pct,omitempty"`
}

// EntryReference 수익률 계산 기준가: 진입 구간 중앙값, 없으면 활성화 가격
func (s *CanonicalSignal) EntryReference() (float64, bool) {
	if s.Entry != nil {
		return s.Entry.Mid(), true
	}
	if s.ActivationPrice != nil {
		return *s.ActivationPrice, true
	}
	return 0, false
}

// Clone returns a deep copy so snapshots never share pointers with live state
func (s *CanonicalSignal) Clone() *CanonicalSignal {
	c := *s
	if s.Entry != nil {
		e := *s.Entry
		c.Entry = &e
	}
	c.Targets = append([]float64(nil), s.Targets...)
	c.Stop = cloneFloat(s.Stop)
	if s.Leverage != nil {
		l := *s.Leverage
		c.Leverage = &l
	}
	if s.Timeframe != nil {
		tf := *s.Timeframe
		c.Timeframe = &tf
	}
	c.ExpiresAt = cloneTime(s.ExpiresAt)
	c.ActivatedAt = cloneTime(s.ActivatedAt)
	c.ActivationPrice = cloneFloat(s.ActivationPrice)
	c.ResolvedAt = cloneTime(s.ResolvedAt)
	c.ResolutionPrice = cloneFloat(s.ResolutionPrice)
	c.ReturnPct = cloneFloat(s.ReturnPct)
	return &c
}

// ReturnPct 방향 기준 수익률 (fraction, 0.02 = 2%)
func ReturnPct(dir Direction, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	if dir == DirectionShort {
		return (entry - exit) / entry
	}
	return (exit - entry) / entry
}

// Float 포인터 헬퍼
func Float(v float64) *float64 { return &v }

// Int 포인터 헬퍼
func Int(v int) *int { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
