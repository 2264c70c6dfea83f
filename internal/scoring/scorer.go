package scoring

import (
	"math"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// Ranker 소스 평판 스냅샷 조회
// 이력이 부족하면 error (reputation.ErrInsufficientHistory)
type Ranker interface {
	Rank(sourceID string) (float64, error)
}

// RankFor reads the composite rank of sourceID, nil when unavailable
func RankFor(r Ranker, sourceID string) *float64 {
	if r == nil {
		return nil
	}
	rank, err := r.Rank(sourceID)
	if err != nil {
		return nil
	}
	return contracts.Float(rank)
}

// Scorer 신뢰도 점수 계산기
// ⭐ SSOT: 같은 Draft + 같은 평판 스냅샷 → 항상 같은 점수 (감사 재현)
type Scorer struct {
	cfg signalconfig.Scoring
}

// New creates a scorer over the scoring tables of cfg
func New(cfg *signalconfig.Config) *Scorer {
	return &Scorer{cfg: cfg.Scoring}
}

// Score computes the breakdown for d. rank 은 소스의 composite rank (nil = 중립)
func (s *Scorer) Score(d contracts.Draft, rank *float64) contracts.ScoreBreakdown {
	c := s.cfg

	b := contracts.ScoreBreakdown{
		DirectionMod:  s.bound(s.directionMod(d.Direction)),
		LeverageMod:   s.bound(s.leverageMod(d.Leverage)),
		TimeframeMod:  s.bound(s.timeframeMod(d.Timeframe)),
		LinguisticMod: s.bound(s.linguisticMod(d.Features)),
		ReputationMod: 1.0,
	}
	b.Tier = Tier(d)
	b.Base = s.base(b.Tier)

	if rank != nil {
		r := clamp(*rank, 0, 1)
		b.RankUsed = contracts.Float(r)
		b.ReputationMod = s.bound(c.ReputationFloor + c.ReputationSpan*r)
	}

	extraction := b.Base * b.DirectionMod * b.LeverageMod * b.TimeframeMod * b.LinguisticMod
	final := extraction * b.ReputationMod

	// 청산 기준(target/stop) 이 하나도 없으면 낮은 상한
	if !d.HasTargets() && !d.HasExtractedStop() {
		b.Capped = true
		extraction = math.Min(extraction, c.NoExitCeiling)
		final = math.Min(final, c.NoExitCeiling)
	}

	b.Extraction = round(clamp(extraction, c.FinalMin, c.FinalMax))
	b.Final = round(clamp(final, c.FinalMin, c.FinalMax))
	return b
}

// Tier classifies completeness over entry, target, extracted stop, leverage and timeframe.
// 합성된 손절은 추출된 필드로 세지 않음
func Tier(d contracts.Draft) contracts.CompletenessTier {
	if !d.HasEntry() {
		return contracts.TierDirectionOnly
	}
	n := 1
	if d.HasTargets() {
		n++
	}
	if d.HasExtractedStop() {
		n++
	}
	if d.Leverage != nil {
		n++
	}
	if d.Timeframe != nil {
		n++
	}
	switch {
	case n == 5:
		return contracts.TierComplete
	case n >= 3:
		return contracts.TierMost
	default:
		return contracts.TierEntry
	}
}

func (s *Scorer) base(t contracts.CompletenessTier) float64 {
	tb := s.cfg.TierBase
	switch t {
	case contracts.TierComplete:
		return tb.Complete
	case contracts.TierMost:
		return tb.Most
	case contracts.TierEntry:
		return tb.Entry
	}
	return tb.DirectionOnly
}

func (s *Scorer) directionMod(d contracts.Direction) float64 {
	if d == contracts.DirectionLong {
		return s.cfg.LongFactor
	}
	return s.cfg.ShortFactor
}

func (s *Scorer) leverageMod(lev *int) float64 {
	if lev == nil {
		return 1.0
	}
	for _, band := range s.cfg.LeverageBands {
		if band.MaxLeverage == 0 || *lev <= band.MaxLeverage {
			return band.Factor
		}
	}
	return 1.0
}

func (s *Scorer) timeframeMod(tf *contracts.Timeframe) float64 {
	if tf == nil || tf.Horizon <= 0 {
		return 1.0
	}
	switch {
	case tf.Horizon < time.Hour:
		return s.cfg.TimeframeSubHour
	case tf.Horizon < 24*time.Hour:
		return s.cfg.TimeframeIntraday
	default:
		return s.cfg.TimeframeMultiDay
	}
}

func (s *Scorer) linguisticMod(f contracts.LinguisticFeatures) float64 {
	c := s.cfg
	labeled := f.LabeledFields
	if labeled > 3 {
		labeled = 3
	}
	m := 1 - c.HypePenalty*float64(f.HypeTerms) - c.HedgePenalty*float64(f.HedgeTerms) + c.LabelBonus*float64(labeled)
	return clamp(m, c.LinguisticMin, c.LinguisticMax)
}

// bound 개별 modifier 범위 제한
func (s *Scorer) bound(v float64) float64 {
	return clamp(v, s.cfg.ModifierMin, s.cfg.ModifierMax)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round 부동소수 누적 오차 제거 (1e-6 단위)
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
