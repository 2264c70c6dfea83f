package signalconfig

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Assets ===
	if len(cfg.Assets.Symbols) == 0 {
		return ValidationError{"assets.symbols", "must not be empty"}
	}
	if !cfg.Assets.HasQuote(cfg.Assets.DefaultQuote) {
		return ValidationError{"assets.default_quote", fmt.Sprintf("%q must be listed in assets.quotes", cfg.Assets.DefaultQuote)}
	}
	seen := make(map[string]bool)
	for i, s := range cfg.Assets.Symbols {
		field := fmt.Sprintf("assets.symbols[%d]", i)
		sym := strings.ToUpper(s.Symbol)
		if sym == "" {
			return ValidationError{field + ".symbol", "required"}
		}
		if seen[sym] {
			return ValidationError{field + ".symbol", fmt.Sprintf("duplicate symbol %s", sym)}
		}
		seen[sym] = true
		if s.MinPrice <= 0 || s.MaxPrice <= s.MinPrice {
			return ValidationError{field, "must satisfy 0 < min_price < max_price"}
		}
	}

	// === Extraction ===
	if err := validateOpenPct(cfg.Extraction.DefaultStopPct, "extraction.default_stop_pct"); err != nil {
		return err
	}
	if cfg.Extraction.MaxTargets < 1 || cfg.Extraction.MaxTargets > 3 {
		return ValidationError{"extraction.max_targets", "must be in [1, 3]"}
	}

	// === Validation ===
	v := cfg.Validation
	if v.MinLeverage < 1 || v.MinLeverage > v.MaxLeverage {
		return ValidationError{"validation", "must satisfy 1 <= min_leverage <= max_leverage"}
	}

	// === Scoring ===
	s := cfg.Scoring
	if s.ModifierMin <= 0 || s.ModifierMin > 1 || s.ModifierMax < 1 {
		return ValidationError{"scoring.modifier_min/max", "must satisfy 0 < modifier_min <= 1 <= modifier_max"}
	}
	tb := s.TierBase
	if !(tb.DirectionOnly < tb.Entry && tb.Entry < tb.Most && tb.Most < tb.Complete) {
		return ValidationError{"scoring.tier_base", "must be strictly increasing direction_only < entry < most < complete"}
	}
	if err := validatePctRange(tb.Complete, "scoring.tier_base.complete"); err != nil {
		return err
	}
	if err := validatePctRange(tb.DirectionOnly, "scoring.tier_base.direction_only"); err != nil {
		return err
	}
	if len(s.LeverageBands) == 0 || s.LeverageBands[len(s.LeverageBands)-1].MaxLeverage != 0 {
		return ValidationError{"scoring.leverage_bands", "last band must be open-ended (max_leverage: 0)"}
	}
	prev := 0
	for i, b := range s.LeverageBands[:len(s.LeverageBands)-1] {
		if b.MaxLeverage <= prev {
			return ValidationError{fmt.Sprintf("scoring.leverage_bands[%d]", i), "max_leverage must be strictly increasing"}
		}
		prev = b.MaxLeverage
	}
	if s.LinguisticMin > s.LinguisticMax {
		return ValidationError{"scoring.linguistic_min", "must be <= linguistic_max"}
	}
	if s.ReputationFloor <= 0 || s.ReputationSpan < 0 {
		return ValidationError{"scoring.reputation_floor", "floor must be > 0 and span >= 0"}
	}
	if !(0 < s.FinalMin && s.FinalMin < s.FinalMax && s.FinalMax < 1) {
		return ValidationError{"scoring.final_min/max", "must satisfy 0 < final_min < final_max < 1"}
	}
	if s.NoExitCeiling < s.FinalMin || s.NoExitCeiling > s.FinalMax {
		return ValidationError{"scoring.no_exit_ceiling", "must lie within [final_min, final_max]"}
	}

	// === Dedup ===
	d := cfg.Dedup
	if d.Window <= 0 || d.ExactTimeWindow <= 0 || d.ExactTimeWindow > d.Window {
		return ValidationError{"dedup.window", "must satisfy 0 < exact_time_window <= window"}
	}
	if err := validateOpenPct(d.ExactEntryTolerance, "dedup.exact_entry_tolerance"); err != nil {
		return err
	}
	if d.PartialEntryTolerance < d.ExactEntryTolerance {
		return ValidationError{"dedup.partial_entry_tolerance", "must be >= exact_entry_tolerance"}
	}
	if d.TextSimilarity <= 0 || d.TextSimilarity > 1 {
		return ValidationError{"dedup.text_similarity_threshold", "must be in (0, 1]"}
	}

	// === Lifecycle ===
	l := cfg.Lifecycle
	if l.EntryTolerance < 0 || l.EntryTolerance >= 0.1 {
		return ValidationError{"lifecycle.entry_tolerance", "must be in [0, 0.1)"}
	}
	if l.DefaultExpiry < 0 {
		return ValidationError{"lifecycle.default_expiry", "must be >= 0 (0 = never)"}
	}
	if l.DegradedAfter < 1 {
		return ValidationError{"lifecycle.degraded_after", "must be >= 1"}
	}
	if l.BackoffMax <= 0 || l.StaleAfter <= 0 {
		return ValidationError{"lifecycle.backoff_max/stale_after", "must be > 0"}
	}

	// === Reputation ===
	r := cfg.Reputation
	if r.MinResolved < 1 || r.HistoryLimit < r.MinResolved {
		return ValidationError{"reputation.min_resolved", "must satisfy 1 <= min_resolved <= history_limit"}
	}
	if err := validateWeightsSum([]float64{r.SuccessWeight, r.ReturnWeight, r.RiskAdjWeight, r.DrawdownWeight}, 1.0, 1e-6); err != nil {
		return ValidationError{"reputation.weights", err.Error()}
	}
	if r.ReturnScale <= 0 || r.RiskAdjScale <= 0 || r.DrawdownScale <= 0 {
		return ValidationError{"reputation.*_scale", "must be > 0"}
	}

	return nil
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("weights must be >= 0")
		}
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validatePctRange는 퍼센트 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}

// validateOpenPct는 (0, 1) 범위 검증
func validateOpenPct(pct float64, field string) error {
	if pct <= 0 || pct >= 1 {
		return ValidationError{field, "must be in range (0, 1)"}
	}
	return nil
}
