package validate

import (
	"strings"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// Validator Draft 검증기
// 순서: 자산 → 양수 → 방향별 가격 순서 → 가격 밴드 → 레버리지. 첫 실패에서 중단
type Validator struct {
	assets     signalconfig.Assets
	validation signalconfig.Validation
}

// New creates a validator bound to cfg
func New(cfg *signalconfig.Config) *Validator {
	return &Validator{assets: cfg.Assets, validation: cfg.Validation}
}

// Validate checks d and returns the first failing reason, or ok
func (v *Validator) Validate(d contracts.Draft) contracts.ValidationResult {
	base, quote, ok := splitAsset(d.Asset)
	if !ok {
		return contracts.Reject(contracts.ReasonUnsupportedAsset, "malformed asset %q", d.Asset)
	}
	spec, found := v.assets.Find(base)
	if !found {
		return contracts.Reject(contracts.ReasonUnsupportedAsset, "base %s is not supported", base)
	}
	if !v.assets.HasQuote(quote) {
		return contracts.Reject(contracts.ReasonUnsupportedAsset, "quote %s is not supported", quote)
	}

	if r := checkPositive(d); !r.Accepted {
		return r
	}
	if r := checkOrdering(d); !r.Accepted {
		return r
	}
	if v.assets.BandApplies(quote) {
		if r := checkBand(d, spec); !r.Accepted {
			return r
		}
	}

	if d.Leverage != nil {
		lev := *d.Leverage
		if lev < v.validation.MinLeverage || lev > v.validation.MaxLeverage {
			return contracts.Reject(contracts.ReasonLeverageOutOfBounds,
				"leverage %d outside [%d, %d]", lev, v.validation.MinLeverage, v.validation.MaxLeverage)
		}
	}

	return contracts.Accept()
}

func splitAsset(asset string) (base, quote string, ok bool) {
	parts := strings.Split(asset, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func checkPositive(d contracts.Draft) contracts.ValidationResult {
	if d.Entry != nil && (d.Entry.Low <= 0 || d.Entry.High <= 0) {
		return contracts.Reject(contracts.ReasonNonPositivePrice, "entry %s", d.Entry)
	}
	for i, t := range d.Targets {
		if t <= 0 {
			return contracts.Reject(contracts.ReasonNonPositivePrice, "target[%d] %g", i, t)
		}
	}
	if d.Stop != nil && *d.Stop <= 0 {
		return contracts.Reject(contracts.ReasonNonPositivePrice, "stop %g", *d.Stop)
	}
	return contracts.Accept()
}

// checkOrdering LONG: stop < entry.Low, entry.High < targets / SHORT 은 반대
// 진입가가 없으면 stop 과 target 의 상대 순서만 본다
func checkOrdering(d contracts.Draft) contracts.ValidationResult {
	long := d.Direction == contracts.DirectionLong

	if d.Entry != nil {
		for i, t := range d.Targets {
			if long && t <= d.Entry.High {
				return contracts.Reject(contracts.ReasonPriceOrderViolation, "LONG target[%d] %g <= entry %s", i, t, d.Entry)
			}
			if !long && t >= d.Entry.Low {
				return contracts.Reject(contracts.ReasonPriceOrderViolation, "SHORT target[%d] %g >= entry %s", i, t, d.Entry)
			}
		}
		if d.Stop != nil {
			stop := *d.Stop
			if long && stop >= d.Entry.Low {
				return contracts.Reject(contracts.ReasonPriceOrderViolation, "LONG stop %g >= entry %s", stop, d.Entry)
			}
			if !long && stop <= d.Entry.High {
				return contracts.Reject(contracts.ReasonPriceOrderViolation, "SHORT stop %g <= entry %s", stop, d.Entry)
			}
		}
		return contracts.Accept()
	}

	if d.Stop != nil {
		stop := *d.Stop
		for i, t := range d.Targets {
			if (long && t <= stop) || (!long && t >= stop) {
				return contracts.Reject(contracts.ReasonPriceOrderViolation, "%s target[%d] %g on stop side of %g", d.Direction, i, t, stop)
			}
		}
	}
	return contracts.Accept()
}

// checkBand 오타/OCR 로 자릿수가 틀린 가격 차단
func checkBand(d contracts.Draft, spec signalconfig.AssetSpec) contracts.ValidationResult {
	in := func(p float64) bool { return p >= spec.MinPrice && p <= spec.MaxPrice }

	if d.Entry != nil && (!in(d.Entry.Low) || !in(d.Entry.High)) {
		return contracts.Reject(contracts.ReasonPriceOutOfBand, "entry %s outside [%g, %g]", d.Entry, spec.MinPrice, spec.MaxPrice)
	}
	for i, t := range d.Targets {
		if !in(t) {
			return contracts.Reject(contracts.ReasonPriceOutOfBand, "target[%d] %g outside [%g, %g]", i, t, spec.MinPrice, spec.MaxPrice)
		}
	}
	if d.Stop != nil && !in(*d.Stop) {
		return contracts.Reject(contracts.ReasonPriceOutOfBand, "stop %g outside [%g, %g]", *d.Stop, spec.MinPrice, spec.MaxPrice)
	}
	return contracts.Accept()
}
