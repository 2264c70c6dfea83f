package lifecycle

import (
	"fmt"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
)

// Advance evaluates one price tick against a signal and returns the transitions it triggers
// 입력 시그널은 변경하지 않음. 반환된 전이를 순서대로 Apply 해야 한다
//
// 평가 순서:
//  1. 만료 (tick 시각 >= ExpiresAt) 가 가장 먼저
//  2. PENDING: 진입 구간 ± tolerance 안이면 ACTIVE (진입가 없는 시그널은 첫 유효 틱에서 ACTIVE)
//  3. ACTIVE: 손절을 목표가보다 먼저 확인 (같은 틱에서 둘 다 가능하면 STOP_HIT)
//
// 한 틱 안에서 활성화 → 종결이 연쇄될 수 있다
func Advance(sig *contracts.CanonicalSignal, tick contracts.PriceTick, entryTolerance float64) []contracts.Transition {
	if sig.State.IsTerminal() || !tick.Valid() {
		return nil
	}

	state := sig.State
	price := tick.Price
	var out []contracts.Transition

	emit := func(to contracts.LifecycleState, reason string) {
		out = append(out, contracts.Transition{
			SignalID: sig.ID,
			From:     state,
			To:       to,
			Price:    price,
			At:       tick.Timestamp,
			Reason:   reason,
		})
		state = to
	}

	if sig.ExpiresAt != nil && !tick.Timestamp.Before(*sig.ExpiresAt) {
		emit(contracts.StateExpired, "expiry elapsed")
		return out
	}

	if state == contracts.StatePending {
		switch {
		case sig.Entry == nil:
			emit(contracts.StateActive, "first valid tick")
		case sig.Entry.Contains(price, entryTolerance):
			emit(contracts.StateActive, "entry zone touched")
		default:
			return out
		}
	}

	if state != contracts.StateActive {
		return out
	}

	if stopHit(sig, price) {
		emit(contracts.StateStopHit, "stop reached")
		return out
	}
	if idx, ok := targetHit(sig, price); ok {
		emit(contracts.StateTargetHit, fmt.Sprintf("target %d reached", idx+1))
	}
	return out
}

func stopHit(sig *contracts.CanonicalSignal, price float64) bool {
	if sig.Stop == nil {
		return false
	}
	if sig.Direction == contracts.DirectionShort {
		return price >= *sig.Stop
	}
	return price <= *sig.Stop
}

// targetHit 가장 먼저 닿는 목표가 (LONG: 가격 이하 중 최저, SHORT: 가격 이상 중 최고)
func targetHit(sig *contracts.CanonicalSignal, price float64) (int, bool) {
	best := -1
	for i, t := range sig.Targets {
		if sig.Direction == contracts.DirectionShort {
			if price <= t && (best < 0 || t > sig.Targets[best]) {
				best = i
			}
			continue
		}
		if price >= t && (best < 0 || t < sig.Targets[best]) {
			best = i
		}
	}
	return best, best >= 0
}

// Apply mutates sig with a transition produced by Advance
func Apply(sig *contracts.CanonicalSignal, tr contracts.Transition) {
	sig.State = tr.To

	switch {
	case tr.To == contracts.StateActive:
		at := tr.At
		sig.ActivatedAt = &at
		sig.ActivationPrice = contracts.Float(tr.Price)

	case tr.To.IsTerminal():
		at := tr.At
		sig.ResolvedAt = &at
		sig.ResolutionPrice = contracts.Float(tr.Price)
		if sig.ActivatedAt != nil {
			if ref, ok := sig.EntryReference(); ok {
				sig.ReturnPct = contracts.Float(contracts.ReturnPct(sig.Direction, ref, tr.Price))
			}
		}
	}
}

// ResolutionOf builds the reputation input for a terminal signal
func ResolutionOf(sig *contracts.CanonicalSignal) contracts.Resolution {
	r := contracts.Resolution{
		SignalID:   sig.ID,
		SourceID:   sig.SourceID,
		Asset:      sig.Asset,
		Direction:  sig.Direction,
		FinalState: sig.State,
		Entered:    sig.ActivatedAt != nil,
	}
	if sig.ReturnPct != nil {
		r.ReturnPct = *sig.ReturnPct
	}
	if sig.ResolutionPrice != nil {
		r.Price = *sig.ResolutionPrice
	}
	if sig.ResolvedAt != nil {
		r.ResolvedAt = *sig.ResolvedAt
	}
	return r
}

// ExpiryFor 기본 만료 시각 (0 = 만료 없음)
func ExpiryFor(createdAt time.Time, defaultExpiry time.Duration) *time.Time {
	if defaultExpiry <= 0 {
		return nil
	}
	at := createdAt.Add(defaultExpiry)
	return &at
}
