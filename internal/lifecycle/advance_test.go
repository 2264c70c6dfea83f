package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func shortSignal() *contracts.CanonicalSignal {
	entry := contracts.SinglePrice(100)
	return &contracts.CanonicalSignal{
		ID:       "short-1",
		SourceID: "alpha",
		Draft: contracts.Draft{
			Asset:     "SOL/USDT",
			Direction: contracts.DirectionShort,
			Entry:     &entry,
			Targets:   []float64{90},
			Stop:      contracts.Float(105),
		},
		State:     contracts.StatePending,
		CreatedAt: t0,
	}
}

func longSignal() *contracts.CanonicalSignal {
	entry := contracts.SinglePrice(45000)
	return &contracts.CanonicalSignal{
		ID:       "long-1",
		SourceID: "beta",
		Draft: contracts.Draft{
			Asset:     "BTC/USDT",
			Direction: contracts.DirectionLong,
			Entry:     &entry,
			Targets:   []float64{46500, 48000},
			Stop:      contracts.Float(43500),
		},
		State:     contracts.StatePending,
		CreatedAt: t0,
	}
}

func at(asset string, price float64, minutes int) contracts.PriceTick {
	return contracts.PriceTick{Asset: asset, Price: price, Timestamp: t0.Add(time.Duration(minutes) * time.Minute), Source: "static"}
}

// run drives a signal through a price path and returns every transition
func run(sig *contracts.CanonicalSignal, prices []float64) []contracts.Transition {
	var all []contracts.Transition
	for i, p := range prices {
		for _, tr := range Advance(sig, at(sig.Asset, p, i+1), 0.005) {
			Apply(sig, tr)
			all = append(all, tr)
		}
	}
	return all
}

func TestAdvance_ShortScenario(t *testing.T) {
	t.Run("target before stop", func(t *testing.T) {
		sig := shortSignal()
		trs := run(sig, []float64{102, 100.2, 97, 93, 90, 106})

		require.Len(t, trs, 2)
		assert.Equal(t, contracts.StateActive, trs[0].To)
		assert.Equal(t, 100.2, trs[0].Price)
		assert.Equal(t, contracts.StateTargetHit, trs[1].To)
		assert.Equal(t, 90.0, trs[1].Price)
		assert.Equal(t, contracts.StateTargetHit, sig.State)
		require.NotNil(t, sig.ReturnPct)
		assert.InDelta(t, 0.10, *sig.ReturnPct, 1e-9)
	})

	t.Run("stop before target", func(t *testing.T) {
		sig := shortSignal()
		trs := run(sig, []float64{100, 103, 105, 90})

		require.Len(t, trs, 2)
		assert.Equal(t, contracts.StateStopHit, trs[1].To)
		assert.Equal(t, 105.0, trs[1].Price)
		assert.InDelta(t, -0.05, *sig.ReturnPct, 1e-9)
	})
}

func TestAdvance_StopWinsOnSameTick(t *testing.T) {
	// 목표가와 손절가가 같은 틱에서 동시에 만족되는 비정상 시그널
	entry := contracts.SinglePrice(100)
	sig := &contracts.CanonicalSignal{
		ID: "tie",
		Draft: contracts.Draft{
			Asset:     "X/USDT",
			Direction: contracts.DirectionLong,
			Entry:     &entry,
			Targets:   []float64{99},
			Stop:      contracts.Float(99.5),
		},
		State: contracts.StateActive,
	}
	trs := Advance(sig, at("X/USDT", 99, 1), 0.005)
	require.Len(t, trs, 1)
	assert.Equal(t, contracts.StateStopHit, trs[0].To)
}

func TestAdvance_Rules(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*contracts.CanonicalSignal)
		price      float64
		want       []contracts.LifecycleState
		lastReason string
	}{
		{"outside entry stays pending", nil, 45400, nil, ""},
		{"within tolerance activates", nil, 45200, []contracts.LifecycleState{contracts.StateActive}, "entry zone touched"},
		{"gap through entry into target cascades", func(s *contracts.CanonicalSignal) {
			z := contracts.NewZone(45000, 46600)
			s.Entry = &z
		}, 46550, []contracts.LifecycleState{contracts.StateActive, contracts.StateTargetHit}, "target 1 reached"},
		{"no entry activates at first tick", func(s *contracts.CanonicalSignal) {
			s.Entry = nil
		}, 45400, []contracts.LifecycleState{contracts.StateActive}, "first valid tick"},
		{"expiry checked first", func(s *contracts.CanonicalSignal) {
			s.State = contracts.StateActive
			exp := t0
			s.ExpiresAt = &exp
		}, 40000, []contracts.LifecycleState{contracts.StateExpired}, "expiry elapsed"},
		{"terminal never revisited", func(s *contracts.CanonicalSignal) {
			s.State = contracts.StateTargetHit
		}, 43000, nil, ""},
		{"nearest target wins", func(s *contracts.CanonicalSignal) {
			s.State = contracts.StateActive
		}, 49000, []contracts.LifecycleState{contracts.StateTargetHit}, "target 1 reached"},
		{"stop without target", func(s *contracts.CanonicalSignal) {
			s.State = contracts.StateActive
			s.Targets = nil
		}, 43400, []contracts.LifecycleState{contracts.StateStopHit}, "stop reached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := longSignal()
			if tt.mutate != nil {
				tt.mutate(sig)
			}
			trs := Advance(sig, at(sig.Asset, tt.price, 1), 0.005)

			var got []contracts.LifecycleState
			for _, tr := range trs {
				got = append(got, tr.To)
				assert.Equal(t, tt.price, tr.Price)
			}
			assert.Equal(t, tt.want, got)
			if len(trs) > 0 {
				assert.Equal(t, tt.lastReason, trs[len(trs)-1].Reason)
			}
		})
	}
}

func TestAdvance_InvalidTickIgnored(t *testing.T) {
	sig := longSignal()
	assert.Empty(t, Advance(sig, contracts.PriceTick{Asset: sig.Asset, Price: 0, Timestamp: t0}, 0.005))
	assert.Empty(t, Advance(sig, contracts.PriceTick{Asset: sig.Asset, Price: 45000}, 0.005))
}

func TestApply_NeverEnteredHasNoReturn(t *testing.T) {
	sig := longSignal()
	exp := t0
	sig.ExpiresAt = &exp

	trs := run(sig, []float64{47000})
	require.Len(t, trs, 1)
	assert.Equal(t, contracts.StateExpired, sig.State)
	assert.Nil(t, sig.ReturnPct)

	res := ResolutionOf(sig)
	assert.False(t, res.Entered)
	assert.Equal(t, 0.0, res.ReturnPct)
	assert.Equal(t, 47000.0, res.Price)
}

func TestExpiryFor(t *testing.T) {
	assert.Nil(t, ExpiryFor(t0, 0))
	exp := ExpiryFor(t0, 72*time.Hour)
	require.NotNil(t, exp)
	assert.Equal(t, t0.Add(72*time.Hour), *exp)
}

// 무작위 가격 경로에서 상태는 단조 증가하고 종결은 정확히 한 번
func TestAdvance_MonotonicExactlyOnce(t *testing.T) {
	rank := map[contracts.LifecycleState]int{
		contracts.StatePending:   0,
		contracts.StateActive:    1,
		contracts.StateTargetHit: 2,
		contracts.StateStopHit:   2,
		contracts.StateExpired:   2,
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 300; trial++ {
		var sig *contracts.CanonicalSignal
		if trial%2 == 0 {
			sig = longSignal()
		} else {
			sig = shortSignal()
		}
		if trial%5 == 0 {
			exp := t0.Add(time.Duration(20+rng.Intn(40)) * time.Minute)
			sig.ExpiresAt = &exp
		}

		ref := sig.Entry.Mid()
		prices := make([]float64, 60)
		p := ref * (1 + (rng.Float64()-0.5)*0.02)
		for i := range prices {
			p *= 1 + (rng.Float64()-0.5)*0.03
			prices[i] = p
		}

		terminal := 0
		last := contracts.StatePending
		for _, tr := range run(sig, prices) {
			assert.Equal(t, last, tr.From)
			assert.Greater(t, rank[tr.To], rank[tr.From])
			if tr.To.IsTerminal() {
				terminal++
			}
			last = tr.To
		}
		assert.LessOrEqual(t, terminal, 1)

		// 종결 후에는 어떤 틱도 전이를 만들지 않는다
		if sig.State.IsTerminal() {
			assert.Empty(t, Advance(sig, at(sig.Asset, ref, 500), 0.005))
		}
	}
}
