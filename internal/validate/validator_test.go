package validate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

func zone(lo, hi float64) *contracts.PriceZone {
	z := contracts.NewZone(lo, hi)
	return &z
}

func TestValidate(t *testing.T) {
	v := New(signalconfig.Default())

	tests := []struct {
		name  string
		draft contracts.Draft
		want  contracts.RejectReason
	}{
		{
			name:  "long complete",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(45000, 45000), Targets: []float64{46500}, Stop: contracts.Float(43500)},
			want:  contracts.ReasonOK,
		},
		{
			name:  "short with zone",
			draft: contracts.Draft{Asset: "ETH/USDT", Direction: contracts.DirectionShort, Entry: zone(3000, 3050), Targets: []float64{2900, 2800}, Stop: contracts.Float(3150)},
			want:  contracts.ReasonOK,
		},
		{
			name:  "direction only",
			draft: contracts.Draft{Asset: "SOL/USDT", Direction: contracts.DirectionLong},
			want:  contracts.ReasonOK,
		},
		{
			name:  "unknown base",
			draft: contracts.Draft{Asset: "PEPE/USDT", Direction: contracts.DirectionLong},
			want:  contracts.ReasonUnsupportedAsset,
		},
		{
			name:  "unknown quote",
			draft: contracts.Draft{Asset: "BTC/JPY", Direction: contracts.DirectionLong},
			want:  contracts.ReasonUnsupportedAsset,
		},
		{
			name:  "malformed asset",
			draft: contracts.Draft{Asset: "BTC", Direction: contracts.DirectionLong},
			want:  contracts.ReasonUnsupportedAsset,
		},
		{
			name:  "zero entry",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(0, 0)},
			want:  contracts.ReasonNonPositivePrice,
		},
		{
			name:  "negative stop",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Stop: contracts.Float(-1)},
			want:  contracts.ReasonNonPositivePrice,
		},
		{
			name:  "long target below entry",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(45000, 45000), Targets: []float64{44000}},
			want:  contracts.ReasonPriceOrderViolation,
		},
		{
			name:  "long stop above entry",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(45000, 45000), Targets: []float64{46000}, Stop: contracts.Float(45500)},
			want:  contracts.ReasonPriceOrderViolation,
		},
		{
			name:  "short target inside zone",
			draft: contracts.Draft{Asset: "ETH/USDT", Direction: contracts.DirectionShort, Entry: zone(3000, 3100), Targets: []float64{3050}},
			want:  contracts.ReasonPriceOrderViolation,
		},
		{
			name:  "no entry, target on stop side",
			draft: contracts.Draft{Asset: "ETH/USDT", Direction: contracts.DirectionShort, Targets: []float64{3200}, Stop: contracts.Float(3100)},
			want:  contracts.ReasonPriceOrderViolation,
		},
		{
			name:  "btc price out of band",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(450, 450), Targets: []float64{465}},
			want:  contracts.ReasonPriceOutOfBand,
		},
		{
			name:  "band ignored for btc quote",
			draft: contracts.Draft{Asset: "ETH/BTC", Direction: contracts.DirectionLong, Entry: zone(0.05, 0.05), Targets: []float64{0.06}},
			want:  contracts.ReasonOK,
		},
		{
			name:  "leverage too high",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Leverage: contracts.Int(125)},
			want:  contracts.ReasonLeverageOutOfBounds,
		},
		{
			name:  "leverage zero",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Leverage: contracts.Int(0)},
			want:  contracts.ReasonLeverageOutOfBounds,
		},
		{
			name:  "order checked before band",
			draft: contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong, Entry: zone(450, 450), Targets: []float64{400}},
			want:  contracts.ReasonPriceOrderViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.draft)
			assert.Equal(t, tt.want, got.Reason, got.Detail)
			assert.Equal(t, tt.want == contracts.ReasonOK, got.Accepted)
		})
	}
}

// 무작위 Draft 중 통과한 것은 항상 방향별 가격 순서를 만족해야 한다
func TestAcceptedDraftsKeepOrdering(t *testing.T) {
	v := New(signalconfig.Default())
	rng := rand.New(rand.NewSource(42))

	price := func() float64 { return 40000 + rng.Float64()*10000 }

	accepted := 0
	for i := 0; i < 2000; i++ {
		d := contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong}
		if rng.Intn(2) == 0 {
			d.Direction = contracts.DirectionShort
		}
		if rng.Intn(4) > 0 {
			d.Entry = zone(price(), price())
		}
		for n := rng.Intn(4); n > 0; n-- {
			d.Targets = append(d.Targets, price())
		}
		if rng.Intn(3) > 0 {
			d.Stop = contracts.Float(price())
		}

		if !v.Validate(d).Accepted {
			continue
		}
		accepted++

		for _, target := range d.Targets {
			if d.Entry != nil {
				if d.Direction == contracts.DirectionLong {
					assert.Greater(t, target, d.Entry.High)
				} else {
					assert.Less(t, target, d.Entry.Low)
				}
			}
		}
		if d.Entry != nil && d.Stop != nil {
			if d.Direction == contracts.DirectionLong {
				assert.Less(t, *d.Stop, d.Entry.Low)
			} else {
				assert.Greater(t, *d.Stop, d.Entry.High)
			}
		}
	}
	assert.Greater(t, accepted, 0)
}
