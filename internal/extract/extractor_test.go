package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

func newTestExtractor() *Extractor {
	return New(signalconfig.Default())
}

func single(t *testing.T, text string) contracts.Draft {
	t.Helper()
	res := newTestExtractor().Extract(text)
	require.Len(t, res.Drafts, 1, "text: %q dropped: %v", text, res.Dropped)
	return res.Drafts[0]
}

func TestExtractLabeledComplete(t *testing.T) {
	d := single(t, "BTC/USDT LONG Entry: 45000 TP1: 46500 SL: 43500")

	assert.Equal(t, "BTC/USDT", d.Asset)
	assert.Equal(t, contracts.DirectionLong, d.Direction)
	require.NotNil(t, d.Entry)
	assert.Equal(t, contracts.SinglePrice(45000), *d.Entry)
	assert.Equal(t, []float64{46500}, d.Targets)
	require.NotNil(t, d.Stop)
	assert.Equal(t, 43500.0, *d.Stop)
	assert.False(t, d.StopSynthesized)
	assert.Equal(t, 3, d.Features.LabeledFields)
	assert.False(t, d.Features.Positional)
}

func TestExtractParaphrasedVariants(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		entry     float64
		target    float64
		synthStop float64
	}{
		{"at-sign entry", "BTC LONG @45000 target 46500", 45000, 46500, 44100},
		{"alias", "Bitcoin LONG entry 45100 tp 46600", 45100, 46600, 44198},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := single(t, tt.text)
			assert.Equal(t, "BTC/USDT", d.Asset)
			assert.Equal(t, contracts.DirectionLong, d.Direction)
			require.NotNil(t, d.Entry)
			assert.Equal(t, tt.entry, d.Entry.Low)
			assert.Equal(t, []float64{tt.target}, d.Targets)
			require.NotNil(t, d.Stop)
			assert.InDelta(t, tt.synthStop, *d.Stop, 1e-6)
			assert.True(t, d.StopSynthesized)
			assert.False(t, d.HasExtractedStop())
		})
	}
}

func TestExtractRangeLeverageTimeframe(t *testing.T) {
	d := single(t, "BTC/USDT SHORT 20x 4h Entry 45000-45500 TP 44000, 43000 SL 46000")

	assert.Equal(t, contracts.DirectionShort, d.Direction)
	require.NotNil(t, d.Entry)
	assert.Equal(t, contracts.PriceZone{Low: 45000, High: 45500}, *d.Entry)
	assert.Equal(t, []float64{44000, 43000}, d.Targets, "short targets nearest first")
	require.NotNil(t, d.Stop)
	assert.Equal(t, 46000.0, *d.Stop)
	require.NotNil(t, d.Leverage)
	assert.Equal(t, 20, *d.Leverage)
	require.NotNil(t, d.Timeframe)
	assert.Equal(t, "4h", d.Timeframe.Tag)
	assert.Equal(t, 4*time.Hour, d.Timeframe.Horizon)
}

func TestExtractNumberFormats(t *testing.T) {
	d := single(t, "BTC long entry 45k tp 46,500 sl 44.2k")

	require.NotNil(t, d.Entry)
	assert.Equal(t, 45000.0, d.Entry.Low)
	assert.Equal(t, []float64{46500}, d.Targets)
	require.NotNil(t, d.Stop)
	assert.InDelta(t, 44200, *d.Stop, 1e-6)
}

func TestExtractFullWidthDigits(t *testing.T) {
	d := single(t, "BTC LONG entry ４５０００ tp ４６５００")

	require.NotNil(t, d.Entry)
	assert.Equal(t, 45000.0, d.Entry.Low)
	assert.Equal(t, []float64{46500}, d.Targets)
}

func TestExtractMultiAsset(t *testing.T) {
	res := newTestExtractor().Extract("BTC long entry 45000 tp 46000 sl 44000\nETH short entry 3000 tp 2900 sl 3100")
	require.Len(t, res.Drafts, 2)

	btc, eth := res.Drafts[0], res.Drafts[1]
	assert.Equal(t, "BTC/USDT", btc.Asset)
	assert.Equal(t, contracts.DirectionLong, btc.Direction)
	assert.Equal(t, 45000.0, btc.Entry.Low)
	assert.Equal(t, 44000.0, *btc.Stop)

	assert.Equal(t, "ETH/USDT", eth.Asset)
	assert.Equal(t, contracts.DirectionShort, eth.Direction)
	assert.Equal(t, 3000.0, eth.Entry.Low)
	assert.Equal(t, []float64{2900}, eth.Targets)
	assert.Equal(t, 3100.0, *eth.Stop)
}

func TestExtractSharedDirectionHeader(t *testing.T) {
	res := newTestExtractor().Extract("LONG setups:\nBTC 45000\nETH 3000")
	require.Len(t, res.Drafts, 2)
	for _, d := range res.Drafts {
		assert.Equal(t, contracts.DirectionLong, d.Direction, d.Asset)
	}
}

func TestExtractDrops(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason DropReason
	}{
		{"conflicting", "BTC long or short? entry 45000", DropConflictingDirection},
		{"no direction", "BTC looks interesting here", DropNoDirection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestExtractor().Extract(tt.text)
			assert.Empty(t, res.Drafts)
			require.Len(t, res.Dropped, 1)
			assert.Equal(t, "BTC/USDT", res.Dropped[0].Asset)
			assert.Equal(t, tt.reason, res.Dropped[0].Reason)
		})
	}
}

func TestExtractEverydayWordsKeepDirection(t *testing.T) {
	tests := []struct {
		name string
		text string
		dir  contracts.Direction
		stop float64
	}{
		{"put your stop", "BTC LONG entry 45000 tp 46500, put your stop at 43500", contracts.DirectionLong, 43500},
		{"calls crowded", "ETH short entry 3000 tp 2800 sl 3100, calls are overcrowded", contracts.DirectionShort, 3100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestExtractor().Extract(tt.text)
			assert.Empty(t, res.Dropped)
			require.Len(t, res.Drafts, 1)
			d := res.Drafts[0]
			assert.Equal(t, tt.dir, d.Direction)
			require.NotNil(t, d.Stop)
			assert.Equal(t, tt.stop, *d.Stop)
			assert.False(t, d.StopSynthesized)
		})
	}
}

func TestExtractNoAsset(t *testing.T) {
	res := newTestExtractor().Extract("gm everyone, long day ahead")
	assert.Empty(t, res.Drafts)
	assert.Empty(t, res.Dropped)
}

func TestExtractTermPhraseIsNotDirection(t *testing.T) {
	d := single(t, "ETH long-term hold, but short entry 3000 tp 2800")

	assert.Equal(t, contracts.DirectionShort, d.Direction)
	require.NotNil(t, d.Timeframe)
	assert.Equal(t, "long-term", d.Timeframe.Tag)
}

func TestExtractPositional(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		dir    contracts.Direction
		entry  float64
		target float64
		stop   float64
	}{
		{"long three numbers", "SOL long 98 105 94", contracts.DirectionLong, 98, 105, 94},
		{"short three numbers", "ETH short 3100 2950 3200", contracts.DirectionShort, 3100, 2950, 3200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := single(t, tt.text)
			assert.Equal(t, tt.dir, d.Direction)
			assert.True(t, d.Features.Positional)
			assert.Equal(t, 0, d.Features.LabeledFields)
			require.NotNil(t, d.Entry)
			assert.Equal(t, tt.entry, d.Entry.Low)
			assert.Equal(t, []float64{tt.target}, d.Targets)
			require.NotNil(t, d.Stop)
			assert.Equal(t, tt.stop, *d.Stop)
			assert.False(t, d.StopSynthesized)
		})
	}
}

func TestExtractPositionalNeedsTwoNumbers(t *testing.T) {
	d := single(t, "BTC long setup 45000")

	assert.Equal(t, contracts.DirectionLong, d.Direction)
	assert.Nil(t, d.Entry)
	assert.Empty(t, d.Targets)
	assert.Nil(t, d.Stop)
	assert.False(t, d.Features.Positional)
}

func TestExtractEmojiDirectionTwoNumbers(t *testing.T) {
	d := single(t, "🚀 ETH 3000 → 3300")

	assert.Equal(t, contracts.DirectionLong, d.Direction)
	assert.Equal(t, 3000.0, d.Entry.Low)
	assert.Equal(t, []float64{3300}, d.Targets)
	assert.True(t, d.StopSynthesized)
	assert.InDelta(t, 2940, *d.Stop, 1e-6)
}

func TestExtractUnlabeledEntryBeforeLabels(t *testing.T) {
	d := single(t, "$sol long 100 tp 120")

	assert.Equal(t, "SOL/USDT", d.Asset)
	require.NotNil(t, d.Entry)
	assert.Equal(t, 100.0, d.Entry.Low)
	assert.Equal(t, []float64{120}, d.Targets)
	assert.True(t, d.Features.Positional)
}

func TestExtractLinguisticFeatures(t *testing.T) {
	d := single(t, "BTC LONG to the moon guaranteed 🚀🚀 entry 45000")
	assert.Equal(t, 3, d.Features.HypeTerms)

	d = single(t, "maybe ETH short 3000, NFA")
	assert.Equal(t, 2, d.Features.HedgeTerms)
}

func TestExtractDirectionOnly(t *testing.T) {
	d := single(t, "ETHUSDT bearish")

	assert.Equal(t, "ETH/USDT", d.Asset)
	assert.Equal(t, contracts.DirectionShort, d.Direction)
	assert.Nil(t, d.Entry)
	assert.Empty(t, d.Targets)
	assert.Nil(t, d.Stop)
}

func TestAssetPairs(t *testing.T) {
	idx := newAssetIndex(signalconfig.Default().Assets)

	tests := []struct {
		text string
		want []string
	}{
		{"BTC/USDT", []string{"BTC/USDT"}},
		{"BTCUSDC", []string{"BTC/USDC"}},
		{"ETH/BTC", []string{"ETH/BTC"}},
		{"#eth and $Sol", []string{"ETH/USDT", "SOL/USDT"}},
		{"sol is lowercase", nil},
		{"BTC-USD then BTC again", []string{"BTC/USD"}},
		{"ethereum vs Bitcoin", []string{"ETH/USDT", "BTC/USDT"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var got []string
			for _, p := range idx.pairs(idx.scan(tt.text)) {
				got = append(got, p.asset)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"45000", 45000, true},
		{" 45,000.5", 45000.5, true},
		{"$1.25", 1.25, true},
		{"45k", 45000, true},
		{"45 K ", 45000, true},
		{"10x", 0, false},
		{"5%", 0, false},
		{"4h", 0, false},
		{"12:30", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := scanNumber(tt.in, 0)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, n.value, 1e-9)
			}
		})
	}
}

func TestOrderTargets(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3}, orderTargets(contracts.DirectionLong, []float64{3, 1, 2, 4}, 3))
	assert.Equal(t, []float64{4, 3}, orderTargets(contracts.DirectionShort, []float64{3, 4, 3}, 3))
	assert.Nil(t, orderTargets(contracts.DirectionLong, nil, 3))
}
