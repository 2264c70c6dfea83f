package signalconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "USDT", cfg.Assets.DefaultQuote)
	assert.Equal(t, 0.02, cfg.Extraction.DefaultStopPct)
	assert.Equal(t, 0.65, cfg.Scoring.TierBase.Most)
	assert.Equal(t, 24*time.Hour, cfg.Dedup.Window)
	assert.Equal(t, 6*time.Hour, cfg.Dedup.ExactTimeWindow)
	assert.Equal(t, 72*time.Hour, cfg.Lifecycle.DefaultExpiry)
	assert.Equal(t, 5, cfg.Reputation.MinResolved)
	assert.Len(t, cfg.Scoring.LeverageBands, 4)

	btc, ok := cfg.Assets.Find("btc")
	require.True(t, ok)
	assert.Equal(t, "bitcoin", btc.CoinGeckoID)
	assert.True(t, cfg.Assets.BandApplies("usdt"))
	assert.False(t, cfg.Assets.BandApplies("BTC"))
}

func TestLoadRepositoryConfig(t *testing.T) {
	path := "../../configs/pipeline.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, data, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "signalhub-crypto", cfg.Meta.ConfigID)
	assert.Len(t, cfg.Assets.Symbols, 6)

	// 생략한 키는 기본값
	assert.Equal(t, 0.05, cfg.Scoring.HypePenalty)
	assert.Equal(t, 0.4, cfg.Reputation.SuccessWeight)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
dedup:
  window: 12h
  exact_time_window: 1h
validation:
  max_leverage: 50
`))
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, cfg.Dedup.Window)
	assert.Equal(t, time.Hour, cfg.Dedup.ExactTimeWindow)
	assert.Equal(t, 50, cfg.Validation.MaxLeverage)
	assert.Equal(t, 0.05, cfg.Dedup.PartialEntryTolerance)
	assert.NotEmpty(t, cfg.Assets.Symbols)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("dedup:\n  windw: 12h\n"))
	assert.Error(t, err)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"tier order", func(c *Config) { c.Scoring.TierBase.Most = 0.9 }, "scoring.tier_base"},
		{"leverage bounds", func(c *Config) { c.Validation.MinLeverage = 200 }, "validation"},
		{"open ended band", func(c *Config) { c.Scoring.LeverageBands = []LeverageBand{{MaxLeverage: 5, Factor: 1}} }, "scoring.leverage_bands"},
		{"weights sum", func(c *Config) { c.Reputation.SuccessWeight = 0.9 }, "reputation.weights"},
		{"exact window", func(c *Config) { c.Dedup.ExactTimeWindow = 48 * time.Hour }, "dedup.window"},
		{"band", func(c *Config) { c.Assets.Symbols[0].MaxPrice = 0 }, "assets.symbols[0]"},
		{"duplicate symbol", func(c *Config) { c.Assets.Symbols[1].Symbol = "btc" }, "assets.symbols[1].symbol"},
		{"default quote", func(c *Config) { c.Assets.DefaultQuote = "JPY" }, "assets.default_quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	a, err := Hash(Default())
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := Hash(Default())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := Default()
	changed.Scoring.LongFactor = 1.0
	c, err := Hash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNewSnapshot(t *testing.T) {
	cfg := Default()
	snap, err := NewSnapshot(cfg, []byte("meta: {}"))
	require.NoError(t, err)

	hash, _ := Hash(cfg)
	assert.Equal(t, hash, snap.ConfigHash)
	assert.Equal(t, "signalhub-default", snap.ConfigID)
}
