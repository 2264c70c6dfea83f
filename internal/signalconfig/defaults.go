package signalconfig

import (
	"fmt"

	"github.com/creasty/defaults"
)

// Default returns the built-in tuning tables
func Default() *Config {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		// 태그 오류는 개발 단계 버그
		panic(fmt.Sprintf("signalconfig: invalid default tags: %v", err))
	}
	return cfg
}

func applyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return err
	}
	if len(cfg.Assets.Quotes) == 0 {
		cfg.Assets.Quotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "EUR"}
	}
	if len(cfg.Assets.BandQuotes) == 0 {
		cfg.Assets.BandQuotes = []string{"USDT", "USDC", "BUSD", "USD"}
	}
	if len(cfg.Assets.Symbols) == 0 {
		cfg.Assets.Symbols = DefaultAssets()
	}
	if len(cfg.Scoring.LeverageBands) == 0 {
		cfg.Scoring.LeverageBands = DefaultLeverageBands()
	}
	return nil
}

// DefaultLeverageBands 보수적 레버리지일수록 높은 계수
func DefaultLeverageBands() []LeverageBand {
	return []LeverageBand{
		{MaxLeverage: 5, Factor: 1.05},
		{MaxLeverage: 20, Factor: 1.0},
		{MaxLeverage: 50, Factor: 0.9},
		{MaxLeverage: 0, Factor: 0.8},
	}
}

// DefaultAssets 기본 지원 자산 (USD 기준 밴드는 오타/OCR 오류 차단용으로 넉넉하게)
func DefaultAssets() []AssetSpec {
	return []AssetSpec{
		{Symbol: "BTC", Aliases: []string{"bitcoin"}, MinPrice: 1000, MaxPrice: 1_000_000, CoinGeckoID: "bitcoin"},
		{Symbol: "ETH", Aliases: []string{"ethereum", "ether"}, MinPrice: 10, MaxPrice: 100_000, CoinGeckoID: "ethereum"},
		{Symbol: "SOL", Aliases: []string{"solana"}, MinPrice: 0.1, MaxPrice: 10_000, CoinGeckoID: "solana"},
		{Symbol: "BNB", Aliases: []string{"binancecoin"}, MinPrice: 1, MaxPrice: 10_000, CoinGeckoID: "binancecoin"},
		{Symbol: "XRP", Aliases: []string{"ripple"}, MinPrice: 0.01, MaxPrice: 100, CoinGeckoID: "ripple"},
		{Symbol: "ADA", Aliases: []string{"cardano"}, MinPrice: 0.005, MaxPrice: 50, CoinGeckoID: "cardano"},
		{Symbol: "DOGE", Aliases: []string{"dogecoin"}, MinPrice: 0.0005, MaxPrice: 10, CoinGeckoID: "dogecoin"},
		{Symbol: "AVAX", Aliases: []string{"avalanche"}, MinPrice: 0.1, MaxPrice: 5_000, CoinGeckoID: "avalanche-2"},
		{Symbol: "LINK", Aliases: []string{"chainlink"}, MinPrice: 0.1, MaxPrice: 5_000, CoinGeckoID: "chainlink"},
		{Symbol: "DOT", Aliases: []string{"polkadot"}, MinPrice: 0.1, MaxPrice: 1_000, CoinGeckoID: "polkadot"},
		{Symbol: "LTC", Aliases: []string{"litecoin"}, MinPrice: 1, MaxPrice: 5_000, CoinGeckoID: "litecoin"},
		{Symbol: "MATIC", Aliases: []string{"polygon"}, MinPrice: 0.01, MaxPrice: 100, CoinGeckoID: "matic-network"},
	}
}
