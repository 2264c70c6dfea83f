package feed

import (
	"fmt"
	"strings"
)

// splitAsset BASE/QUOTE 분리
func splitAsset(asset string) (string, string, error) {
	parts := strings.Split(asset, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed asset %q", asset)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// binanceSymbol BTC/USDT -> BTCUSDT (Binance 는 USD 현물 마켓이 없어 USDT 로 대체)
func binanceSymbol(asset string) (string, error) {
	base, quote, err := splitAsset(asset)
	if err != nil {
		return "", err
	}
	if quote == "USD" {
		quote = "USDT"
	}
	return base + quote, nil
}

// coinGeckoCurrency quote -> vs_currency (스테이블코인은 usd 로 근사)
func coinGeckoCurrency(quote string) string {
	switch quote {
	case "USDT", "USDC", "BUSD", "USD":
		return "usd"
	}
	return strings.ToLower(quote)
}
