package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/pkg/httputil"
)

// Binance kline 한 번 요청 상한
const binanceKlineLimit = 1000

// BinanceREST Binance 공개 REST 시세 제공자
type BinanceREST struct {
	client  *httputil.Client
	baseURL string
	log     zerolog.Logger
	now     func() time.Time
}

// NewBinanceREST creates a Binance REST provider
func NewBinanceREST(client *httputil.Client, baseURL string, log zerolog.Logger) *BinanceREST {
	return &BinanceREST{
		client:  client,
		baseURL: baseURL,
		log:     log.With().Str("component", "feed.binance").Logger(),
		now:     time.Now,
	}
}

// Name returns the provider name
func (b *BinanceREST) Name() string { return string(realtime.SourceBinanceREST) }

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentPrice GET /api/v3/ticker/price
func (b *BinanceREST) CurrentPrice(ctx context.Context, asset string) (contracts.PriceTick, error) {
	symbol, err := binanceSymbol(asset)
	if err != nil {
		return contracts.PriceTick{}, err
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, url.QueryEscape(symbol))

	var resp binanceTicker
	if err := b.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return contracts.PriceTick{}, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return contracts.PriceTick{}, fmt.Errorf("binance ticker %s: bad price %q", symbol, resp.Price)
	}

	return contracts.PriceTick{
		Asset:     asset,
		Price:     price,
		Timestamp: b.now(),
		Source:    b.Name(),
	}, nil
}

// PriceHistory GET /api/v3/klines, 캔들 종가를 종료 시각의 틱으로 변환
func (b *BinanceREST) PriceHistory(ctx context.Context, asset string, window time.Duration) ([]contracts.PriceTick, error) {
	symbol, err := binanceSymbol(asset)
	if err != nil {
		return nil, err
	}

	interval, step := klineInterval(window)
	end := b.now()
	start := end.Add(-window)
	limit := int(window/step) + 1
	if limit > binanceKlineLimit {
		limit = binanceKlineLimit
	}

	endpoint := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		b.baseURL, url.QueryEscape(symbol), interval, start.UnixMilli(), end.UnixMilli(), limit)

	var rows [][]json.RawMessage
	if err := b.client.GetJSON(ctx, endpoint, &rows); err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	ticks := make([]contracts.PriceTick, 0, len(rows))
	for _, row := range rows {
		tick, err := parseKline(row)
		if err != nil {
			b.log.Debug().Err(err).Str("symbol", symbol).Msg("skipping kline")
			continue
		}
		tick.Asset = asset
		tick.Source = b.Name()
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// klineInterval 윈도우 길이에 맞는 캔들 간격
func klineInterval(window time.Duration) (string, time.Duration) {
	switch {
	case window <= 16*time.Hour:
		return "1m", time.Minute
	case window <= 7*24*time.Hour:
		return "15m", 15 * time.Minute
	default:
		return "1h", time.Hour
	}
}

// parseKline [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(row []json.RawMessage) (contracts.PriceTick, error) {
	if len(row) < 7 {
		return contracts.PriceTick{}, fmt.Errorf("kline has %d fields", len(row))
	}

	var closeStr string
	if err := json.Unmarshal(row[4], &closeStr); err != nil {
		return contracts.PriceTick{}, fmt.Errorf("close price: %w", err)
	}
	price, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return contracts.PriceTick{}, fmt.Errorf("close price: %w", err)
	}

	var closeTime int64
	if err := json.Unmarshal(row[6], &closeTime); err != nil {
		return contracts.PriceTick{}, fmt.Errorf("close time: %w", err)
	}

	return contracts.PriceTick{Price: price, Timestamp: time.UnixMilli(closeTime).UTC()}, nil
}
