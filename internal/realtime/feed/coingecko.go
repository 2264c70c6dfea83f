package feed

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/pkg/httputil"
)

// CoinGecko 공개 API 시세 제공자 (Binance 장애 시 폴백)
type CoinGecko struct {
	client  *httputil.Client
	baseURL string
	assets  signalconfig.Assets
	log     zerolog.Logger
	now     func() time.Time
}

// NewCoinGecko creates a CoinGecko provider
func NewCoinGecko(client *httputil.Client, baseURL string, assets signalconfig.Assets, log zerolog.Logger) *CoinGecko {
	return &CoinGecko{
		client:  client,
		baseURL: baseURL,
		assets:  assets,
		log:     log.With().Str("component", "feed.coingecko").Logger(),
		now:     time.Now,
	}
}

// Name returns the provider name
func (g *CoinGecko) Name() string { return string(realtime.SourceCoinGecko) }

func (g *CoinGecko) resolve(asset string) (string, string, error) {
	base, quote, err := splitAsset(asset)
	if err != nil {
		return "", "", err
	}
	spec, ok := g.assets.Find(base)
	if !ok || spec.CoinGeckoID == "" {
		return "", "", fmt.Errorf("no coingecko id for %s", base)
	}
	return spec.CoinGeckoID, coinGeckoCurrency(quote), nil
}

// CurrentPrice GET /simple/price
func (g *CoinGecko) CurrentPrice(ctx context.Context, asset string) (contracts.PriceTick, error) {
	id, vs, err := g.resolve(asset)
	if err != nil {
		return contracts.PriceTick{}, err
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", g.baseURL, url.QueryEscape(id), url.QueryEscape(vs))

	var resp map[string]map[string]float64
	if err := g.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return contracts.PriceTick{}, fmt.Errorf("coingecko price %s: %w", id, err)
	}

	price := resp[id][vs]
	if price <= 0 {
		return contracts.PriceTick{}, fmt.Errorf("coingecko price %s: missing %s quote", id, vs)
	}

	return contracts.PriceTick{
		Asset:     asset,
		Price:     price,
		Timestamp: g.now(),
		Source:    g.Name(),
	}, nil
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"` // [ms, price]
}

// PriceHistory GET /coins/{id}/market_chart
func (g *CoinGecko) PriceHistory(ctx context.Context, asset string, window time.Duration) ([]contracts.PriceTick, error) {
	id, vs, err := g.resolve(asset)
	if err != nil {
		return nil, err
	}

	days := int(math.Ceil(window.Hours() / 24))
	if days < 1 {
		days = 1
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=%s&days=%d",
		g.baseURL, url.PathEscape(id), url.QueryEscape(vs), days)

	var resp marketChart
	if err := g.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("coingecko chart %s: %w", id, err)
	}

	cutoff := g.now().Add(-window)
	ticks := make([]contracts.PriceTick, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		at := time.UnixMilli(int64(p[0])).UTC()
		if at.Before(cutoff) || p[1] <= 0 {
			continue
		}
		ticks = append(ticks, contracts.PriceTick{Asset: asset, Price: p[1], Timestamp: at, Source: g.Name()})
	}
	return ticks, nil
}
