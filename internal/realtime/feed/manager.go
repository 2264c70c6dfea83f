package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/internal/realtime/cache"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/pkg/config"
	"github.com/wonny/signalhub/pkg/httputil"
	"github.com/wonny/signalhub/pkg/redis"
)

// 캐시 TTL: 이보다 오래된 스트림 틱은 REST 로 넘어감
const streamTickTTL = 30 * time.Second

// Manager orchestrates the configured price providers
// ⭐ SSOT: 시세 제공자 구성 및 수명 관리는 이 매니저에서만
type Manager struct {
	log zerolog.Logger

	chain  *Chain
	stream *BinanceStream
	static *Static
	cache  *cache.PriceCache

	lastPrice *redis.Cache

	stopOnce sync.Once
}

// NewManager builds the provider chain from FEED_PROVIDERS order
func NewManager(cfg *config.Config, assets signalconfig.Assets, rdb *redis.Client, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		log:       log.With().Str("component", "feed.manager").Logger(),
		cache:     cache.NewPriceCache(streamTickTTL, log),
		lastPrice: redis.NewCache(rdb, "signalhub"),
	}

	limiter := redis.NewRateLimiter(rdb, "signalhub")
	newHTTP := func(rl redis.RateLimitConfig) *httputil.Client {
		return httputil.New(log, cfg.Feed.Timeout).
			WithLocalLimit(cfg.Feed.RequestsPerSec).
			WithRateLimiter(limiter, rl)
	}

	var providers []realtime.Provider
	for _, name := range cfg.Feed.Providers {
		switch realtime.PriceSource(name) {
		case realtime.SourceBinanceWS:
			m.stream = NewBinanceStream(cfg.Feed.BinanceWSURL, m.cache, log)
			providers = append(providers, m.stream)
		case realtime.SourceBinanceREST:
			providers = append(providers, NewBinanceREST(newHTTP(redis.BinanceRateLimit), cfg.Feed.BinanceBaseURL, log))
		case realtime.SourceCoinGecko:
			providers = append(providers, NewCoinGecko(newHTTP(redis.CoinGeckoRateLimit), cfg.Feed.CoinGeckoBaseURL, assets, log))
		case realtime.SourceStatic:
			m.static = NewStatic()
			providers = append(providers, m.static)
		default:
			return nil, fmt.Errorf("unknown price provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no price providers configured")
	}

	m.chain = NewChain(log, providers...)
	m.chain.OnTick(m.remember)
	return m, nil
}

// NewManagerWithProviders wires an explicit provider list (replay, tests)
func NewManagerWithProviders(log zerolog.Logger, providers ...realtime.Provider) *Manager {
	m := &Manager{
		log:   log.With().Str("component", "feed.manager").Logger(),
		cache: cache.NewPriceCache(streamTickTTL, log),
	}
	for _, p := range providers {
		if s, ok := p.(*Static); ok && m.static == nil {
			m.static = s
		}
	}
	m.chain = NewChain(log, providers...)
	m.chain.OnTick(m.remember)
	return m
}

// Start starts streaming providers
// 캐시 정리는 scheduler 의 cache_cleanup 잡이 담당
func (m *Manager) Start(ctx context.Context) {
	m.log.Info().Strs("providers", m.chain.Providers()).Msg("starting feed manager")

	if m.stream != nil {
		m.stream.Start(ctx)
	}
}

// Stop stops all providers
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.stream != nil {
			m.stream.Stop()
		}
		m.log.Info().Msg("feed manager stopped")
	})
}

// Feed returns the prioritized PriceFeed
func (m *Manager) Feed() *Chain { return m.chain }

// Static returns the static provider when configured
func (m *Manager) Static() *Static { return m.static }

// LastPrice returns the most recent tick seen for asset (memory, then Redis)
func (m *Manager) LastPrice(ctx context.Context, asset string) (contracts.PriceTick, bool) {
	if tick, ok, _ := m.cache.Get(asset); ok {
		return tick, true
	}
	if m.lastPrice == nil {
		return contracts.PriceTick{}, false
	}

	var tick contracts.PriceTick
	found, err := m.lastPrice.Get(ctx, redis.LastPriceKey(asset), &tick)
	if err != nil {
		m.log.Debug().Err(err).Str("asset", asset).Msg("last price lookup failed")
		return contracts.PriceTick{}, false
	}
	return tick, found
}

// Stats 피드 상태 (/v1/feeds)
type Stats struct {
	Providers       []realtime.ProviderStatus `json:"providers"`
	Cache           cache.CacheStats          `json:"cache"`
	StreamConnected bool                      `json:"stream_connected"`
	StreamSymbols   int                       `json:"stream_symbols"`
}

// Stats returns provider counters and cache statistics
func (m *Manager) Stats() Stats {
	st := Stats{
		Providers: m.chain.Status(),
		Cache:     m.cache.Stats(),
	}
	if m.stream != nil {
		st.StreamConnected = m.stream.Connected()
		st.StreamSymbols = len(m.stream.ActiveSymbols())
	}
	return st
}

// remember records every served tick: memory cache always, Redis best effort
func (m *Manager) remember(tick contracts.PriceTick) {
	m.cache.Update(tick)
	if m.lastPrice == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.lastPrice.Set(ctx, redis.LastPriceKey(tick.Asset), tick, redis.TTLShort); err != nil {
		m.log.Debug().Err(err).Str("asset", tick.Asset).Msg("last price cache write failed")
	}
}

// CleanCache drops stale cache entries and returns how many were removed
func (m *Manager) CleanCache() int {
	return m.cache.CleanStale()
}
