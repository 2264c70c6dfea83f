package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/pkg/config"
	"github.com/wonny/signalhub/pkg/httputil"
	"github.com/wonny/signalhub/pkg/redis"
)

func testHTTP() *httputil.Client {
	return httputil.New(zerolog.Nop(), 2*time.Second).DisableRetry()
}

func TestBinanceSymbol(t *testing.T) {
	tests := []struct {
		asset   string
		want    string
		wantErr bool
	}{
		{"BTC/USDT", "BTCUSDT", false},
		{"eth/usdc", "ETHUSDC", false},
		{"SOL/USD", "SOLUSDT", false},
		{"BTCUSDT", "", true},
		{"/USDT", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.asset, func(t *testing.T) {
			got, err := binanceSymbol(tt.asset)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBinanceREST_CurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"45123.45000000"}`)
	}))
	defer srv.Close()

	b := NewBinanceREST(testHTTP(), srv.URL, zerolog.Nop())
	tick, err := b.CurrentPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", tick.Asset)
	assert.Equal(t, 45123.45, tick.Price)
	assert.Equal(t, "binance", tick.Source)
	assert.False(t, tick.Timestamp.IsZero())
}

func TestBinanceREST_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := NewBinanceREST(testHTTP(), srv.URL, zerolog.Nop())
	_, err := b.CurrentPrice(context.Background(), "BTC/USDT")
	var statusErr *httputil.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestBinanceREST_PriceHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `[
			[1767268800000,"45000","45100","44900","45050","1.0",1767268859999,"0",1,"0","0","0"],
			[1767268860000,"45050","45200","45000","45150","1.0",1767268919999,"0",1,"0","0","0"],
			["bad"]
		]`)
	}))
	defer srv.Close()

	b := NewBinanceREST(testHTTP(), srv.URL, zerolog.Nop())
	ticks, err := b.PriceHistory(context.Background(), "BTC/USDT", time.Hour)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 45050.0, ticks[0].Price)
	assert.Equal(t, 45150.0, ticks[1].Price)
	assert.Equal(t, int64(1767268919999), ticks[1].Timestamp.UnixMilli())
}

func TestKlineInterval(t *testing.T) {
	iv, _ := klineInterval(4 * time.Hour)
	assert.Equal(t, "1m", iv)
	iv, _ = klineInterval(72 * time.Hour)
	assert.Equal(t, "15m", iv)
	iv, _ = klineInterval(30 * 24 * time.Hour)
	assert.Equal(t, "1h", iv)
}

func TestCoinGecko(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			fmt.Fprint(w, `{"ethereum":{"usd":3012.5}}`)
		case "/coins/ethereum/market_chart":
			now := time.Now().UnixMilli()
			fmt.Fprintf(w, `{"prices":[[%d,2990.0],[%d,3000.0],[%d,3010.0]]}`,
				now-int64(3*time.Hour/time.Millisecond), now-int64(30*time.Minute/time.Millisecond), now)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewCoinGecko(testHTTP(), srv.URL, signalconfig.Default().Assets, zerolog.Nop())

	tick, err := g.CurrentPrice(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, 3012.5, tick.Price)
	assert.Equal(t, "coingecko", tick.Source)

	ticks, err := g.PriceHistory(context.Background(), "ETH/USDT", time.Hour)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)

	_, err = g.CurrentPrice(context.Background(), "PEPE/USDT")
	assert.Error(t, err)
}

type failingProvider struct {
	name  string
	calls int
}

func (f *failingProvider) Name() string { return f.name }

func (f *failingProvider) CurrentPrice(context.Context, string) (contracts.PriceTick, error) {
	f.calls++
	return contracts.PriceTick{}, errors.New("boom")
}

func (f *failingProvider) PriceHistory(context.Context, string, time.Duration) ([]contracts.PriceTick, error) {
	return nil, errors.New("boom")
}

func TestChain_FallsThrough(t *testing.T) {
	now := time.Now()
	primary := &failingProvider{name: "binance"}
	static := NewStatic()
	static.Set("BTC/USDT", 45000, now)

	var seen []contracts.PriceTick
	chain := NewChain(zerolog.Nop(), primary, static)
	chain.OnTick(func(t contracts.PriceTick) { seen = append(seen, t) })

	tick, err := chain.CurrentPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, tick.Price)
	assert.Equal(t, "static", tick.Source)
	assert.Equal(t, 1, primary.calls)
	assert.Len(t, seen, 1)

	status := chain.Status()
	require.Len(t, status, 2)
	assert.Equal(t, int64(1), status[0].Failures)
	assert.Equal(t, "boom", status[0].LastError)
	assert.Equal(t, int64(1), status[1].Successes)

	_, err = chain.CurrentPrice(context.Background(), "ETH/USDT")
	assert.ErrorIs(t, err, realtime.ErrUnavailable)

	history, err := chain.PriceHistory(context.Background(), "BTC/USDT", time.Hour)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStatic_Sequence(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStatic()
	s.Push(
		contracts.PriceTick{Asset: "ETH/USDT", Price: 3000, Timestamp: base},
		contracts.PriceTick{Asset: "ETH/USDT", Price: 0, Timestamp: base.Add(time.Minute)},
		contracts.PriceTick{Asset: "ETH/USDT", Price: 3010, Timestamp: base.Add(2 * time.Minute)},
	)

	ctx := context.Background()
	tick, err := s.CurrentPrice(ctx, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, tick.Price)

	_, err = s.CurrentPrice(ctx, "ETH/USDT")
	assert.ErrorIs(t, err, realtime.ErrUnavailable)

	for i := 0; i < 3; i++ {
		tick, err = s.CurrentPrice(ctx, "ETH/USDT")
		require.NoError(t, err)
		assert.Equal(t, 3010.0, tick.Price)
	}

	history, err := s.PriceHistory(ctx, "ETH/USDT", 90*time.Second)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3010.0, history[0].Price)
}

func TestPriorityQueue_Top(t *testing.T) {
	pq := NewPriorityQueue()
	pq.Update(&realtime.AssetPriority{Asset: "BTCUSDT", OpenSignals: 3})
	pq.Update(&realtime.AssetPriority{Asset: "ETHUSDT", OpenSignals: 5})
	pq.Update(&realtime.AssetPriority{Asset: "SOLUSDT", OpenSignals: 1})
	pq.Update(&realtime.AssetPriority{Asset: "XRPUSDT", OpenSignals: 4})

	top := pq.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "ETHUSDT", top[0].Asset)
	assert.Equal(t, "XRPUSDT", top[1].Asset)

	pq.Update(&realtime.AssetPriority{Asset: "SOLUSDT", OpenSignals: 9})
	assert.Equal(t, "SOLUSDT", pq.Top(1)[0].Asset)

	pq.Remove("SOLUSDT")
	assert.False(t, pq.Contains("SOLUSDT"))
	assert.Len(t, pq.Top(10), 3)
}

func TestNewManager(t *testing.T) {
	rdb, err := redis.New(context.Background(), &config.Config{})
	require.NoError(t, err)

	cfg := &config.Config{Feed: config.FeedConfig{
		Providers:        []string{"binance-ws", "binance", "coingecko", "static"},
		Timeout:          time.Second,
		BinanceBaseURL:   "http://127.0.0.1:1",
		BinanceWSURL:     "ws://127.0.0.1:1/stream",
		CoinGeckoBaseURL: "http://127.0.0.1:1",
	}}

	m, err := NewManager(cfg, signalconfig.Default().Assets, rdb, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"binance-ws", "binance", "coingecko", "static"}, m.Feed().Providers())
	require.NotNil(t, m.Static())

	m.Static().Set("BTC/USDT", 45000, time.Now())
	tick, err := m.Feed().CurrentPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "static", tick.Source)

	last, ok := m.LastPrice(context.Background(), "BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 45000.0, last.Price)

	cfg.Feed.Providers = []string{"bloomberg"}
	_, err = NewManager(cfg, signalconfig.Default().Assets, rdb, zerolog.Nop())
	assert.Error(t, err)
}
