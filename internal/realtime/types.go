package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
)

// ErrUnavailable 시세를 얻지 못함 (모든 제공자 실패, 캐시 만료 등)
var ErrUnavailable = errors.New("price unavailable")

// PriceFeed 현재가/과거 시세 제공자
// ⭐ SSOT: 생애주기 추적기는 이 인터페이스로만 시세를 읽음
type PriceFeed interface {
	CurrentPrice(ctx context.Context, asset string) (contracts.PriceTick, error)
	PriceHistory(ctx context.Context, asset string, window time.Duration) ([]contracts.PriceTick, error)
}

// Provider 이름이 있는 PriceFeed (체인 구성 단위)
type Provider interface {
	PriceFeed
	Name() string
}

// Watcher 추적 중인 자산 목록을 전달받는 제공자 (스트리밍 구독용)
type Watcher interface {
	Watch(asset string, openSignals int)
}

// PriceSource represents the source of price data
type PriceSource string

const (
	SourceBinanceWS   PriceSource = "binance-ws"
	SourceBinanceREST PriceSource = "binance"
	SourceCoinGecko   PriceSource = "coingecko"
	SourceStatic      PriceSource = "static"
)

// Priority returns priority for source (higher = better)
func (s PriceSource) Priority() int {
	switch s {
	case SourceBinanceWS:
		return 3
	case SourceBinanceREST:
		return 2
	case SourceCoinGecko:
		return 1
	default:
		return 0
	}
}

// AssetPriority 스트리밍 구독 우선순위
type AssetPriority struct {
	Asset       string    `json:"asset"`
	OpenSignals int       `json:"open_signals"`
	LastSeen    time.Time `json:"last_seen"`
	Score       float64   `json:"score"` // Higher = more important
}

// CalculateScore 열린 시그널 수 기반 점수, 최근 활동이 동점을 가른다
func (p *AssetPriority) CalculateScore() float64 {
	score := float64(p.OpenSignals) * 10.0

	if !p.LastSeen.IsZero() {
		age := time.Since(p.LastSeen)
		if age < time.Hour {
			score += 1.0 - age.Hours()
		}
	}

	p.Score = score
	return score
}

// ProviderStatus 제공자별 호출 통계 (/v1/feeds)
type ProviderStatus struct {
	Name        string    `json:"name"`
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}
