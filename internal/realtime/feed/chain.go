package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
)

// Chain 우선순위 순서로 제공자를 시도하는 PriceFeed
// 첫 성공 응답을 사용하고, 모두 실패하면 ErrUnavailable
type Chain struct {
	providers []realtime.Provider
	log       zerolog.Logger
	onTick    func(contracts.PriceTick)

	mu     sync.Mutex
	status map[string]*realtime.ProviderStatus
}

// NewChain creates a provider chain (first = highest priority)
func NewChain(log zerolog.Logger, providers ...realtime.Provider) *Chain {
	status := make(map[string]*realtime.ProviderStatus, len(providers))
	for _, p := range providers {
		status[p.Name()] = &realtime.ProviderStatus{Name: p.Name()}
	}
	return &Chain{
		providers: providers,
		log:       log.With().Str("component", "feed.chain").Logger(),
		status:    status,
	}
}

// OnTick registers a hook that sees every successful current price
func (c *Chain) OnTick(fn func(contracts.PriceTick)) {
	c.onTick = fn
}

// CurrentPrice tries each provider in order
func (c *Chain) CurrentPrice(ctx context.Context, asset string) (contracts.PriceTick, error) {
	var errs []error
	for _, p := range c.providers {
		tick, err := p.CurrentPrice(ctx, asset)
		if err == nil && tick.Valid() {
			c.record(p.Name(), nil)
			if c.onTick != nil {
				c.onTick(tick)
			}
			return tick, nil
		}
		if err == nil {
			err = fmt.Errorf("invalid tick")
		}
		c.record(p.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	return contracts.PriceTick{}, fmt.Errorf("%w: %s: %v", realtime.ErrUnavailable, asset, errors.Join(errs...))
}

// PriceHistory tries each provider in order
func (c *Chain) PriceHistory(ctx context.Context, asset string, window time.Duration) ([]contracts.PriceTick, error) {
	var errs []error
	for _, p := range c.providers {
		ticks, err := p.PriceHistory(ctx, asset, window)
		if err == nil && len(ticks) > 0 {
			return ticks, nil
		}
		if err != nil && !errors.Is(err, realtime.ErrUnavailable) {
			c.log.Debug().Err(err).Str("provider", p.Name()).Str("asset", asset).Msg("history fetch failed")
		}
		if err == nil {
			err = fmt.Errorf("empty history")
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: history %s: %v", realtime.ErrUnavailable, asset, errors.Join(errs...))
}

// Watch forwards subscription hints to streaming providers
func (c *Chain) Watch(asset string, openSignals int) {
	for _, p := range c.providers {
		if w, ok := p.(realtime.Watcher); ok {
			w.Watch(asset, openSignals)
		}
	}
}

// Providers returns provider names in priority order
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Status returns per-provider counters in priority order
func (c *Chain) Status() []realtime.ProviderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]realtime.ProviderStatus, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, *c.status[p.Name()])
	}
	return out
}

func (c *Chain) record(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.status[name]
	if err == nil {
		st.Successes++
		st.LastSuccess = time.Now()
		return
	}
	st.Failures++
	st.LastError = err.Error()
}
