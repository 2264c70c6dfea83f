package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
)

// PriceCache is an in-memory cache for the latest tick per asset
// ⭐ SSOT: 실시간 가격 캐싱은 이 구조체에서만
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]contracts.PriceTick
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewPriceCache creates a new price cache
func NewPriceCache(ttl time.Duration, log zerolog.Logger) *PriceCache {
	return &PriceCache{
		prices: make(map[string]contracts.PriceTick),
		ttl:    ttl,
		log:    log.With().Str("component", "realtime.cache").Logger(),
		now:    time.Now,
	}
}

// Update updates price in cache
// Only accepts newer data, or same-timestamp data from a higher priority source
func (c *PriceCache) Update(tick contracts.PriceTick) bool {
	if !tick.Valid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.prices[tick.Asset]; ok {
		if tick.Timestamp.Before(existing.Timestamp) {
			c.log.Debug().
				Str("asset", tick.Asset).
				Time("new_time", tick.Timestamp).
				Time("old_time", existing.Timestamp).
				Msg("rejected older price")
			return false
		}

		if tick.Timestamp.Equal(existing.Timestamp) {
			newSource := realtime.PriceSource(tick.Source)
			oldSource := realtime.PriceSource(existing.Source)
			if newSource.Priority() <= oldSource.Priority() {
				return false
			}
		}
	}

	c.prices[tick.Asset] = tick
	return true
}

// Get returns the cached tick and whether it is still fresh
func (c *PriceCache) Get(asset string) (contracts.PriceTick, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok := c.prices[asset]
	if !ok {
		return contracts.PriceTick{}, false, false
	}
	return tick, true, c.fresh(tick)
}

// Fresh returns the tick only when it is younger than the TTL
func (c *PriceCache) Fresh(asset string) (contracts.PriceTick, bool) {
	tick, ok, fresh := c.Get(asset)
	return tick, ok && fresh
}

// Delete removes price from cache
func (c *PriceCache) Delete(asset string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.prices, asset)
}

// Len returns the number of prices in cache
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.prices)
}

// CleanStale removes stale prices from cache
func (c *PriceCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for asset, tick := range c.prices {
		if !c.fresh(tick) {
			delete(c.prices, asset)
			count++
		}
	}

	if count > 0 {
		c.log.Info().Int("count", count).Msg("cleaned stale prices")
	}
	return count
}

// Stats returns cache statistics
func (c *PriceCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		TotalCount: len(c.prices),
		BySource:   make(map[string]int),
	}
	for _, tick := range c.prices {
		if !c.fresh(tick) {
			stats.StaleCount++
		}
		stats.BySource[tick.Source]++
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount

	return stats
}

func (c *PriceCache) fresh(tick contracts.PriceTick) bool {
	return c.now().Sub(tick.Timestamp) <= c.ttl
}

// CacheStats represents cache statistics
type CacheStats struct {
	TotalCount int            `json:"total_count"`
	FreshCount int            `json:"fresh_count"`
	StaleCount int            `json:"stale_count"`
	BySource   map[string]int `json:"by_source"`
}
