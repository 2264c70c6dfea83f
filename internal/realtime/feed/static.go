package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
)

// Static 고정/재생 시세 제공자 (리플레이, 개발, 테스트)
// 자산별 틱 시퀀스를 순서대로 하나씩 내주고, 마지막 틱은 계속 유지한다
// Price 가 0 인 틱은 장애 구간으로 취급 (ErrUnavailable)
type Static struct {
	mu     sync.Mutex
	ticks  map[string][]contracts.PriceTick
	cursor map[string]int
}

// NewStatic creates an empty static provider
func NewStatic() *Static {
	return &Static{
		ticks:  make(map[string][]contracts.PriceTick),
		cursor: make(map[string]int),
	}
}

// Name returns the provider name
func (s *Static) Name() string { return string(realtime.SourceStatic) }

// Push appends ticks to the per-asset sequence
func (s *Static) Push(ticks ...contracts.PriceTick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		if t.Source == "" {
			t.Source = s.Name()
		}
		s.ticks[t.Asset] = append(s.ticks[t.Asset], t)
	}
}

// Set replaces the sequence with a single fixed price
func (s *Static) Set(asset string, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks[asset] = []contracts.PriceTick{{Asset: asset, Price: price, Timestamp: at, Source: s.Name()}}
	s.cursor[asset] = 0
}

// CurrentPrice returns the next tick of the sequence
func (s *Static) CurrentPrice(_ context.Context, asset string) (contracts.PriceTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.ticks[asset]
	if len(seq) == 0 {
		return contracts.PriceTick{}, fmt.Errorf("%w: no static price for %s", realtime.ErrUnavailable, asset)
	}

	i := s.cursor[asset]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		s.cursor[asset] = i + 1
	}

	tick := seq[i]
	if !tick.Valid() {
		return contracts.PriceTick{}, fmt.Errorf("%w: scripted outage for %s", realtime.ErrUnavailable, asset)
	}
	return tick, nil
}

// PriceHistory returns the valid ticks within window of the latest tick
func (s *Static) PriceHistory(_ context.Context, asset string, window time.Duration) ([]contracts.PriceTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.ticks[asset]
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: no static history for %s", realtime.ErrUnavailable, asset)
	}

	var latest time.Time
	for _, t := range seq {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}

	out := make([]contracts.PriceTick, 0, len(seq))
	for _, t := range seq {
		if t.Valid() && !t.Timestamp.Before(latest.Add(-window)) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
