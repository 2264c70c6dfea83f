package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/signalhub/internal/contracts"
)

// Memory 프로세스 내 저장소 (replay, 테스트, DATABASE_URL 미설정 시)
type Memory struct {
	mu          sync.RWMutex
	signals     map[string]*contracts.CanonicalSignal
	transitions map[string][]contracts.Transition
	groups      map[string]*contracts.SignalGroup
	reputation  map[string]contracts.SourceReputation
	advisories  []contracts.Advisory
}

// NewMemory 빈 메모리 저장소
func NewMemory() *Memory {
	return &Memory{
		signals:     make(map[string]*contracts.CanonicalSignal),
		transitions: make(map[string][]contracts.Transition),
		groups:      make(map[string]*contracts.SignalGroup),
		reputation:  make(map[string]contracts.SourceReputation),
	}
}

func (m *Memory) SaveSignal(_ context.Context, sig *contracts.CanonicalSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[sig.ID] = sig.Clone()
	return nil
}

// SaveTransition 같은 (signal, to_state) 는 한 번만 기록
func (m *Memory) SaveTransition(_ context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, prev := range m.transitions[tr.SignalID] {
		if prev.To == tr.To {
			return nil
		}
	}
	m.transitions[tr.SignalID] = append(m.transitions[tr.SignalID], tr)
	m.signals[sig.ID] = sig.Clone()
	return nil
}

func (m *Memory) SaveGroup(_ context.Context, g *contracts.SignalGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.groups[g.ID]; ok && prev.Closed {
		return nil
	}
	m.groups[g.ID] = g.Clone()
	return nil
}

func (m *Memory) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, id)
	return nil
}

func (m *Memory) SaveReputation(_ context.Context, rep contracts.SourceReputation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reputation[rep.SourceID] = rep
	return nil
}

func (m *Memory) SaveAdvisory(_ context.Context, a contracts.Advisory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advisories = append(m.advisories, a)
	return nil
}

// === Read side ===

// Signal returns a stored signal copy
func (m *Memory) Signal(id string) (*contracts.CanonicalSignal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signals[id]
	if !ok {
		return nil, false
	}
	return sig.Clone(), true
}

// Signals 생성 시각 순
func (m *Memory) Signals() []*contracts.CanonicalSignal {
	m.mu.RLock()
	out := make([]*contracts.CanonicalSignal, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Transitions 시그널의 전이 이력 (기록 순)
func (m *Memory) Transitions(signalID string) []contracts.Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.Transition(nil), m.transitions[signalID]...)
}

// Groups id 순
func (m *Memory) Groups() []*contracts.SignalGroup {
	m.mu.RLock()
	out := make([]*contracts.SignalGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reputation 소스 id 순
func (m *Memory) Reputation() []contracts.SourceReputation {
	m.mu.RLock()
	out := make([]contracts.SourceReputation, 0, len(m.reputation))
	for _, r := range m.reputation {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Advisories 기록 순
func (m *Memory) Advisories() []contracts.Advisory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.Advisory(nil), m.advisories...)
}
