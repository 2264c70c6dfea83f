package store

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/metrics"
)

// Sink 파이프라인 출력 저장소
// SaveTransition 은 lifecycle.Store 를 만족 (메모리 반영 전에 호출됨)
type Sink interface {
	SaveSignal(ctx context.Context, sig *contracts.CanonicalSignal) error
	SaveTransition(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error
	SaveGroup(ctx context.Context, g *contracts.SignalGroup) error
	DeleteGroup(ctx context.Context, id string) error
	SaveReputation(ctx context.Context, rep contracts.SourceReputation) error
	SaveAdvisory(ctx context.Context, a contracts.Advisory) error
}

// Named 이름 붙은 보조 sink (로그/메트릭 라벨)
type Named struct {
	Name string
	Sink Sink
}

// Multi fans every write out to a primary sink and best-effort secondaries.
// ⭐ SSOT: primary 가 영속 기록. primary 실패만 호출자에게 반환하고
// 보조 sink 실패는 로그 + 메트릭으로만 남긴다
type Multi struct {
	primary   Sink
	secondary []Named
	metrics   *metrics.Recorder
	log       zerolog.Logger
}

// NewMulti creates a fan-out sink. rec 는 nil 가능
func NewMulti(primary Sink, rec *metrics.Recorder, log zerolog.Logger, secondary ...Named) *Multi {
	return &Multi{
		primary:   primary,
		secondary: secondary,
		metrics:   rec,
		log:       log.With().Str("component", "store.multi").Logger(),
	}
}

func (m *Multi) each(op string, fn func(Sink) error) error {
	if err := fn(m.primary); err != nil {
		return err
	}
	for _, s := range m.secondary {
		if err := fn(s.Sink); err != nil {
			m.metrics.RecordSinkFailure(s.Name, op)
			m.log.Warn().Err(err).Str("sink", s.Name).Str("op", op).Msg("secondary sink write failed")
		}
	}
	return nil
}

func (m *Multi) SaveSignal(ctx context.Context, sig *contracts.CanonicalSignal) error {
	return m.each("save_signal", func(s Sink) error { return s.SaveSignal(ctx, sig) })
}

func (m *Multi) SaveTransition(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error {
	return m.each("save_transition", func(s Sink) error { return s.SaveTransition(ctx, sig, tr) })
}

func (m *Multi) SaveGroup(ctx context.Context, g *contracts.SignalGroup) error {
	return m.each("save_group", func(s Sink) error { return s.SaveGroup(ctx, g) })
}

func (m *Multi) DeleteGroup(ctx context.Context, id string) error {
	return m.each("delete_group", func(s Sink) error { return s.DeleteGroup(ctx, id) })
}

func (m *Multi) SaveReputation(ctx context.Context, rep contracts.SourceReputation) error {
	return m.each("save_reputation", func(s Sink) error { return s.SaveReputation(ctx, rep) })
}

func (m *Multi) SaveAdvisory(ctx context.Context, a contracts.Advisory) error {
	return m.each("save_advisory", func(s Sink) error { return s.SaveAdvisory(ctx, a) })
}
