package store

import (
	"context"

	"github.com/wonny/signalhub/internal/contracts"
)

// 이벤트 타입 (Kafka event_type 헤더)
const (
	EventSignal       = "signal.accepted"
	EventTransition   = "signal.transition"
	EventGroup        = "group.updated"
	EventGroupDeleted = "group.absorbed"
	EventReputation   = "reputation.updated"
	EventAdvisory     = "advisory"
)

// publisher pkg/kafka.Producer
type publisher interface {
	PublishJSON(ctx context.Context, key, eventType string, value interface{}) error
}

// Events 출력을 signals.events 토픽으로 발행
// key 는 순서가 보장되어야 하는 단위 (시그널/그룹/소스)
type Events struct {
	pub publisher
}

// NewEvents 새 이벤트 발행기
func NewEvents(pub publisher) *Events {
	return &Events{pub: pub}
}

type transitionEvent struct {
	Transition contracts.Transition       `json:"transition"`
	Signal     *contracts.CanonicalSignal `json:"signal"`
}

type groupDeletedEvent struct {
	ID string `json:"id"`
}

func (e *Events) SaveSignal(ctx context.Context, sig *contracts.CanonicalSignal) error {
	return e.pub.PublishJSON(ctx, sig.ID, EventSignal, sig)
}

func (e *Events) SaveTransition(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error {
	return e.pub.PublishJSON(ctx, sig.ID, EventTransition, transitionEvent{Transition: tr, Signal: sig})
}

func (e *Events) SaveGroup(ctx context.Context, g *contracts.SignalGroup) error {
	return e.pub.PublishJSON(ctx, g.ID, EventGroup, g)
}

func (e *Events) DeleteGroup(ctx context.Context, id string) error {
	return e.pub.PublishJSON(ctx, id, EventGroupDeleted, groupDeletedEvent{ID: id})
}

func (e *Events) SaveReputation(ctx context.Context, rep contracts.SourceReputation) error {
	return e.pub.PublishJSON(ctx, rep.SourceID, EventReputation, rep)
}

func (e *Events) SaveAdvisory(ctx context.Context, a contracts.Advisory) error {
	return e.pub.PublishJSON(ctx, a.Subject, EventAdvisory, a)
}
