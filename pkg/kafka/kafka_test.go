package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumerValidation(t *testing.T) {
	noop := func(context.Context, []byte, []byte) error { return nil }

	_, err := NewConsumer(zerolog.Nop(), noop, WithConsumerTopic("signals.raw"))
	assert.Error(t, err, "brokers required")

	_, err = NewConsumer(zerolog.Nop(), noop, WithConsumerBrokers([]string{"localhost:9092"}))
	assert.Error(t, err, "topic required")

	_, err = NewConsumer(zerolog.Nop(), nil, WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerTopic("t"))
	assert.Error(t, err, "handler required")

	c, err := NewConsumer(zerolog.Nop(), noop,
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerTopic("signals.raw"),
		WithConsumerWorkers(4),
		WithConsumerDLQ("signals.raw.dlq"),
	)
	require.NoError(t, err)
	assert.Equal(t, 4, c.cfg.WorkerCount)
	assert.NotNil(t, c.dlq)
}

func TestHandleWithRetry(t *testing.T) {
	calls := 0
	handler := func(context.Context, []byte, []byte) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}

	c, err := NewConsumer(zerolog.Nop(), handler,
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerTopic("signals.raw"),
		WithConsumerRetry(3, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, c.handleWithRetry(context.Background(), kafka.Message{Value: []byte("{}")}))
	assert.Equal(t, 3, calls)
}

func TestSafeHandleRecoversPanic(t *testing.T) {
	c, err := NewConsumer(zerolog.Nop(), func(context.Context, []byte, []byte) error { panic("boom") },
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerTopic("signals.raw"),
	)
	require.NoError(t, err)

	err = c.safeHandle(context.Background(), kafka.Message{})
	assert.ErrorContains(t, err, "boom")
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(WithTopic("signals.events"))
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic("signals.events"))
	require.NoError(t, err)
	assert.Equal(t, "signals.events", p.writer.Topic)
}
