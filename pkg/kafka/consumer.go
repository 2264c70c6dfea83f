package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message payload. A non-nil error triggers retry.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer wraps a kafka-go reader with a worker pool, retry and optional DLQ
// ⭐ SSOT: Kafka 읽기는 여기서만
type Consumer struct {
	cfg     *ConsumerConfig
	reader  *kafka.Reader
	dlq     *kafka.Writer
	handler Handler
	log     zerolog.Logger
	msgCh   chan kafka.Message
	wg      sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(log zerolog.Logger, handler Handler, opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	c := &Consumer{
		cfg:     cfg,
		handler: handler,
		log:     log.With().Str("component", "kafka.consumer").Str("topic", cfg.Topic).Logger(),
		msgCh:   make(chan kafka.Message, cfg.BufferSize),
	}

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}

	return c, nil
}

// Run reads until ctx is cancelled, then drains workers and closes the reader
func (c *Consumer) Run(ctx context.Context) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: c.cfg.MinBytes,
		MaxBytes: c.cfg.MaxBytes,
	})

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.log.Info().Int("workers", c.cfg.WorkerCount).Msg("consumer started")

	err := c.fetchLoop(ctx)

	close(c.msgCh)
	c.wg.Wait()

	if cerr := c.reader.Close(); cerr != nil {
		c.log.Warn().Err(cerr).Msg("error closing reader")
	}
	if c.dlq != nil {
		if cerr := c.dlq.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("error closing dlq writer")
		}
	}

	c.log.Info().Msg("consumer stopped")
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Warn().Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.BackoffMax):
			}
			continue
		}

		select {
		case c.msgCh <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()

	for msg := range c.msgCh {
		err := c.handleWithRetry(ctx, msg)
		if err != nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("handler failed after retries")
			c.publishDLQ(ctx, msg, err)
		}

		// 성공 또는 DLQ 전송 후 커밋 (poison message 루프 방지)
		if err == nil || c.dlq != nil {
			commitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if cerr := c.reader.CommitMessages(commitCtx, msg); cerr != nil {
				c.log.Warn().Err(cerr).Int64("offset", msg.Offset).Msg("commit failed")
			}
			cancel()
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.safeHandle(ctx, msg)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) safeHandle(ctx context.Context, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return c.handler(ctx, msg.Key, msg.Value)
}

func (c *Consumer) publishDLQ(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(c.cfg.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error().Err(err).Str("dlq", c.cfg.DLQTopic).Msg("dlq publish failed")
	}
}

// backoffWithJitter returns exponential backoff capped at max, with full jitter
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	d := min << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	return min + time.Duration(rand.Int63n(int64(d-min)+1))
}
