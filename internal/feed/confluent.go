package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"ownerdash/internal/brokers"
	"ownerdash/internal/logging"
)

// confluentConsumer abstracts ck.Consumer for testability.
type confluentConsumer interface {
	SubscribeTopics(topics []string, rebalanceCb ck.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	Close() error
}

// ConfluentFeed reads order events with librdkafka, only seeing committed
// messages of transactional producers.
type ConfluentFeed struct {
	topic       string
	newConsumer func(view string) (confluentConsumer, error)
	poll        time.Duration
	buffer      int
}

// NewConfluentFeed creates a feed. Views consume as group "<group>-<view>".
func NewConfluentFeed(bootstrap string, topic string, group string) *ConfluentFeed {
	return &ConfluentFeed{
		topic:  topic,
		poll:   500 * time.Millisecond,
		buffer: 64,
		newConsumer: func(view string) (confluentConsumer, error) {
			return ck.NewConsumer(&ck.ConfigMap{
				"bootstrap.servers":  brokers.Join(bootstrap),
				"group.id":           fmt.Sprintf("%s-%s", group, view),
				"enable.auto.commit": true,
				"isolation.level":    "read_committed",
				"auto.offset.reset":  "latest",
			})
		},
	}
}

// NewConfluentFeedWith is only for tests to inject a fake consumer.
func NewConfluentFeedWith(topic string, poll time.Duration, newConsumer func(view string) (confluentConsumer, error)) *ConfluentFeed {
	return &ConfluentFeed{topic: topic, poll: poll, buffer: 64, newConsumer: newConsumer}
}

func (f *ConfluentFeed) Subscribe(ctx context.Context, view string) (Subscription, error) {
	c, err := f.newConsumer(view)
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{f.topic}, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &confluentSub{pump: newPump(cancel, f.buffer), consumer: c}
	go sub.run(ctx, view, f.poll)
	return sub, nil
}

type confluentSub struct {
	*pump
	consumer confluentConsumer
}

func (s *confluentSub) run(ctx context.Context, view string, poll time.Duration) {
	defer s.finish()
	logger := logging.Component("feed")
	for ctx.Err() == nil {
		msg, err := s.consumer.ReadMessage(poll)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) {
				if kerr.Code() == ck.ErrTimedOut {
					continue
				}
				if !kerr.IsFatal() {
					logger.Warn().Err(err).Str("view", view).Msg("transient consumer error")
					continue
				}
			}
			logger.Error().Err(err).Str("view", view).Msg("consumer failed")
			s.fail(fmt.Errorf("read message: %w", err))
			return
		}
		if !s.deliver(ctx, msg.Value) {
			return
		}
	}
}

func (s *confluentSub) Close() error {
	s.stop()
	if err := s.consumer.Close(); err != nil {
		return fmt.Errorf("close consumer: %w", err)
	}
	return nil
}
