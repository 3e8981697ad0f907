package feed

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ownerdash/internal/brokers"
	"ownerdash/internal/logging"
)

// messageReader abstracts kafka.Reader for testability.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaFeed reads order events from a topic with the pure-Go client
// (segmentio/kafka-go). Each view joins its own consumer group so that every
// view sees every event.
type KafkaFeed struct {
	newReader func(view string) messageReader
	buffer    int
}

// NewKafkaFeed creates a feed. bootstrap can be a comma-separated list of
// host:port. Views consume as group "<group>-<view>" starting from the newest
// offset: history comes from the snapshot, not from the topic.
func NewKafkaFeed(bootstrap string, topic string, group string) *KafkaFeed {
	addrs := brokers.Parse(bootstrap)
	return &KafkaFeed{
		buffer: 64,
		newReader: func(view string) messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     addrs,
				Topic:       topic,
				GroupID:     fmt.Sprintf("%s-%s", group, view),
				StartOffset: kafka.LastOffset,
				MinBytes:    1,
				MaxBytes:    10e6,
			})
		},
	}
}

// NewKafkaFeedWith is only for tests to inject a fake reader.
func NewKafkaFeedWith(newReader func(view string) messageReader) *KafkaFeed {
	return &KafkaFeed{newReader: newReader, buffer: 64}
}

func (k *KafkaFeed) Subscribe(ctx context.Context, view string) (Subscription, error) {
	r := k.newReader(view)
	ctx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{pump: newPump(cancel, k.buffer), reader: r}
	go sub.run(ctx, view)
	return sub, nil
}

type kafkaSub struct {
	*pump
	reader messageReader
}

func (s *kafkaSub) run(ctx context.Context, view string) {
	defer s.finish()
	logger := logging.Component("feed")
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Str("view", view).Msg("kafka read failed")
				s.fail(fmt.Errorf("read kafka: %w", err))
			}
			return
		}
		if !s.deliver(ctx, m.Value) {
			return
		}
	}
}

func (s *kafkaSub) Close() error {
	s.stop()
	if err := s.reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}
	return nil
}
