// Package notify announces orders that newly appear in a view. It replaces the
// new-order chime and toast of the browser dashboard.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ownerdash/internal/brokers"
	"ownerdash/internal/logging"
	"ownerdash/internal/model"
)

// Event describes one inserted order.
type Event struct {
	View     string  `json:"view"`
	ID       string  `json:"id"`
	Customer string  `json:"customer,omitempty"`
	Status   string  `json:"status"`
	Total    float64 `json:"total"`
	At       int64   `json:"at"`
}

// NewOrderEvent builds the event for an order inserted into view.
func NewOrderEvent(view string, o model.Order, at time.Time) Event {
	return Event{
		View:     view,
		ID:       o.RecordID(),
		Customer: o.CustomerName,
		Status:   o.OrderStatus,
		Total:    o.TotalPrice,
		At:       at.UTC().Unix(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e Event) error

func (f Func) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// MultiNotifier fans out to multiple notifiers. Every notifier is tried; the
// first error is returned.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

func (m *MultiNotifier) Notify(ctx context.Context, e Event) error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogNotifier writes a log line per event.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logging.Component("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, e Event) error {
	l.logger.Info().
		Str("view", e.View).
		Str("order", e.ID).
		Str("customer", e.Customer).
		Float64("total", e.Total).
		Msg("new order")
	return nil
}

// FileNotifier appends events as JSON lines.
type FileNotifier struct {
	mu   sync.Mutex
	path string
}

func NewFileNotifier(path string) (*FileNotifier, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileNotifier{path: path}, nil
}

func (w *FileNotifier) Notify(_ context.Context, e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(&e); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// KafkaNotifier publishes events to a Kafka topic keyed by order id.
type KafkaNotifier struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaNotifier creates a Kafka notifier.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaNotifier(bootstrap string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers.Parse(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaNotifierWith is only for tests to inject a fake writer.
func NewKafkaNotifierWith(w kafkaMessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.ID), Value: b}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer when it supports it.
func (k *KafkaNotifier) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
