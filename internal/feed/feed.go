// Package feed delivers record-changed events from the real-time channel.
// Every view opens its own Subscription and closes it when torn down.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Subscription is one view's stream of raw event payloads. Messages is
// closed when the subscription ends; Err then reports why, or nil after Close.
type Subscription interface {
	Messages() <-chan []byte
	Err() error
	Close() error
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, view string) (Subscription, error)
}

// Decode parses a payload into a record.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode event: %w", err)
	}
	return v, nil
}

// pump is the shared goroutine plumbing behind the broker-backed subscriptions.
type pump struct {
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newPump(cancel context.CancelFunc, buffer int) *pump {
	return &pump{
		ch:     make(chan []byte, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (p *pump) Messages() <-chan []byte { return p.ch }

func (p *pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pump) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// deliver hands a payload to the reader, giving up when ctx ends.
func (p *pump) deliver(ctx context.Context, payload []byte) bool {
	select {
	case p.ch <- payload:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish must be called exactly once by the pumping goroutine.
func (p *pump) finish() {
	close(p.ch)
	close(p.done)
}

func (p *pump) stop() {
	p.cancel()
	<-p.done
}

// MemoryFeed broadcasts published payloads to every open subscription. It
// backs tests and in-process publishers.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	buffer int
}

func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryFeed{subs: make(map[*memorySub]struct{}), buffer: buffer}
}

func (m *MemoryFeed) Subscribe(ctx context.Context, view string) (Subscription, error) {
	s := &memorySub{feed: m, ch: make(chan []byte, m.buffer), done: make(chan struct{})}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

// Publish delivers payload to all subscribers in order. It blocks while a
// subscriber's buffer is full, until that subscriber is closed.
func (m *MemoryFeed) Publish(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		select {
		case s.ch <- payload:
		case <-s.done:
		}
	}
}

// PublishJSON marshals v and publishes it.
func (m *MemoryFeed) PublishJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	m.Publish(b)
	return nil
}

// Replay publishes each non-empty line of r, pausing interval between lines.
// It returns the number of lines published.
func (m *MemoryFeed) Replay(ctx context.Context, r io.Reader, interval time.Duration) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	n := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if n > 0 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return n, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m.Publish(append([]byte(nil), line...))
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("replay: %w", err)
	}
	return n, nil
}

// Subscribers returns the number of open subscriptions.
func (m *MemoryFeed) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

type memorySub struct {
	feed *MemoryFeed
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *memorySub) Messages() <-chan []byte { return s.ch }
func (s *memorySub) Err() error              { return nil }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		close(s.ch)
		s.feed.mu.Unlock()
	})
	return nil
}
