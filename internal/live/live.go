// Package live runs one dashboard view: a single goroutine owns the view's
// reconcile.Collection and serialises snapshot fetches, feed updates and
// refresh requests into it. Readers get immutable copies.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ownerdash/internal/cache"
	"ownerdash/internal/feed"
	"ownerdash/internal/logging"
	"ownerdash/internal/metrics"
	"ownerdash/internal/model"
	"ownerdash/internal/notify"
	"ownerdash/internal/reconcile"
	"ownerdash/internal/source"
	"ownerdash/internal/views"
)

var (
	ErrAlreadyOpen = errors.New("view already open")
	ErrClosed      = errors.New("view closed")
	// ErrNotifyBacklog is counted when the notification queue is full and an
	// event is dropped.
	ErrNotifyBacklog = errors.New("notification queue full")
)

// Stats is a point-in-time summary of a view.
type Stats struct {
	View         string    `json:"view"`
	Records      int       `json:"records"`
	Inserted     uint64    `json:"inserted"`
	Updated      uint64    `json:"updated"`
	Removed      uint64    `json:"removed"`
	Ignored      uint64    `json:"ignored"`
	Invalid      uint64    `json:"invalid"`
	DecodeErrors uint64    `json:"decodeErrors"`
	Snapshots    uint64    `json:"snapshots"`
	LastSnapshot time.Time `json:"lastSnapshot,omitempty"`
	LastFetchErr string    `json:"lastFetchError,omitempty"`
	FromCache    bool      `json:"fromCache"`
	Subscribed   bool      `json:"subscribed"`
	// NotifyDropped counts announcements lost to a full notification queue.
	NotifyDropped uint64 `json:"notifyDropped"`
}

type settings struct {
	cache    cache.Store
	notifier notify.Notifier
	metrics  *metrics.Registry
	resync   time.Duration
	now      func() time.Time
	hook     func(reconcile.Outcome, reconcile.Record)

	notifyTimeout time.Duration
	notifyQueue   int
}

type Option func(*settings)

// WithCache restores the view from store on Open and saves every snapshot.
func WithCache(store cache.Store) Option { return func(s *settings) { s.cache = store } }

// WithNotifier announces records inserted by feed updates. Announcements are
// queued and sent from their own goroutine; the view never waits on a sink.
func WithNotifier(n notify.Notifier) Option { return func(s *settings) { s.notifier = n } }

// WithNotifyTimeout bounds each Notify call. The default is 5s.
func WithNotifyTimeout(d time.Duration) Option { return func(s *settings) { s.notifyTimeout = d } }

// WithNotifyQueue sets how many announcements may wait for the notifier
// before new ones are dropped. The default is 64.
func WithNotifyQueue(n int) Option { return func(s *settings) { s.notifyQueue = n } }

func WithMetrics(r *metrics.Registry) Option { return func(s *settings) { s.metrics = r } }

// WithResync refetches the snapshot every d. Zero disables it.
func WithResync(d time.Duration) Option { return func(s *settings) { s.resync = d } }

func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// WithOutcomeHook is called from the view loop after every applied update.
// It must not block.
func WithOutcomeHook(fn func(reconcile.Outcome, reconcile.Record)) Option {
	return func(s *settings) { s.hook = fn }
}

type published[T reconcile.Record] struct {
	records []T
	stats   Stats
}

type fetchResult[T reconcile.Record] struct {
	records []T
	err     error
	took    time.Duration
}

// View is the runtime of one screen.
type View[T reconcile.Record] struct {
	def      views.Definition[T]
	snapshot source.Snapshot[T]
	feed     feed.Feed
	opts     settings
	log      zerolog.Logger
	obs      *metrics.Observer

	coll  *reconcile.Collection[T]
	stats Stats
	cur   atomic.Pointer[published[T]]

	refresh chan struct{}
	fetched chan fetchResult[T]
	events  chan notify.Event

	mu     sync.Mutex
	open   bool
	closed bool
	cancel context.CancelFunc
	sub    feed.Subscription
	wg     sync.WaitGroup
}

// New builds a view. f may be nil for views without a feed; it is ignored
// unless def.Live is set.
func New[T reconcile.Record](def views.Definition[T], snapshot source.Snapshot[T], f feed.Feed, opts ...Option) *View[T] {
	s := settings{now: time.Now, notifyTimeout: 5 * time.Second, notifyQueue: 64}
	for _, o := range opts {
		o(&s)
	}
	if s.notifyQueue < 1 {
		s.notifyQueue = 1
	}
	v := &View[T]{
		def:      def,
		snapshot: snapshot,
		feed:     f,
		opts:     s,
		log:      logging.Component("live").With().Str("view", def.Name).Logger(),
		obs:      s.metrics.Observer(def.Name),
		coll:     reconcile.New(def.Ordering, def.Partition),
		stats:    Stats{View: def.Name},
		refresh:  make(chan struct{}, 1),
		fetched:  make(chan fetchResult[T]),
		events:   make(chan notify.Event, s.notifyQueue),
	}
	v.publish()
	return v
}

func (v *View[T]) Name() string { return v.def.Name }

// Open restores the cached snapshot, subscribes to the feed and starts the
// first fetch. The view runs until ctx is cancelled or Close is called.
func (v *View[T]) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if v.open {
		return ErrAlreadyOpen
	}

	v.restore()

	ctx, cancel := context.WithCancel(ctx)
	var msgs <-chan []byte
	if v.def.Live && v.feed != nil {
		sub, err := v.feed.Subscribe(ctx, v.def.Name)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", v.def.Name, err)
		}
		v.sub = sub
		msgs = sub.Messages()
		v.stats.Subscribed = true
		v.publish()
	}
	v.cancel = cancel
	v.open = true

	if v.opts.notifier != nil {
		v.wg.Add(1)
		go v.notifyLoop(ctx)
	}
	v.wg.Add(1)
	go v.loop(ctx, msgs)
	v.Refresh()
	v.log.Info().Str("ordering", v.def.Ordering.String()).Bool("live", v.stats.Subscribed).Msg("view opened")
	return nil
}

// Close stops the loop and releases the subscription. No update is applied
// after Close returns.
func (v *View[T]) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	cancel, sub := v.cancel, v.sub
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	v.wg.Wait()
	if sub != nil {
		if err := sub.Close(); err != nil {
			return fmt.Errorf("close subscription %s: %w", v.def.Name, err)
		}
	}
	return nil
}

// Refresh asks the loop to fetch a new snapshot. Requests made while one is
// already queued are coalesced.
func (v *View[T]) Refresh() {
	select {
	case v.refresh <- struct{}{}:
	default:
	}
}

// Records returns the current contents in view order.
func (v *View[T]) Records() []T {
	p := v.cur.Load()
	out := make([]T, len(p.records))
	copy(out, p.records)
	return out
}

// Filter returns the current records matching pred.
func (v *View[T]) Filter(pred func(T) bool) []T {
	p := v.cur.Load()
	out := make([]T, 0, len(p.records))
	for _, r := range p.records {
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func (v *View[T]) Stats() Stats { return v.cur.Load().stats }

func (v *View[T]) loop(ctx context.Context, msgs <-chan []byte) {
	defer v.wg.Done()

	var tick <-chan time.Time
	if v.opts.resync > 0 {
		t := time.NewTicker(v.opts.resync)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.refresh:
			v.startFetch(ctx)
		case <-tick:
			v.startFetch(ctx)
		case res := <-v.fetched:
			if ctx.Err() != nil {
				return
			}
			v.install(res)
		case payload, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				msgs = nil
				v.feedClosed()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			v.apply(payload)
		}
	}
}

// startFetch runs a fetch in its own goroutine. Fetches are never cancelled
// by later ones; whichever completes last is installed last.
func (v *View[T]) startFetch(ctx context.Context) {
	if v.snapshot == nil {
		return
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		start := v.opts.now()
		records, err := v.snapshot.Fetch(ctx)
		res := fetchResult[T]{records: records, err: err, took: v.opts.now().Sub(start)}
		select {
		case v.fetched <- res:
		case <-ctx.Done():
		}
	}()
}

func (v *View[T]) install(res fetchResult[T]) {
	v.obs.Fetch(res.took, res.err)
	if res.err != nil {
		v.log.Warn().Err(res.err).Msg("snapshot fetch failed")
		v.stats.LastFetchErr = res.err.Error()
		v.publish()
		return
	}
	v.coll.ReplaceAll(res.records)
	now := v.opts.now()
	v.stats.Snapshots++
	v.stats.LastSnapshot = now
	v.stats.LastFetchErr = ""
	v.stats.FromCache = false
	v.obs.Snapshot("fetch", v.coll.Len())
	v.obs.CacheAge(0)
	v.log.Debug().Int("fetched", len(res.records)).Int("kept", v.coll.Len()).Dur("took", res.took).Msg("snapshot installed")
	v.save(now)
	v.publish()
}

func (v *View[T]) apply(payload []byte) {
	r, err := feed.Decode[T](payload)
	if err != nil {
		v.stats.DecodeErrors++
		v.obs.DecodeError()
		v.log.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping undecodable update")
		v.publish()
		return
	}
	out, err := v.coll.ApplyUpdate(r)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidRecord) {
			v.stats.Invalid++
			v.obs.InvalidRecord()
		}
		v.log.Warn().Err(err).Msg("rejecting update")
		v.publish()
		return
	}
	v.obs.Outcome(out)
	v.obs.Size(v.coll.Len())
	switch out {
	case reconcile.Inserted:
		v.stats.Inserted++
	case reconcile.Updated:
		v.stats.Updated++
	case reconcile.Removed:
		v.stats.Removed++
	case reconcile.Ignored:
		v.stats.Ignored++
	}
	v.log.Debug().Str("id", r.RecordID()).Str("status", r.RecordStatus()).Stringer("outcome", out).Msg("update applied")
	if v.opts.hook != nil {
		v.opts.hook(out, r)
	}
	v.publish()
	if out == reconcile.Inserted {
		v.announce(r)
	}
}

// announce queues r for the notifier goroutine without blocking the loop.
func (v *View[T]) announce(r T) {
	if v.opts.notifier == nil {
		return
	}
	select {
	case v.events <- eventFor(v.def.Name, r, v.opts.now()):
	default:
		v.stats.NotifyDropped++
		v.obs.Notification(ErrNotifyBacklog)
		v.log.Warn().Str("id", r.RecordID()).Msg("notification queue full; dropping announcement")
		v.publish()
	}
}

func (v *View[T]) notifyLoop(ctx context.Context) {
	defer v.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-v.events:
			nctx, cancel := context.WithTimeout(ctx, v.opts.notifyTimeout)
			err := v.opts.notifier.Notify(nctx, e)
			cancel()
			v.obs.Notification(err)
			if err != nil && ctx.Err() == nil {
				v.log.Warn().Err(err).Str("id", e.ID).Msg("notify failed")
			}
		}
	}
}

func (v *View[T]) feedClosed() {
	var err error
	if v.sub != nil {
		err = v.sub.Err()
	}
	v.obs.FeedError()
	v.log.Error().Err(err).Msg("feed subscription ended; view now refreshes only")
	v.stats.Subscribed = false
	v.publish()
}

func (v *View[T]) restore() {
	if v.opts.cache == nil {
		return
	}
	snap, ok, err := v.opts.cache.Load(v.def.Name)
	if err != nil {
		v.log.Warn().Err(err).Msg("cache load failed; starting empty")
		return
	}
	if !ok {
		return
	}
	records, err := cache.Decode[T](snap)
	if err != nil {
		v.log.Warn().Err(err).Msg("cache decode failed; starting empty")
		return
	}
	v.coll.ReplaceAll(records)
	v.stats.FromCache = true
	v.stats.LastSnapshot = snap.SavedAt
	v.obs.Snapshot("cache", v.coll.Len())
	v.obs.CacheAge(v.opts.now().Sub(snap.SavedAt))
	v.log.Info().Int("records", v.coll.Len()).Time("saved_at", snap.SavedAt).Msg("restored from cache")
	v.publish()
}

func (v *View[T]) save(now time.Time) {
	if v.opts.cache == nil {
		return
	}
	snap, err := cache.Encode(v.coll.Records(), now)
	if err == nil {
		err = v.opts.cache.Save(v.def.Name, snap)
	}
	if err != nil {
		v.log.Warn().Err(err).Msg("cache save failed")
	}
}

func (v *View[T]) publish() {
	v.stats.Records = v.coll.Len()
	v.cur.Store(&published[T]{records: v.coll.Records(), stats: v.stats})
}

func eventFor[T reconcile.Record](view string, r T, at time.Time) notify.Event {
	if o, ok := any(r).(model.Order); ok {
		return notify.NewOrderEvent(view, o, at)
	}
	return notify.Event{View: view, ID: r.RecordID(), Status: r.RecordStatus(), At: at.UTC().Unix()}
}
