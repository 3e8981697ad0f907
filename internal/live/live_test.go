package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ownerdash/internal/cache"
	"ownerdash/internal/feed"
	"ownerdash/internal/metrics"
	"ownerdash/internal/model"
	"ownerdash/internal/notify"
	"ownerdash/internal/reconcile"
	"ownerdash/internal/source"
	"ownerdash/internal/views"
)

func order(id, status string) model.Order {
	return model.Order{ID: model.ID(id), OrderStatus: status, PaymentStatus: model.PaymentConfirmed, PaymentMode: model.ModeUPI}
}

func ids(orders []model.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.RecordID())
	}
	return out
}

func staticSnapshot(orders ...model.Order) source.Snapshot[model.Order] {
	return source.Func[model.Order](func(context.Context) ([]model.Order, error) {
		return orders, nil
	})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.ID)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestView_SnapshotThenUpdates(t *testing.T) {
	mf := feed.NewMemoryFeed(8)
	n := &recordingNotifier{}
	reg := metrics.NewRegistry()
	var hookMu sync.Mutex
	var outcomes []reconcile.Outcome
	v := New(views.Active(), staticSnapshot(order("1", "Pending"), order("2", "Delivered")), mf,
		WithNotifier(n), WithMetrics(reg), WithOutcomeHook(func(out reconcile.Outcome, _ reconcile.Record) {
			hookMu.Lock()
			outcomes = append(outcomes, out)
			hookMu.Unlock()
		}))

	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	waitFor(t, func() bool { return v.Stats().Snapshots == 1 })
	assert.Equal(t, []string{"1"}, ids(v.Records()))
	require.Equal(t, 1, mf.Subscribers())

	require.NoError(t, mf.PublishJSON(order("3", "Pending")))
	require.NoError(t, mf.PublishJSON(order("1", "Accepted")))
	require.NoError(t, mf.PublishJSON(order("1", "Delivered")))
	waitFor(t, func() bool { return v.Stats().Removed == 1 })

	assert.Equal(t, []string{"3"}, ids(v.Records()))
	st := v.Stats()
	assert.Equal(t, uint64(1), st.Inserted)
	assert.Equal(t, uint64(1), st.Updated)
	assert.True(t, st.Subscribed)
	waitFor(t, func() bool { return len(n.ids()) == 1 })
	assert.Equal(t, []string{"3"}, n.ids())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Outcomes.WithLabelValues("active", "inserted")))
	hookMu.Lock()
	assert.Equal(t, []reconcile.Outcome{reconcile.Inserted, reconcile.Updated, reconcile.Removed}, outcomes)
	hookMu.Unlock()
}

func TestView_BadPayloadsAreCounted(t *testing.T) {
	mf := feed.NewMemoryFeed(8)
	v := New(views.Active(), staticSnapshot(), mf)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	mf.Publish([]byte(`{not json`))
	mf.Publish([]byte(`{"orderStatus":"Pending"}`))
	waitFor(t, func() bool {
		st := v.Stats()
		return st.DecodeErrors == 1 && st.Invalid == 1
	})
	assert.Empty(t, v.Records())
}

func TestView_FetchFailureKeepsContents(t *testing.T) {
	var calls atomic.Int32
	snap := source.Func[model.Order](func(context.Context) ([]model.Order, error) {
		if calls.Add(1) == 1 {
			return []model.Order{order("1", "Pending")}, nil
		}
		return nil, errors.New("backend down")
	})
	v := New(views.Incoming(), snap, nil)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	waitFor(t, func() bool { return v.Stats().Snapshots == 1 })

	v.Refresh()
	waitFor(t, func() bool { return v.Stats().LastFetchErr != "" })
	assert.Equal(t, []string{"1"}, ids(v.Records()))
	assert.Contains(t, v.Stats().LastFetchErr, "backend down")
}

func TestView_RestoresFromCacheAndSaves(t *testing.T) {
	store := cache.NewInMemoryStore()
	saved, err := cache.Encode([]model.Order{order("7", "Preparing")}, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Save(views.NameActive, saved))

	release := make(chan struct{})
	snap := source.Func[model.Order](func(ctx context.Context) ([]model.Order, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []model.Order{order("8", "Pending")}, nil
	})
	v := New(views.Active(), snap, nil, WithCache(store))
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	assert.Equal(t, []string{"7"}, ids(v.Records()))
	assert.True(t, v.Stats().FromCache)

	close(release)
	waitFor(t, func() bool { return v.Stats().Snapshots == 1 })
	assert.Equal(t, []string{"8"}, ids(v.Records()))
	assert.False(t, v.Stats().FromCache)

	got, ok, err := store.Load(views.NameActive)
	require.NoError(t, err)
	require.True(t, ok)
	restored, err := cache.Decode[model.Order](got)
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, ids(restored))
}

func TestView_NonLiveViewDoesNotSubscribe(t *testing.T) {
	mf := feed.NewMemoryFeed(1)
	v := New(views.Menu(), source.Func[model.MenuItem](func(context.Context) ([]model.MenuItem, error) {
		return nil, nil
	}), mf)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	assert.Equal(t, 0, mf.Subscribers())
	assert.False(t, v.Stats().Subscribed)
}

func TestView_CloseReleasesSubscription(t *testing.T) {
	mf := feed.NewMemoryFeed(1)
	v := New(views.Active(), staticSnapshot(), mf)
	require.NoError(t, v.Open(context.Background()))
	require.Equal(t, 1, mf.Subscribers())

	require.NoError(t, v.Close())
	assert.Equal(t, 0, mf.Subscribers())
	assert.NoError(t, v.Close())
	assert.ErrorIs(t, v.Open(context.Background()), ErrClosed)

	mf.Publish([]byte(`{"id":1,"orderStatus":"Pending"}`))
	assert.Empty(t, v.Records())
}

func TestView_OpenTwice(t *testing.T) {
	v := New(views.Menu(), source.Func[model.MenuItem](func(context.Context) ([]model.MenuItem, error) {
		return []model.MenuItem{{ID: "1", Name: "Dosa", Available: true}}, nil
	}), nil)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	assert.ErrorIs(t, v.Open(context.Background()), ErrAlreadyOpen)

	waitFor(t, func() bool { return len(v.Records()) == 1 })
	assert.Len(t, v.Filter(views.MenuSearch("dos")), 1)
	assert.Empty(t, v.Filter(views.MenuSearch("idli")))
}

func TestView_Resync(t *testing.T) {
	var calls atomic.Int32
	snap := source.Func[model.Order](func(context.Context) ([]model.Order, error) {
		calls.Add(1)
		return nil, nil
	})
	v := New(views.Transactions(), snap, nil, WithResync(10*time.Millisecond))
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	waitFor(t, func() bool { return calls.Load() >= 3 })
}

// gatedSnapshot serves fetch n (0-based) with results[n] once gates[n] is closed.
type gatedSnapshot struct {
	results [][]model.Order
	gates   []chan struct{}
	started chan int
	calls   atomic.Int32
}

func newGatedSnapshot(results ...[]model.Order) *gatedSnapshot {
	g := &gatedSnapshot{results: results, started: make(chan int, len(results))}
	for range results {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedSnapshot) Fetch(ctx context.Context) ([]model.Order, error) {
	n := int(g.calls.Add(1)) - 1
	if n >= len(g.results) {
		return nil, errors.New("unexpected fetch")
	}
	g.started <- n
	select {
	case <-g.gates[n]:
	case <-ctx.Done():
	}
	return g.results[n], nil
}

func (g *gatedSnapshot) waitStarted(t *testing.T, want int) {
	t.Helper()
	select {
	case n := <-g.started:
		require.Equal(t, want, n)
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch %d never started", want)
	}
}

func TestView_LastCompletedFetchWins(t *testing.T) {
	snap := newGatedSnapshot(
		[]model.Order{order("a", "Pending")},
		[]model.Order{order("b", "Pending")},
	)
	v := New(views.Incoming(), snap, nil)
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	snap.waitStarted(t, 0)
	v.Refresh()
	snap.waitStarted(t, 1)

	close(snap.gates[1])
	waitFor(t, func() bool { return v.Stats().Snapshots == 1 })
	assert.Equal(t, []string{"b"}, ids(v.Records()))

	close(snap.gates[0])
	waitFor(t, func() bool { return v.Stats().Snapshots == 2 })
	assert.Equal(t, []string{"a"}, ids(v.Records()), "the fetch that completed last must be installed last")
}

func TestView_CloseDuringFetch(t *testing.T) {
	snap := newGatedSnapshot([]model.Order{order("a", "Pending")})
	v := New(views.Incoming(), snap, nil)
	require.NoError(t, v.Open(context.Background()))
	snap.waitStarted(t, 0)

	closed := make(chan error, 1)
	go func() { closed <- v.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while a fetch was in flight")
	}

	assert.Empty(t, v.Records())
	assert.Zero(t, v.Stats().Snapshots)
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (b *blockingNotifier) Notify(ctx context.Context, e notify.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.got = append(b.got, e.ID)
	b.mu.Unlock()
	return nil
}

func (b *blockingNotifier) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

func TestView_SlowNotifierDoesNotBlockUpdates(t *testing.T) {
	mf := feed.NewMemoryFeed(8)
	n := &blockingNotifier{release: make(chan struct{})}
	v := New(views.Active(), staticSnapshot(), mf, WithNotifier(n), WithNotifyTimeout(time.Minute))
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })
	waitFor(t, func() bool { return v.Stats().Snapshots == 1 })

	require.NoError(t, mf.PublishJSON(order("1", "Pending")))
	require.NoError(t, mf.PublishJSON(order("2", "Pending")))

	waitFor(t, func() bool { return v.Stats().Inserted == 2 })
	assert.Equal(t, []string{"2", "1"}, ids(v.Records()))
	assert.Zero(t, n.count())

	v.Refresh()
	waitFor(t, func() bool { return v.Stats().Snapshots == 2 })
	assert.Zero(t, n.count())

	close(n.release)
	waitFor(t, func() bool { return n.count() == 2 })
}

func TestView_NotifyTimeout(t *testing.T) {
	mf := feed.NewMemoryFeed(8)
	reg := metrics.NewRegistry()
	n := &blockingNotifier{release: make(chan struct{})}
	v := New(views.Active(), staticSnapshot(), mf, WithNotifier(n), WithMetrics(reg), WithNotifyTimeout(20*time.Millisecond))
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	require.NoError(t, mf.PublishJSON(order("1", "Pending")))
	waitFor(t, func() bool {
		return testutil.ToFloat64(reg.Notifications.WithLabelValues("active", "error")) == 1
	})
	assert.Equal(t, []string{"1"}, ids(v.Records()))
}

func TestView_FullNotifyQueueDrops(t *testing.T) {
	mf := feed.NewMemoryFeed(8)
	n := &blockingNotifier{release: make(chan struct{})}
	v := New(views.Active(), staticSnapshot(), mf, WithNotifier(n), WithNotifyQueue(1), WithNotifyTimeout(time.Minute))
	require.NoError(t, v.Open(context.Background()))
	t.Cleanup(func() { _ = v.Close() })

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, mf.PublishJSON(order(id, "Pending")))
	}
	waitFor(t, func() bool {
		st := v.Stats()
		return st.Inserted == 3 && st.NotifyDropped >= 1
	})
	assert.Len(t, v.Records(), 3)
}
