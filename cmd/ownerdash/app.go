package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"ownerdash/internal/cache"
	"ownerdash/internal/config"
	"ownerdash/internal/feed"
	"ownerdash/internal/live"
	"ownerdash/internal/metrics"
	"ownerdash/internal/model"
	"ownerdash/internal/notify"
	"ownerdash/internal/source"
	"ownerdash/internal/views"
)

// app holds the collaborators shared by every view.
type app struct {
	cfg      config.Config
	client   *source.Client
	feed     feed.Feed
	store    cache.Store
	notifier notify.Notifier
	metrics  *metrics.Registry
	closers  []io.Closer
}

func newApp(cfg config.Config) (*app, error) {
	client, err := source.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	a := &app{cfg: cfg, client: client, metrics: metrics.NewRegistry()}

	a.feed = buildFeed(cfg.Feed)

	store, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)
	logCached(store)

	n, closers, err := buildNotifier(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.notifier = n
	a.closers = append(a.closers, closers...)
	return a, nil
}

func buildFeed(cfg config.Feed) feed.Feed {
	switch cfg.Driver {
	case "replay":
		return feed.NewMemoryFeed(0)
	case "kafka":
		return feed.NewKafkaFeed(cfg.Brokers, cfg.Topic, cfg.Group)
	case "confluent":
		return feed.NewConfluentFeed(cfg.Brokers, cfg.Topic, cfg.Group)
	default:
		return nil
	}
}

func buildCache(cfg config.Cache) (cache.Store, error) {
	if cfg.Driver == "pebble" {
		ps, err := cache.NewPebbleStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		return ps, nil
	}
	return cache.NewInMemoryStore(), nil
}

func logCached(store cache.Store) {
	err := store.Range(func(view string, snap cache.Snapshot) error {
		log.Info().Str("view", view).Time("saved_at", snap.SavedAt).Int("bytes", len(snap.Records)).Msg("cached snapshot available")
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("scan cache")
	}
}

func buildNotifier(cfg config.Config) (notify.Notifier, []io.Closer, error) {
	var ns []notify.Notifier
	var closers []io.Closer
	if cfg.HasSink("log") {
		ns = append(ns, notify.NewLogNotifier())
	}
	if cfg.HasSink("file") {
		fn, err := notify.NewFileNotifier(cfg.Notify.File)
		if err != nil {
			return nil, nil, fmt.Errorf("init file notifier: %w", err)
		}
		ns = append(ns, fn)
	}
	if cfg.HasSink("kafka") {
		kn := notify.NewKafkaNotifier(cfg.Feed.Brokers, cfg.Notify.Topic)
		ns = append(ns, kn)
		closers = append(closers, kn)
	}
	switch len(ns) {
	case 0:
		return nil, closers, nil
	case 1:
		return ns[0], closers, nil
	default:
		return notify.NewMultiNotifier(ns...), closers, nil
	}
}

func (a *app) viewOptions(extra ...live.Option) []live.Option {
	opts := []live.Option{
		live.WithCache(a.store),
		live.WithMetrics(a.metrics),
		live.WithResync(a.cfg.Resync),
	}
	return append(opts, extra...)
}

// orderViews builds every order screen. Only the active view announces new
// orders, so each order is announced once.
func (a *app) orderViews(extra ...live.Option) ([]*live.View[model.Order], error) {
	var out []*live.View[model.Order]
	for _, def := range views.OrderViews() {
		opts := extra
		if def.Name == views.NameActive && a.notifier != nil {
			opts = append([]live.Option{live.WithNotifier(a.notifier)}, extra...)
		}
		v, err := a.orderView(def, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *app) orderView(def views.Definition[model.Order], extra ...live.Option) (*live.View[model.Order], error) {
	snap, err := a.client.OrderSnapshot(def.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", def.Name, err)
	}
	return live.New(def, snap, a.feed, a.viewOptions(extra...)...), nil
}

func (a *app) menuView(extra ...live.Option) *live.View[model.MenuItem] {
	snap := source.Func[model.MenuItem](a.client.FetchMenu)
	return live.New(views.Menu(), snap, nil, a.viewOptions(extra...)...)
}

// replay publishes the configured event file once the views are subscribed.
func (a *app) replay(ctx context.Context) {
	mf, ok := a.feed.(*feed.MemoryFeed)
	if !ok || a.cfg.Feed.ReplayFile == "" {
		return
	}
	f, err := os.Open(a.cfg.Feed.ReplayFile)
	if err != nil {
		log.Error().Err(err).Msg("open replay file")
		return
	}
	go func() {
		defer f.Close()
		n, err := mf.Replay(ctx, f, a.cfg.Feed.ReplayInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Int("published", n).Msg("replay stopped")
			return
		}
		log.Info().Int("published", n).Str("file", a.cfg.Feed.ReplayFile).Msg("replay finished")
	}()
}

func (a *app) metricsHandler() http.Handler { return a.metrics.Handler() }

// Close releases the cache and notifier sinks.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("shutdown")
		return err
	}
	return nil
}
