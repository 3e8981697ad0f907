package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ownerdash/internal/reconcile"
)

type Registry struct {
	reg *prometheus.Registry

	Outcomes       *prometheus.CounterVec
	InvalidRecords *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	Snapshots      *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	FetchLatency   *prometheus.HistogramVec
	Records        *prometheus.GaugeVec
	CacheAgeSec    *prometheus.GaugeVec
	FeedErrors     *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	view := []string{"view"}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ownerdash_updates_total",
		Help: "Feed updates applied to a view, by outcome.",
	}, []string{"view", "outcome"})
	invalid := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_invalid_records_total"}, view)
	decodeErrs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_decode_errors_total"}, view)
	snapshots := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_snapshots_total"}, []string{"view", "source"})
	fetchErrs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_fetch_errors_total"}, view)
	fetchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ownerdash_fetch_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, view)
	records := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ownerdash_view_records"}, view)
	cacheAge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ownerdash_cache_age_seconds"}, view)
	feedErrs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_feed_errors_total"}, view)
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ownerdash_notifications_total"}, []string{"view", "result"})

	r.MustRegister(outcomes, invalid, decodeErrs, snapshots, fetchErrs, fetchLatency, records, cacheAge, feedErrs, notifications)
	return &Registry{
		reg:            r,
		Outcomes:       outcomes,
		InvalidRecords: invalid,
		DecodeErrors:   decodeErrs,
		Snapshots:      snapshots,
		FetchErrors:    fetchErrs,
		FetchLatency:   fetchLatency,
		Records:        records,
		CacheAgeSec:    cacheAge,
		FeedErrors:     feedErrs,
		Notifications:  notifications,
	}
}

// Observer binds the registry to one view. A nil *Registry yields an observer
// that records nothing.
func (r *Registry) Observer(view string) *Observer {
	return &Observer{reg: r, view: view}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Observer records the events of a single view.
type Observer struct {
	reg  *Registry
	view string
}

func (o *Observer) Outcome(out reconcile.Outcome) {
	if o.reg == nil {
		return
	}
	o.reg.Outcomes.WithLabelValues(o.view, out.String()).Inc()
}

func (o *Observer) InvalidRecord() {
	if o.reg == nil {
		return
	}
	o.reg.InvalidRecords.WithLabelValues(o.view).Inc()
}

func (o *Observer) DecodeError() {
	if o.reg == nil {
		return
	}
	o.reg.DecodeErrors.WithLabelValues(o.view).Inc()
}

func (o *Observer) FeedError() {
	if o.reg == nil {
		return
	}
	o.reg.FeedErrors.WithLabelValues(o.view).Inc()
}

// Snapshot counts an installed snapshot; source is "fetch" or "cache".
func (o *Observer) Snapshot(source string, size int) {
	if o.reg == nil {
		return
	}
	o.reg.Snapshots.WithLabelValues(o.view, source).Inc()
	o.reg.Records.WithLabelValues(o.view).Set(float64(size))
}

func (o *Observer) Size(size int) {
	if o.reg == nil {
		return
	}
	o.reg.Records.WithLabelValues(o.view).Set(float64(size))
}

func (o *Observer) Fetch(d time.Duration, err error) {
	if o.reg == nil {
		return
	}
	o.reg.FetchLatency.WithLabelValues(o.view).Observe(d.Seconds())
	if err != nil {
		o.reg.FetchErrors.WithLabelValues(o.view).Inc()
	}
}

func (o *Observer) CacheAge(age time.Duration) {
	if o.reg == nil {
		return
	}
	o.reg.CacheAgeSec.WithLabelValues(o.view).Set(age.Seconds())
}

func (o *Observer) Notification(err error) {
	if o.reg == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.reg.Notifications.WithLabelValues(o.view, result).Inc()
}
