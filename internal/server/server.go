// Package server exposes the live views as a JSON API for the owner's screens.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ownerdash/internal/live"
	"ownerdash/internal/logging"
	"ownerdash/internal/model"
	"ownerdash/internal/source"
	"ownerdash/internal/summary"
	"ownerdash/internal/views"
)

// OrderView is the read side of a live order view.
type OrderView interface {
	Name() string
	Filter(pred func(model.Order) bool) []model.Order
	Refresh()
	Stats() live.Stats
}

// MenuView is the read side of the live menu.
type MenuView interface {
	Filter(pred func(model.MenuItem) bool) []model.MenuItem
	Refresh()
	Stats() live.Stats
}

// Backend carries the owner's commands to the order service. Views pick up the
// effects from the feed or the next refresh.
type Backend interface {
	UpdateOrderStatus(ctx context.Context, id string, status string) error
	RestaurantStatus(ctx context.Context) (bool, error)
	SetRestaurantOpen(ctx context.Context, open bool) error
	ToggleMenuItem(ctx context.Context, id string) error
	CreateMenuItem(ctx context.Context, item model.MenuItem) (model.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id string, item model.MenuItem) (model.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id string) error
	Analytics(ctx context.Context, rng string) (json.RawMessage, error)
	MonthlySummary(ctx context.Context) (json.RawMessage, error)
	AIInsights(ctx context.Context) (string, error)
	PaymentSummary(ctx context.Context) (model.PaymentSummary, error)
}

type Server struct {
	orders  map[string]OrderView
	menu    MenuView
	backend Backend
	metrics http.Handler
	now     func() time.Time
	log     zerolog.Logger
}

type Option func(*Server)

func WithMenu(m MenuView) Option            { return func(s *Server) { s.menu = m } }
func WithBackend(b Backend) Option          { return func(s *Server) { s.backend = b } }
func WithMetrics(h http.Handler) Option     { return func(s *Server) { s.metrics = h } }
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

func New(orders []OrderView, opts ...Option) *Server {
	s := &Server{
		orders: make(map[string]OrderView, len(orders)),
		now:    time.Now,
		log:    logging.Component("server"),
	}
	for _, v := range orders {
		s.orders[v.Name()] = v
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/views", s.handleListViews)
	mux.HandleFunc("GET /api/views/{view}", s.handleView)
	mux.HandleFunc("GET /api/views/{view}/summary", s.handleSummary)
	mux.HandleFunc("POST /api/views/{view}/refresh", s.handleRefresh)
	mux.HandleFunc("PUT /api/orders/{id}/status", s.handleOrderStatus)
	mux.HandleFunc("GET /api/restaurant/status", s.handleRestaurantStatus)
	mux.HandleFunc("PUT /api/restaurant/status", s.handleSetRestaurant)
	mux.HandleFunc("PATCH /api/menu/{id}/toggle", s.handleToggleMenu)
	mux.HandleFunc("POST /api/menu", s.handleCreateMenu)
	mux.HandleFunc("PUT /api/menu/{id}", s.handleUpdateMenu)
	mux.HandleFunc("DELETE /api/menu/{id}", s.handleDeleteMenu)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/analytics/monthly", s.handleMonthly)
	mux.HandleFunc("GET /api/analytics/insights", s.handleInsights)
	mux.HandleFunc("GET /api/payments/summary", s.handlePaymentSummary)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListViews(w http.ResponseWriter, _ *http.Request) {
	stats := make([]live.Stats, 0, len(s.orders)+1)
	for _, v := range s.orders {
		stats = append(stats, v.Stats())
	}
	if s.menu != nil {
		stats = append(stats, s.menu.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].View < stats[j].View })
	s.writeJSON(w, http.StatusOK, map[string]any{"views": stats})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	if name == views.NameMenu && s.menu != nil {
		items := s.menu.Filter(views.MenuSearch(r.URL.Query().Get("search")))
		s.writeJSON(w, http.StatusOK, map[string]any{"view": name, "records": items, "stats": s.menu.Stats()})
		return
	}
	v, ok := s.orders[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown view "+name)
		return
	}
	orders := v.Filter(s.filter(r).Match)
	s.writeJSON(w, http.StatusOK, map[string]any{"view": name, "records": orders, "stats": v.Stats()})
}

type summaryResponse struct {
	View     string                `json:"view"`
	Counts   summary.StatusCounts  `json:"counts"`
	Payments summary.PaymentTotals `json:"payments"`
	Revenue  float64               `json:"revenue"`
	Days     []summary.DayGroup    `json:"days,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	v, ok := s.orders[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown view "+name)
		return
	}
	orders := v.Filter(s.filter(r).Match)
	resp := summaryResponse{
		View:     name,
		Counts:   summary.CountByStatus(orders),
		Payments: summary.Payments(orders),
		Revenue:  summary.Revenue(orders),
	}
	if r.URL.Query().Get("group") == "day" {
		resp.Days = summary.GroupByDay(orders)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	switch {
	case name == views.NameMenu && s.menu != nil:
		s.menu.Refresh()
	case s.orders[name] != nil:
		s.orders[name].Refresh()
	default:
		s.writeError(w, http.StatusNotFound, "unknown view "+name)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"view": name, "refresh": "requested"})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	status := strings.TrimSpace(body.Status)
	if status == "" {
		s.writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	id := r.PathValue("id")
	if err := s.backend.UpdateOrderStatus(r.Context(), id, status); err != nil {
		s.backendError(w, "update order status", err)
		return
	}
	s.log.Info().Str("id", id).Str("status", status).Msg("order status updated")
	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": status})
}

func (s *Server) handleRestaurantStatus(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	open, err := s.backend.RestaurantStatus(r.Context())
	if err != nil {
		s.backendError(w, "restaurant status", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"open": open})
}

func (s *Server) handleSetRestaurant(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	open, err := strconv.ParseBool(r.URL.Query().Get("open"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "open must be true or false")
		return
	}
	if err := s.backend.SetRestaurantOpen(r.Context(), open); err != nil {
		s.backendError(w, "set restaurant open", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"open": open})
}

func (s *Server) handleToggleMenu(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	id := r.PathValue("id")
	if err := s.backend.ToggleMenuItem(r.Context(), id); err != nil {
		s.backendError(w, "toggle menu item", err)
		return
	}
	s.refreshMenu()
	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": id})
}

func (s *Server) handleCreateMenu(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	item, ok := s.decodeMenuItem(w, r)
	if !ok {
		return
	}
	item.ID = ""
	saved, err := s.backend.CreateMenuItem(r.Context(), item)
	if err != nil {
		s.backendError(w, "create menu item", err)
		return
	}
	s.refreshMenu()
	s.log.Info().Str("id", string(saved.ID)).Str("name", saved.Name).Msg("menu item created")
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateMenu(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	item, ok := s.decodeMenuItem(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	saved, err := s.backend.UpdateMenuItem(r.Context(), id, item)
	if err != nil {
		s.backendError(w, "update menu item", err)
		return
	}
	s.refreshMenu()
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteMenu(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	id := r.PathValue("id")
	if err := s.backend.DeleteMenuItem(r.Context(), id); err != nil {
		s.backendError(w, "delete menu item", err)
		return
	}
	s.refreshMenu()
	s.log.Info().Str("id", id).Msg("menu item deleted")
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) decodeMenuItem(w http.ResponseWriter, r *http.Request) (model.MenuItem, bool) {
	var item model.MenuItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&item); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return item, false
	}
	item.Name = strings.TrimSpace(item.Name)
	switch {
	case item.Name == "":
		s.writeError(w, http.StatusBadRequest, "name is required")
		return item, false
	case item.Price < 0:
		s.writeError(w, http.StatusBadRequest, "price must not be negative")
		return item, false
	}
	return item, true
}

func (s *Server) refreshMenu() {
	if s.menu != nil {
		s.menu.Refresh()
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	rng := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("range")))
	switch rng {
	case "", "week", "month", "all":
	default:
		s.writeError(w, http.StatusBadRequest, "range must be week, month or all")
		return
	}
	doc, err := s.backend.Analytics(r.Context(), rng)
	if err != nil {
		s.backendError(w, "analytics", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	rows, err := s.backend.MonthlySummary(r.Context())
	if err != nil {
		s.backendError(w, "monthly summary", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	text, err := s.backend.AIInsights(r.Context())
	if err != nil {
		s.backendError(w, "ai insights", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"insights": text})
}

func (s *Server) handlePaymentSummary(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}
	sum, err := s.backend.PaymentSummary(r.Context())
	if err != nil {
		s.backendError(w, "payment summary", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) filter(r *http.Request) views.Filter {
	f := views.FilterFromQuery(r.URL.Query())
	f.Now = s.now
	return f
}

// backendError maps backend rejections to 502 and keeps client errors visible.
func (s *Server) backendError(w http.ResponseWriter, op string, err error) {
	s.log.Warn().Err(err).Str("op", op).Msg("backend call failed")
	var se *source.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		s.writeError(w, se.Code, se.Error())
		return
	}
	s.writeError(w, http.StatusBadGateway, op+": "+err.Error())
}

// writeJSON encodes before writing so an unencodable payload becomes a 500
// instead of a truncated 200.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		s.log.Error().Err(err).Int("status", status).Msg("encode response")
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]any{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
