package views

import (
	"net/url"
	"strings"
	"time"

	"ownerdash/internal/model"
)

// Date ranges understood by Filter.
const (
	RangeAll    = "all"
	RangeToday  = "today"
	RangeWeek   = "week"
	RangeMonth  = "month"
	RangeCustom = "custom"
)

// Filter narrows an order view for display. Zero values match everything.
type Filter struct {
	Search  string
	Payment string
	Status  string
	Range   string
	// Date is the day selected for RangeCustom.
	Date time.Time
	// From and To bound the order day, both inclusive. Orders without an
	// order time never match a bound.
	From time.Time
	To   time.Time
	Now  func() time.Time
}

// FilterFromQuery reads search, payment, status, range, and the days date,
// from and to (YYYY-MM-DD, local time). Unparseable days are ignored.
func FilterFromQuery(q url.Values) Filter {
	return Filter{
		Search:  q.Get("search"),
		Payment: q.Get("payment"),
		Status:  q.Get("status"),
		Range:   q.Get("range"),
		Date:    parseDay(q.Get("date")),
		From:    parseDay(q.Get("from")),
		To:      parseDay(q.Get("to")),
	}
}

func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return d
}

// Match reports whether o passes every criterion.
func (f Filter) Match(o model.Order) bool {
	return f.matchSearch(o) && f.matchPayment(o) && f.matchStatus(o) && f.matchDate(o) && f.matchBounds(o)
}

func (f Filter) matchSearch(o model.Order) bool {
	s := strings.ToLower(strings.TrimSpace(f.Search))
	if s == "" {
		return true
	}
	return strings.Contains(strings.ToLower(o.CustomerName), s) ||
		strings.Contains(strings.ToLower(o.UserPhone), s) ||
		strings.Contains(strings.ToLower(string(o.ID)), s) ||
		strings.Contains(strings.ToLower(o.PaymentRef), s)
}

func (f Filter) matchPayment(o model.Order) bool {
	p := strings.ToLower(strings.TrimSpace(f.Payment))
	if p == "" || p == "all" {
		return true
	}
	mode := strings.ToLower(o.PaymentMode)
	return mode == p || (p == "card" && strings.Contains(mode, "card"))
}

func (f Filter) matchStatus(o model.Order) bool {
	s := strings.TrimSpace(f.Status)
	if s == "" || strings.EqualFold(s, "all") {
		return true
	}
	return o.Is(s)
}

func (f Filter) matchDate(o model.Order) bool {
	r := strings.ToLower(strings.TrimSpace(f.Range))
	if r == "" || r == RangeAll || o.OrderTime.IsZero() {
		return true
	}
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	if r == RangeCustom {
		if f.Date.IsZero() {
			return true
		}
		y1, m1, d1 := o.OrderTime.Date()
		y2, m2, d2 := f.Date.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	age := now.Sub(o.OrderTime.Time)
	switch r {
	case RangeToday:
		return age < 24*time.Hour
	case RangeWeek:
		return age < 7*24*time.Hour
	case RangeMonth:
		return age < 30*24*time.Hour
	default:
		return true
	}
}

func (f Filter) matchBounds(o model.Order) bool {
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	if o.OrderTime.IsZero() {
		return false
	}
	t := o.OrderTime.Time
	if !f.From.IsZero() && t.Before(startOfDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && !t.Before(startOfDay(f.To).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MenuSearch matches menu items whose name contains q, ignoring case.
func MenuSearch(q string) func(model.MenuItem) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	return func(m model.MenuItem) bool {
		return q == "" || strings.Contains(strings.ToLower(m.Name), q)
	}
}
