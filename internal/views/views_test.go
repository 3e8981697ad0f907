package views

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ownerdash/internal/model"
	"ownerdash/internal/reconcile"
)

func order(id, status, payment string) model.Order {
	return model.Order{ID: model.ID(id), OrderStatus: status, PaymentStatus: payment, PaymentMode: model.ModeUPI}
}

func TestPartitions(t *testing.T) {
	cases := []struct {
		def  Definition[model.Order]
		o    model.Order
		want reconcile.Policy
	}{
		{Active(), order("1", "Pending", "PENDING"), reconcile.Include},
		{Active(), order("1", "delivered", "CONFIRMED"), reconcile.TerminalRemove},
		{Active(), order("1", "Cancelled", "CONFIRMED"), reconcile.TerminalRemove},
		{Active(), order("1", "Pending", "PAYMENT_FAILED"), reconcile.Exclude},
		{Delivered(), order("1", "Delivered", "CONFIRMED"), reconcile.Include},
		{Delivered(), order("1", "Delivered", "failed"), reconcile.Exclude},
		{Delivered(), order("1", "Delivered", ""), reconcile.Exclude},
		{Delivered(), order("1", "Cancelled", "CONFIRMED"), reconcile.TerminalRemove},
		{Delivered(), order("1", "Preparing", "CONFIRMED"), reconcile.Exclude},
		{Cancelled(), order("1", "CANCELLED", ""), reconcile.Include},
		{Cancelled(), order("1", "Delivered", "CONFIRMED"), reconcile.TerminalRemove},
		{Cancelled(), order("1", "Accepted", "CONFIRMED"), reconcile.Exclude},
		{Transactions(), order("1", "Accepted", "CONFIRMED"), reconcile.Include},
		{Transactions(), order("1", "Accepted", "PAYMENT_FAILED"), reconcile.TerminalRemove},
		{Transactions(), order("1", "Cancelled", "CONFIRMED"), reconcile.TerminalRemove},
		{Transactions(), model.Order{ID: "1", OrderStatus: "Pending"}, reconcile.Exclude},
		{Incoming(), order("1", "Cancelled", "FAILED"), reconcile.Include},
	}
	for _, tc := range cases {
		t.Run(tc.def.Name+"/"+tc.o.OrderStatus+"/"+tc.o.PaymentStatus, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.def.Partition(tc.o))
		})
	}
}

func TestHistoryTabsMoveOrders(t *testing.T) {
	delivered := reconcile.New(Delivered().Ordering, Delivered().Partition)
	cancelled := reconcile.New(Cancelled().Ordering, Cancelled().Partition)

	apply := func(o model.Order) {
		_, err := delivered.ApplyUpdate(o)
		require.NoError(t, err)
		_, err = cancelled.ApplyUpdate(o)
		require.NoError(t, err)
	}

	apply(order("5", "Cancelled", "CONFIRMED"))
	assert.Equal(t, 0, delivered.Len())
	assert.Equal(t, 1, cancelled.Len())

	apply(order("5", "Delivered", "CONFIRMED"))
	assert.Equal(t, 1, delivered.Len())
	assert.Equal(t, 0, cancelled.Len())
}

func TestOrderViewsNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range OrderViews() {
		require.False(t, seen[d.Name], d.Name)
		seen[d.Name] = true
		require.NotNil(t, d.Partition)
	}
	assert.False(t, Menu().Live)
}

func TestFilter_Match(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	o := model.Order{
		ID:           "1",
		CustomerName: "Asha Rao",
		UserPhone:    "919812345678",
		PaymentMode:  "Credit Card",
		OrderStatus:  "Preparing",
		OrderTime:    model.Time{Time: now.Add(-3 * 24 * time.Hour)},
	}

	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty", Filter{}, true},
		{"name", Filter{Search: "asha"}, true},
		{"phone", Filter{Search: "1234"}, true},
		{"miss", Filter{Search: "ravi"}, false},
		{"card matches credit card", Filter{Payment: "card"}, true},
		{"cash", Filter{Payment: "cash"}, false},
		{"status", Filter{Status: "preparing"}, true},
		{"status all", Filter{Status: "all"}, true},
		{"status other", Filter{Status: "Delivered"}, false},
		{"today", Filter{Range: RangeToday}, false},
		{"week", Filter{Range: RangeWeek}, true},
		{"month", Filter{Range: RangeMonth}, true},
		{"custom day", Filter{Range: RangeCustom, Date: now.Add(-3 * 24 * time.Hour)}, true},
		{"custom other day", Filter{Range: RangeCustom, Date: now}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.f.Now = func() time.Time { return now }
			assert.Equal(t, tc.want, tc.f.Match(o))
		})
	}
}

func TestFilter_SearchByIDAndPaymentRef(t *testing.T) {
	o := model.Order{ID: "1042", CustomerName: "Asha", PaymentRef: "pay_NkQ7xYz"}
	assert.True(t, Filter{Search: "104"}.Match(o))
	assert.True(t, Filter{Search: "PAY_nkq"}.Match(o))
	assert.False(t, Filter{Search: "pay_other"}.Match(o))
}

func TestFilter_DateBounds(t *testing.T) {
	day := func(d, h, m int) model.Order {
		return model.Order{ID: "1", OrderTime: model.Time{Time: time.Date(2025, 3, d, h, m, 0, 0, time.Local)}}
	}
	from := time.Date(2025, 3, 5, 0, 0, 0, 0, time.Local)
	to := time.Date(2025, 3, 7, 0, 0, 0, 0, time.Local)

	cases := []struct {
		name string
		f    Filter
		o    model.Order
		want bool
	}{
		{"start of from day", Filter{From: from}, day(5, 0, 0), true},
		{"before from", Filter{From: from}, day(4, 23, 59), false},
		{"end of to day", Filter{To: to}, day(7, 23, 59), true},
		{"after to", Filter{To: to}, day(8, 0, 0), false},
		{"inside both", Filter{From: from, To: to}, day(6, 12, 0), true},
		{"same day bounds", Filter{From: to, To: to}, day(7, 18, 30), true},
		{"no order time with bound", Filter{From: from}, model.Order{ID: "2"}, false},
		{"no order time without bound", Filter{}, model.Order{ID: "2"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.f.Match(tc.o))
		})
	}
}

func TestFilterFromQuery_Bounds(t *testing.T) {
	f := FilterFromQuery(url.Values{"from": {"2025-03-01"}, "to": {"2025-03-09"}})
	assert.Equal(t, 1, f.From.Day())
	assert.Equal(t, 9, f.To.Day())

	f = FilterFromQuery(url.Values{"from": {"03/01/2025"}})
	assert.True(t, f.From.IsZero())
}

func TestFilterFromQuery(t *testing.T) {
	f := FilterFromQuery(url.Values{
		"search":  {"asha"},
		"payment": {"upi"},
		"status":  {"Pending"},
		"range":   {"custom"},
		"date":    {"2025-03-07"},
	})
	assert.Equal(t, "asha", f.Search)
	assert.Equal(t, "upi", f.Payment)
	assert.Equal(t, RangeCustom, f.Range)
	assert.Equal(t, 7, f.Date.Day())
}

func TestMenuSearch(t *testing.T) {
	match := MenuSearch("tikka")
	assert.True(t, match(model.MenuItem{Name: "Paneer Tikka"}))
	assert.False(t, match(model.MenuItem{Name: "Dal"}))
	assert.True(t, MenuSearch("")(model.MenuItem{Name: "Dal"}))
}
