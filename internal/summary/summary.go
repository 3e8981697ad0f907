package summary

import (
	"sort"
	"strings"

	"ownerdash/internal/model"
)

// StatusCounts holds the dashboard summary cards.
type StatusCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Confirmed int `json:"confirmed"`
	Preparing int `json:"preparing"`
	Completed int `json:"completed"`
	Delivered int `json:"delivered"`
	Cancelled int `json:"cancelled"`
}

// CountByStatus tallies orders per order status. Unknown statuses only count
// towards Total.
func CountByStatus(orders []model.Order) StatusCounts {
	var c StatusCounts
	for _, o := range orders {
		c.Total++
		switch strings.ToLower(strings.TrimSpace(o.OrderStatus)) {
		case "pending":
			c.Pending++
		case "accepted":
			c.Accepted++
		case "confirmed":
			c.Confirmed++
		case "preparing":
			c.Preparing++
		case "completed":
			c.Completed++
		case "delivered":
			c.Delivered++
		case "cancelled":
			c.Cancelled++
		}
	}
	return c
}

// PaymentTotals is the payments screen summary.
type PaymentTotals struct {
	Cash         float64 `json:"cash"`
	UPI          float64 `json:"upi"`
	Card         float64 `json:"card"`
	GrandTotal   float64 `json:"grandTotal"`
	Transactions int     `json:"transactions"`
	Confirmed    int     `json:"confirmed"`
	// SuccessRate is the confirmed share of transactions, in percent.
	SuccessRate int `json:"successRate"`
}

// Payments sums the orders that are neither cancelled nor payment-failed,
// per payment mode.
func Payments(orders []model.Order) PaymentTotals {
	var p PaymentTotals
	for _, o := range orders {
		if o.Is(model.StatusCancelled) || o.PaymentFailed() {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(o.PaymentMode)) {
		case "CASH":
			p.Cash += o.TotalPrice
		case "UPI":
			p.UPI += o.TotalPrice
		case "CARD":
			p.Card += o.TotalPrice
		default:
			continue
		}
		p.Transactions++
		if o.PaymentConfirmed() {
			p.Confirmed++
		}
	}
	p.GrandTotal = p.Cash + p.UPI + p.Card
	if p.Transactions > 0 {
		p.SuccessRate = int(float64(p.Confirmed)/float64(p.Transactions)*100 + 0.5)
	}
	return p
}

// Revenue sums TotalPrice over orders.
func Revenue(orders []model.Order) float64 {
	var sum float64
	for _, o := range orders {
		sum += o.TotalPrice
	}
	return sum
}

// DayGroup is the orders of one calendar day.
type DayGroup struct {
	Day     string        `json:"day"`
	Revenue float64       `json:"revenue"`
	Orders  []model.Order `json:"orders"`
}

// GroupByDay buckets orders by local calendar day (YYYY-MM-DD), newest day
// first. Orders without a timestamp are skipped. Order within a day is kept.
func GroupByDay(orders []model.Order) []DayGroup {
	byDay := make(map[string]*DayGroup)
	for _, o := range orders {
		if o.OrderTime.IsZero() {
			continue
		}
		key := o.OrderTime.Format("2006-01-02")
		g, ok := byDay[key]
		if !ok {
			g = &DayGroup{Day: key}
			byDay[key] = g
		}
		g.Orders = append(g.Orders, o)
		g.Revenue += o.TotalPrice
	}
	out := make([]DayGroup, 0, len(byDay))
	for _, g := range byDay {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	return out
}
