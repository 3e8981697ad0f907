package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order statuses as set by the restaurant.
const (
	StatusPending   = "Pending"
	StatusAccepted  = "Accepted"
	StatusConfirmed = "Confirmed"
	StatusPreparing = "Preparing"
	StatusCompleted = "Completed"
	StatusDelivered = "Delivered"
	StatusCancelled = "Cancelled"
)

// Payment statuses as reported by the payment provider.
const (
	PaymentPending   = "PENDING"
	PaymentConfirmed = "CONFIRMED"
	PaymentFailed    = "FAILED"
	PaymentFailedAlt = "PAYMENT_FAILED"
)

// Payment modes.
const (
	ModeCash = "Cash"
	ModeUPI  = "UPI"
	ModeCard = "Card"
)

// ID is a record identifier. The backend emits numeric ids; both JSON numbers
// and strings decode into the same value.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits canonical integer ids as numbers so payloads round-trip
// with the backend. Anything else, "007" or "+7" included, stays a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Time accepts the backend's zone-less LocalDateTime as well as RFC 3339.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("time: unrecognised format %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID       ID      `json:"id,omitempty"`
	Name     string  `json:"itemName"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the dashboard's view of a customer order.
type Order struct {
	ID            ID          `json:"id"`
	CustomerName  string      `json:"customerName"`
	UserPhone     string      `json:"userPhone"`
	PaymentStatus string      `json:"paymentStatus"`
	PaymentMode   string      `json:"paymentMode"`
	OrderStatus   string      `json:"orderStatus"`
	TotalPrice    float64     `json:"totalPrice"`
	OrderTime     Time        `json:"orderTime"`
	Items         []OrderItem `json:"orderItems,omitempty"`
	PaymentRef    string      `json:"razorpayPaymentId,omitempty"`
}

func (o Order) RecordID() string     { return string(o.ID) }
func (o Order) RecordStatus() string { return o.OrderStatus }

// UnmarshalJSON also accepts the transactions payload, which reports the
// payment status under "status". A missing order status means Pending.
func (o *Order) UnmarshalJSON(b []byte) error {
	type plain Order
	var tx struct {
		plain
		Status string `json:"status"`
	}
	if err := json.Unmarshal(b, &tx); err != nil {
		return err
	}
	*o = Order(tx.plain)
	if o.PaymentStatus == "" {
		o.PaymentStatus = tx.Status
	}
	if o.OrderStatus == "" {
		o.OrderStatus = StatusPending
	}
	return nil
}

// Is reports whether the order status equals status, ignoring case.
func (o Order) Is(status string) bool {
	return strings.EqualFold(strings.TrimSpace(o.OrderStatus), status)
}

// PaymentFailed reports whether the payment was rejected.
func (o Order) PaymentFailed() bool {
	s := strings.ToUpper(strings.TrimSpace(o.PaymentStatus))
	return s == PaymentFailed || s == PaymentFailedAlt
}

// PaymentConfirmed reports whether the payment went through.
func (o Order) PaymentConfirmed() bool {
	return strings.EqualFold(strings.TrimSpace(o.PaymentStatus), PaymentConfirmed)
}

// MenuItem is a catalog entry.
type MenuItem struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Available   bool    `json:"available"`
}

func (m MenuItem) RecordID() string { return string(m.ID) }

func (m MenuItem) RecordStatus() string {
	if m.Available {
		return "Available"
	}
	return "Unavailable"
}

// PaymentSummary splits revenue by payment mode. Percentages are rounded
// whole numbers and zero when there is no revenue.
type PaymentSummary struct {
	TotalCash      float64 `json:"totalCash"`
	TotalUPI       float64 `json:"totalUpi"`
	TotalCard      float64 `json:"totalCard"`
	GrandTotal     float64 `json:"grandTotal"`
	CashPercentage float64 `json:"cashPercentage"`
	UPIPercentage  float64 `json:"upiPercentage"`
	CardPercentage float64 `json:"cardPercentage"`
}
