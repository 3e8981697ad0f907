package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_DecodeDashboardPayload(t *testing.T) {
	raw := `{
		"id": 42,
		"customerName": "Asha",
		"userPhone": "919800000000",
		"paymentStatus": "CONFIRMED",
		"paymentMode": "UPI",
		"orderStatus": "Preparing",
		"totalPrice": 349.5,
		"orderTime": "2025-03-01T19:04:05.123",
		"orderItems": [{"itemName": "Paneer Tikka", "quantity": 2, "price": 120}]
	}`
	var o Order
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, "42", o.RecordID())
	assert.Equal(t, "Preparing", o.RecordStatus())
	assert.True(t, o.PaymentConfirmed())
	assert.False(t, o.PaymentFailed())
	assert.Equal(t, 2025, o.OrderTime.Year())
	assert.Equal(t, time.March, o.OrderTime.Month())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Paneer Tikka", o.Items[0].Name)
}

func TestOrder_DecodeTransactionPayload(t *testing.T) {
	raw := `{"id":"7","customerName":"Ravi","paymentMode":"Cash","status":"PAYMENT_FAILED","totalPrice":10}`
	var o Order
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, ID("7"), o.ID)
	assert.Equal(t, "PAYMENT_FAILED", o.PaymentStatus)
	assert.True(t, o.PaymentFailed())
	assert.Equal(t, StatusPending, o.OrderStatus)
}

func TestOrder_MissingID(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":null,"orderStatus":"Pending"}`), &o))
	assert.Empty(t, o.RecordID())
}

func TestOrder_Is(t *testing.T) {
	o := Order{OrderStatus: " delivered "}
	assert.True(t, o.Is(StatusDelivered))
	assert.False(t, o.Is(StatusCancelled))
}

func TestID_MarshalKeepsNumbers(t *testing.T) {
	b, err := json.Marshal(struct {
		A ID `json:"a"`
		B ID `json:"b"`
	}{A: "12", B: "ord-9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":12,"b":"ord-9"}`, string(b))
}

func TestTime_BadFormat(t *testing.T) {
	var tm Time
	err := json.Unmarshal([]byte(`"yesterday"`), &tm)
	assert.Error(t, err)
}

func TestMenuItem_Status(t *testing.T) {
	assert.Equal(t, "Available", MenuItem{Available: true}.RecordStatus())
	assert.Equal(t, "Unavailable", MenuItem{}.RecordStatus())
}

func TestID_NonCanonicalIntegersStayStrings(t *testing.T) {
	for _, raw := range []string{`"007"`, `"+7"`, `"-0"`} {
		var o Order
		require.NoError(t, json.Unmarshal([]byte(`{"id":`+raw+`,"orderStatus":"Pending"}`), &o))

		b, err := json.Marshal([]Order{o})
		require.NoError(t, err, raw)

		var back []Order
		require.NoError(t, json.Unmarshal(b, &back))
		require.Len(t, back, 1)
		assert.Equal(t, o.ID, back[0].ID, raw)
	}

	b, err := json.Marshal(ID("-12"))
	require.NoError(t, err)
	assert.Equal(t, `-12`, string(b))
}
