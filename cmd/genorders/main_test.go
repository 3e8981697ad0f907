package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ownerdash/internal/model"
	"ownerdash/internal/reconcile"
	"ownerdash/internal/views"
)

func TestLifecycles_EveryOrderTerminates(t *testing.T) {
	events := lifecycles(rand.New(rand.NewSource(1)), 50, time.Now())

	last := map[string]model.Order{}
	for _, e := range events {
		last[e.RecordID()] = e
	}
	require.Len(t, last, 50)
	for id, o := range last {
		done := o.Is(model.StatusDelivered) || o.Is(model.StatusCancelled) || o.PaymentFailed()
		assert.True(t, done, "order %s ends in %s", id, o.OrderStatus)
	}
}

func TestLifecycles_ActiveViewDrains(t *testing.T) {
	def := views.Active()
	c := reconcile.New(def.Ordering, def.Partition)
	for _, e := range lifecycles(rand.New(rand.NewSource(3)), 30, time.Now()) {
		_, err := c.ApplyUpdate(e)
		require.NoError(t, err)
	}
	assert.Zero(t, c.Len())
}

func TestWriteJSONL(t *testing.T) {
	events := lifecycles(rand.New(rand.NewSource(2)), 3, time.Now())
	var buf bytes.Buffer
	require.NoError(t, writeJSONL(&buf, events))

	sc := bufio.NewScanner(&buf)
	n := 0
	for sc.Scan() {
		var o model.Order
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		assert.NotEmpty(t, o.RecordID())
		n++
	}
	assert.Equal(t, len(events), n)
}

type fakeWriter struct{ msgs []kafka.Message }

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestPublish_KeysByOrderID(t *testing.T) {
	events := lifecycles(rand.New(rand.NewSource(4)), 2, time.Now())
	w := &fakeWriter{}
	require.NoError(t, publish(context.Background(), w, events, 0))
	require.Len(t, w.msgs, len(events))
	for i, m := range w.msgs {
		assert.Equal(t, string(events[i].ID), string(m.Key))
	}
}
