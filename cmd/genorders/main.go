package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ownerdash/internal/brokers"
	"ownerdash/internal/logging"
	"ownerdash/internal/model"
)

type options struct {
	count   int
	seed    int64
	output  string
	brokers string
	topic   string
	delay   time.Duration
}

func main() {
	var o options
	flag.IntVar(&o.count, "count", 20, "number of orders to generate")
	flag.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.StringVar(&o.output, "output", "orders.events.jsonl", "output file, - for stdout")
	flag.StringVar(&o.brokers, "brokers", "", "publish to kafka instead of a file, e.g. localhost:9092")
	flag.StringVar(&o.topic, "topic", "orders.updates", "kafka topic for order events")
	flag.DurationVar(&o.delay, "delay", 0, "pause between published events")
	flag.Parse()

	_ = logging.Setup("info", "console", os.Stderr)
	if err := run(context.Background(), o); err != nil {
		log.Fatal().Err(err).Msg("generation failed")
	}
}

func run(ctx context.Context, o options) error {
	events := lifecycles(rand.New(rand.NewSource(o.seed)), o.count, time.Now())
	if o.brokers != "" {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers.Parse(o.brokers)...),
			Topic:        o.topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
		defer w.Close()
		if err := publish(ctx, w, events, o.delay); err != nil {
			return err
		}
		log.Info().Int("events", len(events)).Str("topic", o.topic).Msg("published")
		return nil
	}

	var out io.Writer = os.Stdout
	if o.output != "-" {
		f, err := os.Create(o.output)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSONL(out, events); err != nil {
		return err
	}
	log.Info().Int("events", len(events)).Str("output", o.output).Msg("generated")
	return nil
}

var (
	customers = []string{"Asha", "Ravi", "Meera", "Kabir", "Nisha", "Arjun"}
	dishes    = []model.OrderItem{
		{Name: "Masala Dosa", Price: 90},
		{Name: "Paneer Tikka", Price: 180},
		{Name: "Veg Biryani", Price: 160},
		{Name: "Filter Coffee", Price: 40},
		{Name: "Gulab Jamun", Price: 60},
	}
	modes = []string{model.ModeCash, model.ModeUPI, model.ModeCard}
	flow  = []string{model.StatusPending, model.StatusAccepted, model.StatusPreparing, model.StatusCompleted, model.StatusDelivered}
)

// lifecycles returns the status events of count orders, interleaved the way
// a busy kitchen would emit them. Every order ends Delivered or Cancelled,
// except for failed payments, which stop at Pending.
func lifecycles(rng *rand.Rand, count int, start time.Time) []model.Order {
	var perOrder [][]model.Order
	for i := 0; i < count; i++ {
		base := newOrder(rng, i+1, start.Add(time.Duration(i)*time.Minute))
		var steps []model.Order
		switch r := rng.Intn(10); {
		case r == 0:
			base.PaymentStatus = model.PaymentFailed
			steps = append(steps, base)
		case r == 1:
			for _, st := range flow[:1+rng.Intn(3)] {
				steps = append(steps, withStatus(base, st))
			}
			steps = append(steps, withStatus(base, model.StatusCancelled))
		default:
			for _, st := range flow {
				steps = append(steps, withStatus(base, st))
			}
		}
		perOrder = append(perOrder, steps)
	}

	var events []model.Order
	for len(perOrder) > 0 {
		i := rng.Intn(len(perOrder))
		events = append(events, perOrder[i][0])
		perOrder[i] = perOrder[i][1:]
		if len(perOrder[i]) == 0 {
			perOrder = append(perOrder[:i], perOrder[i+1:]...)
		}
	}
	return events
}

func newOrder(rng *rand.Rand, n int, at time.Time) model.Order {
	o := model.Order{
		ID:            model.ID(fmt.Sprintf("%d", 1000+n)),
		CustomerName:  customers[rng.Intn(len(customers))],
		UserPhone:     fmt.Sprintf("9198%08d", rng.Intn(1e8)),
		PaymentMode:   modes[rng.Intn(len(modes))],
		PaymentStatus: model.PaymentConfirmed,
		OrderStatus:   model.StatusPending,
		OrderTime:     model.Time{Time: at},
	}
	for j := 0; j < 1+rng.Intn(3); j++ {
		item := dishes[rng.Intn(len(dishes))]
		item.Quantity = 1 + rng.Intn(3)
		o.Items = append(o.Items, item)
		o.TotalPrice += item.Price * float64(item.Quantity)
	}
	if o.PaymentMode == model.ModeCash {
		o.PaymentStatus = model.PaymentPending
	}
	return o
}

func withStatus(o model.Order, status string) model.Order {
	o.OrderStatus = status
	if status == model.StatusDelivered && o.PaymentMode == model.ModeCash {
		o.PaymentStatus = model.PaymentConfirmed
	}
	return o
}

func writeJSONL(w io.Writer, events []model.Order) error {
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encode event %d: %w", i+1, err)
		}
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func publish(ctx context.Context, w messageWriter, events []model.Order, delay time.Duration) error {
	for i, e := range events {
		b, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", i+1, err)
		}
		if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(e.ID), Value: b}); err != nil {
			return fmt.Errorf("publish event %d: %w", i+1, err)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
