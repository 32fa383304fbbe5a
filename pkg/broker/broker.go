// Package broker is the durable pub/sub port C6: declare an exchange/queue
// binding, publish a byte payload, and consume with acknowledgement. It is
// backed by NATS JetStream, the closest durable ack/redeliver pub-sub
// available anywhere in the fabric's dependency pool — no AMQP/RabbitMQ
// client is used by any sibling service, so JetStream's durable pull
// consumer plays the RabbitMQ-shaped role spec.md §4.6 describes.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/littleblus/breezechat/pkg/log"
)

// Handler processes one message's payload. A nil return acknowledges the
// message; any other return leaves it unacknowledged for redelivery.
type Handler func(payload []byte) error

// Broker wraps a JetStream context. Exchange/queue/routing-key vocabulary
// from spec.md §4.6 maps onto a JetStream stream (exchange) with a subject
// per routing key (default: the queue name) and a durable consumer (queue).
type Broker struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials a NATS server and obtains a JetStream context.
func Connect(url string) (*Broker, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream: %w", err)
	}
	return &Broker{nc: nc, js: js}, nil
}

// Close closes the underlying NATS connection without draining it first.
func (b *Broker) Close() {
	b.nc.Close()
}

// Declare idempotently ensures exchange exists as a stream and queue exists
// as a durable consumer bound to subject exchange.routingKey (routingKey
// defaults to queue when empty). Declare failures are Fatal per spec.md §7:
// callers are expected to exit the process on error.
func (b *Broker) Declare(exchange, queue, routingKey string) error {
	if routingKey == "" {
		routingKey = queue
	}
	subject := exchange + "." + routingKey

	_, err := b.js.StreamInfo(exchange)
	if err != nil {
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:     exchange,
			Subjects: []string{exchange + ".*"},
		})
		if err != nil {
			return fmt.Errorf("broker: declare stream %q: %w", exchange, err)
		}
	}

	_, err = b.js.ConsumerInfo(exchange, queue)
	if err != nil {
		_, err = b.js.AddConsumer(exchange, &nats.ConsumerConfig{
			Durable:       queue,
			FilterSubject: subject,
			AckPolicy:     nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("broker: declare consumer %q on %q: %w", queue, exchange, err)
		}
	}
	return nil
}

// Publish sends payload to exchange under routingKey. It returns true iff
// the broker accepted the frame; no end-to-end delivery guarantee is
// implied by a true return (spec.md §4.6).
func (b *Broker) Publish(exchange, routingKey string, payload []byte) bool {
	subject := exchange + "." + routingKey
	_, err := b.js.Publish(subject, payload)
	if err != nil {
		log.WithComponent("broker").Error().Err(err).Str("subject", subject).Msg("publish failed")
		return false
	}
	return true
}

// Consume runs handler for every message pulled from queue on a dedicated
// background goroutine, acknowledging only on a nil return. Any broker
// error while pulling crashes the process (spec.md §4.6/§7's failure
// model): this simplifies the storage consumer's compensation logic
// because a crashed consumer is restarted by its supervisor with no
// partially-acked backlog.
func (b *Broker) Consume(ctx context.Context, exchange, queue string, handler Handler) error {
	sub, err := b.js.PullSubscribe("", queue, nats.Bind(exchange, queue))
	if err != nil {
		return fmt.Errorf("broker: pull subscribe %q/%q: %w", exchange, queue, err)
	}

	go b.loop(ctx, sub, handler)
	return nil
}

func (b *Broker) loop(ctx context.Context, sub *nats.Subscription, handler Handler) {
	clog := log.WithComponent("broker.consumer")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			clog.Fatal().Err(err).Msg("broker consume failed")
			return
		}
		for _, msg := range msgs {
			if err := handler(msg.Data); err != nil {
				clog.Error().Err(err).Msg("handler returned error, leaving unacked for redelivery")
				continue
			}
			if err := msg.Ack(); err != nil {
				clog.Error().Err(err).Msg("ack failed")
			}
		}
	}
}
