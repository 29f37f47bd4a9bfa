package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// Subscriber consumes report events from JetStream. The delivery worker
// uses it to react to new outbox entries without polling.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeReportQueued invokes handler for every enqueued report.
func (s *Subscriber) SubscribeReportQueued(ctx context.Context, handler func(ctx context.Context, entry *domain.OutboxEntry) error) error {
	sub, err := s.js.Subscribe("forest.report.queued", func(msg *nats.Msg) {
		var entry domain.OutboxEntry
		if err := json.Unmarshal(msg.Data, &entry); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &entry); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("report-delivery"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains the connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
