package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	// Reconnect hook, installed after construction via OnReconnect.
	// Atomic because the NATS callback fires on its own goroutine.
	onReconnect atomic.Pointer[func()]
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string, opts ...nats.Option) (*Publisher, error) {
	p := &Publisher{}
	base := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectHandler(p.handleReconnect),
	}
	conn, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "FIELD_REPORTS",
			Subjects:  []string{"forest.report.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    72 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "INVENTORY_EVENTS",
			Subjects:  []string{"forest.dataset.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	p.conn = conn
	p.js = js
	return p, nil
}

// OnReconnect installs fn to run each time the connection is
// re-established. Safe to call (or swap) at any point after
// construction, which lets callers finish wiring their dependencies
// before the hook can fire.
func (p *Publisher) OnReconnect(fn func()) {
	p.onReconnect.Store(&fn)
}

func (p *Publisher) handleReconnect(_ *nats.Conn) {
	if fn := p.onReconnect.Load(); fn != nil {
		(*fn)()
	}
}

// PublishDatasetRefreshed announces a new working set so map clients
// re-request their viewport.
func (p *Publisher) PublishDatasetRefreshed(ctx context.Context, recordCount int) error {
	data, err := json.Marshal(map[string]int{"record_count": recordCount})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("forest.dataset.refreshed", data)
	return err
}

// PublishReportQueued announces an outbox enqueue.
func (p *Publisher) PublishReportQueued(ctx context.Context, entry *domain.OutboxEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("forest.report.queued", data)
	return err
}

// PublishReportSent announces a confirmed delivery from the outbox.
func (p *Publisher) PublishReportSent(ctx context.Context, entryID string) error {
	_, err := p.js.Publish("forest.report.sent", []byte(entryID))
	return err
}

// PublishBroadcast fans arbitrary data out to map clients.
func (p *Publisher) PublishBroadcast(ctx context.Context, data []byte) error {
	return p.conn.Publish("forest.updates.broadcast", data)
}

// IsConnected reports whether the underlying connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. the
// WebSocket relay). The extra options hook reconnect callbacks.
func RawConn(url string, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	return nats.Connect(url, append(base, opts...)...)
}
