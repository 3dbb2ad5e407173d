// Package messaging delivers committed stock alerts to NATS.
//
// The outbox relay hands each sys_outbox row to AlertHandler, which decodes the
// alert and passes it down a stock.Notifier chain ending in Publisher.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

// DefaultSubject is the subject prefix alerts are published under.
const DefaultSubject = "stockflow.alerts"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Connect dials NATS with reconnect handling logged through the context logger.
func Connect(ctx context.Context, url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

type messageIDKey struct{}

// WithMessageID attaches the outbox message id used for broker-side deduplication.
func WithMessageID(ctx context.Context, msgID id.ID) context.Context {
	return context.WithValue(ctx, messageIDKey{}, msgID)
}

func messageID(ctx context.Context) (id.ID, bool) {
	v, ok := ctx.Value(messageIDKey{}).(id.ID)
	return v, ok
}

// Publisher implements stock.Notifier by publishing alerts as JSON.
// Subjects are "<prefix>.<level>", e.g. stockflow.alerts.critical.
type Publisher struct {
	conn   Conn
	prefix string
}

// Compile-time check that Publisher implements stock.Notifier.
var _ stock.Notifier = (*Publisher)(nil)

// NewPublisher creates a publisher. An empty prefix uses DefaultSubject.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubject
	}
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject alert is published on.
func (p *Publisher) Subject(alert stock.StockAlert) string {
	return p.prefix + "." + strings.ToLower(string(alert.Level))
}

// Notify implements stock.Notifier. It waits for the server to acknowledge the flush.
func (p *Publisher) Notify(ctx context.Context, alert stock.StockAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := nats.NewMsg(p.Subject(alert))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Stock-Item-Id", alert.ItemID.String())
	if msgID, ok := messageID(ctx); ok {
		msg.Header.Set(nats.MsgIdHdr, msgID.String())
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	return nil
}

// AlertHandler implements postgres.OutboxHandler for stock alert events.
type AlertHandler struct {
	notifier stock.Notifier
}

// Compile-time check that AlertHandler implements postgres.OutboxHandler.
var _ postgres.OutboxHandler = (*AlertHandler)(nil)

// NewAlertHandler creates a handler delivering decoded alerts to notifier.
func NewAlertHandler(notifier stock.Notifier) *AlertHandler {
	return &AlertHandler{notifier: notifier}
}

// Handle implements postgres.OutboxHandler.
func (h *AlertHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if msg.EventType != postgres.EventStockAlert {
		return fmt.Errorf("unsupported outbox event type %q", msg.EventType)
	}

	var alert stock.StockAlert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		return fmt.Errorf("decode stock alert %s: %w", msg.ID, err)
	}

	return h.notifier.Notify(WithMessageID(ctx, msg.ID), alert)
}
