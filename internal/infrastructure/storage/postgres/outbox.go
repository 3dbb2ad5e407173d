package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
	"stockflow/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Outbox aggregate and event names for stock alerts.
const (
	AggregateStockItem = "StockItem"
	EventStockAlert    = "StockAlert"
)

const (
	defaultMaxRetries     = 5
	defaultRetryBackoff   = time.Minute
	defaultRelayBatchSize = 100
)

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent represents an event to be published via outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

var outboxColumns = ExtractDBColumns[OutboxMessage]()

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       time.Now,
	}
}

// Publish writes an event to the outbox within the current transaction.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	return p.PublishBatch(ctx, []DomainEvent{event})
}

// PublishBatch writes multiple events to the outbox in one statement.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	q, err := p.insertQuery(events)
	if err != nil {
		return err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	// Delivered by Postgres only when the transaction commits.
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", OutboxChannel, events[0].EventType); err != nil {
		return fmt.Errorf("notify outbox: %w", err)
	}
	return nil
}

func (p *OutboxPublisher) insertQuery(events []DomainEvent) (squirrel.InsertBuilder, error) {
	now := p.now().UTC()
	q := p.builder.Insert(TableOutbox).
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "payload", "status", "created_at")

	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return q, fmt.Errorf("marshal event payload: %w", err)
		}
		q = q.Values(id.New(), event.AggregateType, event.AggregateID, event.EventType, payload, OutboxStatusPending, now)
	}
	return q, nil
}

// OutboxNotifier implements stock.Notifier by writing alerts to the outbox,
// so an alert is published only if the stock change that raised it commits.
type OutboxNotifier struct {
	publisher *OutboxPublisher
}

// Compile-time check that OutboxNotifier implements stock.Notifier.
var _ stock.Notifier = (*OutboxNotifier)(nil)

// NewOutboxNotifier creates a notifier writing through publisher.
func NewOutboxNotifier(publisher *OutboxPublisher) *OutboxNotifier {
	return &OutboxNotifier{publisher: publisher}
}

// Notify implements stock.Notifier. The insert runs under a savepoint so a failure leaves the commit intact.
func (n *OutboxNotifier) Notify(ctx context.Context, alert stock.StockAlert) error {
	txm := n.publisher.txManager
	opts := txm.Defaults()
	opts.UseSavepoint = true
	return txm.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, DomainEvent{
			AggregateType: AggregateStockItem,
			AggregateID:   alert.ItemID,
			EventType:     EventStockAlert,
			Payload:       alert,
		})
	})
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle processes a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultRelayBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// OutboxRelay reads and processes messages from the outbox.
// Used by the background worker to publish events to message broker.
type OutboxRelay struct {
	txManager *TxManager
	cfg       RelayConfig
	handler   OutboxHandler
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, cfg RelayConfig, handler OutboxHandler) *OutboxRelay {
	return &OutboxRelay{
		txManager: txManager,
		cfg:       cfg.withDefaults(),
		handler:   handler,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       time.Now,
	}
}

// ProcessBatch fetches and processes pending messages.
// Rows stay locked (FOR UPDATE SKIP LOCKED) until the batch transaction ends,
// so concurrent relays never hand the same message to the broker.
// Returns number of published messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	opts := r.txManager.Defaults()
	opts.IsolationLevel = pgx.ReadCommitted

	err := r.txManager.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		sql, args, err := r.pendingQuery().ToSql()
		if err != nil {
			return fmt.Errorf("build outbox fetch: %w", err)
		}

		var messages []*OutboxMessage
		if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, sql, args...); err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				processed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

func (r *OutboxRelay) pendingQuery() squirrel.SelectBuilder {
	return r.builder.
		Select(outboxColumns...).
		From(TableOutbox).
		Where(squirrel.Eq{"status": OutboxStatusPending}).
		Where(squirrel.Or{
			squirrel.Eq{"next_retry_at": nil},
			squirrel.LtOrEq{"next_retry_at": r.now().UTC()},
		}).
		OrderBy("created_at", "id").
		Limit(uint64(r.cfg.BatchSize)).
		Suffix("FOR UPDATE SKIP LOCKED")
}

// processMessage hands one message to the handler and records the outcome.
// A handler failure is recorded for retry; only a bookkeeping failure is returned.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	querier := r.txManager.GetQuerier(ctx)

	if handleErr := r.handler.Handle(ctx, msg); handleErr != nil {
		logger.Warn(ctx, "outbox message failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"retry_count", msg.RetryCount,
			"error", handleErr,
		)

		sql, args, err := r.failureQuery(msg, handleErr).ToSql()
		if err != nil {
			return false, fmt.Errorf("build failure update: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return false, fmt.Errorf("update failed message: %w", err)
		}
		return false, nil
	}

	sql, args, err := r.publishedQuery(msg).ToSql()
	if err != nil {
		return false, fmt.Errorf("build publish update: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return false, fmt.Errorf("mark message published: %w", err)
	}
	return true, nil
}

// failureQuery increments the retry count with linear backoff and parks the
// message as failed once MaxRetries attempts were made.
func (r *OutboxRelay) failureQuery(msg *OutboxMessage, cause error) squirrel.UpdateBuilder {
	attempts := msg.RetryCount + 1
	status := OutboxStatusPending
	if attempts >= r.cfg.MaxRetries {
		status = OutboxStatusFailed
	}
	nextRetry := r.now().UTC().Add(time.Duration(attempts) * r.cfg.RetryBackoff)

	return r.builder.Update(TableOutbox).
		Set("retry_count", attempts).
		Set("last_error", cause.Error()).
		Set("next_retry_at", nextRetry).
		Set("status", status).
		Where(squirrel.Eq{"id": msg.ID})
}

func (r *OutboxRelay) publishedQuery(msg *OutboxMessage) squirrel.UpdateBuilder {
	return r.builder.Update(TableOutbox).
		Set("status", OutboxStatusPublished).
		Set("published_at", r.now().UTC()).
		Where(squirrel.Eq{"id": msg.ID})
}

// MoveToDLQ moves failed messages to dead letter queue.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved
	`, OutboxStatusFailed, r.cfg.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}

	return result.RowsAffected(), nil
}
