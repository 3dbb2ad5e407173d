package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
)

// Compile-time check that AuditSink implements stock.AuditSink.
var _ stock.AuditSink = (*AuditSink)(nil)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// defaultCompressThreshold is the payload size above which changes are stored compressed.
const defaultCompressThreshold = 10 * 1024

// AuditEntry represents a single audit log row.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Field             string          `db:"field"`
	ActorID           *id.ID          `db:"actor_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditSink writes stock audit records to sys_audit.
// Each insert runs under a savepoint so a failed write leaves the surrounding transaction usable.
type AuditSink struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditSink creates a new audit sink.
func NewAuditSink(txManager *TxManager) (*AuditSink, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditSink{
		txManager:         txManager,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Record implements stock.AuditSink.
func (s *AuditSink) Record(ctx context.Context, rec stock.AuditRecord) error {
	entry, err := s.entryFor(rec)
	if err != nil {
		return err
	}

	sql, args, err := s.insertQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	opts := s.txManager.Defaults()
	opts.UseSavepoint = true
	return s.txManager.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
}

// entryFor builds the row for rec, compressing large change sets.
func (s *AuditSink) entryFor(rec stock.AuditRecord) (AuditEntry, error) {
	changes, err := json.Marshal(rec)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("marshal audit record: %w", err)
	}

	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	entry := AuditEntry{
		ID:              id.New(),
		EntityType:      rec.EntityType,
		EntityID:        rec.EntityID,
		Field:           rec.Field,
		ActorID:         rec.ActorID,
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		CreatedAt:       at.UTC(),
	}

	if len(changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	return entry, nil
}

func (s *AuditSink) insertQuery(entry AuditEntry) squirrel.InsertBuilder {
	return s.builder.Insert(TableAudit).SetMap(StructToMap(entry))
}

// History returns the audit trail of one entity, newest first, with changes decompressed.
func (s *AuditSink) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	q := s.builder.
		Select(ExtractDBColumns[AuditEntry]()...).
		From(TableAudit).
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	for i := range entries {
		if err := s.decompress(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *AuditSink) decompress(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	e.Changes = decompressed
	e.ChangesCompressed = nil
	return nil
}
