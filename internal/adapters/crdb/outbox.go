package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
)

func (t *txRepo) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return errors.Wrap(err, "insert outbox")
}

// ProcessOutbox claims up to limit unpublished records in creation order and
// hands them to fn one by one. Records fn accepted are marked published in the
// same transaction; the first failure stops the batch so ordering is kept.
func (r *Repository) ProcessOutbox(ctx context.Context, limit int, fn func(rec domain.OutboxRecord) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin outbox tx")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	records, err := claimOutbox(ctx, tx, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	var fnErr error
	for _, rec := range records {
		if fnErr = fn(rec); fnErr != nil {
			break
		}
		if err := markPublished(ctx, tx, rec.ID, time.Now()); err != nil {
			return 0, err
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit outbox tx")
	}
	return published, fnErr
}

func claimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func markPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return errors.Wrap(err, "mark outbox published")
}
