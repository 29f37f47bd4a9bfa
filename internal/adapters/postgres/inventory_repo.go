package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// InventoryRepo implements ports.InventorySource over the document
// table. Records are stored as the raw JSON the field clients uploaded;
// normalization happens in the core, not here.
type InventoryRepo struct {
	db *DB
}

// NewInventoryRepo creates a new InventoryRepo.
func NewInventoryRepo(db *DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

// FetchRecords returns up to limit raw records in insertion order.
func (r *InventoryRepo) FetchRecords(ctx context.Context, limit int) ([]domain.RawTreeRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT payload FROM inventory_points
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RawTreeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var raw domain.RawTreeRecord
		if err := json.Unmarshal(payload, &raw); err != nil {
			// Undecodable payloads are skipped, not fatal; the
			// normalizer drops invalid records the same way.
			continue
		}
		records = append(records, raw)
	}
	return records, rows.Err()
}

// InsertBatch bulk-loads raw records using pgx.Batch.
func (r *InventoryRepo) InsertBatch(ctx context.Context, ids []string, payloads [][]byte) error {
	if len(ids) != len(payloads) {
		return fmt.Errorf("ids/payloads length mismatch: %d vs %d", len(ids), len(payloads))
	}
	batch := &pgx.Batch{}
	for i := range ids {
		batch.Queue(`
			INSERT INTO inventory_points (id, payload)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
		`, ids[i], payloads[i])
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ids {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored inventory points.
func (r *InventoryRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM inventory_points`).Scan(&n)
	return n, err
}
