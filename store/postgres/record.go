package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/id"
)

// WriteRecords appends a batch of generated records in one round trip.
// Rewriting an identifier replaces the row, so a batch replayed after a
// crash between write and checkpoint does not duplicate data.
func (s *Store) WriteRecords(ctx context.Context, taskID id.TaskID, et simbank.EntityType, records []generator.Record) error {
	if len(records) == 0 {
		return nil
	}

	const upsert = `
		INSERT INTO simbank_records (entity_type, id, base_id, at, fields, task_id, written_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			base_id    = EXCLUDED.base_id,
			at         = EXCLUDED.at,
			fields     = EXCLUDED.fields,
			task_id    = EXCLUDED.task_id,
			written_at = EXCLUDED.written_at`

	now := time.Now()
	batch := &pgx.Batch{}
	for _, rec := range records {
		fields, err := marshalJSONB(rec.Fields)
		if err != nil {
			return fmt.Errorf("simbank/postgres: encode record fields: %w", err)
		}
		batch.Queue(upsert, string(et), rec.ID, rec.BaseID, rec.At, fields, taskID.String(), now)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("simbank/postgres: write %s batch: %w", et, err)
		}
	}
	return results.Close()
}

// Records returns written records for an entity type ordered by logical
// timestamp. Inspection helper, not part of the Sink contract.
func (s *Store) Records(ctx context.Context, et simbank.EntityType, limit int) ([]generator.Record, error) {
	query := `
		SELECT id, base_id, at, fields FROM simbank_records
		WHERE entity_type = $1
		ORDER BY at ASC, id ASC`
	args := []any{string(et)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/postgres: list records: %w", err)
	}
	defer rows.Close()

	var out []generator.Record
	for rows.Next() {
		var (
			rec    generator.Record
			fields []byte
		)
		if err := rows.Scan(&rec.ID, &rec.BaseID, &rec.At, &fields); err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &rec.Fields); err != nil {
				return nil, fmt.Errorf("simbank/postgres: decode record fields: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns how many records of an entity type were written.
func (s *Store) CountRecords(ctx context.Context, et simbank.EntityType) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM simbank_records WHERE entity_type = $1`,
		string(et),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("simbank/postgres: count records: %w", err)
	}
	return n, nil
}
