package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/id"
)

// WriteRecords appends a batch of generated records in one transaction.
// Rewriting an identifier replaces the row, so a batch replayed after a
// crash between write and checkpoint does not duplicate data.
func (s *Store) WriteRecords(ctx context.Context, taskID id.TaskID, et simbank.EntityType, records []generator.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: begin record batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO simbank_records (entity_type, id, base_id, at, fields, task_id, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			base_id    = excluded.base_id,
			at         = excluded.at,
			fields     = excluded.fields,
			task_id    = excluded.task_id,
			written_at = excluded.written_at`)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: prepare record insert: %w", err)
	}
	defer stmt.Close()

	now := fmtTime(time.Now())
	for _, rec := range records {
		fields, err := marshalJSON(rec.Fields)
		if err != nil {
			return fmt.Errorf("simbank/sqlite: encode record fields: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			string(et), rec.ID, rec.BaseID, fmtTime(rec.At), fields, taskID.String(), now,
		); err != nil {
			return fmt.Errorf("simbank/sqlite: write record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Records returns written records for an entity type ordered by logical
// timestamp. Inspection helper, not part of the Sink contract.
func (s *Store) Records(ctx context.Context, et simbank.EntityType, limit int) ([]generator.Record, error) {
	query := `
		SELECT id, base_id, at, fields FROM simbank_records
		WHERE entity_type = ?
		ORDER BY at ASC, id ASC`
	args := []any{string(et)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: list records: %w", err)
	}
	defer rows.Close()

	var out []generator.Record
	for rows.Next() {
		var (
			rec    generator.Record
			at     string
			fields sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.BaseID, &at, &fields); err != nil {
			return nil, err
		}
		if rec.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("simbank/sqlite: scan record at: %w", err)
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &rec.Fields); err != nil {
				return nil, fmt.Errorf("simbank/sqlite: decode record fields: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns how many records of an entity type were written.
func (s *Store) CountRecords(ctx context.Context, et simbank.EntityType) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM simbank_records WHERE entity_type = ?`,
		string(et),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("simbank/sqlite: count records: %w", err)
	}
	return n, nil
}
