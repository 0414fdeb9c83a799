package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/id"
)

// SaveCheckpoint appends a checkpoint. Checkpoints are never updated.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	payload, err := s.codec.Encode(cp.Payload)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: encode checkpoint payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simbank_checkpoints (id, task_id, lineage, codec, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID.String(), cp.TaskID.String(), cp.Lineage, s.codec.Name(),
		payload, fmtTime(cp.CreatedAt), fmtTime(cp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a lineage.
func (s *Store) LatestCheckpoint(ctx context.Context, lineage string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, lineage, codec, payload, created_at, updated_at
		FROM simbank_checkpoints
		WHERE lineage = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		lineage,
	)
	cp, err := s.scanCheckpoint(row)
	if isNoRows(err) {
		return nil, simbank.ErrCheckpointNotFound
	}
	return cp, err
}

// ListCheckpoints returns checkpoints for a lineage, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, lineage string, limit int) ([]*checkpoint.Checkpoint, error) {
	query := `
		SELECT id, task_id, lineage, codec, payload, created_at, updated_at
		FROM simbank_checkpoints
		WHERE lineage = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{lineage}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := s.scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// PruneCheckpoints deletes all but the newest keep checkpoints of a lineage.
func (s *Store) PruneCheckpoints(ctx context.Context, lineage string, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM simbank_checkpoints
		WHERE lineage = ? AND id NOT IN (
			SELECT id FROM simbank_checkpoints
			WHERE lineage = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`,
		lineage, lineage, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("simbank/sqlite: prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("simbank/sqlite: prune checkpoints: %w", err)
	}
	return int(n), nil
}

func (s *Store) scanCheckpoint(sc scanner) (*checkpoint.Checkpoint, error) {
	var (
		cp                   checkpoint.Checkpoint
		cpID, taskID, codec  string
		payload              []byte
		createdAt, updatedAt string
	)
	err := sc.Scan(&cpID, &taskID, &cp.Lineage, &codec, &payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if cp.ID, err = id.ParseWithPrefix(cpID, id.PrefixCheckpoint); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan checkpoint id: %w", err)
	}
	if cp.TaskID, err = id.ParseWithPrefix(taskID, id.PrefixTask); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan checkpoint task id: %w", err)
	}
	// Decode with the codec the row was written with, which may differ
	// from the store's configured codec after an operator changes it.
	dec := checkpoint.GetCodec(codec)
	if cp.Payload, err = dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: decode checkpoint payload: %w", err)
	}
	if cp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan checkpoint created_at: %w", err)
	}
	if cp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan checkpoint updated_at: %w", err)
	}
	return &cp, nil
}
