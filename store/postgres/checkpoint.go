package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/id"
)

// SaveCheckpoint appends a checkpoint. Checkpoints are never updated.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	payload, err := s.codec.Encode(cp.Payload)
	if err != nil {
		return fmt.Errorf("simbank/postgres: encode checkpoint payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO simbank_checkpoints (id, task_id, lineage, codec, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cp.ID.String(), cp.TaskID.String(), cp.Lineage, s.codec.Name(),
		payload, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("simbank/postgres: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a lineage.
func (s *Store) LatestCheckpoint(ctx context.Context, lineage string) (*checkpoint.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, lineage, codec, payload, created_at, updated_at
		FROM simbank_checkpoints
		WHERE lineage = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		lineage,
	)
	cp, err := scanCheckpoint(row)
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
		WHERE lineage = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{lineage}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("simbank/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// PruneCheckpoints deletes all but the newest keep checkpoints of a lineage.
func (s *Store) PruneCheckpoints(ctx context.Context, lineage string, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM simbank_checkpoints
		WHERE lineage = $1 AND id NOT IN (
			SELECT id FROM simbank_checkpoints
			WHERE lineage = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)`,
		lineage, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("simbank/postgres: prune checkpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp                  checkpoint.Checkpoint
		cpID, taskID, codec string
		payload             []byte
	)
	err := row.Scan(&cpID, &taskID, &cp.Lineage, &codec, &payload, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if cp.ID, err = id.ParseWithPrefix(cpID, id.PrefixCheckpoint); err != nil {
		return nil, fmt.Errorf("simbank/postgres: scan checkpoint id: %w", err)
	}
	if cp.TaskID, err = id.ParseWithPrefix(taskID, id.PrefixTask); err != nil {
		return nil, fmt.Errorf("simbank/postgres: scan checkpoint task id: %w", err)
	}
	// Decode with the codec the row was written with.
	dec := checkpoint.GetCodec(codec)
	if cp.Payload, err = dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("simbank/postgres: decode checkpoint payload: %w", err)
	}
	return &cp, nil
}
