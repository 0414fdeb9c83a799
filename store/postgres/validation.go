package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/validation"
)

// AppendValidation persists a validation record.
func (s *Store) AppendValidation(ctx context.Context, rec *validation.Record) error {
	details, err := marshalJSONB(rec.Details)
	if err != nil {
		return fmt.Errorf("simbank/postgres: encode validation details: %w", err)
	}
	samples, err := marshalJSONB(rec.ErrorSamples)
	if err != nil {
		return fmt.Errorf("simbank/postgres: encode validation samples: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO simbank_validations
			(id, task_id, entity_type, total, passed, failed, details, error_samples, at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID.String(), rec.TaskID.String(), string(rec.EntityType),
		rec.Total, rec.Passed, rec.Failed, details, samples,
		rec.At, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("simbank/postgres: append validation: %w", err)
	}
	return nil
}

// ListValidations returns all validation records for a task, oldest first.
func (s *Store) ListValidations(ctx context.Context, taskID id.TaskID) ([]*validation.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, entity_type, total, passed, failed, details, error_samples, at, created_at, updated_at
		FROM simbank_validations
		WHERE task_id = $1
		ORDER BY at ASC, id ASC`,
		taskID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("simbank/postgres: list validations: %w", err)
	}
	defer rows.Close()

	var out []*validation.Record
	for rows.Next() {
		var (
			rec              validation.Record
			recID, taskIDCol string
			et               string
			details, samples []byte
		)
		err := rows.Scan(&recID, &taskIDCol, &et, &rec.Total, &rec.Passed, &rec.Failed,
			&details, &samples, &rec.At, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if rec.ID, err = id.ParseWithPrefix(recID, id.PrefixValidation); err != nil {
			return nil, fmt.Errorf("simbank/postgres: scan validation id: %w", err)
		}
		if rec.TaskID, err = id.ParseWithPrefix(taskIDCol, id.PrefixTask); err != nil {
			return nil, fmt.Errorf("simbank/postgres: scan validation task id: %w", err)
		}
		rec.EntityType = simbank.EntityType(et)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("simbank/postgres: decode validation details: %w", err)
			}
		}
		if len(samples) > 0 {
			if err := json.Unmarshal(samples, &rec.ErrorSamples); err != nil {
				return nil, fmt.Errorf("simbank/postgres: decode validation samples: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// marshalJSONB returns nil for empty values so the column stays NULL.
func marshalJSONB(v any) ([]byte, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	return json.Marshal(v)
}
