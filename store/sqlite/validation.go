package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/validation"
)

// AppendValidation persists a validation record.
func (s *Store) AppendValidation(ctx context.Context, rec *validation.Record) error {
	details, err := marshalJSON(rec.Details)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: encode validation details: %w", err)
	}
	samples, err := marshalJSON(rec.ErrorSamples)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: encode validation samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simbank_validations
			(id, task_id, entity_type, total, passed, failed, details, error_samples, at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.TaskID.String(), string(rec.EntityType),
		rec.Total, rec.Passed, rec.Failed, details, samples,
		fmtTime(rec.At), fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: append validation: %w", err)
	}
	return nil
}

// ListValidations returns all validation records for a task, oldest first.
func (s *Store) ListValidations(ctx context.Context, taskID id.TaskID) ([]*validation.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, entity_type, total, passed, failed, details, error_samples, at, created_at, updated_at
		FROM simbank_validations
		WHERE task_id = ?
		ORDER BY at ASC, id ASC`,
		taskID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: list validations: %w", err)
	}
	defer rows.Close()

	var out []*validation.Record
	for rows.Next() {
		rec, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanValidation(sc scanner) (*validation.Record, error) {
	var (
		rec                     validation.Record
		recID, taskID, et       string
		details, samples        sql.NullString
		at, createdAt, updateAt string
	)
	err := sc.Scan(&recID, &taskID, &et, &rec.Total, &rec.Passed, &rec.Failed,
		&details, &samples, &at, &createdAt, &updateAt)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = id.ParseWithPrefix(recID, id.PrefixValidation); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan validation id: %w", err)
	}
	if rec.TaskID, err = id.ParseWithPrefix(taskID, id.PrefixTask); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan validation task id: %w", err)
	}
	rec.EntityType = simbank.EntityType(et)
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
			return nil, fmt.Errorf("simbank/sqlite: decode validation details: %w", err)
		}
	}
	if samples.Valid && samples.String != "" {
		if err := json.Unmarshal([]byte(samples.String), &rec.ErrorSamples); err != nil {
			return nil, fmt.Errorf("simbank/sqlite: decode validation samples: %w", err)
		}
	}
	if rec.At, err = parseTime(at); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan validation at: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan validation created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updateAt); err != nil {
		return nil, fmt.Errorf("simbank/sqlite: scan validation updated_at: %w", err)
	}
	return &rec, nil
}

// marshalJSON returns nil for empty values so the column stays NULL.
func marshalJSON(v any) (any, error) {
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
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
