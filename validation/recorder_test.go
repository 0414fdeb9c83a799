package validation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/validation"
)

// failingStore always fails appends, to prove recording never blocks.
type failingStore struct{}

func (failingStore) AppendValidation(context.Context, *validation.Record) error {
	return errors.New("storage down")
}

func (failingStore) ListValidations(context.Context, id.TaskID) ([]*validation.Record, error) {
	return nil, nil
}

// captureStore keeps appended records in memory.
type captureStore struct {
	mu   sync.Mutex
	recs []*validation.Record
}

func (s *captureStore) AppendValidation(_ context.Context, rec *validation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *captureStore) ListValidations(context.Context, id.TaskID) ([]*validation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs, nil
}

func TestRecordBatch_AppendsRecord(t *testing.T) {
	store := &captureStore{}
	rec := validation.NewRecorder(store, 0.05)
	taskID := id.NewTaskID()

	rec.RecordBatch(context.Background(), taskID, simbank.EntityCustomer, 100, 99, 1, nil, []string{"bad phone"})

	if len(store.recs) != 1 {
		t.Fatalf("store has %d records, want 1", len(store.recs))
	}
	got := store.recs[0]
	if got.Total != 100 || got.Passed != 99 || got.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 100/99/1", got.Total, got.Passed, got.Failed)
	}
	if got.FailureRate() != 0.01 {
		t.Errorf("FailureRate() = %v, want 0.01", got.FailureRate())
	}
}

func TestRecordBatch_StoreFailureIsSwallowed(t *testing.T) {
	rec := validation.NewRecorder(failingStore{}, 0.05)

	// Must not panic or propagate: validation is informational.
	rec.RecordBatch(context.Background(), id.NewTaskID(), simbank.EntityLoan, 10, 10, 0, nil, nil)
}

func TestThresholdBreach_RaisesTaskWarning(t *testing.T) {
	rec := validation.NewRecorder(&captureStore{}, 0.05)
	taskID := id.NewTaskID()

	// 1% failure: below threshold.
	rec.RecordBatch(context.Background(), taskID, simbank.EntityCustomer, 100, 99, 1, nil, nil)
	if ws := rec.Warnings(taskID); len(ws) != 0 {
		t.Fatalf("unexpected warnings below threshold: %v", ws)
	}

	// 20% failure: above threshold.
	rec.RecordBatch(context.Background(), taskID, simbank.EntityCustomer, 100, 80, 20, nil, nil)
	ws := rec.Warnings(taskID)
	if len(ws) != 1 {
		t.Fatalf("warnings = %v, want exactly one", ws)
	}
	if !strings.Contains(ws[0], string(simbank.EntityCustomer)) {
		t.Errorf("warning %q should name the entity type", ws[0])
	}
}

func TestPerEntityThresholdOverride(t *testing.T) {
	rec := validation.NewRecorder(&captureStore{}, 0.05,
		validation.WithThreshold(simbank.EntityAppEvent, 0.5),
	)
	taskID := id.NewTaskID()

	// 30% failure on app events: under the 50% override.
	rec.RecordBatch(context.Background(), taskID, simbank.EntityAppEvent, 10, 7, 3, nil, nil)
	if ws := rec.Warnings(taskID); len(ws) != 0 {
		t.Errorf("override threshold should suppress warning, got %v", ws)
	}
}

func TestErrorSamples_Capped(t *testing.T) {
	store := &captureStore{}
	rec := validation.NewRecorder(store, 0)

	samples := make([]string, 50)
	for i := range samples {
		samples[i] = "sample"
	}
	rec.RecordBatch(context.Background(), id.NewTaskID(), simbank.EntityTransaction, 50, 0, 50, nil, samples)

	if got := len(store.recs[0].ErrorSamples); got != validation.MaxErrorSamples {
		t.Errorf("kept %d samples, want %d", got, validation.MaxErrorSamples)
	}
}
