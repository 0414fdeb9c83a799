package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/id"
	"github.com/xraph/simbank/progress"
	"github.com/xraph/simbank/schedule"
)

// fixedStore serves a single checkpoint per lineage.
type fixedStore struct {
	cps map[string]*checkpoint.Checkpoint
}

func (s *fixedStore) SaveCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	if s.cps == nil {
		s.cps = make(map[string]*checkpoint.Checkpoint)
	}
	s.cps[cp.Lineage] = cp
	return nil
}

func (s *fixedStore) LatestCheckpoint(_ context.Context, lineage string) (*checkpoint.Checkpoint, error) {
	cp, ok := s.cps[lineage]
	if !ok {
		return nil, simbank.ErrCheckpointNotFound
	}
	return cp, nil
}

func (s *fixedStore) ListCheckpoints(_ context.Context, lineage string, limit int) ([]*checkpoint.Checkpoint, error) {
	cp, ok := s.cps[lineage]
	if !ok {
		return nil, nil
	}
	return []*checkpoint.Checkpoint{cp}, nil
}

func (s *fixedStore) PruneCheckpoints(_ context.Context, lineage string, keep int) (int, error) {
	return 0, nil
}

func testPlan(_ schedule.Window) map[simbank.EntityType]int64 {
	return map[simbank.EntityType]int64{
		simbank.EntityCustomer:    100,
		simbank.EntityTransaction: 300,
	}
}

func TestSnapshot_NoCheckpoint(t *testing.T) {
	tr := progress.NewTracker(&fixedStore{}, testPlan)

	snap, err := tr.Snapshot(context.Background(), id.NewTaskID(), "realtime", schedule.Window{}, time.Time{})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Produced != 0 {
		t.Errorf("Produced = %d, want 0", snap.Produced)
	}
	if snap.Planned != 400 {
		t.Errorf("Planned = %d, want 400", snap.Planned)
	}
	if snap.PercentComplete != 0 {
		t.Errorf("PercentComplete = %v, want 0", snap.PercentComplete)
	}
}

func TestSnapshot_PartialProgress(t *testing.T) {
	store := &fixedStore{}
	tid := id.NewTaskID()
	cp := checkpoint.New(tid, "realtime", checkpoint.Payload{
		simbank.EntityCustomer:    {Produced: 100},
		simbank.EntityTransaction: {Produced: 100},
	})
	if err := store.SaveCheckpoint(context.Background(), cp); err != nil {
		t.Fatal(err)
	}

	started := time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC)
	now := started.Add(100 * time.Second)
	tr := progress.NewTracker(store, testPlan, progress.WithClock(func() time.Time { return now }))

	snap, err := tr.Snapshot(context.Background(), tid, "realtime", schedule.Window{}, started)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Produced != 200 {
		t.Errorf("Produced = %d, want 200", snap.Produced)
	}
	if snap.PercentComplete != 50 {
		t.Errorf("PercentComplete = %v, want 50", snap.PercentComplete)
	}
	if snap.RecordsPerSecond != 2 {
		t.Errorf("RecordsPerSecond = %v, want 2", snap.RecordsPerSecond)
	}
	if snap.ETASeconds != 100 {
		t.Errorf("ETASeconds = %v, want 100", snap.ETASeconds)
	}
	ep := snap.Entities[simbank.EntityCustomer]
	if ep == nil || ep.Produced != 100 || ep.Planned != 100 {
		t.Errorf("customer progress = %+v, want 100/100", ep)
	}
}

func TestSnapshot_ZeroStartDisablesRate(t *testing.T) {
	store := &fixedStore{}
	tid := id.NewTaskID()
	cp := checkpoint.New(tid, "historical", checkpoint.Payload{
		simbank.EntityCustomer: {Produced: 50},
	})
	if err := store.SaveCheckpoint(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
	tr := progress.NewTracker(store, testPlan)

	snap, err := tr.Snapshot(context.Background(), tid, "historical", schedule.Window{}, time.Time{})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.RecordsPerSecond != 0 || snap.ETASeconds != 0 {
		t.Errorf("rate = %v eta = %v, want both 0", snap.RecordsPerSecond, snap.ETASeconds)
	}
}

func TestSnapshot_IgnoresPreviousTasksCheckpoint(t *testing.T) {
	store := &fixedStore{}
	cp := checkpoint.New(id.NewTaskID(), "realtime", checkpoint.Payload{
		simbank.EntityCustomer:    {Produced: 100},
		simbank.EntityTransaction: {Produced: 300},
	})
	if err := store.SaveCheckpoint(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
	tr := progress.NewTracker(store, testPlan)

	// A freshly created task of the same lineage has produced nothing; the
	// previous task's cursors must not be reported as its progress.
	snap, err := tr.Snapshot(context.Background(), id.NewTaskID(), "realtime", schedule.Window{}, time.Time{})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Produced != 0 {
		t.Errorf("Produced = %d, want 0", snap.Produced)
	}
	if snap.PercentComplete != 0 {
		t.Errorf("PercentComplete = %v, want 0", snap.PercentComplete)
	}
}
