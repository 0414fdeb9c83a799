package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/simbank"
	"github.com/xraph/simbank/engine"
	"github.com/xraph/simbank/generator/synth"
	"github.com/xraph/simbank/store/memory"
	"github.com/xraph/simbank/task"
)

func testVolumes() synth.Volumes {
	return synth.Volumes{
		CustomersPerDay:    6,
		ManagersPerDay:     2,
		Branches:           3,
		Products:           4,
		DepositTypes:       2,
		AccountsPerDay:     8,
		TransactionsPerDay: 20,
		LoansPerDay:        3,
		AppEventsPerDay:    15,
	}
}

func testConfig() simbank.Config {
	cfg := simbank.DefaultConfig()
	cfg.BatchSize = 8
	cfg.CheckpointInterval = 2
	cfg.StoreTimeout = 5 * time.Second
	// A two-day backfill keeps the end-to-end run fast.
	cfg.HistoricalStart = time.Now().AddDate(0, 0, -2)
	return cfg
}

func newEngine(t *testing.T, st *memory.Store, cfg simbank.Config) *engine.Engine {
	t.Helper()
	eng, err := engine.New(st, cfg,
		engine.WithVolumes(testVolumes()),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return eng
}

// waitTerminal polls until the task reaches a terminal status.
func waitTerminal(t *testing.T, st *memory.Store, tk *task.Task) *task.Task {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetTask(context.Background(), tk.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status.Terminal() {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal status", tk.ID)
	return nil
}

func TestNew_NilStore(t *testing.T) {
	if _, err := engine.New(nil, simbank.DefaultConfig()); !errors.Is(err, simbank.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestSeedHistorical_CompletesAndWritesAllEntityTypes(t *testing.T) {
	st := memory.New()
	eng := newEngine(t, st, testConfig())

	tk, err := eng.SeedHistorical(context.Background())
	if err != nil {
		t.Fatalf("SeedHistorical: %v", err)
	}
	if tk.Kind != task.KindHistorical {
		t.Fatalf("Kind = %q, want historical", tk.Kind)
	}

	done := waitTerminal(t, st, tk)
	if done.Status != task.StatusCompleted {
		t.Fatalf("Status = %q (lastError %q), want completed", done.Status, done.LastError)
	}

	for _, et := range simbank.KnownEntityTypes() {
		if len(st.Records(et)) == 0 {
			t.Errorf("no records written for %s", et)
		}
	}

	// Every account references a customer that exists.
	customers := make(map[string]bool)
	for _, rec := range st.Records(simbank.EntityCustomer) {
		customers[rec.ID] = true
	}
	for _, rec := range st.Records(simbank.EntityAccount) {
		owner, _ := rec.Fields["customer_id"].(string)
		if !customers[owner] {
			t.Fatalf("account %s references unknown customer %q", rec.ID, owner)
		}
	}
}

func TestSeedHistorical_StatusReportsFullProgress(t *testing.T) {
	st := memory.New()
	eng := newEngine(t, st, testConfig())

	tk, err := eng.SeedHistorical(context.Background())
	if err != nil {
		t.Fatalf("SeedHistorical: %v", err)
	}
	waitTerminal(t, st, tk)

	status, err := eng.Status(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Progress == nil {
		t.Fatal("Progress is nil")
	}
	if status.Progress.PercentComplete < 100 {
		t.Fatalf("PercentComplete = %.1f, want 100", status.Progress.PercentComplete)
	}

	vals, err := eng.Validations(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("Validations: %v", err)
	}
	if len(vals) == 0 {
		t.Fatal("no validation records appended")
	}
}

func TestRunRealtime_CoversTriggerWindow(t *testing.T) {
	st := memory.New()
	eng := newEngine(t, st, testConfig())

	// A 13:00 trigger covers the same day's morning.
	trigger := time.Date(2026, 4, 2, 13, 0, 0, 0, time.UTC)
	tk, err := eng.RunRealtime(context.Background(), trigger)
	if err != nil {
		t.Fatalf("RunRealtime: %v", err)
	}
	if tk.Kind != task.KindRealtime {
		t.Fatalf("Kind = %q, want realtime", tk.Kind)
	}
	wantStart := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	if !tk.Window.Start.Equal(wantStart) {
		t.Fatalf("Window.Start = %v, want %v", tk.Window.Start, wantStart)
	}

	done := waitTerminal(t, st, tk)
	if done.Status != task.StatusCompleted {
		t.Fatalf("Status = %q (lastError %q), want completed", done.Status, done.LastError)
	}

	for _, rec := range st.Records(simbank.EntityTransaction) {
		if !tk.Window.Contains(rec.At) {
			t.Fatalf("transaction %s at %v outside window", rec.ID, rec.At)
		}
	}
}

func TestRunRealtime_SecondTaskSameLineageRejectedWhileRunning(t *testing.T) {
	st := memory.New()
	cfg := testConfig()
	// Large enough volumes that the first task is still running when the
	// second create arrives.
	eng, err := engine.New(st, cfg,
		engine.WithVolumes(synth.Volumes{
			CustomersPerDay:    500,
			ManagersPerDay:     50,
			Branches:           3,
			Products:           4,
			DepositTypes:       2,
			AccountsPerDay:     500,
			TransactionsPerDay: 5000,
			LoansPerDay:        200,
			AppEventsPerDay:    5000,
		}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trigger := time.Date(2026, 4, 2, 13, 0, 0, 0, time.UTC)
	tk, err := eng.RunRealtime(context.Background(), trigger)
	if err != nil {
		t.Fatalf("RunRealtime: %v", err)
	}

	_, err = eng.RunRealtime(context.Background(), trigger.Add(12*time.Hour))
	if !errors.Is(err, simbank.ErrLineageRunning) {
		t.Fatalf("second RunRealtime err = %v, want ErrLineageRunning", err)
	}

	if err := eng.Cancel(context.Background(), tk.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	done := waitTerminal(t, st, tk)
	if done.Status != task.StatusCancelled {
		t.Fatalf("Status = %q, want cancelled", done.Status)
	}
}
