package id_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/simbank/id"
)

func TestNew_ProducesPrefixedID(t *testing.T) {
	taskID := id.NewTaskID()
	if taskID.IsNil() {
		t.Fatal("NewTaskID() returned the nil ID")
	}
	if taskID.Prefix() != id.PrefixTask {
		t.Errorf("Prefix() = %q, want %q", taskID.Prefix(), id.PrefixTask)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewCheckpointID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	taskID := id.NewTaskID()

	if _, err := id.ParseCheckpointID(taskID.String()); err == nil {
		t.Error("ParseCheckpointID accepted a task ID")
	}
}

func TestParse_RejectsEmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") should return an error")
	}
}

func TestID_SortableByCreation(t *testing.T) {
	// UUIDv7-based IDs generated later must compare lexically greater.
	a := id.NewTaskID()
	b := id.NewTaskID()
	if a.String() >= b.String() {
		t.Errorf("expected %q < %q (K-sortable)", a.String(), b.String())
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	orig := id.NewValidationID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Errorf("JSON round trip = %q, want %q", decoded.String(), orig.String())
	}
}

func TestNil_Behaviour(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", nilID.String())
	}

	v, err := nilID.Value()
	if err != nil {
		t.Fatalf("Value(): %v", err)
	}
	if v != nil {
		t.Errorf("nil ID Value() = %v, want nil", v)
	}
}
