package tracker

import (
	"testing"
	"time"
)

func TestMutationStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   MutationStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelComplete, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestMutationStatusValidate(t *testing.T) {
	for _, s := range []MutationStatus{StatusPending, StatusInProgress, StatusSucceeded, StatusFailed, StatusCancelComplete} {
		if err := s.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v, want nil", s, err)
		}
	}
	if err := MutationStatus("exploded").Validate(); err == nil {
		t.Error("unknown status should fail validation")
	}
}

func TestOperationKindValidate(t *testing.T) {
	for _, o := range []OperationKind{OperationCreate, OperationUpdate, OperationDelete, OperationUnknown} {
		if err := o.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v, want nil", o, err)
		}
	}
	if err := OperationKind("upsert").Validate(); err == nil {
		t.Error("unknown operation kind should fail validation")
	}
}

func TestAdvanceOverwritesProgressFields(t *testing.T) {
	started := time.Now()
	prev := MutationState{
		ConnectionID: "conn-1",
		Token:        "tok-1",
		Operation:    OperationCreate,
		ResourceType: "bucket",
		Status:       StatusPending,
		StartedAt:    started,
	}

	next := prev.Advance(ProgressDescriptor{
		Token:      "tok-1",
		Status:     StatusInProgress,
		ResourceID: "b-1",
		Message:    "provisioning",
	})

	if next.Status != StatusInProgress {
		t.Errorf("status = %s, want %s", next.Status, StatusInProgress)
	}
	if next.ResourceID != "b-1" {
		t.Errorf("resource ID = %q, want b-1", next.ResourceID)
	}
	if next.Message != "provisioning" {
		t.Errorf("message = %q, want provisioning", next.Message)
	}
	// Identity fields carry over untouched.
	if next.Token != prev.Token || next.Operation != prev.Operation ||
		next.ResourceType != prev.ResourceType || next.ConnectionID != prev.ConnectionID ||
		!next.StartedAt.Equal(started) {
		t.Errorf("identity fields changed: %+v", next)
	}
}

func TestAdvanceNeverClearsResourceID(t *testing.T) {
	prev := MutationState{Token: "tok-1", ResourceID: "b-1", Status: StatusInProgress}
	next := prev.Advance(ProgressDescriptor{Status: StatusSucceeded})
	if next.ResourceID != "b-1" {
		t.Errorf("resource ID = %q, want b-1 (must not revert to empty)", next.ResourceID)
	}
}

func TestEqualDetectsDifferences(t *testing.T) {
	base := MutationState{
		ConnectionID: "c",
		Token:        "t",
		Operation:    OperationUpdate,
		ResourceType: "table",
		ResourceID:   "r",
		Status:       StatusInProgress,
		Message:      "m",
		StartedAt:    time.Unix(100, 0),
	}

	if !base.Equal(base) {
		t.Error("state should equal itself")
	}

	mutations := []func(*MutationState){
		func(s *MutationState) { s.ConnectionID = "other" },
		func(s *MutationState) { s.Token = "other" },
		func(s *MutationState) { s.Operation = OperationDelete },
		func(s *MutationState) { s.ResourceType = "other" },
		func(s *MutationState) { s.ResourceID = "other" },
		func(s *MutationState) { s.Status = StatusFailed },
		func(s *MutationState) { s.Message = "other" },
		func(s *MutationState) { s.StartedAt = time.Unix(200, 0) },
	}
	for i, mutate := range mutations {
		changed := base
		mutate(&changed)
		if base.Equal(changed) {
			t.Errorf("mutation %d should make states unequal", i)
		}
	}
}
