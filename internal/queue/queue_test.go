package queue

import "testing"

func TestDeltaForOutcome(t *testing.T) {
	tests := []struct {
		outcome string
		want    int
	}{
		{OutcomeContacted, 10},
		{OutcomeCompleted, 20},
		{OutcomeNoAnswer, -5},
		{OutcomeNotInterested, -10},
		{OutcomeCallbackRequested, 5},
		{"wrong_number", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := DeltaForOutcome(tt.outcome); got != tt.want {
			t.Errorf("DeltaForOutcome(%q) = %d, want %d", tt.outcome, got, tt.want)
		}
	}
}

func TestIsActiveStatus(t *testing.T) {
	for _, s := range []string{EntryPending, EntryAssigned} {
		if !IsActiveStatus(s) {
			t.Errorf("IsActiveStatus(%q) = false", s)
		}
	}
	for _, s := range []string{EntryCompleted, EntryMissed, EntryCancelled} {
		if IsActiveStatus(s) {
			t.Errorf("IsActiveStatus(%q) = true", s)
		}
	}
}
