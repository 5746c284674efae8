package sessions

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/claimtech/dialler/internal/lookup"
	"github.com/claimtech/dialler/internal/replica"
)

func TestBuildSnapshotKnownCaller(t *testing.T) {
	cc := &lookup.CallerContext{
		Found:         true,
		UserID:        903212,
		FirstName:     "Sam",
		LastName:      "Taylor",
		ClaimCount:    2,
		PriorityScore: 70,
		Claims: []replica.Claim{
			{ID: 41, Type: "vehicle_finance", Status: "pending", Lender: "Example Finance"},
			{ID: 42, Type: "vehicle_finance", Status: "reviewing"},
		},
	}

	snap := BuildSnapshot(cc)
	if snap["known_caller"] != true {
		t.Fatal("expected known_caller true")
	}
	if got, ok := snap["user_id"].(int64); !ok || got != 903212 {
		t.Errorf("user_id = %#v, want int64 903212", snap["user_id"])
	}
	claims, ok := snap["claims"].([]bson.M)
	if !ok || len(claims) != 2 {
		t.Fatalf("claims = %#v, want two entries", snap["claims"])
	}
	if got, ok := claims[0]["id"].(int64); !ok || got != 41 {
		t.Errorf("claim id = %#v, want int64 41", claims[0]["id"])
	}
}

func TestBuildSnapshotUnknownCaller(t *testing.T) {
	snap := BuildSnapshot(&lookup.CallerContext{Found: false})
	if snap["known_caller"] != false {
		t.Fatal("expected known_caller false")
	}
	if _, present := snap["user_id"]; present {
		t.Error("unknown caller snapshot must not carry a user_id")
	}

	snap = BuildSnapshot(nil)
	if snap["known_caller"] != false {
		t.Fatal("nil context must produce an unknown snapshot")
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
	}{
		{int64(903212), 903212},
		{int32(77), 77},
		{42, 42},
		{float64(903212), 903212},
		{"903212", 903212},
		{"not-a-number", 0},
		{nil, 0},
		{true, 0},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusMissed, StatusFailed, StatusBusy, StatusNoAnswer} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false", s)
		}
	}
	for _, s := range []string{StatusInitiated, StatusRinging, StatusInProgress} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true", s)
		}
	}
}
