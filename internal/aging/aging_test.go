package aging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

type fakeStore struct {
	batches   [][]Candidate
	calls     int
	agedIDs   [][]int64
	agedStep  int
	failBatch int
	failErr   error
}

func (f *fakeStore) SelectBatch(ctx context.Context, cutoff time.Time, limit int64) ([]Candidate, error) {
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func (f *fakeStore) AgeBatch(ctx context.Context, userIDs []int64, step int) (int64, int64, error) {
	if f.failErr != nil && f.calls == f.failBatch {
		return 0, 0, f.failErr
	}
	f.agedIDs = append(f.agedIDs, userIDs)
	f.agedStep = step
	return int64(len(userIDs)), int64(len(userIDs)), nil
}

type fakeLock struct {
	denied   bool
	acquired int
	released int
}

func (f *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.denied {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context, key string) {
	f.released++
}

func oldCandidates(n int, age time.Duration) []Candidate {
	created := time.Now().Add(-age)
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{UserID: int64(i + 1), Score: 50, CreatedAt: created}
	}
	return out
}

func TestRunAgesOldScores(t *testing.T) {
	store := &fakeStore{batches: [][]Candidate{oldCandidates(3, 8*24*time.Hour)}}
	s := NewScheduler(store, &fakeLock{}, Config{})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Aborted || summary.Skipped {
		t.Fatalf("unexpected abort/skip: %+v", summary)
	}
	if summary.ScoresAged != 3 {
		t.Errorf("ScoresAged = %d, want 3", summary.ScoresAged)
	}
	if summary.QueueRowsBumped != summary.ScoresAged {
		t.Errorf("queue rows (%d) must track scores aged (%d)",
			summary.QueueRowsBumped, summary.ScoresAged)
	}
	if store.agedStep != DefaultStep {
		t.Errorf("step = %d, want %d", store.agedStep, DefaultStep)
	}
}

func TestRunEmptySelectionIsNoop(t *testing.T) {
	store := &fakeStore{}
	s := NewScheduler(store, &fakeLock{}, Config{})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 0 || summary.ScoresAged != 0 {
		t.Errorf("expected noop summary, got %+v", summary)
	}
}

func TestRunSafetyAbortOnYoungBatch(t *testing.T) {
	// Records aged only 2 days: the selection must be broken or another
	// run just completed, so nothing may be mutated.
	store := &fakeStore{batches: [][]Candidate{oldCandidates(5, 48*time.Hour)}}
	s := NewScheduler(store, &fakeLock{}, Config{})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Aborted {
		t.Fatal("expected safety abort")
	}
	if len(store.agedIDs) != 0 {
		t.Fatal("no batch may be aged after a safety abort")
	}
}

func TestRunReportsPartialProgressOnBatchFailure(t *testing.T) {
	store := &fakeStore{
		batches: [][]Candidate{
			oldCandidates(3, 8*24*time.Hour),
			oldCandidates(3, 9*24*time.Hour),
		},
		failBatch: 2,
		failErr:   errors.New("transaction aborted"),
	}
	s := NewScheduler(store, &fakeLock{}, Config{BatchSize: 3})

	summary, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected the store error to surface")
	}
	if summary == nil {
		t.Fatal("summary must carry partial progress on failure")
	}
	if summary.Batches != 1 || summary.ScoresAged != 3 {
		t.Errorf("partial progress lost: %+v", summary)
	}
	if !summary.Aborted || summary.FinishedAt.IsZero() {
		t.Errorf("failed run must be stamped aborted and finished: %+v", summary)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	store := &fakeStore{batches: [][]Candidate{oldCandidates(1, 8*24*time.Hour)}}
	s := NewScheduler(store, &fakeLock{denied: true}, Config{})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Skipped {
		t.Fatal("expected skip when lock is held")
	}
	if len(store.agedIDs) != 0 {
		t.Fatal("locked-out run must not age anything")
	}
}

func TestRunReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	s := NewScheduler(&fakeStore{}, lock, Config{})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lock.acquired != 1 || lock.released != 1 {
		t.Errorf("acquired=%d released=%d, want 1/1", lock.acquired, lock.released)
	}
}

func TestRunWindowEnforcement(t *testing.T) {
	store := &fakeStore{batches: [][]Candidate{oldCandidates(1, 8*24*time.Hour)}}
	offHour := (time.Now().Hour() + 6) % 24
	s := NewScheduler(store, &fakeLock{}, Config{EnforceWindow: true, WindowHour: offHour})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Skipped {
		t.Fatal("expected skip outside the execution window")
	}
}

func TestRunMultipleBatches(t *testing.T) {
	full := oldCandidates(2, 8*24*time.Hour)
	partial := oldCandidates(1, 8*24*time.Hour)
	store := &fakeStore{batches: [][]Candidate{full, partial}}
	s := NewScheduler(store, &fakeLock{}, Config{BatchSize: 2})

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 2 {
		t.Errorf("Batches = %d, want 2", summary.Batches)
	}
	if summary.ScoresAged != 3 {
		t.Errorf("ScoresAged = %d, want 3", summary.ScoresAged)
	}
}

func TestCandidateAge(t *testing.T) {
	now := time.Now()
	created := now.Add(-10 * 24 * time.Hour)
	checked := now.Add(-3 * 24 * time.Hour)

	c := Candidate{CreatedAt: created}
	if got := c.Age(now); got != 10*24*time.Hour {
		t.Errorf("Age without check = %v", got)
	}
	c.LastCheck = &checked
	if got := c.Age(now); got != 3*24*time.Hour {
		t.Errorf("Age with check = %v", got)
	}
}
