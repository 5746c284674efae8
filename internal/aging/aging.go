// Package aging runs the periodic score aging job: users who have not
// been looked at recently drift up the queue a little at a time.
package aging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/metrics"
)

const (
	// DefaultStep is added to a score on each aging pass
	DefaultStep = 5
	// DefaultBatchSize bounds one transactional batch
	DefaultBatchSize = 500
	// DefaultMinAge is how long a score must go unchecked before aging
	DefaultMinAge = 7 * 24 * time.Hour
	// DefaultSafetyAge guards against double runs: if the first batch
	// contains a record younger than this, the run aborts.
	DefaultSafetyAge = 156 * time.Hour
	// DefaultWallBudget bounds a whole run
	DefaultWallBudget = 4 * time.Minute

	lockKey = "aging:run-lock"
	lockTTL = 10 * time.Minute
)

// Candidate is one score row eligible for aging
type Candidate struct {
	UserID    int64
	Score     int
	CreatedAt time.Time
	// LastCheck is nil for scores that have never been aged
	LastCheck *time.Time
}

// Age returns how long the candidate has sat since its last check,
// falling back to its creation time.
func (c Candidate) Age(now time.Time) time.Duration {
	ref := c.CreatedAt
	if c.LastCheck != nil {
		ref = *c.LastCheck
	}
	return now.Sub(ref)
}

// Store is the persistence boundary for aging runs
type Store interface {
	// SelectBatch returns up to limit candidates whose last check (or
	// creation) is at or before cutoff, oldest first.
	SelectBatch(ctx context.Context, cutoff time.Time, limit int64) ([]Candidate, error)
	// AgeBatch increments the scores and stamps last_queue_check for
	// the given users, and bumps their active pending queue entries by
	// the same step. Both writes commit or roll back together.
	AgeBatch(ctx context.Context, userIDs []int64, step int) (scoresAged, queueRowsBumped int64, err error)
}

// Locker serialises runs across processes
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// Config tunes a Scheduler. Zero values take the defaults above.
type Config struct {
	Step       int
	BatchSize  int64
	MinAge     time.Duration
	SafetyAge  time.Duration
	WallBudget time.Duration
	// WindowHour restricts runs to one hour of the day when enforced
	WindowHour    int
	EnforceWindow bool
}

func (c *Config) applyDefaults() {
	if c.Step == 0 {
		c.Step = DefaultStep
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MinAge == 0 {
		c.MinAge = DefaultMinAge
	}
	if c.SafetyAge == 0 {
		c.SafetyAge = DefaultSafetyAge
	}
	if c.WallBudget == 0 {
		c.WallBudget = DefaultWallBudget
	}
}

// RunSummary reports what one invocation did
type RunSummary struct {
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Batches         int       `json:"batches"`
	ScoresAged      int64     `json:"scores_aged"`
	QueueRowsBumped int64     `json:"queue_rows_bumped"`
	Skipped         bool      `json:"skipped"`
	Aborted         bool      `json:"aborted"`
	Reason          string    `json:"reason,omitempty"`
}

// Scheduler drives aging runs
type Scheduler struct {
	store  Store
	locker Locker
	cfg    Config
	now    func() time.Time
}

func NewScheduler(store Store, locker Locker, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{store: store, locker: locker, cfg: cfg, now: time.Now}
}

// Run executes one aging pass. It is safe to call from cron and from
// the in-process ticker at once; the lease lock picks a single winner.
func (s *Scheduler) Run(ctx context.Context) (*RunSummary, error) {
	start := s.now()
	summary := &RunSummary{StartedAt: start}

	if s.cfg.EnforceWindow && start.Hour() != s.cfg.WindowHour {
		summary.Skipped = true
		summary.Reason = "outside execution window"
		summary.FinishedAt = s.now()
		return summary, nil
	}

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, lockKey, lockTTL)
		if err != nil {
			return s.failRun(summary, err)
		}
		if !ok {
			summary.Skipped = true
			summary.Reason = "another run holds the lock"
			summary.FinishedAt = s.now()
			return summary, nil
		}
		defer s.locker.Release(ctx, lockKey)
	}

	deadline := start.Add(s.cfg.WallBudget)
	cutoff := start.Add(-s.cfg.MinAge)

	for {
		if s.now().After(deadline) {
			summary.Aborted = true
			summary.Reason = "wall clock budget exhausted"
			break
		}
		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			summary.Reason = err.Error()
			break
		}

		batch, err := s.store.SelectBatch(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return s.failRun(summary, err)
		}
		if len(batch) == 0 {
			break
		}

		// A first batch full of recently-checked records means the
		// selection is wrong or another run just finished; aging them
		// again would double-bump every score.
		if summary.Batches == 0 {
			if young := youngest(batch, start); young < s.cfg.SafetyAge {
				summary.Aborted = true
				summary.Reason = "first batch younger than safety threshold"
				logger.Log.Error("Aging run aborted by safety check",
					zap.Duration("youngest_age", young),
					zap.Duration("safety_age", s.cfg.SafetyAge),
				)
				break
			}
		}

		ids := make([]int64, len(batch))
		for i, c := range batch {
			ids[i] = c.UserID
		}
		aged, bumped, err := s.store.AgeBatch(ctx, ids, s.cfg.Step)
		if err != nil {
			return s.failRun(summary, err)
		}
		summary.Batches++
		summary.ScoresAged += aged
		summary.QueueRowsBumped += bumped

		if int64(len(batch)) < s.cfg.BatchSize {
			break
		}
	}

	summary.FinishedAt = s.now()
	metrics.RecordAgingRun(summary.ScoresAged, summary.QueueRowsBumped)
	logger.Log.Info("Aging run finished",
		zap.Int("batches", summary.Batches),
		zap.Int64("scores_aged", summary.ScoresAged),
		zap.Int64("queue_rows_bumped", summary.QueueRowsBumped),
		zap.Bool("aborted", summary.Aborted),
		zap.String("reason", summary.Reason),
	)
	return summary, nil
}

// failRun closes the summary around a mid-run store error. Batches that
// already committed stay counted; the failed batch rolled back whole,
// so the counts are exact, not estimates.
func (s *Scheduler) failRun(summary *RunSummary, err error) (*RunSummary, error) {
	summary.Aborted = true
	summary.Reason = err.Error()
	summary.FinishedAt = s.now()
	metrics.RecordAgingRun(summary.ScoresAged, summary.QueueRowsBumped)
	logger.Log.Error("Aging run failed mid-flight",
		zap.Int("batches", summary.Batches),
		zap.Int64("scores_aged", summary.ScoresAged),
		zap.Error(err),
	)
	return summary, err
}

func youngest(batch []Candidate, now time.Time) time.Duration {
	min := time.Duration(1<<62 - 1)
	for _, c := range batch {
		if age := c.Age(now); age < min {
			min = age
		}
	}
	return min
}
