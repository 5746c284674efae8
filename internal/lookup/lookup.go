// Package lookup resolves an inbound caller number to a known user and
// scores the call's priority before routing.
package lookup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/replica"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/phone"
)

// UnknownUserID marks a caller we could not identify
const UnknownUserID int64 = 0

const (
	openClaimsLimit     = 5
	historyWindow       = 7 * 24 * time.Hour
	basePriority        = 50
	perClaimBonus       = 10
	missedCallBonus     = 20
	frequentCallerBonus = 15
	frequentCallerMin   = 3
)

// CallerContext is the routing input assembled for one inbound call
type CallerContext struct {
	Found         bool
	UserID        int64
	FirstName     string
	LastName      string
	PhoneNumber   string
	Claims        []replica.Claim
	ClaimCount    int
	PriorityScore int
	RecentCalls   int
	RecentMissed  int
}

// FullName returns the display name, empty for unknown callers
func (c *CallerContext) FullName() string {
	if !c.Found {
		return ""
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// History reads recent call activity for a caller. Backed by the
// session store; faked in tests.
type History interface {
	CountCallsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountMissedCallsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Service identifies callers against the replica and call history
type Service struct {
	replica replica.Store
	history History
}

func NewService(rep replica.Store, hist History) *Service {
	return &Service{replica: rep, history: hist}
}

// Lookup resolves the caller. Any storage failure degrades to a
// not-found context so the caller can still be routed; lookup never
// fails an inbound call.
func (s *Service) Lookup(ctx context.Context, callerNumber string) *CallerContext {
	notFound := &CallerContext{Found: false, UserID: UnknownUserID, PhoneNumber: callerNumber}

	if callerNumber == "" || phone.IsClientIdentifier(callerNumber) {
		return notFound
	}

	user, err := s.replica.FindEnabledUserByPhone(ctx, callerNumber)
	if err != nil {
		replica.LogDegraded("FindEnabledUserByPhone", err)
		return notFound
	}
	if user == nil {
		logger.Log.Info("Inbound caller not recognised",
			logger.Phone("caller_number", callerNumber),
		)
		return notFound
	}

	cc := &CallerContext{
		Found:       true,
		UserID:      user.ID,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		PhoneNumber: user.PhoneNumber,
	}

	claims, err := s.replica.OpenClaims(ctx, user.ID, openClaimsLimit)
	if err != nil {
		replica.LogDegraded("OpenClaims", err)
	} else {
		cc.Claims = claims
		cc.ClaimCount = len(claims)
	}

	since := time.Now().Add(-historyWindow)
	if s.history != nil {
		if n, err := s.history.CountCallsSince(ctx, user.ID, since); err == nil {
			cc.RecentCalls = n
		} else {
			logger.Log.Warn("Call history count failed", zap.Error(err))
		}
		if n, err := s.history.CountMissedCallsSince(ctx, user.ID, since); err == nil {
			cc.RecentMissed = n
		} else {
			logger.Log.Warn("Missed call count failed", zap.Error(err))
		}
	}

	cc.PriorityScore = priorityFor(cc)

	logger.Log.Info("Inbound caller identified",
		zap.Int64("user_id", cc.UserID),
		zap.Int("claim_count", cc.ClaimCount),
		zap.Int("priority_score", cc.PriorityScore),
		logger.Phone("caller_number", callerNumber),
	)
	return cc
}

// priorityFor computes the routing priority on a 0-100 scale
func priorityFor(cc *CallerContext) int {
	score := basePriority
	score += cc.ClaimCount * perClaimBonus
	score += cc.RecentMissed * missedCallBonus
	if cc.RecentCalls >= frequentCallerMin {
		score += frequentCallerBonus
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
