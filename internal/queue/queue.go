// Package queue owns the call queue, per-user call scores, dispositions
// and scheduled callbacks.
package queue

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Queue types
const (
	TypeInbound  = "inbound_call"
	TypeOutbound = "outbound_call"
	TypeCallback = "callback"
)

// Queue entry statuses. An entry is active while pending or assigned;
// the derived active flag backs the partial unique index.
const (
	EntryPending   = "pending"
	EntryAssigned  = "assigned"
	EntryCompleted = "completed"
	EntryMissed    = "missed"
	EntryCancelled = "cancelled"
)

// ScoreFreezeThreshold is the score at or above which aging stops
const ScoreFreezeThreshold = 200

// Entry is one user's place in a queue
type Entry struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID          int64               `bson:"user_id" json:"user_id"`
	QueueType       string              `bson:"queue_type" json:"queue_type"`
	Status          string              `bson:"status" json:"status"`
	Active          bool                `bson:"active" json:"active"`
	PriorityScore   int                 `bson:"priority_score" json:"priority_score"`
	Reason          string              `bson:"reason" json:"reason"`
	AssignedAgentID *primitive.ObjectID `bson:"assigned_agent_id,omitempty" json:"assigned_agent_id,omitempty"`
	CallSessionID   *primitive.ObjectID `bson:"call_session_id,omitempty" json:"call_session_id,omitempty"`
	QueuedAt        time.Time           `bson:"queued_at" json:"queued_at"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
}

// UserScore is the long-lived dialling score for one user. Score moves
// only by relative increments; nothing overwrites it wholesale.
type UserScore struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          int64              `bson:"user_id" json:"user_id"`
	CurrentScore    int                `bson:"current_score" json:"current_score"`
	IsActive        bool               `bson:"is_active" json:"is_active"`
	TotalAttempts   int                `bson:"total_attempts" json:"total_attempts"`
	SuccessfulCalls int                `bson:"successful_calls" json:"successful_calls"`
	LastOutcome     string             `bson:"last_outcome,omitempty" json:"last_outcome,omitempty"`
	LastCallAt      *time.Time         `bson:"last_call_at,omitempty" json:"last_call_at,omitempty"`
	LastQueueCheck  *time.Time         `bson:"last_queue_check,omitempty" json:"last_queue_check,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// Outcome is an agent disposition recorded after a call
type Outcome struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallSessionID primitive.ObjectID `bson:"call_session_id" json:"call_session_id"`
	UserID        int64              `bson:"user_id" json:"user_id"`
	AgentID       primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	Outcome       string             `bson:"outcome" json:"outcome"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	ScoreDelta    int                `bson:"score_delta" json:"score_delta"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// Callback is a caller-requested return call
type Callback struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       int64              `bson:"user_id" json:"user_id"`
	PhoneNumber  string             `bson:"phone_number" json:"phone_number"`
	ScheduledFor time.Time          `bson:"scheduled_for" json:"scheduled_for"`
	Reason       string             `bson:"reason,omitempty" json:"reason,omitempty"`
	Status       string             `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Disposition outcome names
const (
	OutcomeContacted         = "contacted"
	OutcomeCompleted         = "completed_successfully"
	OutcomeNoAnswer          = "no_answer"
	OutcomeNotInterested     = "not_interested"
	OutcomeCallbackRequested = "callback_requested"
)

// DeltaForOutcome maps a disposition to its score adjustment. Unknown
// outcomes leave the score untouched.
func DeltaForOutcome(outcome string) int {
	switch outcome {
	case OutcomeContacted:
		return 10
	case OutcomeCompleted:
		return 20
	case OutcomeNoAnswer:
		return -5
	case OutcomeNotInterested:
		return -10
	case OutcomeCallbackRequested:
		return 5
	default:
		return 0
	}
}

// IsActiveStatus reports whether a queue status counts as active for
// the uniqueness constraint
func IsActiveStatus(status string) bool {
	return status == EntryPending || status == EntryAssigned
}
