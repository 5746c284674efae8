// Package sessions persists the lifecycle of individual calls.
package sessions

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Call lifecycle status values
const (
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusMissed     = "missed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no_answer"
)

// Call sources
const (
	SourceInbound = "inbound_call"
	SourceQueue   = "queue"
)

// CallSession is one call observed by the platform from first webhook
// to final status. AgentID is never left unset; calls nobody handled
// carry the system agent so downstream reporting joins cleanly.
type CallSession struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallSID         string             `bson:"call_sid" json:"call_sid"`
	Direction       string             `bson:"direction" json:"direction"`
	Status          string             `bson:"status" json:"status"`
	AgentID         primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	UserID          int64              `bson:"user_id" json:"user_id"`
	CallerNumber    string             `bson:"caller_number" json:"caller_number"`
	PlatformNumber  string             `bson:"platform_number" json:"platform_number"`
	CallSource      string             `bson:"call_source" json:"call_source"`
	ContextSnapshot bson.M             `bson:"context_snapshot,omitempty" json:"context_snapshot,omitempty"`
	AIHandled       bool               `bson:"ai_handled" json:"ai_handled"`
	RecordingSID    string             `bson:"recording_sid,omitempty" json:"recording_sid,omitempty"`
	RecordingURL    string             `bson:"recording_url,omitempty" json:"recording_url,omitempty"`
	RecordingSec    int                `bson:"recording_sec,omitempty" json:"recording_sec,omitempty"`
	DurationSec     int                `bson:"duration_sec" json:"duration_sec"`
	StartedAt       time.Time          `bson:"started_at" json:"started_at"`
	EndedAt         *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the status can no longer change
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusMissed, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}
