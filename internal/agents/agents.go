// Package agents tracks human agents and their live sessions, and
// resolves which agent an inbound call should ring.
package agents

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session status values
const (
	StatusAvailable = "available"
	StatusRinging   = "ringing"
	StatusOnCall    = "on_call"
	StatusOffline   = "offline"
)

// Agent is a human operator able to take calls
type Agent struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"password_hash" json:"-"`
	TwilioIdentity string             `bson:"twilio_identity" json:"twilio_identity"`
	Role           string             `bson:"role" json:"role"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// Session is one logged-in presence of an agent. An agent with no
// session, or only offline sessions, is not routable.
type Session struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AgentID        primitive.ObjectID `bson:"agent_id" json:"agent_id"`
	Status         string             `bson:"status" json:"status"`
	LoggedInAt     time.Time          `bson:"logged_in_at" json:"logged_in_at"`
	LoggedOutAt    *time.Time         `bson:"logged_out_at,omitempty" json:"logged_out_at,omitempty"`
	LastActivityAt time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// Store is the persistence boundary for agents and sessions
type Store interface {
	AgentByID(ctx context.Context, id primitive.ObjectID) (*Agent, error)
	AgentByEmail(ctx context.Context, email string) (*Agent, error)
	AnyActiveAgent(ctx context.Context) (*Agent, error)

	AvailableSessions(ctx context.Context) ([]Session, error)
	StartSession(ctx context.Context, agentID primitive.ObjectID) (*Session, error)
	EndSession(ctx context.Context, sessionID primitive.ObjectID) error
	Heartbeat(ctx context.Context, sessionID primitive.ObjectID) error
	SetStatus(ctx context.Context, sessionID primitive.ObjectID, status string) error

	// ClaimSession moves a session from available to ringing only if it
	// is still available, and reports whether the claim won.
	ClaimSession(ctx context.Context, sessionID primitive.ObjectID) (bool, error)
	// ReleaseSession is the compensating write for a failed dial
	ReleaseSession(ctx context.Context, sessionID primitive.ObjectID) error
}
