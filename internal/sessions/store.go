package sessions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/pkg/logger"
	mongodb "github.com/claimtech/dialler/pkg/mongo"
)

const collection = "call_sessions"

// ErrNoActiveAgents means no agent anywhere in the system can own a
// session. Callers treat it as fatal for the call in hand.
var ErrNoActiveAgents = errors.New("sessions: no active agents exist")

// AgentDirectory supplies the fallback owner for sessions created
// without a handling agent.
type AgentDirectory interface {
	AnyActiveAgent(ctx context.Context) (*agents.Agent, error)
}

// MongoStore persists call sessions on the operational database
type MongoStore struct {
	db           *mongodb.Client
	recentWindow time.Duration
	directory    AgentDirectory
}

// NewMongoStore builds the store. recentWindow bounds how far back the
// caller-number fallback in FindBySIDOrRecent may reach.
func NewMongoStore(db *mongodb.Client, recentWindow time.Duration, directory AgentDirectory) *MongoStore {
	if recentWindow <= 0 {
		recentWindow = 5 * time.Minute
	}
	return &MongoStore{db: db, recentWindow: recentWindow, directory: directory}
}

// CreateParams carries everything known at the moment a call arrives
type CreateParams struct {
	CallSID        string
	CallerNumber   string
	PlatformNumber string
	AgentID        primitive.ObjectID
	UserID         int64
	Snapshot       bson.M
	AIHandled      bool
	Status         string
}

// resolveOwner picks the agent id a new session is written with. The
// explicit agent wins, AI-handled calls go to the system agent, and
// everything else falls back to any active agent in the directory.
func resolveOwner(ctx context.Context, p CreateParams, directory AgentDirectory) (primitive.ObjectID, error) {
	if !p.AgentID.IsZero() {
		return p.AgentID, nil
	}
	if p.AIHandled {
		return SystemAgentID, nil
	}
	if directory == nil {
		return primitive.NilObjectID, ErrNoActiveAgents
	}
	agent, err := directory.AnyActiveAgent(ctx)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if agent == nil {
		return primitive.NilObjectID, ErrNoActiveAgents
	}
	return agent.ID, nil
}

// CreateInbound records a new inbound session. An unset AgentID falls
// back to any active agent so the column always names a real handler;
// only AI-owned sessions belong to the system agent. With no active
// agent anywhere the create fails with ErrNoActiveAgents.
func (s *MongoStore) CreateInbound(ctx context.Context, p CreateParams) (*CallSession, error) {
	agentID, err := resolveOwner(ctx, p, s.directory)
	if err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = StatusInitiated
	}
	now := time.Now().UTC()
	session := &CallSession{
		CallSID:         p.CallSID,
		Direction:       "inbound",
		Status:          status,
		AgentID:         agentID,
		UserID:          p.UserID,
		CallerNumber:    p.CallerNumber,
		PlatformNumber:  p.PlatformNumber,
		CallSource:      SourceInbound,
		ContextSnapshot: p.Snapshot,
		AIHandled:       p.AIHandled,
		StartedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	id, err := s.db.NewQuery(collection).Insert(ctx, session)
	if err != nil {
		return nil, err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		session.ID = oid
	}
	logger.Log.Info("Call session created",
		zap.String("call_sid", p.CallSID),
		zap.Int64("user_id", p.UserID),
		logger.Phone("caller_number", p.CallerNumber),
	)
	return session, nil
}

// CreateOutbound records a platform-originated call to a user
func (s *MongoStore) CreateOutbound(ctx context.Context, p CreateParams) (*CallSession, error) {
	agentID := p.AgentID
	if agentID.IsZero() {
		agentID = SystemAgentID
	}
	now := time.Now().UTC()
	session := &CallSession{
		CallSID:        p.CallSID,
		Direction:      "outbound",
		Status:         StatusInitiated,
		AgentID:        agentID,
		UserID:         p.UserID,
		CallerNumber:   p.CallerNumber,
		PlatformNumber: p.PlatformNumber,
		CallSource:     SourceQueue,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.db.NewQuery(collection).Insert(ctx, session)
	if err != nil {
		return nil, err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		session.ID = oid
	}
	return session, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*CallSession, error) {
	var session CallSession
	found, err := s.db.NewQuery(collection).
		Eq("_id", id).
		FindOneInto(ctx, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (s *MongoStore) FindBySID(ctx context.Context, callSID string) (*CallSession, error) {
	var session CallSession
	found, err := s.db.NewQuery(collection).
		Eq("call_sid", callSID).
		FindOneInto(ctx, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// FindBySIDOrRecent is the uniform callback lookup: exact SID match
// first, else the most recent inbound session from the same caller
// within the recent window. Telephony callbacks sometimes arrive with
// a child-leg SID that was never stored.
func (s *MongoStore) FindBySIDOrRecent(ctx context.Context, callSID, callerNumber string) (*CallSession, error) {
	session, err := s.FindBySID(ctx, callSID)
	if err != nil || session != nil {
		return session, err
	}
	if callerNumber == "" {
		return nil, nil
	}

	cutoff := time.Now().UTC().Add(-s.recentWindow)
	var recent CallSession
	found, err := s.db.NewQuery(collection).
		Eq("caller_number", callerNumber).
		Eq("direction", "inbound").
		Gte("created_at", cutoff).
		Sort("created_at", false).
		FindOneInto(ctx, &recent)
	if err != nil || !found {
		return nil, err
	}
	logger.Log.Info("Callback matched by recent caller fallback",
		zap.String("callback_sid", callSID),
		zap.String("session_sid", recent.CallSID),
	)
	return &recent, nil
}

// UpdateStatus applies a lifecycle transition. Terminal statuses also
// stamp ended_at and the final duration.
func (s *MongoStore) UpdateStatus(ctx context.Context, sessionID primitive.ObjectID, status string, durationSec int) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":     status,
		"updated_at": now,
	}
	if IsTerminal(status) {
		set["ended_at"] = now
		if durationSec > 0 {
			set["duration_sec"] = durationSec
		}
	}
	_, err := s.db.NewQuery(collection).
		Eq("_id", sessionID).
		UpdateOne(ctx, set)
	return err
}

func (s *MongoStore) AttachRecording(ctx context.Context, sessionID primitive.ObjectID, recordingSID, recordingURL string, durationSec int) error {
	_, err := s.db.NewQuery(collection).
		Eq("_id", sessionID).
		UpdateOne(ctx, bson.M{
			"recording_sid": recordingSID,
			"recording_url": recordingURL,
			"recording_sec": durationSec,
			"updated_at":    time.Now().UTC(),
		})
	return err
}

func (s *MongoStore) MarkAIHandled(ctx context.Context, sessionID primitive.ObjectID) error {
	_, err := s.db.NewQuery(collection).
		Eq("_id", sessionID).
		UpdateOne(ctx, bson.M{
			"ai_handled": true,
			"updated_at": time.Now().UTC(),
		})
	return err
}

// CountCallsSince implements the lookup history interface
func (s *MongoStore) CountCallsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	n, err := s.db.NewQuery(collection).
		Eq("user_id", userID).
		Gte("created_at", since).
		Count(ctx)
	return int(n), err
}

// CountMissedCallsSince counts inbound calls no one answered
func (s *MongoStore) CountMissedCallsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	n, err := s.db.NewQuery(collection).
		Eq("user_id", userID).
		Eq("direction", "inbound").
		In("status", []string{StatusMissed, StatusNoAnswer}).
		Gte("created_at", since).
		Count(ctx)
	return int(n), err
}

// List returns recent sessions for the dashboard, newest first
func (s *MongoStore) List(ctx context.Context, page, pageSize int64) ([]CallSession, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}
	var out []CallSession
	err := s.db.NewQuery(collection).
		Sort("created_at", false).
		Skip((page - 1) * pageSize).
		Limit(pageSize).
		FindInto(ctx, &out)
	return out, err
}
