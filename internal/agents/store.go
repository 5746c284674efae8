package agents

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	mongodb "github.com/claimtech/dialler/pkg/mongo"
)

const (
	agentsCollection   = "agents"
	sessionsCollection = "agent_sessions"
)

// MongoStore implements Store on the operational database
type MongoStore struct {
	db *mongodb.Client
}

func NewMongoStore(db *mongodb.Client) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureSystemAgent seeds the placeholder agent that owns AI-handled
// sessions. Inactive so it can never be picked for routing.
func (s *MongoStore) EnsureSystemAgent(ctx context.Context, systemID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(agentsCollection).
		Eq("_id", systemID).
		SetOnInsert(ctx, bson.M{
			"name":       "System",
			"email":      "system@dialler.internal",
			"role":       "system",
			"is_active":  false,
			"created_at": now,
			"updated_at": now,
		})
	return err
}

func (s *MongoStore) AgentByID(ctx context.Context, id primitive.ObjectID) (*Agent, error) {
	var agent Agent
	found, err := s.db.NewQuery(agentsCollection).
		Eq("_id", id).
		FindOneInto(ctx, &agent)
	if err != nil || !found {
		return nil, err
	}
	return &agent, nil
}

func (s *MongoStore) AgentByEmail(ctx context.Context, email string) (*Agent, error) {
	var agent Agent
	found, err := s.db.NewQuery(agentsCollection).
		Eq("email", email).
		FindOneInto(ctx, &agent)
	if err != nil || !found {
		return nil, err
	}
	return &agent, nil
}

// AnyActiveAgent returns an arbitrary active agent, used as the transfer
// target of last resort when no session-level availability exists.
func (s *MongoStore) AnyActiveAgent(ctx context.Context) (*Agent, error) {
	var agent Agent
	found, err := s.db.NewQuery(agentsCollection).
		Eq("is_active", true).
		FindOneInto(ctx, &agent)
	if err != nil || !found {
		return nil, err
	}
	return &agent, nil
}

// AvailableSessions lists available sessions least recently active first,
// which spreads inbound calls across agents rather than hammering one.
// A session carrying a logout stamp is never available, whatever its
// status field says.
func (s *MongoStore) AvailableSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := s.db.NewQuery(sessionsCollection).
		Eq("status", StatusAvailable).
		IsNull("logged_out_at").
		Sort("last_activity_at", true).
		Limit(20).
		FindInto(ctx, &sessions)
	return sessions, err
}

func (s *MongoStore) StartSession(ctx context.Context, agentID primitive.ObjectID) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		AgentID:        agentID,
		Status:         StatusAvailable,
		LoggedInAt:     now,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.db.NewQuery(sessionsCollection).Insert(ctx, session)
	if err != nil {
		return nil, err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		session.ID = oid
	}
	return session, nil
}

func (s *MongoStore) EndSession(ctx context.Context, sessionID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(sessionsCollection).
		Eq("_id", sessionID).
		UpdateOne(ctx, bson.M{
			"status":        StatusOffline,
			"logged_out_at": now,
			"updated_at":    now,
		})
	return err
}

func (s *MongoStore) Heartbeat(ctx context.Context, sessionID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(sessionsCollection).
		Eq("_id", sessionID).
		Ne("status", StatusOffline).
		UpdateOne(ctx, bson.M{
			"last_activity_at": now,
			"updated_at":       now,
		})
	return err
}

func (s *MongoStore) SetStatus(ctx context.Context, sessionID primitive.ObjectID, status string) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(sessionsCollection).
		Eq("_id", sessionID).
		UpdateOne(ctx, bson.M{
			"status":           status,
			"last_activity_at": now,
			"updated_at":       now,
		})
	return err
}

func (s *MongoStore) ClaimSession(ctx context.Context, sessionID primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	return s.db.NewQuery(sessionsCollection).
		Eq("_id", sessionID).
		Eq("status", StatusAvailable).
		ClaimOne(ctx, bson.M{
			"status":           StatusRinging,
			"last_activity_at": now,
			"updated_at":       now,
		})
}

// SetStatusByAgent updates the agent's live (non-offline) sessions.
// Used by call status callbacks, which know the agent but not which
// session was claimed.
func (s *MongoStore) SetStatusByAgent(ctx context.Context, agentID primitive.ObjectID, status string) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(sessionsCollection).
		Eq("agent_id", agentID).
		Ne("status", StatusOffline).
		Update(ctx, bson.M{
			"status":           status,
			"last_activity_at": now,
			"updated_at":       now,
		})
	return err
}

func (s *MongoStore) ReleaseSession(ctx context.Context, sessionID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(sessionsCollection).
		Eq("_id", sessionID).
		Eq("status", StatusRinging).
		UpdateOne(ctx, bson.M{
			"status":     StatusAvailable,
			"updated_at": now,
		})
	return err
}
