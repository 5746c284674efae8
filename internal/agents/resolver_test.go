package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

type fakeStore struct {
	agents      map[primitive.ObjectID]*Agent
	sessions    []Session
	sessionsErr error
	claimDenied map[primitive.ObjectID]bool
	claimed     []primitive.ObjectID
	released    []primitive.ObjectID
}

func (f *fakeStore) AgentByID(ctx context.Context, id primitive.ObjectID) (*Agent, error) {
	return f.agents[id], nil
}

func (f *fakeStore) AgentByEmail(ctx context.Context, email string) (*Agent, error) {
	return nil, nil
}

func (f *fakeStore) AnyActiveAgent(ctx context.Context) (*Agent, error) {
	for _, a := range f.agents {
		if a.IsActive {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AvailableSessions(ctx context.Context) ([]Session, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeStore) StartSession(ctx context.Context, agentID primitive.ObjectID) (*Session, error) {
	return nil, nil
}

func (f *fakeStore) EndSession(ctx context.Context, sessionID primitive.ObjectID) error {
	return nil
}

func (f *fakeStore) Heartbeat(ctx context.Context, sessionID primitive.ObjectID) error {
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, sessionID primitive.ObjectID, status string) error {
	return nil
}

func (f *fakeStore) ClaimSession(ctx context.Context, sessionID primitive.ObjectID) (bool, error) {
	if f.claimDenied[sessionID] {
		return false, nil
	}
	f.claimed = append(f.claimed, sessionID)
	return true, nil
}

func (f *fakeStore) ReleaseSession(ctx context.Context, sessionID primitive.ObjectID) error {
	f.released = append(f.released, sessionID)
	return nil
}

func newSession(agentID primitive.ObjectID) Session {
	return Session{
		ID:             primitive.NewObjectID(),
		AgentID:        agentID,
		Status:         StatusAvailable,
		LastActivityAt: time.Now(),
	}
}

func TestResolvePicksFirstAvailable(t *testing.T) {
	agentID := primitive.NewObjectID()
	store := &fakeStore{
		agents:   map[primitive.ObjectID]*Agent{agentID: {ID: agentID, Name: "A", IsActive: true}},
		sessions: []Session{newSession(agentID)},
	}
	r := NewResolver(store)

	pick, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pick == nil {
		t.Fatal("expected a pick")
	}
	if pick.Agent.ID != agentID {
		t.Errorf("picked agent %s, want %s", pick.Agent.ID.Hex(), agentID.Hex())
	}
	if len(store.claimed) != 1 {
		t.Errorf("claimed %d sessions, want 1", len(store.claimed))
	}
}

func TestResolveSkipsInactiveAgent(t *testing.T) {
	inactive := primitive.NewObjectID()
	active := primitive.NewObjectID()
	store := &fakeStore{
		agents: map[primitive.ObjectID]*Agent{
			inactive: {ID: inactive, IsActive: false},
			active:   {ID: active, IsActive: true},
		},
		sessions: []Session{newSession(inactive), newSession(active)},
	}
	r := NewResolver(store)

	pick, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pick == nil || pick.Agent.ID != active {
		t.Fatal("expected the active agent to be picked")
	}
}

func TestResolveSkipsDeletedAgent(t *testing.T) {
	ghost := primitive.NewObjectID()
	store := &fakeStore{
		agents:   map[primitive.ObjectID]*Agent{},
		sessions: []Session{newSession(ghost)},
	}
	r := NewResolver(store)

	pick, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pick != nil {
		t.Fatal("session for a missing agent must not be picked")
	}
}

func TestResolveLosesClaimRace(t *testing.T) {
	a1 := primitive.NewObjectID()
	a2 := primitive.NewObjectID()
	s1 := newSession(a1)
	s2 := newSession(a2)
	store := &fakeStore{
		agents: map[primitive.ObjectID]*Agent{
			a1: {ID: a1, IsActive: true},
			a2: {ID: a2, IsActive: true},
		},
		sessions:    []Session{s1, s2},
		claimDenied: map[primitive.ObjectID]bool{s1.ID: true},
	}
	r := NewResolver(store)

	pick, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pick == nil || pick.Agent.ID != a2 {
		t.Fatal("expected fallthrough to the second session after a lost race")
	}
}

func TestResolveNoSessions(t *testing.T) {
	r := NewResolver(&fakeStore{})

	pick, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pick != nil {
		t.Fatal("expected nil pick with no sessions")
	}
}

func TestResolveStoreError(t *testing.T) {
	r := NewResolver(&fakeStore{sessionsErr: errors.New("down")})

	if _, err := r.Resolve(context.Background()); err == nil {
		t.Fatal("expected error when the session list cannot be read")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store)
	s := newSession(primitive.NewObjectID())

	r.Release(context.Background(), &Pick{Session: &s})
	if len(store.released) != 1 || store.released[0] != s.ID {
		t.Fatal("expected the claimed session to be released")
	}
	r.Release(context.Background(), nil)
}
