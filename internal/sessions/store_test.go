package sessions

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/claimtech/dialler/internal/agents"
)

type fakeDirectory struct {
	agent   *agents.Agent
	err     error
	lookups int
}

func (f *fakeDirectory) AnyActiveAgent(ctx context.Context) (*agents.Agent, error) {
	f.lookups++
	return f.agent, f.err
}

func TestResolveOwnerPrefersExplicitAgent(t *testing.T) {
	id := primitive.NewObjectID()
	dir := &fakeDirectory{}

	got, err := resolveOwner(context.Background(), CreateParams{AgentID: id}, dir)
	if err != nil {
		t.Fatalf("resolveOwner: %v", err)
	}
	if got != id {
		t.Errorf("owner = %s, want the explicit agent %s", got.Hex(), id.Hex())
	}
	if dir.lookups != 0 {
		t.Error("explicit agent must not consult the directory")
	}
}

func TestResolveOwnerFallsBackToActiveAgent(t *testing.T) {
	id := primitive.NewObjectID()
	dir := &fakeDirectory{agent: &agents.Agent{ID: id, IsActive: true}}

	got, err := resolveOwner(context.Background(), CreateParams{}, dir)
	if err != nil {
		t.Fatalf("resolveOwner: %v", err)
	}
	if got != id {
		t.Errorf("owner = %s, want the fallback agent %s", got.Hex(), id.Hex())
	}
	if got == SystemAgentID {
		t.Error("fallback must be a real agent, not the system placeholder")
	}
}

func TestResolveOwnerAIHandledUsesSystemAgent(t *testing.T) {
	dir := &fakeDirectory{}

	got, err := resolveOwner(context.Background(), CreateParams{AIHandled: true}, dir)
	if err != nil {
		t.Fatalf("resolveOwner: %v", err)
	}
	if got != SystemAgentID {
		t.Errorf("AI-owned session owner = %s, want the system agent", got.Hex())
	}
	if dir.lookups != 0 {
		t.Error("AI-owned sessions must not consume a human agent")
	}
}

func TestResolveOwnerNoActiveAgentsIsFatal(t *testing.T) {
	_, err := resolveOwner(context.Background(), CreateParams{}, &fakeDirectory{})
	if !errors.Is(err, ErrNoActiveAgents) {
		t.Fatalf("err = %v, want ErrNoActiveAgents", err)
	}

	_, err = resolveOwner(context.Background(), CreateParams{}, nil)
	if !errors.Is(err, ErrNoActiveAgents) {
		t.Fatalf("nil directory err = %v, want ErrNoActiveAgents", err)
	}
}
