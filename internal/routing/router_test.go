package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/internal/lookup"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

type fakeLookup struct {
	cc *lookup.CallerContext
}

func (f *fakeLookup) Lookup(ctx context.Context, number string) *lookup.CallerContext {
	if f.cc != nil {
		return f.cc
	}
	return &lookup.CallerContext{Found: false, UserID: lookup.UnknownUserID, PhoneNumber: number}
}

type fakeAgents struct {
	pick     *agents.Pick
	err      error
	resolved int
	released int
}

func (f *fakeAgents) Resolve(ctx context.Context) (*agents.Pick, error) {
	f.resolved++
	return f.pick, f.err
}

func (f *fakeAgents) Release(ctx context.Context, pick *agents.Pick) {
	f.released++
}

type fakeSessions struct {
	created   []sessions.CreateParams
	createErr error
	found     *sessions.CallSession
	statuses  map[primitive.ObjectID]string
}

func (f *fakeSessions) CreateInbound(ctx context.Context, p sessions.CreateParams) (*sessions.CallSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	return &sessions.CallSession{
		ID:      primitive.NewObjectID(),
		CallSID: p.CallSID,
		AgentID: p.AgentID,
		UserID:  p.UserID,
		Status:  p.Status,
	}, nil
}

func (f *fakeSessions) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, durationSec int) error {
	if f.statuses == nil {
		f.statuses = map[primitive.ObjectID]string{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeSessions) FindBySIDOrRecent(ctx context.Context, sid, caller string) (*sessions.CallSession, error) {
	return f.found, nil
}

type queueWrite struct {
	userID    int64
	queueType string
	priority  int
}

type fakeQueue struct {
	ensured       []int64
	entries       []queueWrite
	missed        []queueWrite
	assigned      []primitive.ObjectID
	assignedAgent primitive.ObjectID
}

func (f *fakeQueue) EnsureScore(ctx context.Context, userID int64) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

func (f *fakeQueue) Enqueue(ctx context.Context, userID int64, queueType, reason string, priority int) (primitive.ObjectID, error) {
	f.entries = append(f.entries, queueWrite{userID: userID, queueType: queueType, priority: priority})
	return primitive.NewObjectID(), nil
}

func (f *fakeQueue) Assign(ctx context.Context, entryID, agentID primitive.ObjectID, sessionID *primitive.ObjectID) (bool, error) {
	f.assigned = append(f.assigned, entryID)
	f.assignedAgent = agentID
	return true, nil
}

func (f *fakeQueue) MarkMissed(ctx context.Context, userID int64, priority int) error {
	f.missed = append(f.missed, queueWrite{userID: userID, priority: priority})
	return nil
}

func knownCaller() *lookup.CallerContext {
	return &lookup.CallerContext{
		Found:         true,
		UserID:        903212,
		FirstName:     "Sam",
		LastName:      "Taylor",
		ClaimCount:    2,
		PriorityScore: 70,
	}
}

func agentPick() *agents.Pick {
	id := primitive.NewObjectID()
	return &agents.Pick{
		Agent:   &agents.Agent{ID: id, Name: "Agent", TwilioIdentity: "agent-desk-1", IsActive: true},
		Session: &agents.Session{ID: primitive.NewObjectID(), AgentID: id},
	}
}

func baseConfig() Config {
	return Config{
		PublicBaseURL:  "https://dialler.example.com",
		PlatformNumber: "+441618500000",
		DialTimeoutSec: 25,
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		c    Conditions
		want Route
	}{
		{"no call sid", Conditions{HasCallSID: false, AgentAvailable: true}, RouteDropped},
		{"agent available", Conditions{HasCallSID: true, AgentAvailable: true}, RouteAgent},
		{"no agent, no ai", Conditions{HasCallSID: true}, RouteMissed},
		{"no agent, ai fallback", Conditions{HasCallSID: true, AIEnabled: true}, RouteAI},
		{"ai first wins over agent", Conditions{HasCallSID: true, AgentAvailable: true, AIEnabled: true, AIFirst: true}, RouteAI},
		{"ai first without ai enabled", Conditions{HasCallSID: true, AgentAvailable: true, AIFirst: true}, RouteAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.c); got != tt.want {
				t.Errorf("Decide() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleInboundKnownCallerWithAgent(t *testing.T) {
	pick := agentPick()
	ss := &fakeSessions{}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{cc: knownCaller()}, &fakeAgents{pick: pick}, ss, qs, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA100", From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "Hello Sam") {
		t.Errorf("greeting missing from TwiML:\n%s", xml)
	}
	if !strings.Contains(xml, "agent-desk-1") {
		t.Errorf("dial target missing from TwiML:\n%s", xml)
	}
	if !strings.Contains(xml, `record="record-from-answer-dual"`) {
		t.Errorf("recording attributes missing:\n%s", xml)
	}
	if len(ss.created) != 1 {
		t.Fatalf("created %d sessions, want 1", len(ss.created))
	}
	if ss.created[0].AgentID != pick.Agent.ID {
		t.Error("session must carry the claimed agent id")
	}
	if ss.created[0].UserID != 903212 {
		t.Errorf("session user id = %d", ss.created[0].UserID)
	}
	if len(qs.ensured) != 1 || qs.ensured[0] != 903212 {
		t.Error("score record must be ensured for the known caller")
	}
	if len(qs.entries) != 1 {
		t.Fatalf("created %d queue entries, want 1", len(qs.entries))
	}
	if qs.entries[0].queueType != "inbound_call" || qs.entries[0].priority != 70 {
		t.Errorf("queue entry = %+v, want inbound_call at priority 70", qs.entries[0])
	}
	if len(qs.assigned) != 1 || qs.assignedAgent != pick.Agent.ID {
		t.Error("queue entry must be assigned to the claimed agent")
	}
}

func TestHandleInboundNoAgentGoesMissed(t *testing.T) {
	ss := &fakeSessions{}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{cc: knownCaller()}, &fakeAgents{}, ss, qs, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA101", From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "sorry") {
		t.Errorf("missed TwiML missing apology:\n%s", xml)
	}
	if !strings.Contains(xml, "<Hangup") {
		t.Errorf("missed TwiML must hang up:\n%s", xml)
	}
	if len(ss.created) != 1 || ss.created[0].Status != sessions.StatusMissed {
		t.Fatal("missed session must still be recorded")
	}
	if len(qs.missed) != 1 || qs.missed[0].userID != 903212 {
		t.Error("known caller must be queued for a return call")
	}
	if qs.missed[0].priority != 70 {
		t.Errorf("missed entry priority = %d, want 70", qs.missed[0].priority)
	}
}

func TestHandleInboundUnknownCallerMissedAtZeroPriority(t *testing.T) {
	ss := &fakeSessions{}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, ss, qs, baseConfig())

	r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA102", From: "+15550001111", To: "+441618500000",
	})

	if len(ss.created) != 1 || ss.created[0].UserID != lookup.UnknownUserID {
		t.Fatal("unknown caller must still get a session with the sentinel user id")
	}
	if len(qs.missed) != 1 {
		t.Fatalf("missed queue writes = %d, want 1", len(qs.missed))
	}
	if qs.missed[0].userID != lookup.UnknownUserID || qs.missed[0].priority != 0 {
		t.Errorf("missed entry = %+v, want sentinel user at priority 0", qs.missed[0])
	}
	if len(qs.ensured) != 0 {
		t.Error("unknown callers must not get a score record")
	}
}

func TestHandleInboundNoActiveAgentsDropsCall(t *testing.T) {
	ss := &fakeSessions{createErr: sessions.ErrNoActiveAgents}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, ss, qs, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA110", From: "+15550002222", To: "+441618500000",
	})

	if !strings.Contains(xml, "sorry") || !strings.Contains(xml, "<Hangup") {
		t.Errorf("dropped call must apologise and hang up:\n%s", xml)
	}
	if len(qs.missed) != 0 {
		t.Error("nothing may be queued when the call is dropped outright")
	}
}

func TestHandleInboundAIFallback(t *testing.T) {
	cfg := baseConfig()
	cfg.AIEnabled = true
	cfg.StreamURL = "wss://dialler.example.com/ai/stream"
	ss := &fakeSessions{}
	r := NewRouter(&fakeLookup{cc: knownCaller()}, &fakeAgents{}, ss, &fakeQueue{}, cfg)

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA103", From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "<Connect>") || !strings.Contains(xml, cfg.StreamURL) {
		t.Errorf("AI TwiML missing stream connect:\n%s", xml)
	}
	if !strings.Contains(xml, `name="claimCount" value="2"`) {
		t.Errorf("stream parameters missing caller context:\n%s", xml)
	}
	if len(ss.created) != 1 || !ss.created[0].AIHandled {
		t.Fatal("AI-routed session must be flagged ai_handled")
	}
}

func TestHandleInboundAIFirstReleasesNothing(t *testing.T) {
	cfg := baseConfig()
	cfg.AIEnabled = true
	cfg.AIFirst = true
	cfg.StreamURL = "wss://dialler.example.com/ai/stream"
	as := &fakeAgents{pick: agentPick()}
	r := NewRouter(&fakeLookup{cc: knownCaller()}, as, &fakeSessions{}, &fakeQueue{}, cfg)

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA104", From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "<Connect>") {
		t.Errorf("AI-first call must stream:\n%s", xml)
	}
	if as.resolved != 0 {
		t.Error("AI-first routing must not claim an agent at all")
	}
}

func TestHandleInboundSessionErrorDegradesToMissed(t *testing.T) {
	as := &fakeAgents{pick: agentPick()}
	ss := &fakeSessions{createErr: errors.New("primary stepdown")}
	r := NewRouter(&fakeLookup{cc: knownCaller()}, as, ss, &fakeQueue{}, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA105", From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "<Hangup") {
		t.Errorf("degraded response must still be valid TwiML:\n%s", xml)
	}
	if as.released == 0 {
		t.Error("claimed agent must be released when the session write fails")
	}
}

func TestHandleInboundNoSIDDropped(t *testing.T) {
	ss := &fakeSessions{}
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, ss, &fakeQueue{}, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		From: "+447738585850", To: "+441618500000",
	})

	if !strings.Contains(xml, "<Hangup") {
		t.Errorf("dropped call must hang up:\n%s", xml)
	}
	if len(ss.created) != 0 {
		t.Error("dropped calls must not create sessions")
	}
}

func TestHandleInboundClientCallerBridges(t *testing.T) {
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, &fakeSessions{}, &fakeQueue{}, baseConfig())

	xml := r.HandleInbound(context.Background(), InboundRequest{
		CallSID: "CA106", From: "client:agent-desk-1", To: "+447700900999",
	})

	if !strings.Contains(xml, "<Number>+447700900999</Number>") {
		t.Errorf("client leg must dial the number:\n%s", xml)
	}
	if !strings.Contains(xml, `callerId="+441618500000"`) {
		t.Errorf("client leg must present the platform number:\n%s", xml)
	}
}

func TestHandleDialResultNoAnswer(t *testing.T) {
	found := &sessions.CallSession{ID: primitive.NewObjectID(), CallSID: "CA107", UserID: 903212}
	ss := &fakeSessions{found: found}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, ss, qs, baseConfig())

	xml := r.HandleDialResult(context.Background(), "CA107", "+447738585850", "no-answer")

	if ss.statuses[found.ID] != sessions.StatusMissed {
		t.Error("unanswered dial must mark the session missed")
	}
	if len(qs.missed) != 1 {
		t.Error("unanswered dial must queue a return call")
	}
	if !strings.Contains(xml, "<Hangup") {
		t.Errorf("dial result must answer with TwiML:\n%s", xml)
	}
}

func TestHandleDialResultCompleted(t *testing.T) {
	found := &sessions.CallSession{ID: primitive.NewObjectID(), CallSID: "CA108", UserID: 903212}
	ss := &fakeSessions{found: found}
	qs := &fakeQueue{}
	r := NewRouter(&fakeLookup{}, &fakeAgents{}, ss, qs, baseConfig())

	r.HandleDialResult(context.Background(), "CA108", "+447738585850", "completed")

	if ss.statuses[found.ID] != sessions.StatusCompleted {
		t.Error("completed dial must complete the session")
	}
	if len(qs.missed) != 0 {
		t.Error("completed dial must not queue a return call")
	}
}
