package routing

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/internal/lookup"
	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/metrics"
	"github.com/claimtech/dialler/pkg/phone"
	"github.com/claimtech/dialler/pkg/twiml"
)

// SessionStore is what the router needs from call session persistence
type SessionStore interface {
	CreateInbound(ctx context.Context, p sessions.CreateParams) (*sessions.CallSession, error)
	UpdateStatus(ctx context.Context, sessionID primitive.ObjectID, status string, durationSec int) error
	FindBySIDOrRecent(ctx context.Context, callSID, callerNumber string) (*sessions.CallSession, error)
}

// QueueStore is what the router needs from the queue
type QueueStore interface {
	EnsureScore(ctx context.Context, userID int64) error
	Enqueue(ctx context.Context, userID int64, queueType, reason string, priority int) (primitive.ObjectID, error)
	Assign(ctx context.Context, entryID, agentID primitive.ObjectID, sessionID *primitive.ObjectID) (bool, error)
	MarkMissed(ctx context.Context, userID int64, priority int) error
}

// AgentSource claims and releases agents
type AgentSource interface {
	Resolve(ctx context.Context) (*agents.Pick, error)
	Release(ctx context.Context, pick *agents.Pick)
}

// CallerLookup identifies inbound callers
type CallerLookup interface {
	Lookup(ctx context.Context, callerNumber string) *lookup.CallerContext
}

// Config carries the routing knobs and callback addresses
type Config struct {
	PublicBaseURL  string
	PlatformNumber string
	DialTimeoutSec int
	StreamURL      string
	AIEnabled      bool
	AIFirst        bool
}

// InboundRequest is the webhook payload the router acts on
type InboundRequest struct {
	CallSID string
	From    string
	To      string
}

// Router turns an inbound webhook into TwiML plus the session and queue
// writes that go with it. It never returns an error: every failure path
// degrades to a spoken apology so the caller is not left in silence.
type Router struct {
	lookup   CallerLookup
	agents   AgentSource
	sessions SessionStore
	queue    QueueStore
	cfg      Config
}

func NewRouter(cl CallerLookup, as AgentSource, ss SessionStore, qs QueueStore, cfg Config) *Router {
	if cfg.DialTimeoutSec <= 0 {
		cfg.DialTimeoutSec = 25
	}
	return &Router{lookup: cl, agents: as, sessions: ss, queue: qs, cfg: cfg}
}

// HandleInbound routes one inbound call and returns the TwiML to answer
// the webhook with.
func (r *Router) HandleInbound(ctx context.Context, req InboundRequest) string {
	// An agent's browser client dialling out arrives on the same
	// webhook with a client: caller. Bridge it straight to the number.
	if phone.IsClientIdentifier(req.From) {
		return r.outboundLeg(req)
	}

	cc := r.lookup.Lookup(ctx, req.From)

	var pick *agents.Pick
	aiFirst := r.cfg.AIEnabled && r.cfg.AIFirst
	if !aiFirst && req.CallSID != "" {
		var err error
		pick, err = r.agents.Resolve(ctx)
		if err != nil {
			logger.Log.Error("Agent resolution failed", zap.Error(err))
			pick = nil
		}
	}

	route := Decide(Conditions{
		Caller:         cc,
		HasCallSID:     req.CallSID != "",
		AgentAvailable: pick != nil,
		AIEnabled:      r.cfg.AIEnabled,
		AIFirst:        r.cfg.AIFirst,
	})

	// A claim made for a route we are not taking must be unwound
	if route != RouteAgent && pick != nil {
		r.agents.Release(ctx, pick)
		pick = nil
	}

	metrics.RecordRoutingOutcome(string(route))

	switch route {
	case RouteAgent:
		return r.routeToAgent(ctx, req, cc, pick)
	case RouteAI:
		return r.routeToAI(ctx, req, cc)
	case RouteDropped:
		logger.Log.Warn("Dropping webhook with no call SID",
			logger.Phone("caller_number", req.From),
		)
		return twiml.New().AddHangup().Render()
	default:
		return r.routeToMissed(ctx, req, cc)
	}
}

func (r *Router) outboundLeg(req InboundRequest) string {
	logger.Log.Info("Bridging agent client to number",
		zap.String("client", req.From),
		logger.Phone("to", req.To),
	)
	return twiml.New().AddDial(twiml.Dial{
		CallerID:                      r.cfg.PlatformNumber,
		Timeout:                       r.cfg.DialTimeoutSec,
		Record:                        "record-from-answer-dual",
		RecordingStatusCallback:       r.callbackURL("recording"),
		RecordingStatusCallbackMethod: "POST",
		Number:                        req.To,
	}).Render()
}

func (r *Router) routeToAgent(ctx context.Context, req InboundRequest, cc *lookup.CallerContext, pick *agents.Pick) string {
	session, err := r.sessions.CreateInbound(ctx, sessions.CreateParams{
		CallSID:        req.CallSID,
		CallerNumber:   req.From,
		PlatformNumber: req.To,
		AgentID:        pick.Agent.ID,
		UserID:         userID(cc),
		Snapshot:       sessions.BuildSnapshot(cc),
		Status:         sessions.StatusRinging,
	})
	if err != nil {
		logger.Log.Error("Session create failed, degrading to missed", zap.Error(err))
		r.agents.Release(ctx, pick)
		return r.routeToMissed(ctx, req, cc)
	}

	if cc != nil && cc.Found {
		if err := r.queue.EnsureScore(ctx, cc.UserID); err != nil {
			logger.Log.Warn("Score ensure failed", zap.Error(err))
		}
		entryID, err := r.queue.Enqueue(ctx, cc.UserID, queue.TypeInbound,
			"inbound call routed to agent", cc.PriorityScore)
		if err != nil {
			logger.Log.Warn("Queue entry create failed", zap.Error(err))
		} else if !entryID.IsZero() {
			if _, err := r.queue.Assign(ctx, entryID, pick.Agent.ID, &session.ID); err != nil {
				logger.Log.Warn("Queue entry assign failed", zap.Error(err))
			}
		}
	}

	identity := pick.Agent.TwilioIdentity
	if identity == "" {
		identity = "agent-" + pick.Agent.ID.Hex()
	}

	resp := twiml.New().SaySentence(greeting(cc))
	resp.AddDial(twiml.Dial{
		Action:                        r.callbackURL("dial-result") + "?session=" + session.ID.Hex(),
		Timeout:                       r.cfg.DialTimeoutSec,
		CallerID:                      req.From,
		Record:                        "record-from-answer-dual",
		RecordingStatusCallback:       r.callbackURL("recording"),
		RecordingStatusCallbackMethod: "POST",
		Client: &twiml.Client{
			Identity:       identity,
			StatusCallback: r.callbackURL("status"),
		},
	})
	return resp.Render()
}

func (r *Router) routeToAI(ctx context.Context, req InboundRequest, cc *lookup.CallerContext) string {
	if r.cfg.StreamURL == "" {
		logger.Log.Error("AI routing enabled without a stream URL, degrading to missed")
		return r.routeToMissed(ctx, req, cc)
	}

	_, err := r.sessions.CreateInbound(ctx, sessions.CreateParams{
		CallSID:        req.CallSID,
		CallerNumber:   req.From,
		PlatformNumber: req.To,
		UserID:         userID(cc),
		Snapshot:       sessions.BuildSnapshot(cc),
		AIHandled:      true,
		Status:         sessions.StatusInProgress,
	})
	if err != nil {
		logger.Log.Error("Session create failed, degrading to missed", zap.Error(err))
		return r.routeToMissed(ctx, req, cc)
	}

	params := map[string]string{
		"callSid":       req.CallSID,
		"callerNumber":  req.From,
		"userId":        fmt.Sprintf("%d", userID(cc)),
		"claimCount":    "0",
		"priorityScore": "0",
	}
	if cc != nil && cc.Found {
		params["claimCount"] = fmt.Sprintf("%d", cc.ClaimCount)
		params["priorityScore"] = fmt.Sprintf("%d", cc.PriorityScore)
	}

	resp := twiml.New().SaySentence(greeting(cc))
	resp.AddConnectStream(r.cfg.StreamURL, params,
		[]string{"callSid", "callerNumber", "userId", "claimCount", "priorityScore"})
	return resp.Render()
}

func (r *Router) routeToMissed(ctx context.Context, req InboundRequest, cc *lookup.CallerContext) string {
	if req.CallSID != "" {
		_, err := r.sessions.CreateInbound(ctx, sessions.CreateParams{
			CallSID:        req.CallSID,
			CallerNumber:   req.From,
			PlatformNumber: req.To,
			UserID:         userID(cc),
			Snapshot:       sessions.BuildSnapshot(cc),
			Status:         sessions.StatusMissed,
		})
		if errors.Is(err, sessions.ErrNoActiveAgents) {
			// No agent anywhere can own the session. Drop the call
			// with an apology and record nothing.
			logger.Log.Error("No active agents exist, dropping call",
				zap.String("call_sid", req.CallSID),
				logger.Phone("caller_number", req.From),
			)
			return twiml.New().
				SaySentence("We are sorry, we cannot take your call right now. Please try again later.").
				AddHangup().
				Render()
		}
		if err != nil {
			logger.Log.Error("Missed-call session create failed", zap.Error(err))
		}
	}
	priority := 0
	if cc != nil && cc.Found {
		priority = cc.PriorityScore
	}
	if err := r.queue.MarkMissed(ctx, userID(cc), priority); err != nil {
		logger.Log.Error("Missed-call enqueue failed",
			zap.Int64("user_id", userID(cc)),
			zap.Error(err),
		)
	}
	return twiml.New().
		SaySentence("We are sorry, all of our team are busy right now. We will call you back as soon as possible.").
		AddHangup().
		Render()
}

// HandleDialResult processes the action callback fired when a dial to
// an agent finishes. Anything other than a completed bridge counts as
// missed and queues a return call.
func (r *Router) HandleDialResult(ctx context.Context, callSID, callerNumber, dialStatus string) string {
	session, err := r.sessions.FindBySIDOrRecent(ctx, callSID, callerNumber)
	if err != nil {
		logger.Log.Error("Dial result lookup failed", zap.Error(err))
	}

	if dialStatus == "completed" || dialStatus == "answered" {
		if session != nil {
			if err := r.sessions.UpdateStatus(ctx, session.ID, sessions.StatusCompleted, 0); err != nil {
				logger.Log.Error("Session completion failed", zap.Error(err))
			}
		}
		return twiml.New().AddHangup().Render()
	}

	if session != nil {
		if err := r.sessions.UpdateStatus(ctx, session.ID, sessions.StatusMissed, 0); err != nil {
			logger.Log.Error("Session missed update failed", zap.Error(err))
		}
		if err := r.queue.MarkMissed(ctx, session.UserID, 0); err != nil {
			logger.Log.Error("Missed-call enqueue failed", zap.Error(err))
		}
	}
	return twiml.New().
		SaySentence("We are sorry we could not connect you. We will call you back shortly.").
		AddHangup().
		Render()
}

func (r *Router) callbackURL(leaf string) string {
	return r.cfg.PublicBaseURL + "/webhooks/voice/" + leaf
}

func userID(cc *lookup.CallerContext) int64 {
	if cc == nil || !cc.Found {
		return lookup.UnknownUserID
	}
	return cc.UserID
}

func greeting(cc *lookup.CallerContext) string {
	if cc != nil && cc.Found && cc.FirstName != "" {
		return fmt.Sprintf("Hello %s, connecting you now.", cc.FirstName)
	}
	return "Thank you for calling. Connecting you now."
}
