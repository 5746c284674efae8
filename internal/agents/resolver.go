package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
)

// Pick is a claimed routing target: the agent plus the session that was
// moved to ringing on their behalf.
type Pick struct {
	Agent   *Agent
	Session *Session
}

// Resolver selects and claims an agent for an inbound call
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks the available sessions least recently active first,
// re-validates the parent agent, and atomically claims the first session
// that is still available. A nil Pick with nil error means no agent can
// take the call right now.
func (r *Resolver) Resolve(ctx context.Context) (*Pick, error) {
	sessions, err := r.store.AvailableSessions(ctx)
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		session := sessions[i]

		agent, err := r.store.AgentByID(ctx, session.AgentID)
		if err != nil {
			logger.Log.Warn("Agent load failed during resolution",
				zap.String("session_id", session.ID.Hex()),
				zap.Error(err),
			)
			continue
		}
		// stale session: agent deleted or deactivated after login
		if agent == nil || !agent.IsActive {
			continue
		}

		claimed, err := r.store.ClaimSession(ctx, session.ID)
		if err != nil {
			logger.Log.Warn("Session claim failed",
				zap.String("session_id", session.ID.Hex()),
				zap.Error(err),
			)
			continue
		}
		if !claimed {
			// lost the race to a concurrent call
			continue
		}

		logger.Log.Info("Agent claimed for inbound call",
			zap.String("agent_id", agent.ID.Hex()),
			zap.String("session_id", session.ID.Hex()),
		)
		return &Pick{Agent: agent, Session: &session}, nil
	}

	return nil, nil
}

// Release undoes a claim when the dial never happened
func (r *Resolver) Release(ctx context.Context, pick *Pick) {
	if pick == nil || pick.Session == nil {
		return
	}
	if err := r.store.ReleaseSession(ctx, pick.Session.ID); err != nil {
		logger.Log.Error("Session release failed",
			zap.String("session_id", pick.Session.ID.Hex()),
			zap.Error(err),
		)
	}
}

// Fallback returns any active agent for transfer flows that do not go
// through session claiming.
func (r *Resolver) Fallback(ctx context.Context) (*Agent, error) {
	return r.store.AnyActiveAgent(ctx)
}
