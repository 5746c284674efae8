// Package routing decides where an inbound call goes and executes that
// decision against the session store, the queue and the TwiML boundary.
package routing

import "github.com/claimtech/dialler/internal/lookup"

// Route is the tagged kind of a routing decision
type Route string

const (
	// RouteAgent rings a claimed human agent
	RouteAgent Route = "agent"
	// RouteAI bridges the caller to the AI voice agent
	RouteAI Route = "ai"
	// RouteMissed answers politely and queues a return call
	RouteMissed Route = "missed"
	// RouteDropped discards an unusable request
	RouteDropped Route = "dropped"
)

// Conditions is everything Decide needs, gathered by the executor.
// Keeping Decide free of I/O makes every routing combination testable
// without infrastructure.
type Conditions struct {
	Caller         *lookup.CallerContext
	HasCallSID     bool
	AgentAvailable bool
	AIEnabled      bool
	AIFirst        bool
}

// Decide maps conditions to a route:
//
//	no call SID            -> dropped
//	AI-first and enabled   -> ai
//	agent available        -> agent
//	AI enabled             -> ai (fallback when no agent)
//	otherwise              -> missed
func Decide(c Conditions) Route {
	if !c.HasCallSID {
		return RouteDropped
	}
	if c.AIEnabled && c.AIFirst {
		return RouteAI
	}
	if c.AgentAvailable {
		return RouteAgent
	}
	if c.AIEnabled {
		return RouteAI
	}
	return RouteMissed
}
