// Package aibridge connects calls to the AI voice agent and executes
// the tool calls the agent makes mid-conversation.
package aibridge

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/replica"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/logger"
)

// FunctionResult is what the AI agent gets back from a tool call. It is
// always well-formed; tool failures surface as Success=false with a
// message the agent can speak, never as a dropped call.
type FunctionResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func failure(spoken string, err error) FunctionResult {
	res := FunctionResult{Success: false, Message: spoken}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// CallContext identifies the live call a tool call belongs to
type CallContext struct {
	CallSID      string
	SessionID    primitive.ObjectID
	UserID       int64
	CallerNumber string
}

// LinkSender sends the secure portal link over SMS
type LinkSender interface {
	SendPortalLink(ctx context.Context, userID int64, toNumber, reason string) error
}

// Transfer redirects a live call leg to new instructions
type Transfer interface {
	RedirectCall(ctx context.Context, callSID, twimlURL string) error
}

// QueueWriter records dispositions and callbacks
type QueueWriter interface {
	RecordOutcome(ctx context.Context, o *queue.Outcome) error
	ScheduleCallback(ctx context.Context, cb *queue.Callback) error
}

// Dispatcher executes named tool calls against the platform
type Dispatcher struct {
	replica     replica.Store
	queue       QueueWriter
	links       LinkSender
	transfer    Transfer
	transferURL string
}

func NewDispatcher(rep replica.Store, qw QueueWriter, links LinkSender, tr Transfer, transferURL string) *Dispatcher {
	return &Dispatcher{
		replica:     rep,
		queue:       qw,
		links:       links,
		transfer:    tr,
		transferURL: transferURL,
	}
}

// Dispatch runs one tool call. Unknown names and bad arguments return a
// speakable failure rather than an error; the bridge never hangs up
// because a tool misfired.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallContext, name string, args map[string]interface{}) FunctionResult {
	logger.Log.Info("AI function call",
		zap.String("function", name),
		zap.String("call_sid", call.CallSID),
		zap.Int64("user_id", call.UserID),
	)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var result FunctionResult
	switch name {
	case "send_secure_link":
		result = d.sendSecureLink(ctx, call, args)
	case "transfer_to_human":
		result = d.transferToHuman(ctx, call)
	case "record_call_outcome":
		result = d.recordOutcome(ctx, call, args)
	case "schedule_callback":
		result = d.scheduleCallback(ctx, call, args)
	case "lookup_claim_details":
		result = d.lookupClaim(ctx, call, args)
	case "check_requirements_status":
		result = d.checkRequirements(ctx, call, args)
	default:
		result = failure("I could not do that just now.", fmt.Errorf("unknown function %q", name))
	}

	if !result.Success {
		logger.Log.Warn("AI function call failed",
			zap.String("function", name),
			zap.String("error", result.Error),
		)
	}
	return result
}

func (d *Dispatcher) sendSecureLink(ctx context.Context, call CallContext, args map[string]interface{}) FunctionResult {
	if call.UserID == 0 {
		return failure("I can only send a link to registered customers.", nil)
	}
	reason, _ := args["reason"].(string)
	if err := d.links.SendPortalLink(ctx, call.UserID, call.CallerNumber, reason); err != nil {
		return failure("I could not send the link just now. Please try the portal directly.", err)
	}
	return FunctionResult{
		Success: true,
		Message: "A secure link has been sent to your phone by text message.",
	}
}

func (d *Dispatcher) transferToHuman(ctx context.Context, call CallContext) FunctionResult {
	if call.CallSID == "" {
		return failure("I cannot transfer this call.", fmt.Errorf("no call sid"))
	}
	if err := d.transfer.RedirectCall(ctx, call.CallSID, d.transferURL); err != nil {
		return failure("I could not reach a colleague right now. Someone will call you back.", err)
	}
	return FunctionResult{
		Success: true,
		Message: "Transferring you to one of our team now.",
	}
}

func (d *Dispatcher) recordOutcome(ctx context.Context, call CallContext, args map[string]interface{}) FunctionResult {
	outcome, _ := args["outcome"].(string)
	if outcome == "" {
		return failure("I could not save that.", fmt.Errorf("missing outcome"))
	}
	notes, _ := args["notes"].(string)
	err := d.queue.RecordOutcome(ctx, &queue.Outcome{
		CallSessionID: call.SessionID,
		UserID:        call.UserID,
		AgentID:       sessions.SystemAgentID,
		Outcome:       outcome,
		Notes:         notes,
	})
	if err != nil {
		return failure("I could not save that.", err)
	}
	return FunctionResult{Success: true, Message: "Noted, thank you."}
}

func (d *Dispatcher) scheduleCallback(ctx context.Context, call CallContext, args map[string]interface{}) FunctionResult {
	when, _ := args["scheduled_for"].(string)
	scheduledFor := time.Now().Add(time.Hour)
	if when != "" {
		parsed, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return failure("I did not catch that time. Could you repeat it?", err)
		}
		scheduledFor = parsed
	}
	reason, _ := args["reason"].(string)
	err := d.queue.ScheduleCallback(ctx, &queue.Callback{
		UserID:       call.UserID,
		PhoneNumber:  call.CallerNumber,
		ScheduledFor: scheduledFor,
		Reason:       reason,
	})
	if err != nil {
		return failure("I could not book that callback.", err)
	}
	return FunctionResult{
		Success: true,
		Message: fmt.Sprintf("A callback is booked for %s.", scheduledFor.Format("Monday 3:04 PM")),
	}
}

func (d *Dispatcher) lookupClaim(ctx context.Context, call CallContext, args map[string]interface{}) FunctionResult {
	if call.UserID == 0 {
		return failure("I could not find your details.", nil)
	}
	if rawID, ok := args["claim_id"]; ok {
		claimID := sessions.NormalizeID(rawID)
		claim, err := d.replica.ClaimByID(ctx, claimID)
		if err != nil {
			return failure("I could not look that up just now.", err)
		}
		if claim == nil || claim.UserID != call.UserID {
			return failure("I could not find that claim on your account.", nil)
		}
		return FunctionResult{Success: true, Data: claimSummary(*claim)}
	}

	claims, err := d.replica.OpenClaims(ctx, call.UserID, 5)
	if err != nil {
		return failure("I could not look that up just now.", err)
	}
	summaries := make([]map[string]interface{}, len(claims))
	for i, c := range claims {
		summaries[i] = claimSummary(c)
	}
	return FunctionResult{Success: true, Data: summaries}
}

func (d *Dispatcher) checkRequirements(ctx context.Context, call CallContext, args map[string]interface{}) FunctionResult {
	if call.UserID == 0 {
		return failure("I could not find your details.", nil)
	}
	claimID := sessions.NormalizeID(args["claim_id"])
	if claimID == 0 {
		return failure("Which claim would you like me to check?", nil)
	}
	claim, err := d.replica.ClaimByID(ctx, claimID)
	if err != nil {
		return failure("I could not check that just now.", err)
	}
	if claim == nil || claim.UserID != call.UserID {
		return failure("I could not find that claim on your account.", nil)
	}

	reqs, err := d.replica.PendingRequirements(ctx, claimID, 10)
	if err != nil {
		return failure("I could not check that just now.", err)
	}
	pending := make([]map[string]interface{}, len(reqs))
	for i, r := range reqs {
		pending[i] = map[string]interface{}{
			"type":   r.Type,
			"reason": r.Reason,
		}
	}
	return FunctionResult{
		Success: true,
		Data: map[string]interface{}{
			"claim_id":      claimID,
			"pending_count": len(reqs),
			"pending":       pending,
		},
	}
}

func claimSummary(c replica.Claim) map[string]interface{} {
	return map[string]interface{}{
		"id":     c.ID,
		"type":   c.Type,
		"status": c.Status,
		"lender": c.Lender,
	}
}
