package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/audit"
	"github.com/claimtech/dialler/pkg/errors"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/twilio"
)

func pageParams(c *gin.Context) (int64, int64) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	size, _ := strconv.ParseInt(c.DefaultQuery("page_size", "25"), 10, 64)
	return page, size
}

// ListCalls returns recent call sessions, newest first
func (h *Handler) ListCalls(c *gin.Context) {
	page, size := pageParams(c)
	calls, err := h.sessions.List(c.Request.Context(), page, size)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "page": page})
}

// GetCallBySID looks one session up by its provider SID
func (h *Handler) GetCallBySID(c *gin.Context) {
	session, err := h.sessions.FindBySID(c.Request.Context(), c.Param("sid"))
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if session == nil {
		errors.NotFound(c, "call not found")
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListQueue returns active queue entries, highest priority first
func (h *Handler) ListQueue(c *gin.Context) {
	page, size := pageParams(c)
	entries, err := h.queue.ListActive(c.Request.Context(), c.Query("type"), page, size)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "page": page})
}

// AssignQueueEntry takes a pending entry for the calling agent
func (h *Handler) AssignQueueEntry(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}
	entryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid entry id")
		return
	}

	taken, err := h.queue.Assign(c.Request.Context(), entryID, agentID, nil)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if !taken {
		errors.Conflict(c, "entry already taken")
		return
	}
	if err := audit.Log(h.mongoClient, agentID.Hex(), audit.ActionAssignQueue, "call_queue", entryID.Hex(), nil); err != nil {
		h.logger.Warn("Audit write failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "assigned"})
}

type DispositionRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Notes   string `json:"notes"`
}

// RecordDisposition records an agent's outcome for a call and applies
// the score delta.
func (h *Handler) RecordDisposition(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid call id")
		return
	}

	var req DispositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	session, err := h.sessions.FindByID(c.Request.Context(), sessionID)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if session == nil {
		errors.NotFound(c, "call not found")
		return
	}

	outcome := &queue.Outcome{
		CallSessionID: sessionID,
		UserID:        session.UserID,
		AgentID:       agentID,
		Outcome:       req.Outcome,
		Notes:         req.Notes,
	}
	if err := h.queue.RecordOutcome(c.Request.Context(), outcome); err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if err := audit.Log(h.mongoClient, agentID.Hex(), audit.ActionDisposition, "call_session", sessionID.Hex(), map[string]interface{}{
		"outcome": req.Outcome,
	}); err != nil {
		h.logger.Warn("Audit write failed", zap.Error(err))
	}
	c.JSON(http.StatusCreated, outcome)
}

type CallbackRequest struct {
	UserID       int64  `json:"user_id"`
	PhoneNumber  string `json:"phone_number" binding:"required"`
	ScheduledFor string `json:"scheduled_for" binding:"required"`
	Reason       string `json:"reason"`
}

// ScheduleCallback books a return call from the dashboard
func (h *Handler) ScheduleCallback(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}

	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}
	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		errors.BadRequest(c, "scheduled_for must be RFC 3339")
		return
	}

	cb := &queue.Callback{
		UserID:       req.UserID,
		PhoneNumber:  req.PhoneNumber,
		ScheduledFor: scheduledFor,
		Reason:       req.Reason,
	}
	if err := h.queue.ScheduleCallback(c.Request.Context(), cb); err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if err := audit.Log(h.mongoClient, agentID.Hex(), audit.ActionScheduleCallback, "callback", cb.ID.Hex(), nil); err != nil {
		h.logger.Warn("Audit write failed", zap.Error(err))
	}
	c.JSON(http.StatusCreated, cb)
}

type InitiateCallRequest struct {
	UserID      int64  `json:"user_id"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	QueueEntry  string `json:"queue_entry_id"`
}

// InitiateCall originates an outbound call to a user and bridges it to
// the calling agent's client once answered.
func (h *Handler) InitiateCall(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}

	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	agent, err := h.agents.AgentByID(c.Request.Context(), agentID)
	if err != nil || agent == nil {
		errors.Unauthorized(c, "unknown agent")
		return
	}
	identity := agent.TwilioIdentity
	if identity == "" {
		identity = "agent-" + agent.ID.Hex()
	}

	call, err := h.twilio.CreateCall(c.Request.Context(), twilio.CreateCallRequest{
		From:           h.cfg.TwilioCallerID,
		To:             req.PhoneNumber,
		TwiMLURL:       h.cfg.PublicBaseURL + "/webhooks/voice/outbound?agent=" + identity,
		StatusCallback: h.cfg.PublicBaseURL + "/webhooks/voice/status",
		Timeout:        h.cfg.DialTimeoutSec,
		Record:         true,
	})
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}

	session, err := h.sessions.CreateOutbound(c.Request.Context(), sessions.CreateParams{
		CallSID:        call.Sid,
		CallerNumber:   req.PhoneNumber,
		PlatformNumber: h.cfg.TwilioCallerID,
		AgentID:        agentID,
		UserID:         req.UserID,
	})
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}

	// Close out the queue entry this call answers, if one was named
	if req.QueueEntry != "" {
		if entryID, err := primitive.ObjectIDFromHex(req.QueueEntry); err == nil {
			if _, err := h.queue.Assign(c.Request.Context(), entryID, agentID, &session.ID); err != nil {
				h.logger.Warn("Queue entry assignment failed", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusCreated, session)
}

// RecordingRedirect resolves a recording SID through the storage driver
// and redirects the dashboard to the playable URL.
func (h *Handler) RecordingRedirect(c *gin.Context) {
	url, err := h.storage.RecordingURL(c.Param("sid"))
	if err != nil {
		errors.NotFound(c, "recording not found")
		return
	}
	c.Redirect(http.StatusFound, url)
}
