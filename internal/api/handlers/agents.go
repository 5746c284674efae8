package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/pkg/audit"
	"github.com/claimtech/dialler/pkg/errors"
	"github.com/claimtech/dialler/pkg/logger"
)

// currentAgentID reads the authenticated agent from the JWT middleware
func currentAgentID(c *gin.Context) (primitive.ObjectID, bool) {
	raw, exists := c.Get("agent_id")
	if !exists {
		return primitive.NilObjectID, false
	}
	hex, _ := raw.(string)
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// StartAgentSession marks the agent as present and routable
func (h *Handler) StartAgentSession(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}

	session, err := h.agents.StartSession(c.Request.Context(), agentID)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// EndAgentSession logs the agent out of routing
func (h *Handler) EndAgentSession(c *gin.Context) {
	agentID, ok := currentAgentID(c)
	if !ok {
		errors.Unauthorized(c, "missing agent identity")
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid session id")
		return
	}

	if err := h.agents.EndSession(c.Request.Context(), sessionID); err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	if err := audit.Log(h.mongoClient, agentID.Hex(), audit.ActionLogout, "agent_session", sessionID.Hex(), nil); err != nil {
		h.logger.Warn("Audit write failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

// Heartbeat keeps a session's last activity fresh
func (h *Handler) Heartbeat(c *gin.Context) {
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid session id")
		return
	}
	if err := h.agents.Heartbeat(c.Request.Context(), sessionID); err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

type SessionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateSessionStatus lets agents toggle their own availability
func (h *Handler) UpdateSessionStatus(c *gin.Context) {
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid session id")
		return
	}

	var req SessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}
	switch req.Status {
	case agents.StatusAvailable, agents.StatusOffline:
	default:
		errors.BadRequest(c, "status must be available or offline")
		return
	}

	if err := h.agents.SetStatus(c.Request.Context(), sessionID, req.Status); err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}
