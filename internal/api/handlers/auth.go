package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/audit"
	"github.com/claimtech/dialler/pkg/auth"
	"github.com/claimtech/dialler/pkg/errors"
	"github.com/claimtech/dialler/pkg/logger"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	Agent       AgentInfo `json:"agent"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AgentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	agent, err := h.agents.AgentByEmail(c.Request.Context(), req.Email)
	if err != nil || agent == nil {
		errors.Unauthorized(c, "invalid credentials")
		return
	}
	if !agent.IsActive {
		errors.Forbidden(c, "account is inactive")
		return
	}
	if err := auth.VerifyPassword(agent.PasswordHash, req.Password); err != nil {
		errors.Unauthorized(c, "invalid credentials")
		return
	}

	token, expiresAt, err := auth.GenerateAccessToken(
		agent.ID.Hex(), agent.Email, agent.Role,
		h.cfg.JWTSecret, h.cfg.JWTIssuer, h.cfg.JWTAudience, h.cfg.AccessTTLMin,
	)
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}

	if err := audit.Log(h.mongoClient, agent.ID.Hex(), audit.ActionLogin, "agent", agent.ID.Hex(), nil); err != nil {
		h.logger.Warn("Audit write failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Agent: AgentInfo{
			ID:    agent.ID.Hex(),
			Name:  agent.Name,
			Email: agent.Email,
			Role:  agent.Role,
		},
	})
}
