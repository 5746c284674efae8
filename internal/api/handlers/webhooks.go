package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/routing"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/twiml"
	"github.com/claimtech/dialler/pkg/webhook"
)

type VoicePayload struct {
	CallSid    string `form:"CallSid"`
	From       string `form:"From"`
	To         string `form:"To"`
	CallStatus string `form:"CallStatus"`
	Direction  string `form:"Direction"`
}

type DialResultPayload struct {
	CallSid          string `form:"CallSid"`
	From             string `form:"From"`
	DialCallStatus   string `form:"DialCallStatus"`
	DialCallDuration string `form:"DialCallDuration"`
}

type StatusPayload struct {
	CallSid      string `form:"CallSid"`
	From         string `form:"From"`
	CallStatus   string `form:"CallStatus"`
	CallDuration string `form:"CallDuration"`
}

type RecordingPayload struct {
	CallSid           string `form:"CallSid"`
	From              string `form:"From"`
	RecordingSid      string `form:"RecordingSid"`
	RecordingUrl      string `form:"RecordingUrl"`
	RecordingDuration string `form:"RecordingDuration"`
}

// respondTwiML writes an instruction document. The provider retries on
// non-200s and plays an error tone on malformed bodies, so this is the
// only way a voice webhook ever answers.
func respondTwiML(c *gin.Context, xml string) {
	c.Header("Content-Type", "text/xml; charset=utf-8")
	c.String(http.StatusOK, xml)
}

// verifySignature checks the provider HMAC when a secret is configured.
// Returns false after writing the response.
func (h *Handler) verifySignature(c *gin.Context) bool {
	if h.cfg.TwilioAuthToken == "" {
		return true
	}
	c.Request.ParseForm()
	url := h.cfg.PublicBaseURL + c.Request.URL.RequestURI()
	sig := c.GetHeader("X-Twilio-Signature")
	if err := webhook.VerifyTwilioSignature(h.cfg.TwilioAuthToken, url, c.Request.PostForm, sig); err != nil {
		h.logger.Warn("Webhook signature rejected",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.String(http.StatusForbidden, "invalid signature")
		return false
	}
	return true
}

// dedupe returns true when this callback was already processed. Keyed
// per SID and event so provider retries do not double-apply effects.
func (h *Handler) dedupe(c *gin.Context, kind, sid string) bool {
	if sid == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	ok, err := h.redisClient.SetNX(ctx, "webhook:"+kind+":"+sid, 1, 10*time.Minute).Result()
	if err != nil {
		// Redis trouble must not drop callbacks; process anyway
		return false
	}
	return !ok
}

// VoiceWebhook answers every inbound call. It must always return valid
// TwiML with HTTP 200; routing failures degrade inside the router.
func (h *Handler) VoiceWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	var payload VoicePayload
	if err := c.ShouldBind(&payload); err != nil {
		h.logger.Warn("Unparseable voice webhook", zap.Error(err))
		respondTwiML(c, twiml.New().AddHangup().Render())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	xml := h.router.HandleInbound(ctx, routing.InboundRequest{
		CallSID: payload.CallSid,
		From:    payload.From,
		To:      payload.To,
	})
	respondTwiML(c, xml)
}

// DialResultWebhook fires when a dial to an agent ends
func (h *Handler) DialResultWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	var payload DialResultPayload
	if err := c.ShouldBind(&payload); err != nil {
		respondTwiML(c, twiml.New().AddHangup().Render())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	xml := h.router.HandleDialResult(ctx, payload.CallSid, payload.From, payload.DialCallStatus)
	respondTwiML(c, xml)
}

// StatusWebhook tracks call lifecycle transitions and keeps the agent
// session state in step with the call.
func (h *Handler) StatusWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	var payload StatusPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}
	if h.dedupe(c, "status:"+payload.CallStatus, payload.CallSid) {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	session, err := h.sessions.FindBySIDOrRecent(ctx, payload.CallSid, payload.From)
	if err != nil {
		h.logger.Error("Status webhook lookup failed", zap.Error(err))
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"message": "no matching session"})
		return
	}

	status := mapCallStatus(payload.CallStatus)
	duration, _ := strconv.Atoi(payload.CallDuration)
	if err := h.sessions.UpdateStatus(ctx, session.ID, status, duration); err != nil {
		h.logger.Error("Session status update failed",
			zap.String("call_sid", payload.CallSid),
			zap.Error(err),
		)
	}

	h.syncAgentSession(ctx, session, status)
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// syncAgentSession moves the handling agent's session with the call:
// answered puts them on a call, any terminal status frees them.
func (h *Handler) syncAgentSession(ctx context.Context, session *sessions.CallSession, status string) {
	if session.AgentID.IsZero() || session.AgentID == sessions.SystemAgentID {
		return
	}
	var target string
	switch {
	case status == sessions.StatusInProgress:
		target = "on_call"
	case sessions.IsTerminal(status):
		target = "available"
	default:
		return
	}
	if err := h.agents.SetStatusByAgent(ctx, session.AgentID, target); err != nil {
		h.logger.Warn("Agent session sync failed",
			zap.String("agent_id", session.AgentID.Hex()),
			zap.Error(err),
		)
	}
}

func mapCallStatus(providerStatus string) string {
	switch providerStatus {
	case "initiated", "queued":
		return sessions.StatusInitiated
	case "ringing":
		return sessions.StatusRinging
	case "in-progress", "answered":
		return sessions.StatusInProgress
	case "completed":
		return sessions.StatusCompleted
	case "busy":
		return sessions.StatusBusy
	case "no-answer":
		return sessions.StatusNoAnswer
	case "failed", "canceled":
		return sessions.StatusFailed
	default:
		return sessions.StatusInProgress
	}
}

// RecordingWebhook attaches a finished recording to its session
func (h *Handler) RecordingWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	var payload RecordingPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}
	if payload.RecordingSid == "" {
		c.JSON(http.StatusOK, gin.H{"message": "no recording"})
		return
	}
	if h.dedupe(c, "recording", payload.RecordingSid) {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	session, err := h.sessions.FindBySIDOrRecent(ctx, payload.CallSid, payload.From)
	if err != nil {
		h.logger.Error("Recording webhook lookup failed", zap.Error(err))
	}
	if session == nil {
		h.logger.Warn("Recording with no matching session",
			zap.String("recording_sid", payload.RecordingSid),
			zap.String("call_sid", payload.CallSid),
		)
		c.JSON(http.StatusOK, gin.H{"message": "no matching session"})
		return
	}

	duration, _ := strconv.Atoi(payload.RecordingDuration)
	if err := h.sessions.AttachRecording(ctx, session.ID, payload.RecordingSid, payload.RecordingUrl, duration); err != nil {
		h.logger.Error("Recording attach failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// allBusyMessage is what a caller hears when no agent can take the
// transfer. The wait estimate is a configured figure, not a live one.
func allBusyMessage(waitMin int) string {
	if waitMin <= 0 {
		return "We are sorry, all of our team are busy right now. We will call you back shortly."
	}
	return fmt.Sprintf(
		"We are sorry, all of our team are busy right now. We will call you back within about %d minutes.",
		waitMin)
}

// TransferWebhook serves the TwiML for mid-call transfers out of the AI
// bridge. It rings any active agent, or apologises when nobody is in.
func (h *Handler) TransferWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	agent, err := h.agents.AnyActiveAgent(ctx)
	if err != nil || agent == nil {
		if err != nil {
			h.logger.Error("Transfer target lookup failed", zap.Error(err))
		}
		respondTwiML(c, twiml.New().
			SaySentence(allBusyMessage(h.cfg.BusyWaitEstimateMin)).
			AddHangup().
			Render())
		return
	}

	identity := agent.TwilioIdentity
	if identity == "" {
		identity = "agent-" + agent.ID.Hex()
	}
	respondTwiML(c, twiml.New().
		SaySentence("Transferring you to one of our team.").
		AddDial(twiml.Dial{
			Timeout: h.cfg.DialTimeoutSec,
			Client:  &twiml.Client{Identity: identity},
		}).
		Render())
}

// OutboundWebhook serves the TwiML for agent-originated calls. When the
// dialled user answers, it bridges them to the agent's browser client.
func (h *Handler) OutboundWebhook(c *gin.Context) {
	if !h.verifySignature(c) {
		return
	}

	identity := c.Query("agent")
	if identity == "" {
		respondTwiML(c, twiml.New().
			SaySentence("We are sorry, this call could not be connected.").
			AddHangup().
			Render())
		return
	}
	respondTwiML(c, twiml.New().
		AddDial(twiml.Dial{
			Timeout:                       h.cfg.DialTimeoutSec,
			Record:                        "record-from-answer",
			RecordingStatusCallback:       h.cfg.PublicBaseURL + "/webhooks/voice/recording",
			RecordingStatusCallbackMethod: "POST",
			Client:                        &twiml.Client{Identity: identity},
		}).
		Render())
}

// AIStream upgrades to the websocket control channel for AI-routed calls
func (h *Handler) AIStream(c *gin.Context) {
	h.bridge.HandleStream(c.Writer, c.Request)
}
