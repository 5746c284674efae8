package aibridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inbound control messages on the stream
type streamEvent struct {
	Event string `json:"event"`
	Start *struct {
		CallSID          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	FunctionCall *struct {
		ID        string                 `json:"id"`
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"functionCall,omitempty"`
}

type functionReply struct {
	Event  string         `json:"event"`
	ID     string         `json:"id"`
	Result FunctionResult `json:"result"`
}

// SessionMarker lets the bridge flag and close sessions it handled
type SessionMarker interface {
	FindBySID(ctx context.Context, callSID string) (*sessions.CallSession, error)
	MarkAIHandled(ctx context.Context, sessionID primitive.ObjectID) error
	UpdateStatus(ctx context.Context, sessionID primitive.ObjectID, status string, durationSec int) error
}

// Bridge owns the websocket control channel of one or more AI calls
type Bridge struct {
	dispatcher *Dispatcher
	marker     SessionMarker
}

func NewBridge(dispatcher *Dispatcher, marker SessionMarker) *Bridge {
	return &Bridge{dispatcher: dispatcher, marker: marker}
}

// HandleStream upgrades the request and serves the control channel
// until the call ends or the peer goes away. Media frames are ignored;
// only start, functionCall and stop events are acted on.
func (b *Bridge) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("Stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go b.pingLoop(conn, done)
	defer close(done)

	var call CallContext
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Warn("Stream closed unexpectedly",
					zap.String("call_sid", call.CallSID),
					zap.Error(err),
				)
			}
			b.finish(r.Context(), call)
			return
		}

		var event streamEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Event {
		case "start":
			call = b.onStart(r.Context(), event)
		case "functionCall":
			b.onFunctionCall(r.Context(), conn, call, event)
		case "stop":
			b.finish(r.Context(), call)
			return
		}
	}
}

func (b *Bridge) onStart(ctx context.Context, event streamEvent) CallContext {
	if event.Start == nil {
		return CallContext{}
	}
	params := event.Start.CustomParameters
	call := CallContext{
		CallSID:      event.Start.CallSID,
		UserID:       sessions.NormalizeID(params["userId"]),
		CallerNumber: params["callerNumber"],
	}
	if session, err := b.marker.FindBySID(ctx, call.CallSID); err == nil && session != nil {
		call.SessionID = session.ID
		if err := b.marker.MarkAIHandled(ctx, session.ID); err != nil {
			logger.Log.Warn("AI-handled flag update failed", zap.Error(err))
		}
	}
	logger.Log.Info("AI stream started",
		zap.String("call_sid", call.CallSID),
		zap.Int64("user_id", call.UserID),
	)
	return call
}

func (b *Bridge) onFunctionCall(ctx context.Context, conn *websocket.Conn, call CallContext, event streamEvent) {
	if event.FunctionCall == nil {
		return
	}
	result := b.dispatcher.Dispatch(ctx, call, event.FunctionCall.Name, event.FunctionCall.Arguments)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	reply := functionReply{Event: "functionResult", ID: event.FunctionCall.ID, Result: result}
	if err := conn.WriteJSON(reply); err != nil {
		logger.Log.Error("Function result write failed",
			zap.String("function", event.FunctionCall.Name),
			zap.Error(err),
		)
	}
}

func (b *Bridge) finish(ctx context.Context, call CallContext) {
	if call.SessionID.IsZero() {
		return
	}
	if err := b.marker.UpdateStatus(ctx, call.SessionID, sessions.StatusCompleted, 0); err != nil {
		logger.Log.Warn("AI session completion failed", zap.Error(err))
	}
	logger.Log.Info("AI stream finished", zap.String("call_sid", call.CallSID))
}

func (b *Bridge) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
