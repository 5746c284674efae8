package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/mongo"
)

// Action represents an audit action
type Action string

const (
	ActionAssignQueue     Action = "assign_queue"
	ActionDisposition     Action = "disposition"
	ActionScheduleCallback Action = "schedule_callback"
	ActionSendLink        Action = "send_link"
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
)

// Log logs an audit event
func Log(client *mongo.Client, agentID string, action Action, resourceType, resourceID string, metadata map[string]interface{}) error {
	if client == nil {
		logger.Log.Warn("Audit logging skipped: MongoDB client not available")
		return nil
	}

	metadataJSON, _ := json.Marshal(metadata)

	auditData := map[string]interface{}{
		"agent_id":      agentID,
		"action":        string(action),
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"metadata":      string(metadataJSON),
		"created_at":    time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.NewQuery("audit_log").Insert(ctx, auditData)
	if err != nil {
		logger.Log.Error("Failed to log audit event",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("resource_type", resourceType),
		)
		return err
	}

	return nil
}
