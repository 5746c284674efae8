package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/mongo"
)

// SMSSender is the outbound messaging boundary. The Twilio client satisfies
// it; tests use a fake.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (sid string, err error)
}

// MagicLinkService mints single-use portal access links and delivers them
// over SMS. Tokens are persisted with a TTL so the portal can validate them.
type MagicLinkService struct {
	db            *mongo.Client
	sender        SMSSender
	portalBaseURL string
	ttl           time.Duration
}

func NewMagicLinkService(db *mongo.Client, sender SMSSender, portalBaseURL string, ttlMinutes int) *MagicLinkService {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &MagicLinkService{
		db:            db,
		sender:        sender,
		portalBaseURL: portalBaseURL,
		ttl:           time.Duration(ttlMinutes) * time.Minute,
	}
}

// SendPortalLink mints a token for the given user and texts the link to the
// given number. Returns the link so callers can echo it to an agent screen.
func (s *MagicLinkService) SendPortalLink(ctx context.Context, userID int64, toNumber, reason string) (string, error) {
	token := uuid.NewString()
	link := fmt.Sprintf("%s/claim/access/%s", s.portalBaseURL, token)
	expiresAt := time.Now().UTC().Add(s.ttl)

	doc := map[string]interface{}{
		"token":      token,
		"user_id":    userID,
		"reason":     reason,
		"expires_at": expiresAt,
		"used_at":    nil,
	}
	mongo.AddTimestamps(doc)

	if _, err := s.db.NewQuery("magic_links").Insert(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to store magic link: %w", err)
	}

	body := fmt.Sprintf("Here is your secure claim portal link: %s (expires in %d minutes)", link, int(s.ttl.Minutes()))
	sid, err := s.sender.Send(ctx, toNumber, body)
	if err != nil {
		return "", fmt.Errorf("failed to send magic link SMS: %w", err)
	}

	logger.Log.Info("Magic link sent",
		zap.Int64("user_id", userID),
		logger.Phone("to", toNumber),
		zap.String("message_sid", sid),
	)
	return link, nil
}
