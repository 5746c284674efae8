package aibridge

import (
	"context"

	"github.com/claimtech/dialler/pkg/messaging"
	"github.com/claimtech/dialler/pkg/twilio"
)

// MagicLinkSender adapts the messaging service to LinkSender
type MagicLinkSender struct {
	Service *messaging.MagicLinkService
}

func (m MagicLinkSender) SendPortalLink(ctx context.Context, userID int64, toNumber, reason string) error {
	_, err := m.Service.SendPortalLink(ctx, userID, toNumber, reason)
	return err
}

// TwilioTransfer adapts the provider REST client to Transfer
type TwilioTransfer struct {
	Client *twilio.Client
}

func (t TwilioTransfer) RedirectCall(ctx context.Context, callSID, twimlURL string) error {
	_, err := t.Client.RedirectCall(ctx, callSID, twimlURL)
	return err
}
