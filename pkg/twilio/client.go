package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/claimtech/dialler/pkg/client"
)

// Client is a minimal Twilio REST API client covering the operations the
// dialler needs: originating calls, redirecting live calls and sending SMS.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *client.HTTPClient
}

func NewClient(accountSID, authToken string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", accountSID),
		http:       client.NewHTTPClient("twilio", 10*time.Second),
	}
}

// Call is the subset of the provider call resource we read back
type Call struct {
	Sid       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// Message is the subset of the provider message resource we read back
type Message struct {
	Sid    string `json:"sid"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// CreateCallRequest options for originating an outbound call
type CreateCallRequest struct {
	From           string
	To             string
	TwiMLURL       string // webhook that returns instructions when answered
	StatusCallback string
	Timeout        int
	Record         bool
}

// CreateCall originates an outbound call
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (*Call, error) {
	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Url", req.TwiMLURL)
	form.Set("Method", "POST")
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
	}
	if req.Timeout > 0 {
		form.Set("Timeout", fmt.Sprintf("%d", req.Timeout))
	}
	if req.Record {
		form.Set("Record", "true")
	}

	var call Call
	if err := c.post(ctx, "/Calls.json", form, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// RedirectCall points a live call at a new TwiML URL. Used for mid-call
// transfer from the AI bridge to a human agent.
func (c *Client) RedirectCall(ctx context.Context, callSID, twimlURL string) (*Call, error) {
	form := url.Values{}
	form.Set("Url", twimlURL)
	form.Set("Method", "POST")

	var call Call
	if err := c.post(ctx, fmt.Sprintf("/Calls/%s.json", callSID), form, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// SendSMS sends a text message
func (c *Client) SendSMS(ctx context.Context, from, to, body string) (*Message, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	var msg Message
	if err := c.post(ctx, "/Messages.json", form, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	resp, err := c.http.PostForm(ctx, c.baseURL+path, form, func(r *http.Request) {
		r.SetBasicAuth(c.accountSID, c.authToken)
	})
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read twilio response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("twilio API error: status %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode twilio response: %w", err)
		}
	}
	return nil
}
