package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver resolves where call recordings live. The dialler never moves audio
// itself; recordings stay with the provider or on a mounted volume and the
// dashboard follows the URL.
type Driver interface {
	RecordingURL(recordingSID string) (string, error)
}

func NewDriver(driver, accountSID, localPath string) (Driver, error) {
	switch driver {
	case "twilio-proxy", "":
		return NewTwilioProxyDriver(accountSID), nil
	case "local":
		return NewLocalDriver(localPath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// TwilioProxyDriver serves recordings straight from the provider API
type TwilioProxyDriver struct {
	baseURL string
}

func NewTwilioProxyDriver(accountSID string) *TwilioProxyDriver {
	return &TwilioProxyDriver{
		baseURL: fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", accountSID),
	}
}

func (d *TwilioProxyDriver) RecordingURL(recordingSID string) (string, error) {
	if recordingSID == "" {
		return "", fmt.Errorf("recordingSID is required")
	}
	return fmt.Sprintf("%s/Recordings/%s.mp3", d.baseURL, recordingSID), nil
}

// LocalDriver serves recordings downloaded to a mounted volume
type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	if basePath == "" {
		basePath = "/data/recordings"
	}
	return &LocalDriver{basePath: basePath}
}

func (d *LocalDriver) RecordingURL(recordingSID string) (string, error) {
	if recordingSID == "" {
		return "", fmt.Errorf("recordingSID is required")
	}
	// Reject path traversal in SIDs coming from webhooks.
	if strings.ContainsAny(recordingSID, "/\\") || strings.Contains(recordingSID, "..") {
		return "", fmt.Errorf("invalid recordingSID")
	}
	p := filepath.Join(d.basePath, recordingSID+".mp3")
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("recording not found: %w", err)
	}
	return "file://" + p, nil
}
