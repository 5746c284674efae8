package handlers

import (
	"strings"
	"testing"
)

func TestAllBusyMessageQuotesWaitEstimate(t *testing.T) {
	msg := allBusyMessage(15)
	if !strings.Contains(msg, "15 minutes") {
		t.Errorf("busy message must quote the wait estimate: %q", msg)
	}
	if !strings.Contains(msg, "sorry") {
		t.Errorf("busy message must apologise: %q", msg)
	}
}

func TestAllBusyMessageWithoutEstimate(t *testing.T) {
	msg := allBusyMessage(0)
	if strings.Contains(msg, "0 minutes") {
		t.Errorf("unset estimate must not be spoken: %q", msg)
	}
	if !strings.Contains(msg, "call you back") {
		t.Errorf("busy message must promise a call back: %q", msg)
	}
}
