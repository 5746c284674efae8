package twiml

import (
	"strings"
	"testing"
)

func TestRender_SayHangup(t *testing.T) {
	out := New().SaySentence("Sorry, we are unable to take your call.").AddHangup().Render()

	for _, want := range []string{"<Response>", "<Say", "Sorry, we are unable to take your call.", "<Hangup", "</Response>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}

func TestRender_DialClientWithRecording(t *testing.T) {
	out := New().
		SaySentence("Connecting you now.").
		AddDial(Dial{
			Action:                  "https://dialler.example.com/webhooks/voice/dial-status",
			Timeout:                 25,
			Record:                  "record-from-answer-dual",
			RecordingStatusCallback: "https://dialler.example.com/webhooks/voice/recording",
			Client:                  &Client{Identity: "agent-42", StatusCallback: "https://dialler.example.com/webhooks/voice/status"},
		}).
		Render()

	for _, want := range []string{
		`timeout="25"`,
		`record="record-from-answer-dual"`,
		`recordingStatusCallback=`,
		">agent-42</Client>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}

func TestRender_ConnectStreamParameters(t *testing.T) {
	out := New().AddConnectStream(
		"wss://dialler.example.com/aibridge/ws",
		map[string]string{
			"callerNumber":  "+447738585850",
			"userId":        "8812",
			"claimCount":    "2",
			"priorityScore": "80",
		},
		[]string{"callerNumber", "userId", "claimCount", "priorityScore"},
	).Render()

	for _, want := range []string{
		"<Connect>",
		`url="wss://dialler.example.com/aibridge/ws"`,
		`name="userId"`,
		`value="8812"`,
		`name="priorityScore"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}

	// parameter order must follow the given order for readability of
	// provider console logs
	if strings.Index(out, "callerNumber") > strings.Index(out, "priorityScore") {
		t.Error("Render() parameters out of order")
	}
}

func TestRender_AlwaysWellFormed(t *testing.T) {
	out := New().Render()
	if !strings.Contains(out, "<Response></Response>") && !strings.Contains(out, "<Response/>") {
		t.Errorf("Render() of empty response not well-formed:\n%s", out)
	}
}
