package aibridge

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/replica"
	"github.com/claimtech/dialler/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

type fakeReplica struct {
	claims map[int64]*replica.Claim
	reqs   []replica.Requirement
	err    error
}

func (f *fakeReplica) FindEnabledUserByPhone(ctx context.Context, raw string) (*replica.User, error) {
	return nil, nil
}

func (f *fakeReplica) OpenClaims(ctx context.Context, userID int64, limit int) ([]replica.Claim, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []replica.Claim
	for _, c := range f.claims {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeReplica) PendingRequirements(ctx context.Context, claimID int64, limit int) ([]replica.Requirement, error) {
	return f.reqs, f.err
}

func (f *fakeReplica) ClaimByID(ctx context.Context, claimID int64) (*replica.Claim, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims[claimID], nil
}

type fakeQueueWriter struct {
	outcomes  []*queue.Outcome
	callbacks []*queue.Callback
	err       error
}

func (f *fakeQueueWriter) RecordOutcome(ctx context.Context, o *queue.Outcome) error {
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeQueueWriter) ScheduleCallback(ctx context.Context, cb *queue.Callback) error {
	if f.err != nil {
		return f.err
	}
	f.callbacks = append(f.callbacks, cb)
	return nil
}

type fakeLinks struct {
	sent []int64
	err  error
}

func (f *fakeLinks) SendPortalLink(ctx context.Context, userID int64, to, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, userID)
	return nil
}

type fakeTransfer struct {
	redirected []string
	err        error
}

func (f *fakeTransfer) RedirectCall(ctx context.Context, sid, url string) error {
	if f.err != nil {
		return f.err
	}
	f.redirected = append(f.redirected, sid)
	return nil
}

func knownCall() CallContext {
	return CallContext{
		CallSID:      "CA200",
		SessionID:    primitive.NewObjectID(),
		UserID:       903212,
		CallerNumber: "+447738585850",
	}
}

func newDispatcher(rep *fakeReplica, qw *fakeQueueWriter, links *fakeLinks, tr *fakeTransfer) *Dispatcher {
	return NewDispatcher(rep, qw, links, tr, "https://dialler.example.com/webhooks/voice/transfer")
}

func TestDispatchUnknownFunction(t *testing.T) {
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "reboot_universe", nil)
	if res.Success {
		t.Fatal("unknown function must not succeed")
	}
	if res.Message == "" {
		t.Error("failure must carry a speakable message")
	}
}

func TestSendSecureLink(t *testing.T) {
	links := &fakeLinks{}
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, links, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "send_secure_link", map[string]interface{}{"reason": "id_document"})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if len(links.sent) != 1 || links.sent[0] != 903212 {
		t.Error("link must be sent to the call's user")
	}
}

func TestSendSecureLinkUnknownCaller(t *testing.T) {
	links := &fakeLinks{}
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, links, &fakeTransfer{})

	call := knownCall()
	call.UserID = 0
	res := d.Dispatch(context.Background(), call, "send_secure_link", nil)
	if res.Success {
		t.Fatal("links must not go to unidentified callers")
	}
	if len(links.sent) != 0 {
		t.Error("no link may be sent")
	}
}

func TestSendSecureLinkErrorIsSpoken(t *testing.T) {
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, &fakeLinks{err: errors.New("sms down")}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "send_secure_link", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message == "" {
		t.Error("failure must stay speakable")
	}
}

func TestTransferToHuman(t *testing.T) {
	tr := &fakeTransfer{}
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, &fakeLinks{}, tr)

	res := d.Dispatch(context.Background(), knownCall(), "transfer_to_human", nil)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if len(tr.redirected) != 1 || tr.redirected[0] != "CA200" {
		t.Error("the live call leg must be redirected")
	}
}

func TestRecordCallOutcome(t *testing.T) {
	qw := &fakeQueueWriter{}
	d := newDispatcher(&fakeReplica{}, qw, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "record_call_outcome", map[string]interface{}{
		"outcome": queue.OutcomeContacted,
		"notes":   "caller confirmed address",
	})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if len(qw.outcomes) != 1 {
		t.Fatal("outcome must be recorded")
	}
	if qw.outcomes[0].Outcome != queue.OutcomeContacted {
		t.Errorf("outcome = %q", qw.outcomes[0].Outcome)
	}
}

func TestRecordCallOutcomeMissingName(t *testing.T) {
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "record_call_outcome", map[string]interface{}{})
	if res.Success {
		t.Fatal("missing outcome must fail")
	}
}

func TestScheduleCallback(t *testing.T) {
	qw := &fakeQueueWriter{}
	d := newDispatcher(&fakeReplica{}, qw, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "schedule_callback", map[string]interface{}{
		"scheduled_for": "2026-09-01T10:00:00Z",
		"reason":        "wants to discuss settlement",
	})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if len(qw.callbacks) != 1 {
		t.Fatal("callback must be stored")
	}
	if qw.callbacks[0].PhoneNumber != "+447738585850" {
		t.Errorf("callback number = %q", qw.callbacks[0].PhoneNumber)
	}
}

func TestScheduleCallbackBadTime(t *testing.T) {
	d := newDispatcher(&fakeReplica{}, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "schedule_callback", map[string]interface{}{
		"scheduled_for": "tomorrow-ish",
	})
	if res.Success {
		t.Fatal("unparseable time must fail politely")
	}
}

func TestLookupClaimDetails(t *testing.T) {
	rep := &fakeReplica{claims: map[int64]*replica.Claim{
		41: {ID: 41, UserID: 903212, Type: "vehicle_finance", Status: "pending"},
	}}
	d := newDispatcher(rep, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "lookup_claim_details", map[string]interface{}{
		"claim_id": float64(41),
	})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
}

func TestLookupClaimOtherUsersClaim(t *testing.T) {
	rep := &fakeReplica{claims: map[int64]*replica.Claim{
		41: {ID: 41, UserID: 111, Type: "vehicle_finance"},
	}}
	d := newDispatcher(rep, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "lookup_claim_details", map[string]interface{}{
		"claim_id": float64(41),
	})
	if res.Success {
		t.Fatal("claims belonging to other users must not be disclosed")
	}
}

func TestCheckRequirementsStatus(t *testing.T) {
	rep := &fakeReplica{
		claims: map[int64]*replica.Claim{41: {ID: 41, UserID: 903212}},
		reqs: []replica.Requirement{
			{ID: 1, ClaimID: 41, Type: "signature", Status: "PENDING", Reason: "missing signature"},
		},
	}
	d := newDispatcher(rep, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "check_requirements_status", map[string]interface{}{
		"claim_id": "41",
	})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	data, ok := res.Data.(map[string]interface{})
	if !ok || data["pending_count"] != 1 {
		t.Errorf("unexpected data: %#v", res.Data)
	}
}

func TestReplicaErrorStaysSpeakable(t *testing.T) {
	rep := &fakeReplica{err: errors.New("replica down")}
	d := newDispatcher(rep, &fakeQueueWriter{}, &fakeLinks{}, &fakeTransfer{})

	res := d.Dispatch(context.Background(), knownCall(), "lookup_claim_details", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message == "" {
		t.Error("replica failures must produce a speakable message")
	}
}
