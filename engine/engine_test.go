package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/abhi-yo/formify/audit"
	"github.com/abhi-yo/formify/client"
	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/limiter"
	"github.com/abhi-yo/formify/store"
)

const (
	testPublicKey = "pub_0123456789abcdef0123456789abcdef"
	testSecretKey = "sec_fedcba9876543210fedcba9876543210"
	testUA        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/126.0"
)

type testRig struct {
	engine   *Engine
	store    *store.MemoryStore
	recorder *MemoryRecorder
	sink     *audit.MemorySink
	now      time.Time
}

func newRig(t *testing.T) *testRig {
	t.Helper()

	st := store.NewMemoryStore()
	directory := NewMemoryDirectory()
	directory.Add(Project{
		ID:            "proj-1",
		PublicKey:     testPublicKey,
		SecretKey:     testSecretKey,
		HoneypotField: "website_url",
	})

	recorder := NewMemoryRecorder()
	sink := audit.NewMemorySink()
	lim := limiter.NewSliding("submit", limiter.Policy{Limit: 100, Window: time.Minute}, st, zap.NewNop())

	eng := New(DefaultConfig(), lim, st, directory, recorder, sink, zap.NewNop())

	rig := &testRig{
		engine:   eng,
		store:    st,
		recorder: recorder,
		sink:     sink,
		now:      time.Now(),
	}
	eng.now = func() time.Time { return rig.now }
	return rig
}

// signedSubmission builds a valid submission aged well inside the freshness
// band, signed with the project secret.
func (r *testRig) signedSubmission(t *testing.T, fields map[string]any) *core.SubmissionContext {
	t.Helper()

	timestamp := r.now.UnixMilli() - 10000
	payload, err := core.CanonicalPayload(testPublicKey, fields, timestamp)
	if err != nil {
		t.Fatalf("CanonicalPayload: %v", err)
	}

	return &core.SubmissionContext{
		ProjectKey: testPublicKey,
		Fields:     fields,
		Timestamp:  timestamp,
		Signature:  core.Sign(payload, testSecretKey),
		UserAgent:  testUA,
		Referer:    "https://example.com/contact",
		Identity:   core.HashIdentity("203.0.113.7", "test-salt"),
	}
}

func cleanFields() map[string]any {
	return map[string]any{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"message": "Tell me more about your product.",
	}
}

func TestEvaluate_Admits(t *testing.T) {
	rig := newRig(t)
	sub := rig.signedSubmission(t, cleanFields())

	d := rig.engine.Evaluate(context.Background(), sub)

	if !d.Allowed {
		t.Fatalf("decision = %s (%s), want admitted", d.Reason, d.Message)
	}
	if d.SubmissionID == "" {
		t.Error("admission must carry the minted submission ID")
	}
	if rig.recorder.Len() != 1 {
		t.Errorf("recorded %d submissions, want 1", rig.recorder.Len())
	}

	accepted, _ := rig.store.AcceptedCount(context.Background(), "proj-1")
	if accepted != 1 {
		t.Errorf("accepted counter = %d, want 1", accepted)
	}

	events := rig.sink.Events()
	if len(events) != 1 || events[0].Type != "submission_received" {
		t.Errorf("audit events = %+v, want one submission_received", events)
	}
}

func TestEvaluate_RateLimited(t *testing.T) {
	rig := newRig(t)
	st := store.NewMemoryStore()
	rig.engine.limiter = limiter.NewSliding("submit", limiter.Policy{Limit: 1, Window: time.Minute}, st, zap.NewNop())

	sub := rig.signedSubmission(t, cleanFields())

	if d := rig.engine.Evaluate(context.Background(), sub); !d.Allowed {
		t.Fatalf("first submission should pass, got %s", d.Reason)
	}

	d := rig.engine.Evaluate(context.Background(), rig.signedSubmission(t, cleanFields()))
	if d.Allowed || d.Reason != ReasonRateLimited {
		t.Fatalf("decision = %+v, want RATE_LIMITED", d)
	}
	if d.Window == nil || d.Window.Limit != 1 {
		t.Error("rate-limited decision must carry the window for reset headers")
	}
}

func TestEvaluate_ValidationFailed(t *testing.T) {
	rig := newRig(t)

	tests := []struct {
		name   string
		mutate func(*core.SubmissionContext)
	}{
		{"missing project key", func(s *core.SubmissionContext) { s.ProjectKey = "" }},
		{"missing fields", func(s *core.SubmissionContext) { s.Fields = nil }},
		{"missing timestamp", func(s *core.SubmissionContext) { s.Timestamp = 0 }},
		{"missing signature", func(s *core.SubmissionContext) { s.Signature = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := rig.signedSubmission(t, cleanFields())
			tt.mutate(sub)

			d := rig.engine.Evaluate(context.Background(), sub)
			if d.Allowed || d.Reason != ReasonValidationFailed {
				t.Errorf("decision = %+v, want VALIDATION_FAILED", d)
			}
		})
	}
}

func TestEvaluate_HoneypotShortCircuits(t *testing.T) {
	rig := newRig(t)

	// Filled honeypot plus a garbage signature: the honeypot verdict must
	// come first, proving neither scoring nor signature checks ran.
	sub := rig.signedSubmission(t, cleanFields())
	sub.Honeypot = "x"
	sub.Signature = "not-a-signature"

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonSpamDetected {
		t.Fatalf("decision = %+v, want SPAM_DETECTED", d)
	}
}

func TestEvaluate_ProjectHoneypotField(t *testing.T) {
	rig := newRig(t)

	fields := cleanFields()
	fields["website_url"] = "http://filled.example"
	sub := rig.signedSubmission(t, fields)

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonSpamDetected {
		t.Fatalf("decision = %+v, want SPAM_DETECTED for filled decoy field", d)
	}
}

func TestEvaluate_TimestampBand(t *testing.T) {
	rig := newRig(t)

	tests := []struct {
		name  string
		ageMs int64
		want  Reason
	}{
		{"too fresh", 500, ReasonInvalidTimestamp},
		{"just under the minimum", 1999, ReasonInvalidTimestamp},
		{"exactly the minimum", 2000, ReasonAdmitted},
		{"comfortably inside", 60000, ReasonAdmitted},
		{"exactly the maximum", 300000, ReasonAdmitted},
		{"just past the maximum", 300001, ReasonInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := cleanFields()
			timestamp := rig.now.UnixMilli() - tt.ageMs
			payload, _ := core.CanonicalPayload(testPublicKey, fields, timestamp)

			sub := &core.SubmissionContext{
				ProjectKey: testPublicKey,
				Fields:     fields,
				Timestamp:  timestamp,
				Signature:  core.Sign(payload, testSecretKey),
				UserAgent:  testUA,
				Referer:    "https://example.com",
				Identity:   core.HashIdentity("203.0.113.7", "test-salt"),
			}

			d := rig.engine.Evaluate(context.Background(), sub)
			if d.Reason != tt.want {
				t.Errorf("age %dms: decision = %s, want %s", tt.ageMs, d.Reason, tt.want)
			}
		})
	}
}

func TestEvaluate_ProjectNotFound(t *testing.T) {
	rig := newRig(t)

	sub := rig.signedSubmission(t, cleanFields())
	sub.ProjectKey = "pub_unknown"

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonProjectNotFound {
		t.Fatalf("decision = %+v, want PROJECT_NOT_FOUND", d)
	}
}

func TestEvaluate_BelowVolumeThresholdSkipsPow(t *testing.T) {
	rig := newRig(t)
	rig.store.SetAccepted("proj-1", 40)

	d := rig.engine.Evaluate(context.Background(), rig.signedSubmission(t, cleanFields()))
	if !d.Allowed {
		t.Fatalf("40 prior submissions is below the threshold, got %s", d.Reason)
	}
}

func TestEvaluate_PowRequiredAboveThreshold(t *testing.T) {
	rig := newRig(t)
	rig.store.SetAccepted("proj-1", 60)

	d := rig.engine.Evaluate(context.Background(), rig.signedSubmission(t, cleanFields()))
	if d.Allowed || d.Reason != ReasonPowRequired {
		t.Fatalf("decision = %+v, want POW_REQUIRED", d)
	}
	if d.Challenge == nil {
		t.Fatal("POW_REQUIRED must carry a fresh challenge")
	}
	if d.Challenge.Difficulty != 3 {
		t.Errorf("difficulty = %d, want 3 for 60 prior submissions", d.Challenge.Difficulty)
	}
}

func TestEvaluate_SolvedChallengeAdmits(t *testing.T) {
	rig := newRig(t)
	rig.store.SetAccepted("proj-1", 60)

	first := rig.engine.Evaluate(context.Background(), rig.signedSubmission(t, cleanFields()))
	if first.Reason != ReasonPowRequired {
		t.Fatalf("expected challenge round, got %s", first.Reason)
	}

	sol, err := client.SolveChallenge(context.Background(), *first.Challenge)
	if err != nil {
		t.Fatalf("SolveChallenge: %v", err)
	}

	retry := rig.signedSubmission(t, cleanFields())
	retry.ProofOfWork = &sol

	d := rig.engine.Evaluate(context.Background(), retry)
	if !d.Allowed {
		t.Fatalf("solved challenge should admit, got %s (%s)", d.Reason, d.Message)
	}
}

func TestEvaluate_InvalidPow(t *testing.T) {
	rig := newRig(t)
	rig.store.SetAccepted("proj-1", 60)

	sub := rig.signedSubmission(t, cleanFields())
	sub.ProofOfWork = &core.Solution{
		Challenge: "deadbeef",
		Nonce:     "1",
		Timestamp: rig.now.UnixMilli(),
	}

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonInvalidPow {
		t.Fatalf("decision = %+v, want INVALID_POW", d)
	}
}

func TestEvaluate_SecurityCheckFailed(t *testing.T) {
	rig := newRig(t)

	// Empty fields with no provenance scores 60.
	timestamp := rig.now.UnixMilli() - 10000
	fields := map[string]any{}
	payload, _ := core.CanonicalPayload(testPublicKey, fields, timestamp)
	sub := &core.SubmissionContext{
		ProjectKey: testPublicKey,
		Fields:     fields,
		Timestamp:  timestamp,
		Signature:  core.Sign(payload, testSecretKey),
		UserAgent:  testUA,
		Identity:   core.HashIdentity("203.0.113.7", "test-salt"),
	}

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonSecurityCheckFailed {
		t.Fatalf("decision = %+v, want SECURITY_CHECK_FAILED", d)
	}
	if d.Score == nil || d.Score.Score < 50 {
		t.Error("failed decision must carry the score result")
	}
	if len(d.Score.Checks) == 0 {
		t.Error("failed decision must name the triggered checks")
	}
}

func TestEvaluate_InvalidSignature(t *testing.T) {
	rig := newRig(t)

	sub := rig.signedSubmission(t, cleanFields())
	sub.Signature = core.Sign([]byte("different payload"), testSecretKey)

	d := rig.engine.Evaluate(context.Background(), sub)
	if d.Allowed || d.Reason != ReasonInvalidSignature {
		t.Fatalf("decision = %+v, want INVALID_SIGNATURE", d)
	}
}

func TestEvaluate_HighFrequencyIdentityFailsScoring(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	// Six accepted submissions from one identity within the hour push the
	// frequency signal (35) over the threshold together with any other
	// signal; here provenance is present, so frequency alone is not enough,
	// but frequency plus a short user agent is.
	for i := 0; i < 6; i++ {
		d := rig.engine.Evaluate(ctx, rig.signedSubmission(t, cleanFields()))
		if !d.Allowed {
			t.Fatalf("warm-up submission %d rejected: %s", i, d.Reason)
		}
	}

	timestamp := rig.now.UnixMilli() - 10000
	fields := cleanFields()
	payload, _ := core.CanonicalPayload(testPublicKey, fields, timestamp)
	sub := &core.SubmissionContext{
		ProjectKey: testPublicKey,
		Fields:     fields,
		Timestamp:  timestamp,
		Signature:  core.Sign(payload, testSecretKey),
		UserAgent:  "curl/8",
		Referer:    "https://example.com",
		Identity:   core.HashIdentity("203.0.113.7", "test-salt"),
	}

	d := rig.engine.Evaluate(ctx, sub)
	if d.Allowed || d.Reason != ReasonSecurityCheckFailed {
		t.Fatalf("decision = %+v, want SECURITY_CHECK_FAILED", d)
	}
}

func TestEvaluate_RejectionsAreAudited(t *testing.T) {
	rig := newRig(t)

	sub := rig.signedSubmission(t, cleanFields())
	sub.Honeypot = "x"
	rig.engine.Evaluate(context.Background(), sub)

	events := rig.sink.Events()
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].Type != "submission_rejected" {
		t.Errorf("event type = %s, want submission_rejected", events[0].Type)
	}
	if events[0].Metadata["reason"] != string(ReasonSpamDetected) {
		t.Errorf("event reason = %v, want SPAM_DETECTED", events[0].Metadata["reason"])
	}

	// The audit record carries only a partial identity hash.
	identity, _ := events[0].Metadata["identity"].(string)
	if len(identity) > 12 {
		t.Errorf("identity in audit metadata = %q, want at most 12 chars", identity)
	}
}

func TestEvaluate_CounterOutageDoesNotDeny(t *testing.T) {
	rig := newRig(t)
	rig.engine.store = &downStore{}
	rig.engine.limiter = &limiter.AlwaysAllow{Limit: 10}

	d := rig.engine.Evaluate(context.Background(), rig.signedSubmission(t, cleanFields()))
	if !d.Allowed {
		t.Fatalf("counter store outage must not deny a clean submission, got %s", d.Reason)
	}
}

// downStore fails every operation, like Redis being unreachable.
type downStore struct{}

func (d *downStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}

func (d *downStore) CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (d *downStore) IncrAccepted(ctx context.Context, projectID string) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (d *downStore) AcceptedCount(ctx context.Context, projectID string) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (d *downStore) Ping(ctx context.Context) error { return context.DeadlineExceeded }

func (d *downStore) Close() error { return nil }
