package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/abhi-yo/formify/audit"
	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/limiter"
	"github.com/abhi-yo/formify/metrics"
	"github.com/abhi-yo/formify/store"
)

// Config holds the engine's policy constants. The proof-of-work volume
// threshold is independent of the difficulty step function; the timestamp
// band rejects too-fresh submissions (pre-computed replay scripts) as well
// as too-stale ones (bounds the signature replay window).
type Config struct {
	// PowVolumeThreshold is the prior accepted count above which a
	// submission must carry a proof of work.
	PowVolumeThreshold int64

	// MinSubmissionAge and MaxSubmissionAge bound the declared timestamp's
	// age at receipt.
	MinSubmissionAge time.Duration
	MaxSubmissionAge time.Duration

	// HighFrequencyWindow is the trailing span for the per-identity
	// frequency signal.
	HighFrequencyWindow time.Duration

	Score core.ScorePolicy
}

// DefaultConfig returns the production policy constants.
func DefaultConfig() Config {
	return Config{
		PowVolumeThreshold:  50,
		MinSubmissionAge:    2 * time.Second,
		MaxSubmissionAge:    5 * time.Minute,
		HighFrequencyWindow: time.Hour,
		Score:               core.DefaultScorePolicy(),
	}
}

// Engine runs every inbound submission through the fixed verification
// order: rate limit, payload validation, honeypot, timestamp freshness,
// conditional proof of work, content scoring, signature. The first
// rejection short-circuits the rest; cheap checks run before expensive
// cryptographic and scoring work.
type Engine struct {
	cfg       Config
	limiter   limiter.Limiter
	store     store.Store
	directory ProjectDirectory
	recorder  Recorder
	sink      audit.Sink
	logger    *zap.Logger

	now func() time.Time
}

// New wires an engine from its collaborators. All instances are constructed
// explicitly at bootstrap; the engine holds no implicit globals.
func New(cfg Config, lim limiter.Limiter, st store.Store, dir ProjectDirectory, rec Recorder, sink audit.Sink, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		limiter:   lim,
		store:     st,
		directory: dir,
		recorder:  rec,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate decides whether one submission is admitted. It never writes
// durably itself: on admission the recorder collaborator mints the
// submission ID, and the shared counters are advanced for future checks.
func (e *Engine) Evaluate(ctx context.Context, sub *core.SubmissionContext) Decision {
	d := e.evaluate(ctx, sub)
	metrics.DecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
	return d
}

func (e *Engine) evaluate(ctx context.Context, sub *core.SubmissionContext) Decision {
	// Stage 1: rate limit. Failing open on store outages is the limiter's
	// own policy; a denial here is the cheapest possible rejection.
	var window core.WindowResult
	e.timed("rate_limit", func() { window = e.limiter.Check(ctx, sub.Identity) })
	if !window.Allowed {
		d := rejected(ReasonRateLimited, "Too many requests")
		d.Window = &window
		e.reject(ctx, "", sub, d, map[string]any{
			"limit":   window.Limit,
			"resetAt": window.ResetAt.Unix(),
		})
		return d
	}

	// Stage 2: payload shape.
	if msg, ok := validate(sub); !ok {
		d := rejected(ReasonValidationFailed, msg)
		e.reject(ctx, "", sub, d, map[string]any{"detail": msg})
		return d
	}

	// Stage 3: honeypot. Conclusive, no scoring needed.
	if sub.Honeypot != "" {
		d := rejected(ReasonSpamDetected, "Spam detected")
		e.reject(ctx, "", sub, d, nil)
		return d
	}

	// Stage 4: timestamp freshness band.
	age := e.now().UnixMilli() - sub.Timestamp
	if age < e.cfg.MinSubmissionAge.Milliseconds() || age > e.cfg.MaxSubmissionAge.Milliseconds() {
		d := rejected(ReasonInvalidTimestamp, "Invalid timestamp")
		e.reject(ctx, "", sub, d, map[string]any{"ageMs": age})
		return d
	}

	// Resolve the tenant. The secret for signature verification and the
	// project-scoped counters both need the record.
	project, err := e.directory.LookupByPublicKey(ctx, sub.ProjectKey)
	if errors.Is(err, ErrProjectNotFound) {
		d := rejected(ReasonProjectNotFound, "Project not found")
		e.reject(ctx, "", sub, d, nil)
		return d
	}
	if err != nil {
		return e.internal(ctx, sub, fmt.Errorf("project lookup: %w", err))
	}

	// Per-form decoy fields, when the project has one configured.
	if core.DetectHoneypot(sub.Fields, project.HoneypotField) {
		d := rejected(ReasonSpamDetected, "Spam detected")
		e.reject(ctx, project.ID, sub, d, map[string]any{"field": project.HoneypotField})
		return d
	}

	// Stage 5: conditional proof-of-work gate.
	if d, ok := e.checkProofOfWork(ctx, sub, project); !ok {
		return d
	}

	// Stage 6: content scoring. All signals run; the frequency signal needs
	// the trailing-hour accepted count for this identity+project.
	recent, err := e.store.CountInWindow(ctx, freqKey(project.ID, sub.Identity), e.now(), e.cfg.HighFrequencyWindow)
	if err != nil {
		// Same dependency and same policy as the rate limiter: a counter
		// outage degrades the frequency signal instead of denying service.
		e.logger.Warn("frequency count unavailable", zap.Error(err))
		recent = 0
	}
	sub.RecentFromIdentity = recent

	var result core.ScoreResult
	e.timed("score", func() { result = e.cfg.Score.Score(sub) })
	if !result.Passed {
		d := rejected(ReasonSecurityCheckFailed, "Security check failed")
		d.Score = &result
		e.reject(ctx, project.ID, sub, d, map[string]any{
			"securityScore": result.Score,
			"failedChecks":  result.Checks,
		})
		return d
	}

	// Stage 7: signature. A primitive that cannot execute fails closed.
	payload, err := core.CanonicalPayload(sub.ProjectKey, sub.Fields, sub.Timestamp)
	if err != nil {
		return e.internal(ctx, sub, fmt.Errorf("canonical payload: %w", err))
	}
	verified := false
	e.timed("signature", func() { verified = core.VerifySignature(payload, sub.Signature, project.SecretKey) })
	if !verified {
		d := rejected(ReasonInvalidSignature, "Invalid signature")
		e.reject(ctx, project.ID, sub, d, nil)
		return d
	}

	// Stage 8: admit. Advance the shared counters, persist, audit.
	if _, err := e.store.IncrAccepted(ctx, project.ID); err != nil {
		e.logger.Warn("accepted counter not advanced", zap.Error(err))
	}
	if _, _, err := e.store.Slide(ctx, freqKey(project.ID, sub.Identity), e.now(), e.cfg.HighFrequencyWindow); err != nil {
		e.logger.Warn("identity frequency not recorded", zap.Error(err))
	}

	submissionID, err := e.recorder.Create(ctx, Submission{
		ProjectID:    project.ID,
		IdentityHash: sub.Identity,
		UserAgent:    sub.UserAgent,
		Fields:       sub.Fields,
	})
	if err != nil {
		return e.internal(ctx, sub, fmt.Errorf("record submission: %w", err))
	}

	e.audit(ctx, project.ID, "submission_received", map[string]any{
		"submissionId": submissionID,
		"fieldsCount":  sub.FieldCount(),
		"identity":     shortIdentity(sub.Identity),
	})

	return admitted(submissionID)
}

// checkProofOfWork applies the volume-gated proof-of-work stage. The second
// return value is false when the pipeline must stop with the given decision.
func (e *Engine) checkProofOfWork(ctx context.Context, sub *core.SubmissionContext, project *Project) (Decision, bool) {
	prior, err := e.store.AcceptedCount(ctx, project.ID)
	if err != nil {
		// Unknown volume reads as zero: the gate stays closed, consistent
		// with the counter store's fail-open policy. Verification itself
		// never degrades; it is pure computation.
		e.logger.Warn("accepted count unavailable, skipping pow gate", zap.Error(err))
		return Decision{}, true
	}

	if prior <= e.cfg.PowVolumeThreshold {
		return Decision{}, true
	}

	difficulty := core.DifficultyFor(prior)

	if sub.ProofOfWork == nil {
		challenge, err := core.NewChallenge(difficulty)
		if err != nil {
			return e.internal(ctx, sub, fmt.Errorf("issue challenge: %w", err)), false
		}
		metrics.PowChallengesIssued.Inc()

		d := rejected(ReasonPowRequired, "Proof of work required")
		d.Challenge = &challenge
		e.reject(ctx, project.ID, sub, d, map[string]any{"difficulty": difficulty})
		return d, false
	}

	valid := core.VerifySolution(*sub.ProofOfWork, difficulty, e.now())
	metrics.PowVerifications.WithLabelValues(strconv.FormatBool(valid)).Inc()
	if !valid {
		d := rejected(ReasonInvalidPow, "Invalid proof of work")
		e.reject(ctx, project.ID, sub, d, map[string]any{"difficulty": difficulty})
		return d, false
	}

	return Decision{}, true
}

func (e *Engine) internal(ctx context.Context, sub *core.SubmissionContext, err error) Decision {
	e.logger.Error("pipeline dependency fault", zap.Error(err))
	d := rejected(ReasonInternalError, "Internal server error")
	e.audit(ctx, "", "submission_error", map[string]any{
		"identity": shortIdentity(sub.Identity),
	})
	return d
}

// reject logs and audits an expected rejection. Warn level, partial identity
// hash only, never secrets.
func (e *Engine) reject(ctx context.Context, projectID string, sub *core.SubmissionContext, d Decision, extra map[string]any) {
	e.logger.Warn("submission rejected",
		zap.String("reason", string(d.Reason)),
		zap.String("project_id", projectID),
		zap.String("identity", shortIdentity(sub.Identity)),
		zap.Any("detail", extra),
	)

	metadata := map[string]any{
		"reason":   string(d.Reason),
		"identity": shortIdentity(sub.Identity),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	e.audit(ctx, projectID, "submission_rejected", metadata)
}

func (e *Engine) audit(ctx context.Context, projectID, eventType string, metadata map[string]any) {
	if err := e.sink.Record(ctx, audit.NewEvent(projectID, eventType, metadata)); err != nil {
		e.logger.Error("audit sink failed", zap.Error(err))
	}
}

// timed records one stage's latency.
func (e *Engine) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func validate(sub *core.SubmissionContext) (string, bool) {
	switch {
	case sub.ProjectKey == "":
		return "projectKey is required", false
	case sub.Fields == nil:
		return "fields is required", false
	case sub.Timestamp <= 0:
		return "timestamp is required", false
	case sub.Signature == "":
		return "signature is required", false
	}
	return "", true
}

func freqKey(projectID, identity string) string {
	return "freq:" + projectID + ":" + identity
}

func shortIdentity(identity string) string {
	if len(identity) <= 12 {
		return identity
	}
	return identity[:12]
}
