package limiter

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/metrics"
	"github.com/abhi-yo/formify/store"
)

// Limiter gates one class of operation (submit, export, upload, project
// creation). Each instance is independently keyed and stateful; the window
// and limit are configuration, not behavior.
type Limiter interface {
	// Check records the request for identity and reports whether it is
	// inside the limit.
	Check(ctx context.Context, identity string) core.WindowResult
}

// Policy is one limiter's window/limit pair.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Sliding is the store-backed sliding-window limiter. Requests older than
// the window no longer count; the reset time is when the oldest counted
// request exits the window.
//
// Degraded mode: when the counter store is unreachable the limiter fails
// OPEN. A store outage must not become a total-denial outage; every
// fail-open decision is logged and counted.
type Sliding struct {
	name   string
	policy Policy
	store  store.Store
	logger *zap.Logger

	now func() time.Time
}

var _ Limiter = (*Sliding)(nil)

// NewSliding creates a sliding-window limiter for one operation class.
func NewSliding(name string, policy Policy, st store.Store, logger *zap.Logger) *Sliding {
	return &Sliding{
		name:   name,
		policy: policy,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

func (l *Sliding) Check(ctx context.Context, identity string) core.WindowResult {
	if identity == "" {
		// A malformed identity degrades to a single global bucket rather
		// than an unbounded per-request key.
		identity = "global"
	}

	now := l.now()
	key := "rl:" + l.name + ":" + identity

	count, oldest, err := l.store.Slide(ctx, key, now, l.policy.Window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("limiter", l.name),
			zap.Error(err),
		)
		metrics.RateLimitFailOpen.WithLabelValues(l.name).Inc()
		return core.WindowResult{
			Allowed:   true,
			Limit:     l.policy.Limit,
			Remaining: l.policy.Limit,
			ResetAt:   now.Add(l.policy.Window),
		}
	}

	result := core.EvalWindow(count, oldest, now, l.policy.Limit, l.policy.Window)
	metrics.RateLimitChecks.WithLabelValues(l.name, strconv.FormatBool(result.Allowed)).Inc()
	return result
}

// AlwaysAllow is the limiter used when no shared counter store is
// configured: rate limiting is disabled by construction instead of by
// nil-checks at every call site.
type AlwaysAllow struct {
	Limit int64
}

var _ Limiter = (*AlwaysAllow)(nil)

func (a *AlwaysAllow) Check(ctx context.Context, identity string) core.WindowResult {
	return core.WindowResult{
		Allowed:   true,
		Limit:     a.Limit,
		Remaining: a.Limit,
		ResetAt:   time.Now(),
	}
}
