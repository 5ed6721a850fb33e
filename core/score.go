package core

import (
	"fmt"
	"regexp"
	"strings"
)

// ScorePolicy is the single source of truth for the heuristic scoring
// weights and the pass/fail threshold. The weights are policy, not
// algorithm: changing them never requires touching the scoring loop.
type ScorePolicy struct {
	Threshold int

	SuspiciousUserAgent int
	BotUserAgent        int
	MissingProvenance   int
	EmptySubmission     int
	TooManyFields       int
	ExcessiveText       int
	SuspiciousContent   int
	HighFrequency       int

	MaxFields          int
	MaxTextLength      int
	MinUserAgentLength int
	MaxRecentAccepted  int64
}

// DefaultScorePolicy returns the production weight table. A total at or above
// the threshold fails the submission.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		Threshold: 50,

		SuspiciousUserAgent: 30,
		BotUserAgent:        25,
		MissingProvenance:   20,
		EmptySubmission:     40,
		TooManyFields:       25,
		ExcessiveText:       20,
		SuspiciousContent:   15,
		HighFrequency:       35,

		MaxFields:          50,
		MaxTextLength:      10000,
		MinUserAgentLength: 10,
		MaxRecentAccepted:  5,
	}
}

// ScoreResult is the outcome of evaluating all scoring signals against one
// submission. Produced once per submission, logged, then discarded.
type ScoreResult struct {
	Passed   bool
	Score    int
	Checks   []string
	Metadata map[string]any
}

// Signal is one independent scoring heuristic. Match is pure: it reads the
// submission context and nothing else.
type Signal struct {
	Name   string
	Weight int
	Match  func(*SubmissionContext) bool
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https?://\S+`),
	regexp.MustCompile(`\b(?:viagra|casino|poker|loan|bitcoin|crypto)\b`),
	regexp.MustCompile(`[^\w\s]{10,}`),
}

// Signals returns the ordered signal set for this policy. Adding a signal is
// a matter of appending here; the scoring loop never changes.
func (p ScorePolicy) Signals() []Signal {
	return []Signal{
		{
			Name:   "suspicious_user_agent",
			Weight: p.SuspiciousUserAgent,
			Match: func(c *SubmissionContext) bool {
				return c.UserAgent == "" || len(c.UserAgent) < p.MinUserAgentLength
			},
		},
		{
			Name:   "bot_user_agent",
			Weight: p.BotUserAgent,
			Match: func(c *SubmissionContext) bool {
				ua := strings.ToLower(c.UserAgent)
				return strings.Contains(ua, "bot") ||
					strings.Contains(ua, "crawler") ||
					strings.Contains(ua, "spider")
			},
		},
		{
			Name:   "missing_referer_origin",
			Weight: p.MissingProvenance,
			Match: func(c *SubmissionContext) bool {
				return c.Referer == "" && c.Origin == ""
			},
		},
		{
			Name:   "empty_submission",
			Weight: p.EmptySubmission,
			Match: func(c *SubmissionContext) bool {
				return c.FieldCount() == 0
			},
		},
		{
			Name:   "too_many_fields",
			Weight: p.TooManyFields,
			Match: func(c *SubmissionContext) bool {
				return c.FieldCount() > p.MaxFields
			},
		},
		{
			Name:   "excessive_text_length",
			Weight: p.ExcessiveText,
			Match: func(c *SubmissionContext) bool {
				return totalTextLength(c.Fields) > p.MaxTextLength
			},
		},
		{
			Name:   "suspicious_content",
			Weight: p.SuspiciousContent,
			Match:  matchSuspiciousContent,
		},
		{
			Name:   "high_frequency_ip",
			Weight: p.HighFrequency,
			Match: func(c *SubmissionContext) bool {
				return c.RecentFromIdentity > p.MaxRecentAccepted
			},
		},
	}
}

// Score evaluates every signal against the submission and folds the weights
// into a total. All signals run unconditionally so the metadata is complete
// for audit; there is no early exit.
func (p ScorePolicy) Score(c *SubmissionContext) ScoreResult {
	score := 0
	checks := []string{}

	for _, sig := range p.Signals() {
		if sig.Match(c) {
			score += sig.Weight
			checks = append(checks, sig.Name)
		}
	}

	metadata := map[string]any{
		"userAgent":         truncate(c.UserAgent, 100),
		"referer":           truncate(c.Referer, 100),
		"origin":            truncate(c.Origin, 100),
		"fieldCount":        c.FieldCount(),
		"textLength":        totalTextLength(c.Fields),
		"recentSubmissions": c.RecentFromIdentity,
		"checks":            checks,
	}

	return ScoreResult{
		Passed:   score < p.Threshold,
		Score:    score,
		Checks:   checks,
		Metadata: metadata,
	}
}

// Reason joins the triggered check names for audit logs.
func (r ScoreResult) Reason() string {
	return strings.Join(r.Checks, ", ")
}

// matchSuspiciousContent scans the concatenated field values for URLs, spam
// keywords and long runs of symbol characters. A pattern occurring more than
// twice triggers the signal; the first matching pattern wins and the weight
// is applied once.
func matchSuspiciousContent(c *SubmissionContext) bool {
	parts := make([]string, 0, len(c.Fields))
	for _, v := range c.Fields {
		parts = append(parts, fmt.Sprint(v))
	}
	allText := strings.ToLower(strings.Join(parts, " "))

	for _, pattern := range suspiciousPatterns {
		if len(pattern.FindAllString(allText, -1)) > 2 {
			return true
		}
	}
	return false
}

func totalTextLength(fields map[string]any) int {
	total := 0
	for _, v := range fields {
		if s, ok := v.(string); ok {
			total += len(s)
		}
	}
	return total
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
