package formify

import (
	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/engine"
)

// Re-export main types for convenience
type (
	Challenge         = core.Challenge
	Solution          = core.Solution
	SubmissionContext = core.SubmissionContext
	ScorePolicy       = core.ScorePolicy
	Decision          = engine.Decision
	Reason            = engine.Reason
)

// DefaultScorePolicy returns the production scoring weight table.
var DefaultScorePolicy = core.DefaultScorePolicy
