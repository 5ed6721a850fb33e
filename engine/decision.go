package engine

import (
	"net/http"

	"github.com/abhi-yo/formify/core"
)

// Reason classifies a pipeline decision. Every rejection carries exactly one
// reason; POW_REQUIRED is soft, a request for more work rather than a
// failure.
type Reason string

const (
	ReasonAdmitted            Reason = "ADMITTED"
	ReasonRateLimited         Reason = "RATE_LIMITED"
	ReasonValidationFailed    Reason = "VALIDATION_FAILED"
	ReasonProjectNotFound     Reason = "PROJECT_NOT_FOUND"
	ReasonSpamDetected        Reason = "SPAM_DETECTED"
	ReasonInvalidTimestamp    Reason = "INVALID_TIMESTAMP"
	ReasonPowRequired         Reason = "POW_REQUIRED"
	ReasonInvalidPow          Reason = "INVALID_POW"
	ReasonSecurityCheckFailed Reason = "SECURITY_CHECK_FAILED"
	ReasonInvalidSignature    Reason = "INVALID_SIGNATURE"
	ReasonInternalError       Reason = "INTERNAL_ERROR"
)

// Decision is the result of running one submission through the pipeline.
type Decision struct {
	Allowed bool
	Reason  Reason
	Message string

	// Window is set on RATE_LIMITED so the transport can emit reset headers.
	Window *core.WindowResult

	// Challenge is set on POW_REQUIRED.
	Challenge *core.Challenge

	// Score is set on SECURITY_CHECK_FAILED.
	Score *core.ScoreResult

	// SubmissionID is set on admission; it is minted by the persistence
	// collaborator, not by the pipeline.
	SubmissionID string
}

// HTTPStatus maps a decision to its HTTP binding.
func (d Decision) HTTPStatus() int {
	if d.Allowed {
		return http.StatusOK
	}
	switch d.Reason {
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonProjectNotFound:
		return http.StatusNotFound
	case ReasonInvalidSignature:
		return http.StatusUnauthorized
	case ReasonInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func admitted(submissionID string) Decision {
	return Decision{Allowed: true, Reason: ReasonAdmitted, SubmissionID: submissionID}
}

func rejected(reason Reason, message string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: message}
}
