package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/engine"
)

// Handler binds the submission pipeline to HTTP.
type Handler struct {
	engine *engine.Engine
	salt   string
}

// NewHandler creates the submit endpoint handler. salt is the process-wide
// identity salt, loaded once at startup.
func NewHandler(eng *engine.Engine, salt string) *Handler {
	return &Handler{engine: eng, salt: salt}
}

// SubmitRequest is the wire shape of a form submission.
type SubmitRequest struct {
	ProjectKey  string         `json:"projectKey"`
	Fields      map[string]any `json:"fields"`
	Honeypot    string         `json:"honeypot,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Signature   string         `json:"signature"`
	ProofOfWork *core.Solution `json:"proofOfWork,omitempty"`
}

// SubmitResponse is returned on admission.
type SubmitResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
}

// ErrorResponse is returned on rejection. Challenge is present only for
// POW_REQUIRED; RetryAfterSeconds only for RATE_LIMITED.
type ErrorResponse struct {
	Error             string          `json:"error"`
	RetryAfterSeconds int64           `json:"retryAfterSeconds,omitempty"`
	Challenge         *core.Challenge `json:"challenge,omitempty"`
}

// Submit handles POST /api/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.preflight(w)
		return
	}
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	sub := &core.SubmissionContext{
		ProjectKey:  req.ProjectKey,
		Fields:      req.Fields,
		Honeypot:    req.Honeypot,
		Timestamp:   req.Timestamp,
		Signature:   req.Signature,
		UserAgent:   r.Header.Get("User-Agent"),
		Referer:     r.Header.Get("Referer"),
		Origin:      r.Header.Get("Origin"),
		Identity:    core.HashIdentity(core.ClientIP(r), h.salt),
		ProofOfWork: req.ProofOfWork,
	}

	decision := h.engine.Evaluate(r.Context(), sub)
	h.writeDecision(w, decision)
}

func (h *Handler) writeDecision(w http.ResponseWriter, d engine.Decision) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if d.Allowed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(SubmitResponse{
			Success:      true,
			SubmissionID: d.SubmissionID,
		})
		return
	}

	resp := ErrorResponse{Error: d.Message}

	if d.Reason == engine.ReasonRateLimited && d.Window != nil {
		retryAfter := int64(d.Window.RetryAfter(time.Now()).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		resp.RetryAfterSeconds = retryAfter

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Window.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Window.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Window.ResetAt.Unix(), 10))
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	}

	if d.Reason == engine.ReasonPowRequired {
		resp.Challenge = d.Challenge
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.HTTPStatus())
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) preflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "formify",
	})
}
