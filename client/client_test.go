package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhi-yo/formify/core"
)

const (
	testProjectKey = "pub_0123456789abcdef0123456789abcdef"
	testSecretKey  = "sec_fedcba9876543210fedcba9876543210"
)

// fakeServer verifies signatures and, when demandPow is set, requires a
// valid proof of work before admitting.
func fakeServer(t *testing.T, demandPow bool) *httptest.Server {
	t.Helper()

	challenge, err := core.NewChallenge(2)
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var req submitPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		payload, err := core.CanonicalPayload(req.ProjectKey, req.Fields, req.Timestamp)
		if err != nil || !core.VerifySignature(payload, req.Signature, testSecretKey) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(errorPayload{Error: "Invalid signature"})
			return
		}

		if demandPow {
			if req.ProofOfWork == nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(errorPayload{
					Error:     "Proof of work required",
					Challenge: &challenge,
				})
				return
			}
			if !core.VerifySolution(*req.ProofOfWork, challenge.Difficulty, time.Now()) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(errorPayload{Error: "Invalid proof of work"})
				return
			}
		}

		json.NewEncoder(w).Encode(Result{Success: true, SubmissionID: "sub-1"})
	}))
}

func TestSubmit(t *testing.T) {
	srv := fakeServer(t, false)
	defer srv.Close()

	c := New(srv.URL, testProjectKey, testSecretKey, WithHTTPClient(srv.Client()))
	result, err := c.Submit(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.Success || result.SubmissionID != "sub-1" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmit_SolvesChallengeAndRetries(t *testing.T) {
	srv := fakeServer(t, true)
	defer srv.Close()

	c := New(srv.URL, testProjectKey, testSecretKey, WithHTTPClient(srv.Client()))
	result, err := c.Submit(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Submit with challenge round: %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmit_WrongSecretRejected(t *testing.T) {
	srv := fakeServer(t, false)
	defer srv.Close()

	c := New(srv.URL, testProjectKey, "sec_wrong", WithHTTPClient(srv.Client()))
	if _, err := c.Submit(context.Background(), map[string]any{"name": "Ada"}); err == nil {
		t.Fatal("expected rejection with a wrong signing secret")
	}
}
