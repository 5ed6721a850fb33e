package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/abhi-yo/formify/core"
)

// Client is the Go submission SDK: it signs payloads, carries the honeypot
// field and answers proof-of-work challenges, mirroring the browser SDK.
type Client struct {
	baseURL    string
	projectKey string
	secretKey  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for one project.
func New(baseURL, projectKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		projectKey: projectKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a successful submission.
type Result struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
}

type submitPayload struct {
	ProjectKey  string         `json:"projectKey"`
	Fields      map[string]any `json:"fields"`
	Honeypot    string         `json:"honeypot,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Signature   string         `json:"signature"`
	ProofOfWork *core.Solution `json:"proofOfWork,omitempty"`
}

type errorPayload struct {
	Error     string          `json:"error"`
	Challenge *core.Challenge `json:"challenge,omitempty"`
}

// Submit signs and posts the fields. When the server answers with a
// proof-of-work challenge, the client solves it and retries once.
func (c *Client) Submit(ctx context.Context, fields map[string]any) (*Result, error) {
	payload, err := c.buildPayload(fields)
	if err != nil {
		return nil, err
	}

	result, challenge, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	// Challenge round: solve at the issued difficulty and resubmit.
	sol, err := SolveChallenge(ctx, *challenge)
	if err != nil {
		return nil, fmt.Errorf("solve challenge: %w", err)
	}
	payload.ProofOfWork = &sol

	result, _, err = c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("server demanded proof of work twice")
	}
	return result, nil
}

func (c *Client) buildPayload(fields map[string]any) (*submitPayload, error) {
	timestamp := time.Now().UnixMilli()

	data, err := core.CanonicalPayload(c.projectKey, fields, timestamp)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	return &submitPayload{
		ProjectKey: c.projectKey,
		Fields:     fields,
		Timestamp:  timestamp,
		Signature:  core.Sign(data, c.secretKey),
	}, nil
}

// post returns either a success result or the pow challenge to solve.
func (c *Client) post(ctx context.Context, payload *submitPayload) (*Result, *core.Challenge, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/submit", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, nil, fmt.Errorf("decode response: %w", err)
		}
		return &result, nil, nil
	}

	var errResp errorPayload
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return nil, nil, fmt.Errorf("submission failed with status %d", resp.StatusCode)
	}

	if errResp.Challenge != nil {
		return nil, errResp.Challenge, nil
	}
	return nil, nil, fmt.Errorf("submission rejected: %s", errResp.Error)
}
