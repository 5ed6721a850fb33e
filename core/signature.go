package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SigningPayload is the exact shape covered by the submission signature.
// The serialized bytes are the contract: both signer and verifier must
// produce the identical encoding of {projectKey, fields, timestamp}.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so the encoding is deterministic on both sides.
type SigningPayload struct {
	ProjectKey string         `json:"projectKey"`
	Fields     map[string]any `json:"fields"`
	Timestamp  int64          `json:"timestamp"`
}

// CanonicalPayload serializes the signing payload to its canonical byte form.
func CanonicalPayload(projectKey string, fields map[string]any, timestamp int64) ([]byte, error) {
	data, err := json.Marshal(SigningPayload{
		ProjectKey: projectKey,
		Fields:     fields,
		Timestamp:  timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signing payload: %w", err)
	}
	return data, nil
}

// Sign computes the HMAC-SHA256 signature of data under secret, hex-encoded.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature recomputes the HMAC of data and compares it against the
// supplied hex signature in constant time. It fails closed: malformed hex or
// a length mismatch is a verification failure, never an error.
func VerifySignature(data []byte, signature, secret string) bool {
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	expected := h.Sum(nil)

	// hmac.Equal is constant time and rejects length mismatches.
	return hmac.Equal(given, expected)
}
