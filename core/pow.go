package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// MaxSolutionAge bounds how old a proof-of-work solution may be. Outside this
// window a solution is rejected regardless of its digest.
const MaxSolutionAge = 5 * time.Minute

// ChallengeTokenBytes is the entropy of a challenge token.
const ChallengeTokenBytes = 16

// Challenge is a proof-of-work puzzle handed to a client. The server keeps no
// record of issued challenges: validity is fully determined by recomputation
// at verification time. That keeps the verifier stateless across replicas but
// means a solved challenge has no enforced single-use property beyond the
// freshness window; see the known-limitations note in DESIGN.md.
type Challenge struct {
	Challenge  string `json:"challenge"`
	Difficulty int    `json:"difficulty"`
	Timestamp  int64  `json:"timestamp"`
}

// Solution is a client's answer to a challenge: a decimal nonce such that
// sha256(challenge+nonce) has the required count of leading zero hex digits.
type Solution struct {
	Challenge string `json:"challenge"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// NewChallenge generates a fresh challenge with a cryptographically random
// token at the given difficulty.
func NewChallenge(difficulty int) (Challenge, error) {
	token := make([]byte, ChallengeTokenBytes)
	if _, err := rand.Read(token); err != nil {
		return Challenge{}, fmt.Errorf("failed to generate challenge token: %w", err)
	}
	return Challenge{
		Challenge:  hex.EncodeToString(token),
		Difficulty: difficulty,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// SolutionDigest computes the hex digest checked by VerifySolution. Exposed
// so that clients and tests share the exact digest construction.
func SolutionDigest(challenge, nonce string) string {
	sum := sha256.Sum256([]byte(challenge + nonce))
	return hex.EncodeToString(sum[:])
}

// VerifySolution checks a solution at the given difficulty. The solution must
// be fresher than MaxSolutionAge relative to now, and its digest must start
// with difficulty leading '0' hex digits. The nonce is an arbitrary-length
// decimal string; nothing beyond the freshness window bounds it.
func VerifySolution(sol Solution, difficulty int, now time.Time) bool {
	if now.UnixMilli()-sol.Timestamp > MaxSolutionAge.Milliseconds() {
		return false
	}

	target := strings.Repeat("0", difficulty)
	return strings.HasPrefix(SolutionDigest(sol.Challenge, sol.Nonce), target)
}

// DifficultyFor maps a project's prior accepted-submission count to the
// required leading-zero count. Monotonically non-decreasing: busier projects
// pay more per submission.
func DifficultyFor(submissionCount int64) int {
	switch {
	case submissionCount < 100:
		return 3
	case submissionCount < 1000:
		return 4
	case submissionCount < 10000:
		return 5
	default:
		return 6
	}
}
