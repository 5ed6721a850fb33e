package client

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/abhi-yo/formify/core"
)

// solveBatchSize bounds how many nonces are tried per scheduling quantum.
// Between batches the loop checks for cancellation, so the search never
// occupies the caller for an unbounded span without an exit point.
const solveBatchSize = 10000

// SolveChallenge brute-forces a proof-of-work solution: nonces count up from
// zero until the digest carries the required leading-zero prefix. The search
// is unbounded in wall-clock time, so it is cancellable through ctx.
func SolveChallenge(ctx context.Context, ch core.Challenge) (core.Solution, error) {
	target := strings.Repeat("0", ch.Difficulty)

	var nonce uint64
	for {
		for i := 0; i < solveBatchSize; i++ {
			ns := strconv.FormatUint(nonce, 10)
			if strings.HasPrefix(core.SolutionDigest(ch.Challenge, ns), target) {
				return core.Solution{
					Challenge: ch.Challenge,
					Nonce:     ns,
					Timestamp: time.Now().UnixMilli(),
				}, nil
			}
			nonce++
		}

		select {
		case <-ctx.Done():
			return core.Solution{}, ctx.Err()
		default:
		}
	}
}

// SolveResult is the outcome delivered by SolveChallengeAsync.
type SolveResult struct {
	Solution core.Solution
	Err      error
}

// SolveChallengeAsync runs the search off the caller's goroutine and
// delivers the result on the returned channel. Cancel through ctx to abort.
func SolveChallengeAsync(ctx context.Context, ch core.Challenge) <-chan SolveResult {
	out := make(chan SolveResult, 1)
	go func() {
		sol, err := SolveChallenge(ctx, ch)
		out <- SolveResult{Solution: sol, Err: err}
	}()
	return out
}
