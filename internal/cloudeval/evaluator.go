// Package cloudeval looks up positions in the Lichess cloud evaluation
// database. A cloud hit supplies a deep engine verdict without spending
// local engine time; a miss is normal and callers fall back to their own
// analysis.
package cloudeval

import "context"

// Result contains the outcome of a cloud evaluation lookup. Scores are
// from the side to move, in centipawns, mirroring local engine output.
type Result struct {
	Found   bool
	Depth   int
	ScoreCP int
	Mate    int
	PV      []string
}

// Evaluator is the interface for cloud evaluation lookups.
type Evaluator interface {
	// Lookup fetches the evaluation of the position given as a FEN
	// string. A miss, a network failure, or a malformed response all
	// come back as Found == false; cloud lookups are advisory and must
	// never fail an analysis.
	Lookup(ctx context.Context, fen string) Result
}

// NoopEvaluator always misses. Use it when cloud lookups are disabled.
type NoopEvaluator struct{}

func (NoopEvaluator) Lookup(ctx context.Context, fen string) Result {
	return Result{Found: false}
}
