// Package dispatch implements ordered fallback over provider/model
// candidates: first success wins, every failure is recorded, and only
// the aggregate surfaces to the caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoCandidates means the capability has no configured models. This is
// a configuration error, not a transient provider failure.
var ErrNoCandidates = errors.New("no candidates configured")

// Failure records one candidate's error.
type Failure struct {
	Model string
	Err   error
}

// AggregateError is returned when every candidate failed. Error() keeps
// the user-facing message to the first failure; the full list is for
// operational logs.
type AggregateError struct {
	Capability string
	Failures   []Failure
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("all candidates failed for %s", e.Capability)
	}
	first := e.Failures[0]
	return fmt.Sprintf("all %d candidates failed for %s: %s: %v",
		len(e.Failures), e.Capability, first.Model, first.Err)
}

// First returns the first recorded failure.
func (e *AggregateError) First() Failure {
	if len(e.Failures) == 0 {
		return Failure{}
	}
	return e.Failures[0]
}

// Try invokes attempt for each candidate strictly in order and returns
// the winning model. A failed candidate is logged and the next one is
// tried; there are no per-candidate retries, so worst-case latency is
// bounded by the list length. A canceled context stops the loop early.
func Try(ctx context.Context, log *slog.Logger, capability string, candidates []string, attempt func(ctx context.Context, model string) error) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%s: %w", capability, ErrNoCandidates)
	}

	var failures []Failure
	for _, model := range candidates {
		err := attempt(ctx, model)
		if err == nil {
			return model, nil
		}
		if log != nil {
			log.Warn("candidate failed", "capability", capability, "model", model, "err", err)
		}
		failures = append(failures, Failure{Model: model, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return "", &AggregateError{Capability: capability, Failures: failures}
}
