package workload

import (
	"context"
	"time"

	"github.com/wesleyorama2/loadsim/internal/store"
)

// Payload is what one iteration hands to its strategy: the target namespace,
// freshly generated documents and the resolved operation parameters.
type Payload struct {
	Database   string
	Collection string

	// Documents holds one generated document, or BatchSize of them when batching.
	Documents []Document

	// Params are the workload params with template expressions resolved.
	Params Document
}

// Outcome is the result of one strategy invocation.
type Outcome struct {
	Success bool
	Err     error

	// Documents is how many documents the call inserted, returned or touched.
	Documents int

	// Calls is the number of store round trips. One per iteration, batched or not.
	Calls int

	// Skipped outcomes are not reported.
	Skipped bool
}

// Failed builds a failed Outcome for err.
func Failed(err error) Outcome {
	return Outcome{Success: false, Err: err, Calls: 1}
}

// Succeeded builds a successful single-call Outcome touching docs documents.
func Succeeded(docs int) Outcome {
	return Outcome{Success: true, Documents: docs, Calls: 1}
}

// Strategy executes one kind of store operation.
//
// Implementations must not retain the payload past the call. A fresh
// instance is created for every loop, so per-instance state is not shared
// between goroutines.
type Strategy interface {
	Execute(ctx context.Context, st store.Store, payload *Payload) Outcome
}

// StrategyFactory creates a strategy instance for one loop.
type StrategyFactory func() Strategy

// StrategyTable maps operations onto the factories that implement them.
type StrategyTable map[Operation]StrategyFactory

// Select returns a new strategy for op. Operations without an entry get the
// inert NoOp strategy and ok is false.
func (t StrategyTable) Select(op Operation) (s Strategy, ok bool) {
	if factory, found := t[op]; found && factory != nil && op != OpNoOp {
		return factory(), true
	}
	return NewNoOp(), false
}

// DefaultNoOpDelay is how long a NoOp invocation idles.
const DefaultNoOpDelay = time.Second

// NoOp is the fallback for unknown or unimplemented operations. It keeps a
// loop alive while doing nothing: each call idles for Delay and reports
// nothing.
type NoOp struct {
	Delay time.Duration
}

// NewNoOp returns a NoOp with the default one second delay.
func NewNoOp() *NoOp {
	return &NoOp{Delay: DefaultNoOpDelay}
}

// Execute idles and returns a skipped Outcome.
func (n *NoOp) Execute(ctx context.Context, _ store.Store, _ *Payload) Outcome {
	timer := time.NewTimer(n.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return Outcome{Skipped: true}
}

var _ Strategy = (*NoOp)(nil)
