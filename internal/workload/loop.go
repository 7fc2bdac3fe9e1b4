package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadsim/internal/store"
)

// LoopState represents the lifecycle state of an execution loop.
type LoopState int32

const (
	// LoopIdle indicates the loop was created but has not started.
	LoopIdle LoopState = iota
	// LoopRunning indicates the loop is iterating.
	LoopRunning
	// LoopStopping indicates a stop was requested.
	LoopStopping
	// LoopStopped indicates the loop goroutine has exited.
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopStopping:
		return "stopping"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Request asks a Resolver for one iteration's payload.
type Request struct {
	Params    Document
	Variables Document

	// Count is the number of documents to generate.
	Count int
}

// Resolver turns a template plus workload params and variables into a
// concrete payload. It is shared by every loop of a workload and must be
// safe for concurrent use.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, req Request) (*Payload, error)
}

// Reporter accumulates outcomes. It is shared by every loop of every
// workload and must be safe for concurrent use.
type Reporter interface {
	Report(workload string, outcome Outcome, elapsed time.Duration)
}

// Resolved binds a Definition to the collaborators it runs against.
// It is read-only once built and shared by all loops of the workload.
type Resolved struct {
	Definition *Definition
	Store      store.Store
	Template   Resolver
	Reporter   Reporter
}

// Loop is one execution thread of a workload. It runs its strategy
// repeatedly, reporting every outcome and applying the workload pace, until
// its context is cancelled or it is asked to stop.
type Loop struct {
	// ID is unique within the workload, starting at 1.
	ID int

	workload *Resolved
	strategy Strategy
	inert    bool
	logger   *zap.Logger

	state     atomic.Int32
	iteration atomic.Int64
	lastStart atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once
}

// NewLoop creates a loop bound to its own strategy instance.
func NewLoop(id int, rw *Resolved, strategy Strategy, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	_, inert := strategy.(*NoOp)
	return &Loop{
		ID:       id,
		workload: rw,
		strategy: strategy,
		inert:    inert,
		logger:   logger.With(zap.Int("loop", id)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run iterates until ctx is cancelled or RequestStop is called. It blocks.
func (l *Loop) Run(ctx context.Context) {
	defer l.markStopped()
	l.state.CompareAndSwap(int32(LoopIdle), int32(LoopRunning))

	for {
		if l.stopRequested(ctx) {
			return
		}

		start := time.Now()
		l.lastStart.Store(start.UnixNano())
		l.iteration.Add(1)

		l.runIteration(ctx)

		if !l.pace(ctx, start) {
			return
		}
	}
}

// runIteration resolves a payload, executes the strategy and reports.
func (l *Loop) runIteration(ctx context.Context) {
	if l.inert {
		l.strategy.Execute(ctx, l.workload.Store, nil)
		return
	}

	start := time.Now()
	outcome := l.execute(ctx)
	elapsed := time.Since(start)

	if outcome.Skipped {
		return
	}
	// An in-flight call torn down by shutdown says nothing about the store.
	if !outcome.Success && ctx.Err() != nil && isContextError(outcome.Err) {
		return
	}
	if !outcome.Success {
		l.logger.Debug("iteration failed",
			zap.Int64("iteration", l.iteration.Load()),
			zap.Error(outcome.Err))
	}

	l.workload.Reporter.Report(l.workload.Definition.Name(), outcome, elapsed)
}

func (l *Loop) execute(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(&IterationError{Stage: "panic", Err: fmt.Errorf("%v", r)})
		}
	}()

	def := l.workload.Definition
	payload, err := l.workload.Template.Resolve(ctx, Request{
		Params:    def.Params(),
		Variables: def.Variables(),
		Count:     def.docsPerIteration(),
	})
	if err != nil {
		return Failed(&IterationError{Stage: "resolve", Err: err})
	}

	outcome = l.strategy.Execute(ctx, l.workload.Store, payload)
	if !outcome.Success && outcome.Err != nil {
		outcome.Err = &IterationError{Stage: "execute", Err: outcome.Err}
	}
	if outcome.Calls == 0 && !outcome.Skipped {
		outcome.Calls = 1
	}
	return outcome
}

// pace sleeps what is left of the pace interval measured from start.
// Overruns are not compensated. Returns false if the loop must exit.
func (l *Loop) pace(ctx context.Context, start time.Time) bool {
	interval := l.workload.Definition.Pace()
	if interval <= 0 {
		return true
	}
	wait := interval - time.Since(start)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop asks the loop to exit after the current iteration.
func (l *Loop) RequestStop() {
	l.stopOnce.Do(func() {
		l.state.CompareAndSwap(int32(LoopRunning), int32(LoopStopping))
		l.state.CompareAndSwap(int32(LoopIdle), int32(LoopStopping))
		close(l.stopCh)
	})
}

func (l *Loop) markStopped() {
	l.state.Store(int32(LoopStopped))
	l.doneOnce.Do(func() { close(l.doneCh) })
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

// WaitForStop waits for the loop to exit. Returns false on timeout.
func (l *Loop) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// GetState returns the current loop state.
func (l *Loop) GetState() LoopState {
	return LoopState(l.state.Load())
}

// Iterations returns the number of iterations started so far.
func (l *Loop) Iterations() int64 {
	return l.iteration.Load()
}

// LastIterationStart returns when the latest iteration began, zero if none.
func (l *Loop) LastIterationStart() time.Time {
	ns := l.lastStart.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Inert reports whether the loop runs the NoOp strategy.
func (l *Loop) Inert() bool {
	return l.inert
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
