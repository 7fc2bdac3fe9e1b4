package workload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadsim/internal/store"
)

// Scheduler launches and owns the execution loops of one workload.
//
// It provides:
//   - template resolution before anything starts
//   - strategy selection from a dispatch table, once per workload
//   - fan-out of exactly Concurrency() loops
//   - stop and bounded-wait shutdown of those loops
type Scheduler struct {
	def        *Definition
	strategies StrategyTable
	logger     *zap.Logger

	mu       sync.Mutex
	started  bool
	resolved *Resolved
	loops    []*Loop
	cancel   context.CancelFunc

	wg     sync.WaitGroup
	done   chan struct{}
	active atomic.Int32
}

// NewScheduler creates a scheduler for def. A nil logger discards logs.
func NewScheduler(def *Definition, strategies StrategyTable, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		def:        def,
		strategies: strategies,
		logger:     logger.With(zap.String("workload", def.Name())),
		done:       make(chan struct{}),
	}
}

// Definition returns the workload definition.
func (s *Scheduler) Definition() *Definition {
	return s.def
}

// InitAndStart resolves the workload template, binds the store and reporter
// and launches Concurrency() loops. It returns once every loop is launched;
// it does not wait for them.
//
// An unknown template yields a *ResolutionError and nothing is launched.
// Loops stop when ctx is cancelled or Stop is called.
func (s *Scheduler) InitAndStart(ctx context.Context, st store.Store, templates map[string]Resolver, reporter Reporter) error {
	if reporter == nil {
		return errors.New("reporter is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	tmpl, ok := templates[s.def.TemplateRef()]
	if !ok || tmpl == nil {
		return &ResolutionError{Workload: s.def.Name(), Template: s.def.TemplateRef()}
	}

	s.resolved = &Resolved{
		Definition: s.def,
		Store:      st,
		Template:   tmpl,
		Reporter:   reporter,
	}

	// Every loop gets its own strategy instance, but whether the op is
	// implemented is decided once for the workload.
	strategies := make([]Strategy, s.def.Concurrency())
	implemented := true
	for i := range strategies {
		strategies[i], implemented = s.strategies.Select(s.def.Operation())
	}
	if !implemented {
		s.logger.Warn("operation not implemented, workload will idle",
			zap.String("op", s.def.RawOp()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	for i, strategy := range strategies {
		loop := NewLoop(i+1, s.resolved, strategy, s.logger)
		s.loops = append(s.loops, loop)

		s.wg.Add(1)
		s.active.Add(1)
		go func(loop *Loop) {
			defer s.wg.Done()
			defer s.active.Add(-1)
			loop.Run(runCtx)
		}(loop)
	}

	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	s.logger.Info("workload started",
		zap.String("op", s.def.Operation().String()),
		zap.String("template", s.def.TemplateRef()),
		zap.Int("threads", s.def.Concurrency()),
		zap.Int("batch", s.def.BatchSize()),
		zap.Int("paceMillis", s.def.PaceMillis()))

	return nil
}

// Started reports whether InitAndStart succeeded.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stop signals every loop to exit. It does not wait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	loops := s.loops
	s.mu.Unlock()

	for _, loop := range loops {
		loop.RequestStop()
	}
	if cancel != nil {
		cancel()
	}
}

// Done is closed once every launched loop has exited.
// It is never closed for a scheduler that was not started.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until every loop has exited. It returns at once if the
// scheduler was never started.
func (s *Scheduler) Wait() {
	if !s.Started() {
		return
	}
	<-s.done
}

// Shutdown stops all loops and waits up to timeout for them to exit.
//
// Returns the number of loops still running when the timeout expired.
func (s *Scheduler) Shutdown(timeout time.Duration) int {
	s.Stop()
	if !s.Started() {
		return 0
	}

	if timeout <= 0 {
		select {
		case <-s.done:
			return 0
		default:
			return s.ActiveLoops()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		s.logger.Debug("workload stopped")
		return 0
	case <-timer.C:
		remaining := s.ActiveLoops()
		s.logger.Warn("loops still running after shutdown timeout",
			zap.Duration("timeout", timeout),
			zap.Int("remaining", remaining))
		return remaining
	}
}

// ActiveLoops returns the number of loop goroutines that have not exited.
func (s *Scheduler) ActiveLoops() int {
	return int(s.active.Load())
}

// Loops returns the launched loops.
func (s *Scheduler) Loops() []*Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*Loop, len(s.loops))
	copy(result, s.loops)
	return result
}

// Iterations returns the total iterations started across all loops.
func (s *Scheduler) Iterations() int64 {
	var total int64
	for _, loop := range s.Loops() {
		total += loop.Iterations()
	}
	return total
}
