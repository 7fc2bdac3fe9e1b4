// Package engine runs a complete load configuration: it prepares the
// template collections, starts one scheduler per workload, reports
// statistics periodically and shuts everything down at the end.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadsim/internal/config"
	"github.com/wesleyorama2/loadsim/internal/logging"
	"github.com/wesleyorama2/loadsim/internal/metrics"
	"github.com/wesleyorama2/loadsim/internal/output"
	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/strategy"
	"github.com/wesleyorama2/loadsim/internal/template"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

// ErrAlreadyRun is returned when Run is called twice.
var ErrAlreadyRun = errors.New("engine already ran")

// Options contains the optional collaborators of an Engine.
type Options struct {
	Logger *zap.Logger

	// Console receives the header and interval tables. When nil, interval
	// statistics are logged instead.
	Console *output.Console

	// Strategies defaults to strategy.Table().
	Strategies workload.StrategyTable

	// Metrics defaults to a new metrics.Engine.
	Metrics *metrics.Engine
}

// Engine runs one configuration against one store.
type Engine struct {
	settings   config.Settings
	store      store.Store
	registry   template.Registry
	defs       []*workload.Definition
	strategies workload.StrategyTable
	metrics    *metrics.Engine
	console    *output.Console
	logger     *zap.Logger

	schedulers []*workload.Scheduler
	ran        bool
}

// Result is the outcome of a run.
type Result struct {
	Snapshot *metrics.Snapshot
	Summary  *output.Summary

	// Interrupted is true when the run ended because the parent context was
	// cancelled rather than because its duration elapsed.
	Interrupted bool

	// StuckLoops counts loops that had not exited when the graceful stop
	// period ended.
	StuckLoops int
}

// New validates cfg and builds an engine. Configuration problems are
// reported here, before anything touches the store.
func New(cfg *config.Config, st store.Store, opts Options) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	registry, err := template.NewRegistry(cfg.TemplateSpecs())
	if err != nil {
		return nil, err
	}
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}

	if opts.Strategies == nil {
		opts.Strategies = strategy.Table()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewEngine()
	}

	return &Engine{
		settings:   settings,
		store:      st,
		registry:   registry,
		defs:       defs,
		strategies: opts.Strategies,
		metrics:    opts.Metrics,
		console:    opts.Console,
		logger:     logging.OrNop(opts.Logger),
	}, nil
}

// Workloads describes the configured workloads in declaration order.
func (e *Engine) Workloads() []output.WorkloadInfo {
	infos := make([]output.WorkloadInfo, 0, len(e.defs))
	for _, def := range e.defs {
		infos = append(infos, output.WorkloadInfo{
			Name:     def.Name(),
			Op:       def.RawOp(),
			Template: def.TemplateRef(),
			Threads:  def.Concurrency(),
			Batch:    def.BatchSize(),
			Pace:     def.Pace(),
		})
	}
	return infos
}

// Schedulers returns the schedulers started by Run.
func (e *Engine) Schedulers() []*workload.Scheduler {
	return append([]*workload.Scheduler(nil), e.schedulers...)
}

// Run prepares the templates, starts every workload and blocks until ctx is
// cancelled or the configured duration elapses. It then stops all loops,
// waiting up to the graceful stop period, and returns the final statistics.
//
// A workload that references an unknown template aborts the run with a
// *workload.ResolutionError before any collection is prepared or any loop
// is started.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.ran {
		return nil, ErrAlreadyRun
	}
	e.ran = true

	if err := e.resolveTemplates(); err != nil {
		return nil, err
	}
	if err := e.prepare(ctx); err != nil {
		return nil, err
	}

	infos := e.Workloads()
	if e.console != nil {
		e.console.PrintHeader(fmt.Sprintf("loadsim: %d workloads", len(infos)), infos)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.settings.Duration > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, e.settings.Duration)
		defer cancelTimeout()
	}

	e.metrics.Start()
	resolvers := e.registry.Resolvers()
	for _, def := range e.defs {
		e.metrics.Register(def.Name())
		sched := workload.NewScheduler(def, e.strategies, e.logger)
		if err := sched.InitAndStart(runCtx, e.store, resolvers, e.metrics); err != nil {
			e.logger.Error("workload failed to start", zap.String("workload", def.Name()), zap.Error(err))
			e.shutdown()
			return nil, err
		}
		e.schedulers = append(e.schedulers, sched)
	}
	e.logger.Info("all workloads started", zap.Int("workloads", len(e.schedulers)))

	e.report(runCtx)

	interrupted := ctx.Err() != nil
	e.logger.Info("stopping workloads",
		zap.Bool("interrupted", interrupted),
		zap.Duration("gracefulStop", e.settings.GracefulStop))
	stuck := e.shutdown()
	e.metrics.Stop()

	snap := e.metrics.Snapshot()
	return &Result{
		Snapshot:    snap,
		Summary:     output.NewSummary(snap, infos),
		Interrupted: interrupted,
		StuckLoops:  stuck,
	}, nil
}

// resolveTemplates checks every template reference before the store is
// touched or any loop is spawned.
func (e *Engine) resolveTemplates() error {
	for _, def := range e.defs {
		if _, ok := e.registry[def.TemplateRef()]; !ok {
			e.logger.Error("workload references an unknown template",
				zap.String("workload", def.Name()),
				zap.String("template", def.TemplateRef()))
			return &workload.ResolutionError{Workload: def.Name(), Template: def.TemplateRef()}
		}
	}
	return nil
}

// prepare drops and indexes template collections, in name order.
func (e *Engine) prepare(ctx context.Context) error {
	for _, name := range e.registry.Names() {
		t := e.registry[name]
		if !t.Drop() && len(t.Indexes()) == 0 {
			continue
		}
		indexes, err := store.Prepare(ctx, e.store, store.Preparation{
			Database:   t.Database(),
			Collection: t.Collection(),
			Drop:       t.Drop(),
			Indexes:    t.Indexes(),
		})
		if err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
		e.logger.Info("template prepared",
			zap.String("template", name),
			zap.String("namespace", t.Database()+"."+t.Collection()),
			zap.Bool("dropped", t.Drop()),
			zap.Strings("indexes", indexes))
	}
	return nil
}

// report emits interval statistics until ctx is done.
func (e *Engine) report(ctx context.Context) {
	ticker := time.NewTicker(e.settings.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitInterval(e.metrics.Interval())
		}
	}
}

func (e *Engine) emitInterval(snap *metrics.Snapshot) {
	if e.console != nil {
		e.console.PrintInterval(e.metrics.Elapsed(), snap)
		return
	}
	for _, name := range snap.Names() {
		ws := snap.Workloads[name]
		e.logger.Info("interval",
			zap.String("workload", name),
			zap.Int64("calls", ws.Calls),
			zap.Int64("documents", ws.Documents),
			zap.Int64("failures", ws.Failures),
			zap.Float64("callsPerSec", ws.CallsPerSec),
			zap.Float64("docsPerSec", ws.DocsPerSec),
			zap.Duration("p50", ws.Latency.P50),
			zap.Duration("p99", ws.Latency.P99))
	}
}

// shutdown stops every started scheduler and waits for them with one shared
// deadline. It returns the number of loops still running at the deadline.
func (e *Engine) shutdown() int {
	for _, s := range e.schedulers {
		s.Stop()
	}

	deadline := time.Now().Add(e.settings.GracefulStop)
	stuck := 0
	for _, s := range e.schedulers {
		stuck += s.Shutdown(time.Until(deadline))
	}
	if stuck > 0 {
		e.logger.Warn("loops did not stop in time", zap.Int("loops", stuck))
	}
	return stuck
}
