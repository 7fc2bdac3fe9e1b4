// Package metrics aggregates per-workload call statistics.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/loadsim/internal/workload"
)

// Engine collects workload outcomes using HDR histograms.
//
// Each workload gets two histograms: one for the whole run and one that is
// reset on every Interval call. Counters are atomic; histograms are guarded
// by a per-workload mutex because RecordValue is not thread-safe.
//
// Engine implements workload.Reporter.
type Engine struct {
	config EngineConfig

	mu            sync.RWMutex
	workloads     map[string]*workloadMetrics
	intervalStart time.Time

	startTime time.Time
	stopTime  atomic.Pointer[time.Time]
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

type workloadMetrics struct {
	histMu   sync.Mutex
	total    *hdrhistogram.Histogram
	interval *hdrhistogram.Histogram

	calls     atomic.Int64
	documents atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64

	intervalCalls     atomic.Int64
	intervalDocuments atomic.Int64
	intervalSuccesses atomic.Int64
	intervalFailures  atomic.Int64
}

// NewEngine creates a metrics engine with the default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine with a custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	now := time.Now()
	return &Engine{
		config:        config,
		workloads:     make(map[string]*workloadMetrics),
		intervalStart: now,
		startTime:     now,
	}
}

// Start marks the beginning of the measured run. Time spent before Start,
// such as collection preparation, is excluded from rates and the first
// interval.
func (e *Engine) Start() {
	now := time.Now()
	e.mu.Lock()
	e.startTime = now
	e.intervalStart = now
	e.mu.Unlock()
}

// Register creates the metrics of a workload up front so that it shows in
// snapshots before its first report.
func (e *Engine) Register(name string) {
	e.metricsFor(name)
}

// Report records one iteration outcome. It implements workload.Reporter.
func (e *Engine) Report(name string, outcome workload.Outcome, elapsed time.Duration) {
	m := e.metricsFor(name)

	micros := elapsed.Microseconds()
	if micros < e.config.HistogramMin {
		micros = e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		micros = e.config.HistogramMax
	}

	m.histMu.Lock()
	_ = m.total.RecordValue(micros)
	_ = m.interval.RecordValue(micros)
	m.histMu.Unlock()

	calls := int64(outcome.Calls)
	docs := int64(outcome.Documents)
	m.calls.Add(calls)
	m.documents.Add(docs)
	m.intervalCalls.Add(calls)
	m.intervalDocuments.Add(docs)

	if outcome.Success {
		m.successes.Add(1)
		m.intervalSuccesses.Add(1)
	} else {
		m.failures.Add(1)
		m.intervalFailures.Add(1)
	}
}

func (e *Engine) metricsFor(name string) *workloadMetrics {
	e.mu.RLock()
	m, ok := e.workloads[name]
	e.mu.RUnlock()
	if ok {
		return m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok = e.workloads[name]; ok {
		return m
	}
	m = &workloadMetrics{
		total:    e.newHistogram(),
		interval: e.newHistogram(),
	}
	e.workloads[name] = m
	return m
}

func (e *Engine) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
}

// Snapshot returns cumulative statistics since Start, or since the engine
// was created if Start was never called. Rates are computed over the run
// time, which ends at Stop.
func (e *Engine) Snapshot() *Snapshot {
	now := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	end := now
	if stopped := e.stopTime.Load(); stopped != nil {
		end = *stopped
	}
	elapsed := end.Sub(e.startTime)

	snap := newSnapshot(e.startTime, now, elapsed)
	all := e.newHistogram()
	for name, m := range e.workloads {
		m.histMu.Lock()
		latency := latencyStats(m.total)
		all.Merge(m.total)
		m.histMu.Unlock()

		snap.add(name, WorkloadStats{
			Calls:     m.calls.Load(),
			Documents: m.documents.Load(),
			Successes: m.successes.Load(),
			Failures:  m.failures.Load(),
			Latency:   latency,
		}.withRates(elapsed))
	}
	snap.Total.Latency = latencyStats(all)
	return snap
}

// Interval returns statistics since the previous Interval call (or since
// creation) and starts a new interval.
func (e *Engine) Interval() *Snapshot {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := now.Sub(e.intervalStart)
	snap := newSnapshot(e.intervalStart, now, elapsed)
	e.intervalStart = now

	all := e.newHistogram()
	for name, m := range e.workloads {
		m.histMu.Lock()
		latency := latencyStats(m.interval)
		all.Merge(m.interval)
		m.interval.Reset()
		m.histMu.Unlock()

		snap.add(name, WorkloadStats{
			Calls:     m.intervalCalls.Swap(0),
			Documents: m.intervalDocuments.Swap(0),
			Successes: m.intervalSuccesses.Swap(0),
			Failures:  m.intervalFailures.Swap(0),
			Latency:   latency,
		}.withRates(elapsed))
	}
	snap.Total.Latency = latencyStats(all)
	return snap
}

// Stop freezes the run time used for cumulative rates.
func (e *Engine) Stop() {
	now := time.Now()
	e.stopTime.CompareAndSwap(nil, &now)
}

// Elapsed returns the run time so far, or the total after Stop.
func (e *Engine) Elapsed() time.Duration {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if stopped := e.stopTime.Load(); stopped != nil {
		return stopped.Sub(start)
	}
	return time.Since(start)
}

var _ workload.Reporter = (*Engine)(nil)

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

// Snapshot is a view of all workloads over a time window.
type Snapshot struct {
	StartTime time.Time                `json:"startTime"`
	Timestamp time.Time                `json:"timestamp"`
	Elapsed   time.Duration            `json:"elapsed"`
	Workloads map[string]WorkloadStats `json:"workloads"`
	Total     WorkloadStats            `json:"total"`
}

func newSnapshot(start, now time.Time, elapsed time.Duration) *Snapshot {
	return &Snapshot{
		StartTime: start,
		Timestamp: now,
		Elapsed:   elapsed,
		Workloads: make(map[string]WorkloadStats),
	}
}

func (s *Snapshot) add(name string, ws WorkloadStats) {
	s.Workloads[name] = ws

	s.Total.Calls += ws.Calls
	s.Total.Documents += ws.Documents
	s.Total.Successes += ws.Successes
	s.Total.Failures += ws.Failures
	s.Total = s.Total.withRates(s.Elapsed)
}

// Names returns the workload names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Workloads))
	for name := range s.Workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WorkloadStats holds the counters and rates of one workload.
type WorkloadStats struct {
	Calls       int64        `json:"calls"`
	Documents   int64        `json:"documents"`
	Successes   int64        `json:"successes"`
	Failures    int64        `json:"failures"`
	CallsPerSec float64      `json:"callsPerSec"`
	DocsPerSec  float64      `json:"docsPerSec"`
	DocsPerCall float64      `json:"docsPerCall"`
	ErrorRate   float64      `json:"errorRate"`
	Latency     LatencyStats `json:"latency"`
}

func (ws WorkloadStats) withRates(elapsed time.Duration) WorkloadStats {
	if secs := elapsed.Seconds(); secs > 0 {
		ws.CallsPerSec = float64(ws.Calls) / secs
		ws.DocsPerSec = float64(ws.Documents) / secs
	}
	if ws.Calls > 0 {
		ws.DocsPerCall = float64(ws.Documents) / float64(ws.Calls)
	}
	if n := ws.Successes + ws.Failures; n > 0 {
		ws.ErrorRate = float64(ws.Failures) / float64(n)
	}
	return ws
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
