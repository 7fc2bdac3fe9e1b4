package workload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wesleyorama2/loadsim/internal/store"
)

// fakeResolver generates Count numbered documents per call.
type fakeResolver struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
}

func (r *fakeResolver) Name() string { return r.name }

func (r *fakeResolver) Resolve(_ context.Context, req Request) (*Payload, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	docs := make([]Document, req.Count)
	for i := range docs {
		docs[i] = Document{"n": i}
	}
	return &Payload{Database: "db", Collection: "coll", Documents: docs, Params: req.Params}, nil
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type sample struct {
	workload string
	outcome  Outcome
	elapsed  time.Duration
}

// recordingReporter keeps every reported sample.
type recordingReporter struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recordingReporter) Report(workload string, outcome Outcome, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample{workload, outcome, elapsed})
}

func (r *recordingReporter) Samples() []sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// recordingStrategy notes every call. It is shared through a spy so a test
// can see calls across all loop instances.
type spy struct {
	mu      sync.Mutex
	starts  map[*recordingStrategy][]time.Time
	batches []int
	work    time.Duration
	fail    bool
	panics  bool
	created int
}

func newSpy() *spy {
	return &spy{starts: make(map[*recordingStrategy][]time.Time)}
}

type recordingStrategy struct {
	p *spy
}

func (p *spy) factory() StrategyFactory {
	return func() Strategy {
		p.mu.Lock()
		p.created++
		p.mu.Unlock()
		return &recordingStrategy{p: p}
	}
}

func (s *recordingStrategy) Execute(ctx context.Context, _ store.Store, payload *Payload) Outcome {
	s.p.mu.Lock()
	s.p.starts[s] = append(s.p.starts[s], time.Now())
	s.p.batches = append(s.p.batches, len(payload.Documents))
	work, fail, panics := s.p.work, s.p.fail, s.p.panics
	s.p.mu.Unlock()

	if panics {
		panic("boom")
	}
	if work > 0 {
		select {
		case <-ctx.Done():
			return Failed(ctx.Err())
		case <-time.After(work):
		}
	}
	if fail {
		return Failed(errors.New("store unavailable"))
	}
	return Succeeded(len(payload.Documents))
}

func (p *spy) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

func (p *spy) Instances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.starts)
}

func (p *spy) Batches() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.batches))
	copy(out, p.batches)
	return out
}

func (p *spy) Starts() [][]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]time.Time
	for _, s := range p.starts {
		cp := make([]time.Time, len(s))
		copy(cp, s)
		out = append(out, cp)
	}
	return out
}

func (p *spy) table() StrategyTable {
	t := StrategyTable{}
	for _, op := range Operations() {
		t[op] = p.factory()
	}
	return t
}

func mustDefinition(doc Document) *Definition {
	def, err := NewDefinition(doc)
	if err != nil {
		panic(err)
	}
	return def
}
