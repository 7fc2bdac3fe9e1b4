package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/loadsim/internal/config"
	"github.com/wesleyorama2/loadsim/internal/output"
	"github.com/wesleyorama2/loadsim/internal/store/storetest"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

const baseConfig = `
reportInterval: 20ms
duration: 150ms
gracefulStop: 2s
templates:
  - name: person
    database: test
    collection: people
    drop: true
    template:
      _id: "%objectid"
      age: { "%natural": { min: 18, max: 99 } }
    indexes:
      - keys: [age]
`

func parse(t *testing.T, workloads string) *config.Config {
	t.Helper()
	t.Setenv(config.EnvConnectionString, "")
	cfg, err := config.ParseConfig([]byte(baseConfig+workloads), "engine.yaml")
	require.NoError(t, err)
	return cfg
}

func TestRun_InsertBatches(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: loader
    template: person
    op: insert
    threads: 2
    batch: 5
    pace: 10
`)
	st := storetest.New()
	var buf bytes.Buffer
	console := output.NewConsole(output.ConsoleConfig{Writer: &buf, NoColor: true})

	eng, err := New(cfg, st, Options{Console: console})
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Interrupted)
	assert.Zero(t, res.StuckLoops)

	loader := res.Snapshot.Workloads["loader"]
	require.Greater(t, loader.Calls, int64(0))
	assert.Equal(t, loader.Calls*5, loader.Documents, "each call inserts one full batch")
	assert.Equal(t, int(loader.Documents), st.Count("test", "people"))
	assert.Empty(t, st.CallsTo("InsertOne"))
	// A call cut short by the end of the run is recorded but not reported.
	assert.GreaterOrEqual(t, len(st.CallsTo("InsertMany")), int(loader.Calls))

	require.Len(t, res.Summary.Workloads, 1)
	assert.Equal(t, "loader", res.Summary.Workloads[0].Name)
	assert.Equal(t, 5, res.Summary.Workloads[0].Batch)

	out := buf.String()
	assert.Contains(t, out, "loadsim: 1 workloads")
	assert.Contains(t, out, "loader")
	assert.Contains(t, out, "batch=5")
}

func TestRun_PreparesTemplatesFirst(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: reader
    template: person
    op: find
    pace: 20
`)
	st := storetest.New()
	eng, err := New(cfg, st, Options{})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	calls := st.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "Drop", calls[0].Method)
	assert.Equal(t, "CreateIndex", calls[1].Method)
	require.Len(t, st.Indexes("test", "people"), 1)
	assert.Equal(t, []string{"age"}, st.Indexes("test", "people")[0].Keys)
}

func TestRun_PrepareFailure(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: reader
    template: person
    op: find
`)
	st := storetest.New()
	st.FailOn("Drop", errors.New("not authorized"))

	eng, err := New(cfg, st, Options{})
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "template person")
	assert.Contains(t, err.Error(), "not authorized")
	assert.Empty(t, st.CallsTo("Find"))
}

func TestRun_UnknownTemplateTouchesNothing(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: good
    template: person
    op: insert
    pace: 5
  - name: bad
    template: ghost
    op: find
`)
	st := storetest.New()
	st.Seed("test", "people", map[string]interface{}{"_id": 1})
	core, logs := observer.New(zapcore.InfoLevel)

	eng, err := New(cfg, st, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)

	var resErr *workload.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "bad", resErr.Workload)
	assert.Equal(t, "ghost", resErr.Template)

	assert.Empty(t, eng.Schedulers(), "no workload starts")
	assert.Empty(t, st.Calls(), "no drop, index or operation reaches the store")
	assert.Equal(t, 1, st.Count("test", "people"), "existing data survives")
	assert.Equal(t, 1, logs.FilterMessage("workload references an unknown template").Len())
}

func TestRun_ParentCancel(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: reader
    template: person
    op: find
    pace: 5
`)
	cfg.Duration = "0s"

	eng, err := New(cfg, storetest.New(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := eng.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, res.Snapshot.Workloads["reader"].Calls, int64(0))
}

func TestRun_UnknownOperationIdles(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: mystery
    template: person
    op: mapReduce
    threads: 2
`)
	st := storetest.New()
	core, logs := observer.New(zapcore.WarnLevel)

	eng, err := New(cfg, st, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.StuckLoops)
	assert.Zero(t, res.Snapshot.Workloads["mystery"].Failures)

	// Only the preparation touched the store.
	for _, c := range st.Calls() {
		assert.Contains(t, []string{"Drop", "CreateIndex"}, c.Method)
	}
	assert.Equal(t, 1, logs.FilterMessage("operation not implemented, workload will idle").Len())
}

func TestRun_Twice(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: reader
    template: person
    op: find
    pace: 20
`)
	eng, err := New(cfg, storetest.New(), Options{})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: reader
    template: person
    op: find
    threads: 0
`)
	st := storetest.New()
	_, err := New(cfg, st, Options{})
	require.Error(t, err)

	var verrs *config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Empty(t, st.Calls())

	_, err = New(cfg, nil, Options{})
	assert.Error(t, err)
}

func TestWorkloads(t *testing.T) {
	cfg := parse(t, `
workloads:
  - name: a
    template: person
    op: insert
    batch: 10
  - name: b
    template: person
    op: updateMany
    threads: 3
    pace: 250
    params:
      update: { $inc: { age: 1 } }
`)
	eng, err := New(cfg, storetest.New(), Options{})
	require.NoError(t, err)

	infos := eng.Workloads()
	require.Len(t, infos, 2)
	assert.Equal(t, output.WorkloadInfo{Name: "a", Op: "insert", Template: "person", Threads: 1, Batch: 10}, infos[0])
	assert.Equal(t, output.WorkloadInfo{Name: "b", Op: "updateMany", Template: "person", Threads: 3, Pace: 250 * time.Millisecond}, infos[1])
}
