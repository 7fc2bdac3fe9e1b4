package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/store/storetest"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

func payload(params workload.Document, docs ...workload.Document) *workload.Payload {
	if params == nil {
		params = workload.Document{}
	}
	return &workload.Payload{Database: "db", Collection: "c", Documents: docs, Params: params}
}

func seeded() *storetest.Store {
	st := storetest.New()
	st.Seed("db", "c",
		map[string]interface{}{"_id": 1, "kind": "a"},
		map[string]interface{}{"_id": 2, "kind": "a"},
		map[string]interface{}{"_id": 3, "kind": "b"},
	)
	return st
}

func TestTable_CoversEveryOperation(t *testing.T) {
	table := Table()
	for _, op := range workload.Operations() {
		s, ok := table.Select(op)
		assert.True(t, ok, op.String())
		assert.NotNil(t, s)
	}
	_, ok := table.Select(workload.OpNoOp)
	assert.False(t, ok)

	a, _ := table.Select(workload.OpUpdateMany)
	b, _ := table.Select(workload.OpUpdateMany)
	assert.NotSame(t, a, b, "each loop gets its own instance")
}

func TestInsert(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()

	out := (&Insert{}).Execute(ctx, st, payload(nil, workload.Document{"a": 1}))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, 1, out.Calls)
	assert.Len(t, st.CallsTo("InsertOne"), 1)

	batch := make([]workload.Document, 10)
	for i := range batch {
		batch[i] = workload.Document{"i": i}
	}
	out = (&Insert{}).Execute(ctx, st, payload(nil, batch...))
	assert.True(t, out.Success)
	assert.Equal(t, 10, out.Documents)
	assert.Equal(t, 1, out.Calls, "a batch is a single call")
	assert.Len(t, st.CallsTo("InsertMany"), 1)
	assert.Equal(t, 11, st.Count("db", "c"))

	out = (&Insert{}).Execute(ctx, st, payload(nil))
	assert.False(t, out.Success)

	st.FailOn("InsertMany", errors.New("duplicate key"))
	out = (&Insert{}).Execute(ctx, st, payload(nil, batch...))
	assert.False(t, out.Success)
	assert.EqualError(t, out.Err, "duplicate key")
}

func TestFind(t *testing.T) {
	st := seeded()
	ctx := context.Background()

	out := (&Find{}).Execute(ctx, st, payload(workload.Document{"filter": map[string]interface{}{"kind": "a"}}))
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Documents)

	out = (&Find{}).Execute(ctx, st, payload(workload.Document{
		"sort":       map[string]interface{}{"z": -1, "a": 1},
		"projection": map[string]interface{}{"kind": 1},
		"limit":      float64(1),
	}))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Documents)

	calls := st.CallsTo("Find")
	require.Len(t, calls, 2)
	opts := calls[1].Args[1].(store.FindOptions)
	assert.Equal(t, bson.D{{Key: "a", Value: 1}, {Key: "z", Value: -1}}, opts.Sort)
	assert.Equal(t, int64(1), opts.Limit)
	assert.NotNil(t, opts.Projection)
	assert.Nil(t, calls[0].Args[1].(store.FindOptions).Projection)

	for _, bad := range []workload.Document{
		{"filter": "x"},
		{"sort": []interface{}{}},
		{"limit": 1.5},
		{"limit": json.Number("2.5")},
		{"projection": 3},
	} {
		out = (&Find{}).Execute(ctx, st, payload(bad))
		assert.False(t, out.Success, "%v", bad)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	set := map[string]interface{}{"$set": map[string]interface{}{"seen": true}}

	st := seeded()
	out := (&Update{}).Execute(ctx, st, payload(workload.Document{"filter": map[string]interface{}{"kind": "a"}, "update": set}))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Documents)

	out = (&Update{Many: true}).Execute(ctx, st, payload(workload.Document{"filter": map[string]interface{}{"kind": "a"}, "update": set}))
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Documents)

	out = (&Update{}).Execute(ctx, st, payload(workload.Document{
		"filter": map[string]interface{}{"kind": "zzz"}, "update": set, "upsert": true,
	}))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Documents, "an upsert counts the created document")
	assert.Equal(t, true, st.CallsTo("UpdateOne")[1].Args[2])

	out = (&Update{}).Execute(ctx, st, payload(workload.Document{}))
	assert.ErrorContains(t, out.Err, `"update" is required`)

	out = (&Update{}).Execute(ctx, st, payload(workload.Document{"update": set, "upsert": "yes"}))
	assert.False(t, out.Success)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	st := seeded()
	out := (&Delete{}).Execute(ctx, st, payload(workload.Document{"filter": map[string]interface{}{"kind": "a"}}))
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, 2, st.Count("db", "c"))

	out = (&Delete{Many: true}).Execute(ctx, st, payload(nil))
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Documents)
	assert.Equal(t, 0, st.Count("db", "c"))

	st.FailOn("DeleteMany", context.DeadlineExceeded)
	out = (&Delete{Many: true}).Execute(ctx, st, payload(nil))
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	generated := workload.Document{"_id": 99, "kind": "new"}

	st := seeded()
	out := (&Replace{}).Execute(ctx, st, payload(workload.Document{
		"filter":      map[string]interface{}{"_id": 1},
		"replacement": map[string]interface{}{"kind": "explicit"},
	}, generated))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, workload.Document{"kind": "explicit"}, st.CallsTo("ReplaceOne")[0].Args[1])

	out = (&Replace{}).Execute(ctx, st, payload(workload.Document{"filter": map[string]interface{}{"_id": 2}}, generated))
	assert.True(t, out.Success)
	assert.Equal(t, workload.Document{"kind": "new"}, st.CallsTo("ReplaceOne")[1].Args[1],
		"the generated document is used without its _id")

	out = (&Replace{AlwaysGenerated: true}).Execute(ctx, st, payload(workload.Document{
		"filter":      map[string]interface{}{"_id": 3},
		"replacement": map[string]interface{}{"ignored": true},
	}, generated))
	assert.True(t, out.Success)
	assert.Equal(t, workload.Document{"kind": "new"}, st.CallsTo("ReplaceOne")[2].Args[1])

	out = (&Replace{AlwaysGenerated: true}).Execute(ctx, st, payload(nil))
	assert.False(t, out.Success)
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	st := seeded()

	pipeline := []interface{}{map[string]interface{}{"$match": map[string]interface{}{"kind": "a"}}}
	out := (&Aggregate{}).Execute(ctx, st, payload(workload.Document{"pipeline": pipeline}))
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Documents)

	assert.False(t, (&Aggregate{}).Execute(ctx, st, payload(nil)).Success)
	assert.False(t, (&Aggregate{}).Execute(ctx, st, payload(workload.Document{"pipeline": "x"})).Success)
}

func TestCustom(t *testing.T) {
	ctx := context.Background()
	st := storetest.New()

	out := (&Custom{}).Execute(ctx, st, payload(workload.Document{"command": map[string]interface{}{"ping": 1}}))
	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Documents)
	assert.Equal(t, 1, out.Calls)

	out = (&Custom{}).Execute(ctx, st, payload(workload.Document{
		"commandName": "count",
		"command":     map[string]interface{}{"query": map[string]interface{}{}, "count": "c", "limit": 5},
	}))
	assert.True(t, out.Success)

	calls := st.CallsTo("RunCommand")
	require.Len(t, calls, 2)
	assert.Equal(t, "db", calls[1].Database)
	cmd := calls[1].Args[0].(bson.D)
	assert.Equal(t, "count", cmd[0].Key, "the command name comes first")
	assert.Equal(t, "limit", cmd[1].Key)
	assert.Equal(t, "query", cmd[2].Key)

	tests := []workload.Document{
		{},
		{"command": map[string]interface{}{"a": 1, "b": 2}},
		{"command": map[string]interface{}{"a": 1}, "commandName": "b"},
		{"command": "ping"},
	}
	for _, params := range tests {
		out = (&Custom{}).Execute(ctx, st, payload(params))
		assert.False(t, out.Success, "%v", params)
	}
}

func TestOrdered(t *testing.T) {
	got := ordered(workload.Document{"b": 2, "a": 1, "first": 0}, "first")
	assert.Equal(t, bson.D{{Key: "first", Value: 0}, {Key: "a", Value: 1}, {Key: "b", Value: 2}}, got)
	assert.Equal(t, bson.D{}, ordered(workload.Document{}, ""))
}
