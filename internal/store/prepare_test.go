package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/store/storetest"
)

func TestPrepare(t *testing.T) {
	st := storetest.New()
	st.Seed("db", "people", map[string]interface{}{"a": 1})

	names, err := store.Prepare(context.Background(), st, store.Preparation{
		Database:   "db",
		Collection: "people",
		Drop:       true,
		Indexes: []store.Index{
			{Keys: []string{"last", "-age"}},
			{Keys: []string{"email"}, Unique: true, Name: "email_unique"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"idx_1", "email_unique"}, names)
	assert.Equal(t, 0, st.Count("db", "people"), "drop clears the collection")
	assert.Len(t, st.Indexes("db", "people"), 2)

	methods := []string{}
	for _, c := range st.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"Drop", "CreateIndex", "CreateIndex"}, methods)
}

func TestPrepare_KeepsCollection(t *testing.T) {
	st := storetest.New()
	st.Seed("db", "people", map[string]interface{}{"a": 1})

	names, err := store.Prepare(context.Background(), st, store.Preparation{Database: "db", Collection: "people"})
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 1, st.Count("db", "people"))
	assert.Empty(t, st.CallsTo("Drop"))
}

func TestPrepare_Errors(t *testing.T) {
	st := storetest.New()
	st.FailOn("Drop", errors.New("not authorized"))

	_, err := store.Prepare(context.Background(), st, store.Preparation{Database: "db", Collection: "c", Drop: true})
	assert.ErrorContains(t, err, "drop db.c: not authorized")

	st.FailOn("Drop", nil)
	st.FailOn("CreateIndex", errors.New("index exists"))
	_, err = store.Prepare(context.Background(), st, store.Preparation{
		Database: "db", Collection: "c", Indexes: []store.Index{{Keys: []string{"x"}}},
	})
	assert.ErrorContains(t, err, "index exists")
}
