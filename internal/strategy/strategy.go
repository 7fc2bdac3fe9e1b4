// Package strategy implements the MongoDB operations a workload can run.
//
// Every strategy reads the namespace and generated documents from the
// payload and its options from the resolved params:
//
//	insert          one document, or the whole batch in one InsertMany call
//	find            filter, sort, projection, limit
//	updateOne/Many  filter, update, upsert
//	deleteOne/Many  filter
//	replaceOne      filter, replacement (defaults to the generated document), upsert
//	replaceWithNew  filter, upsert; always replaces with the generated document
//	aggregate       pipeline
//	custom          command, commandName
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

// Param keys.
const (
	ParamFilter      = "filter"
	ParamSort        = "sort"
	ParamProjection  = "projection"
	ParamLimit       = "limit"
	ParamUpdate      = "update"
	ParamUpsert      = "upsert"
	ParamReplacement = "replacement"
	ParamPipeline    = "pipeline"
	ParamCommand     = "command"
	ParamCommandName = "commandName"
)

var errNoDocument = errors.New("no generated document")

// Table returns the dispatch table for every supported operation.
func Table() workload.StrategyTable {
	return workload.StrategyTable{
		workload.OpInsert:         func() workload.Strategy { return &Insert{} },
		workload.OpFind:           func() workload.Strategy { return &Find{} },
		workload.OpUpdateOne:      func() workload.Strategy { return &Update{} },
		workload.OpUpdateMany:     func() workload.Strategy { return &Update{Many: true} },
		workload.OpDeleteOne:      func() workload.Strategy { return &Delete{} },
		workload.OpDeleteMany:     func() workload.Strategy { return &Delete{Many: true} },
		workload.OpReplaceOne:     func() workload.Strategy { return &Replace{} },
		workload.OpReplaceWithNew: func() workload.Strategy { return &Replace{AlwaysGenerated: true} },
		workload.OpAggregate:      func() workload.Strategy { return &Aggregate{} },
		workload.OpCustom:         func() workload.Strategy { return &Custom{} },
	}
}

func collection(st store.Store, p *workload.Payload) store.Collection {
	return st.Collection(p.Database, p.Collection)
}

// Insert writes the generated documents.
type Insert struct{}

func (s *Insert) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	coll := collection(st, p)
	switch len(p.Documents) {
	case 0:
		return workload.Failed(errNoDocument)
	case 1:
		if err := coll.InsertOne(ctx, p.Documents[0]); err != nil {
			return workload.Failed(err)
		}
		return workload.Succeeded(1)
	}

	docs := make([]interface{}, len(p.Documents))
	for i, d := range p.Documents {
		docs[i] = d
	}
	n, err := coll.InsertMany(ctx, docs)
	if err != nil {
		out := workload.Failed(err)
		out.Documents = n
		return out
	}
	return workload.Succeeded(n)
}

// Find runs a query and reads every result.
type Find struct{}

func (s *Find) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	filter, err := document(p.Params, ParamFilter)
	if err != nil {
		return workload.Failed(err)
	}
	sortDoc, err := document(p.Params, ParamSort)
	if err != nil {
		return workload.Failed(err)
	}
	projection, err := document(p.Params, ParamProjection)
	if err != nil {
		return workload.Failed(err)
	}
	limit, err := integer(p.Params, ParamLimit)
	if err != nil {
		return workload.Failed(err)
	}

	opts := store.FindOptions{Limit: limit}
	if sortDoc != nil {
		opts.Sort = ordered(sortDoc, "")
	}
	if projection != nil {
		opts.Projection = projection
	}

	n, err := collection(st, p).Find(ctx, filter, opts)
	if err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(n)
}

// Update applies params.update to one or every matching document.
type Update struct {
	Many bool
}

func (s *Update) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	filter, err := document(p.Params, ParamFilter)
	if err != nil {
		return workload.Failed(err)
	}
	update, ok := p.Params[ParamUpdate]
	if !ok {
		return workload.Failed(fmt.Errorf("param %q is required", ParamUpdate))
	}
	upsert, err := boolean(p.Params, ParamUpsert)
	if err != nil {
		return workload.Failed(err)
	}

	coll := collection(st, p)
	var res store.UpdateResult
	if s.Many {
		res, err = coll.UpdateMany(ctx, filter, update, upsert)
	} else {
		res, err = coll.UpdateOne(ctx, filter, update, upsert)
	}
	if err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(res.Matched + res.Upserted)
}

// Delete removes one or every matching document.
type Delete struct {
	Many bool
}

func (s *Delete) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	filter, err := document(p.Params, ParamFilter)
	if err != nil {
		return workload.Failed(err)
	}

	coll := collection(st, p)
	var n int
	if s.Many {
		n, err = coll.DeleteMany(ctx, filter)
	} else {
		n, err = coll.DeleteOne(ctx, filter)
	}
	if err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(n)
}

// Replace swaps a matching document for params.replacement or, when that is
// absent or AlwaysGenerated is set, for the generated document.
type Replace struct {
	AlwaysGenerated bool
}

func (s *Replace) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	filter, err := document(p.Params, ParamFilter)
	if err != nil {
		return workload.Failed(err)
	}
	upsert, err := boolean(p.Params, ParamUpsert)
	if err != nil {
		return workload.Failed(err)
	}

	var replacement workload.Document
	if !s.AlwaysGenerated {
		if replacement, err = document(p.Params, ParamReplacement); err != nil {
			return workload.Failed(err)
		}
	}
	if replacement == nil {
		if len(p.Documents) == 0 {
			return workload.Failed(errNoDocument)
		}
		// The replacement cannot change _id.
		replacement = withoutID(p.Documents[0])
	}

	res, err := collection(st, p).ReplaceOne(ctx, filter, replacement, upsert)
	if err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(res.Matched + res.Upserted)
}

// Aggregate runs params.pipeline and reads every result.
type Aggregate struct{}

func (s *Aggregate) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	raw, ok := p.Params[ParamPipeline]
	if !ok {
		return workload.Failed(fmt.Errorf("param %q is required", ParamPipeline))
	}
	pipeline, ok := raw.([]interface{})
	if !ok {
		return workload.Failed(fmt.Errorf("param %q must be an array, got %T", ParamPipeline, raw))
	}

	n, err := collection(st, p).Aggregate(ctx, pipeline)
	if err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(n)
}

// Custom runs params.command against the template's database.
//
// Command documents are maps and lose key order, but the server reads the
// command name from the first key. params.commandName names that key; it may
// be omitted when the command has a single key.
type Custom struct{}

func (s *Custom) Execute(ctx context.Context, st store.Store, p *workload.Payload) workload.Outcome {
	cmd, err := document(p.Params, ParamCommand)
	if err != nil {
		return workload.Failed(err)
	}
	if len(cmd) == 0 {
		return workload.Failed(fmt.Errorf("param %q is required", ParamCommand))
	}

	name, _ := p.Params[ParamCommandName].(string)
	if name == "" {
		if len(cmd) > 1 {
			return workload.Failed(fmt.Errorf("param %q is required for multi-key commands", ParamCommandName))
		}
		for k := range cmd {
			name = k
		}
	}
	if _, ok := cmd[name]; !ok {
		return workload.Failed(fmt.Errorf("command has no key %q", name))
	}

	if err := st.Database(p.Database).RunCommand(ctx, ordered(cmd, name)); err != nil {
		return workload.Failed(err)
	}
	return workload.Succeeded(0)
}

// document reads an optional sub-document param.
func document(params workload.Document, key string) (workload.Document, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("param %q must be a document, got %T", key, v)
	}
	return doc, nil
}

func boolean(params workload.Document, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

func integer(params workload.Document, key string) (int64, error) {
	v, ok := params[key]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("param %q must be an integer, got %v", key, v)
}

// ordered converts doc to a bson.D with first (if set) leading and the
// remaining keys sorted.
func ordered(doc workload.Document, first string) bson.D {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		if k != first {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(doc))
	if v, ok := doc[first]; ok {
		out = append(out, bson.E{Key: first, Value: v})
	}
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: doc[k]})
	}
	return out
}

func withoutID(doc workload.Document) workload.Document {
	if _, ok := doc["_id"]; !ok {
		return doc
	}
	out := make(workload.Document, len(doc)-1)
	for k, v := range doc {
		if k != "_id" {
			out[k] = v
		}
	}
	return out
}
