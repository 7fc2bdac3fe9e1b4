// Package template generates concrete documents and operation parameters
// from declarative templates.
//
// A template describes the shape of the documents a workload writes and the
// namespace they live in. Generator expressions inside documents produce a
// fresh value on every evaluation:
//
//	"%objectid"                     new ObjectID
//	"%uuid"                         random UUID string
//	"%now"                          current time
//	{"%integer": {min: 1, max: 9}}  integer in [min, max]
//	{"%string": {length: 12}}       random alphanumeric string
//	{"%dictionary": {name: "city"}} random entry of a named dictionary
//	{"%oneOf": [a, b, c]}           one of the listed values
//	{"%array": {of: ..., min, max}} array of generated values
//	"#name"                         value of variable "name" for this iteration
//
// Variables are generated once per iteration so that documents and query
// parameters of the same iteration can refer to the same values.
package template

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

// Spec is the configuration of one template.
type Spec struct {
	Name         string
	Database     string
	Collection   string
	Drop         bool
	Document     map[string]interface{}
	Variables    map[string]interface{}
	Dictionaries map[string][]interface{}
	Indexes      []store.Index
}

// Template is a validated Spec. It is immutable and safe for concurrent use.
type Template struct {
	spec Spec
}

// New validates spec and builds a Template.
func New(spec Spec) (*Template, error) {
	if spec.Name == "" {
		return nil, errors.New("template name is required")
	}
	if spec.Database == "" {
		return nil, fmt.Errorf("template %s: database is required", spec.Name)
	}
	if spec.Collection == "" {
		return nil, fmt.Errorf("template %s: collection is required", spec.Name)
	}
	if spec.Document == nil {
		spec.Document = map[string]interface{}{}
	}

	if err := validate(spec.Document); err != nil {
		return nil, fmt.Errorf("template %s: %w", spec.Name, err)
	}
	if err := validate(spec.Variables); err != nil {
		return nil, fmt.Errorf("template %s variables: %w", spec.Name, err)
	}
	for name, entries := range spec.Dictionaries {
		if len(entries) == 0 {
			return nil, fmt.Errorf("template %s: dictionary %s is empty", spec.Name, name)
		}
	}
	for i, idx := range spec.Indexes {
		if len(idx.Keys) == 0 {
			return nil, fmt.Errorf("template %s: index %d has no keys", spec.Name, i)
		}
	}

	return &Template{spec: spec}, nil
}

// Name returns the template name.
func (t *Template) Name() string { return t.spec.Name }

// Database returns the target database.
func (t *Template) Database() string { return t.spec.Database }

// Collection returns the target collection.
func (t *Template) Collection() string { return t.spec.Collection }

// Drop reports whether the collection is dropped before the run.
func (t *Template) Drop() bool { return t.spec.Drop }

// Indexes returns the indexes to create before the run.
func (t *Template) Indexes() []store.Index { return t.spec.Indexes }

// Resolve generates this iteration's variables, req.Count documents and the
// resolved params.
func (t *Template) Resolve(ctx context.Context, req workload.Request) (*workload.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := &generator{dictionaries: t.spec.Dictionaries, vars: workload.Document{}}
	if err := g.bind(t.spec.Variables); err != nil {
		return nil, err
	}
	if err := g.bind(req.Variables); err != nil {
		return nil, err
	}

	docs := make([]workload.Document, req.Count)
	for i := range docs {
		doc, err := g.document(t.spec.Document)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}

	params, err := g.document(req.Params)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}

	return &workload.Payload{
		Database:   t.spec.Database,
		Collection: t.spec.Collection,
		Documents:  docs,
		Params:     params,
	}, nil
}

// Generate produces a single document without variables from the workload.
func (t *Template) Generate() (workload.Document, error) {
	p, err := t.Resolve(context.Background(), workload.Request{Count: 1})
	if err != nil {
		return nil, err
	}
	return p.Documents[0], nil
}

var _ workload.Resolver = (*Template)(nil)

// Registry holds templates by name.
type Registry map[string]*Template

// NewRegistry builds every spec. Names must be unique.
func NewRegistry(specs []Spec) (Registry, error) {
	r := make(Registry, len(specs))
	for _, spec := range specs {
		if _, dup := r[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate template name: %s", spec.Name)
		}
		t, err := New(spec)
		if err != nil {
			return nil, err
		}
		r[spec.Name] = t
	}
	return r, nil
}

// Resolvers returns the registry in the form the scheduler consumes.
func (r Registry) Resolvers() map[string]workload.Resolver {
	out := make(map[string]workload.Resolver, len(r))
	for name, t := range r {
		out[name] = t
	}
	return out
}

// Names returns the template names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
