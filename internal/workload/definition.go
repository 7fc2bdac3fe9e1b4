// Package workload turns workload definitions into running sets of
// concurrent execution loops.
//
// A Definition is validated once from a configuration document. A Scheduler
// binds it to a store handle, a template resolver and a reporter, selects the
// operation strategy from a dispatch table and launches one Loop per
// configured thread. Loops run until their context is cancelled or the
// scheduler is stopped.
package workload

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Document is an open key-value document as decoded from YAML or JSON.
type Document = map[string]interface{}

// Configuration keys understood by NewDefinition.
const (
	KeyName      = "name"
	KeyTemplate  = "template"
	KeyOp        = "op"
	KeyParams    = "params"
	KeyVariables = "variables"
	KeyThreads   = "threads"
	KeyBatch     = "batch"
	KeyPace      = "pace"
)

// Definition is the validated, immutable configuration of one workload.
type Definition struct {
	name        string
	templateRef string
	operation   Operation
	rawOp       string
	params      Document
	variables   Document
	concurrency int
	batchSize   int
	paceMillis  int
}

// NewDefinition validates a configuration document and builds a Definition.
//
// Required keys are name, template and op. threads defaults to 1, batch and
// pace to 0. A positive batch is only allowed for the insert operation.
// An op string that matches no operation is accepted and maps to OpUnknown;
// the scheduler runs such workloads with the inert NoOp strategy.
//
// Every failure is a *ConfigurationError.
func NewDefinition(doc Document) (*Definition, error) {
	d := &Definition{}

	name, err := requiredString(doc, KeyName, "")
	if err != nil {
		return nil, err
	}
	d.name = name

	if d.templateRef, err = requiredString(doc, KeyTemplate, name); err != nil {
		return nil, err
	}
	if d.rawOp, err = requiredString(doc, KeyOp, name); err != nil {
		return nil, err
	}
	d.operation = ParseOperation(d.rawOp)

	if d.params, err = optionalDocument(doc, KeyParams, name); err != nil {
		return nil, err
	}
	if d.params == nil {
		d.params = Document{}
	}
	if d.variables, err = optionalDocument(doc, KeyVariables, name); err != nil {
		return nil, err
	}

	if d.concurrency, err = optionalInt(doc, KeyThreads, name, 1); err != nil {
		return nil, err
	}
	if d.concurrency < 1 {
		return nil, &ConfigurationError{Workload: name, Field: KeyThreads, Message: "threads must be >= 1"}
	}

	if d.batchSize, err = optionalInt(doc, KeyBatch, name, 0); err != nil {
		return nil, err
	}
	if d.batchSize < 0 {
		return nil, &ConfigurationError{Workload: name, Field: KeyBatch, Message: "batch cannot be negative"}
	}
	if d.batchSize > 0 && d.operation != OpInsert {
		return nil, &ConfigurationError{
			Workload: name,
			Field:    KeyBatch,
			Message:  fmt.Sprintf("op must be insert for batch work, got %q", d.rawOp),
		}
	}

	if d.paceMillis, err = optionalInt(doc, KeyPace, name, 0); err != nil {
		return nil, err
	}
	if d.paceMillis < 0 {
		return nil, &ConfigurationError{Workload: name, Field: KeyPace, Message: "pace cannot be negative"}
	}

	return d, nil
}

// Name returns the workload name used to tag reported outcomes.
func (d *Definition) Name() string { return d.name }

// TemplateRef returns the name of the template this workload draws payloads from.
func (d *Definition) TemplateRef() string { return d.templateRef }

// Operation returns the parsed operation.
func (d *Definition) Operation() Operation { return d.operation }

// RawOp returns the op string as written in the configuration.
func (d *Definition) RawOp() string { return d.rawOp }

// Params returns the operation parameters. Never nil. Callers must not modify it.
func (d *Definition) Params() Document { return d.params }

// Variables returns the workload variables, or nil when none were configured.
// Callers must not modify it.
func (d *Definition) Variables() Document { return d.variables }

// Concurrency returns the number of execution loops to launch.
func (d *Definition) Concurrency() int { return d.concurrency }

// BatchSize returns the number of documents per insert call, 0 when not batching.
func (d *Definition) BatchSize() int { return d.batchSize }

// Pace returns the target delay between iteration starts, 0 when unpaced.
func (d *Definition) Pace() time.Duration {
	return time.Duration(d.paceMillis) * time.Millisecond
}

// PaceMillis returns the configured pace in milliseconds.
func (d *Definition) PaceMillis() int { return d.paceMillis }

// docsPerIteration is how many documents a loop asks the resolver for.
func (d *Definition) docsPerIteration() int {
	if d.batchSize > 0 {
		return d.batchSize
	}
	return 1
}

func requiredString(doc Document, key, workload string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return "", &ConfigurationError{Workload: workload, Field: key, Message: key + " is required"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ConfigurationError{Workload: workload, Field: key, Message: fmt.Sprintf("must be a string, got %T", raw)}
	}
	if s == "" {
		return "", &ConfigurationError{Workload: workload, Field: key, Message: key + " cannot be empty"}
	}
	return s, nil
}

func optionalDocument(doc Document, key, workload string) (Document, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ConfigurationError{Workload: workload, Field: key, Message: fmt.Sprintf("must be a document, got %T", raw)}
	}
	return copyDocument(m), nil
}

func optionalInt(doc Document, key, workload string, def int) (int, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return def, nil
	}
	n, ok := toInt(raw)
	if !ok {
		return 0, &ConfigurationError{Workload: workload, Field: key, Message: fmt.Sprintf("must be an integer, got %v", raw)}
	}
	return n, nil
}

// toInt accepts every integer type plus integral floats, as produced by the
// YAML and JSON decoders.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// copyDocument deep-copies nested documents and arrays so the Definition
// owns its params and variables exclusively.
func copyDocument(src map[string]interface{}) Document {
	dst := make(Document, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
