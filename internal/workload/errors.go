package workload

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by InitAndStart when called more than once.
var ErrAlreadyStarted = errors.New("workload already started")

// ConfigurationError reports an invalid workload definition.
// It is raised at construction time, before any loop exists.
type ConfigurationError struct {
	Workload string
	Field    string
	Message  string
}

func (e *ConfigurationError) Error() string {
	name := e.Workload
	if name == "" {
		name = "<unnamed>"
	}
	if e.Field != "" {
		return fmt.Sprintf("workload %s: invalid field '%s': %s", name, e.Field, e.Message)
	}
	return fmt.Sprintf("workload %s: %s", name, e.Message)
}

// ResolutionError reports a template reference that is not in the registry.
// InitAndStart returns it before launching any loop.
type ResolutionError struct {
	Workload string
	Template string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("workload %s: unknown template %q", e.Workload, e.Template)
}

// IterationError wraps a failure inside a single loop iteration.
// It never leaves the loop; it is carried in the reported Outcome.
type IterationError struct {
	Stage string // "resolve", "execute" or "panic"
	Err   error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration failed during %s: %v", e.Stage, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}
