package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wesleyorama2/loadsim/internal/template"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks settings, templates and workloads.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
// A workload naming an unknown template is not an error here; it fails when
// the workload starts. See UnresolvedTemplates.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(c, errs)

	if _, err := template.NewRegistry(c.TemplateSpecs()); err != nil {
		errs.Add("templates", err.Error())
	}

	if len(c.Workloads) == 0 {
		errs.Add("workloads", "at least one workload is required")
	}
	names := make(map[string]int, len(c.Workloads))
	for i, doc := range c.Workloads {
		field := fmt.Sprintf("workloads[%d]", i)
		def, err := workload.NewDefinition(doc)
		if err != nil {
			var cfgErr *workload.ConfigurationError
			if errors.As(err, &cfgErr) && cfgErr.Field != "" {
				field += "." + cfgErr.Field
			}
			errs.Add(field, err.Error())
			continue
		}
		if prev, dup := names[def.Name()]; dup {
			errs.Add(field+".name", fmt.Sprintf("duplicate workload name %q (also workloads[%d])", def.Name(), prev))
			continue
		}
		names[def.Name()] = i
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSettings(c *Config, errs *ValidationErrors) {
	s, err := c.Settings()
	if err != nil {
		field, msg, _ := strings.Cut(err.Error(), ": ")
		errs.Add(field, msg)
		return
	}
	if s.ReportInterval <= 0 {
		errs.Add("reportInterval", "must be positive")
	}
}

// UnresolvedTemplates lists "workload -> template" pairs whose template is
// not declared.
func (c *Config) UnresolvedTemplates() []string {
	declared := make(map[string]bool, len(c.Templates))
	for _, t := range c.Templates {
		declared[t.Name] = true
	}

	var missing []string
	for _, doc := range c.Workloads {
		def, err := workload.NewDefinition(doc)
		if err != nil {
			continue
		}
		if !declared[def.TemplateRef()] {
			missing = append(missing, fmt.Sprintf("%s -> %s", def.Name(), def.TemplateRef()))
		}
	}
	return missing
}
