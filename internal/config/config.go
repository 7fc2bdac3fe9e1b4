// Package config loads and validates loadsim run configurations.
//
// A configuration is a YAML or JSON document with a connection string,
// run settings, a list of templates and a list of workloads. Workloads are
// kept as raw documents and turned into workload definitions by
// Definitions, which is where their fields are checked.
package config

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/loadsim/internal/store"
	"github.com/wesleyorama2/loadsim/internal/template"
	"github.com/wesleyorama2/loadsim/internal/workload"
)

// Defaults for optional settings.
const (
	DefaultReportInterval = "1s"
	DefaultGracefulStop   = "10s"
	DefaultAppName        = "loadsim"

	// EnvConnectionString supplies the connection string when the file
	// does not.
	EnvConnectionString = "LOADSIM_URI"
)

// Config is a complete run configuration.
type Config struct {
	ConnectionString string `json:"connectionString,omitempty" yaml:"connectionString,omitempty"`
	AppName          string `json:"appName,omitempty" yaml:"appName,omitempty"`
	MaxPoolSize      uint64 `json:"maxPoolSize,omitempty" yaml:"maxPoolSize,omitempty"`

	// ReportInterval is how often interval statistics are printed.
	ReportInterval string `json:"reportInterval,omitempty" yaml:"reportInterval,omitempty"`

	// Duration bounds the run. Empty means run until interrupted.
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// GracefulStop is how long shutdown waits for loops to finish.
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	Templates []TemplateConfig         `json:"templates" yaml:"templates"`
	Workloads []map[string]interface{} `json:"workloads" yaml:"workloads"`
}

// TemplateConfig describes a document template and its collection.
type TemplateConfig struct {
	Name         string                   `json:"name" yaml:"name"`
	Database     string                   `json:"database" yaml:"database"`
	Collection   string                   `json:"collection" yaml:"collection"`
	Drop         bool                     `json:"drop,omitempty" yaml:"drop,omitempty"`
	Template     map[string]interface{}   `json:"template,omitempty" yaml:"template,omitempty"`
	Variables    map[string]interface{}   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Dictionaries map[string][]interface{} `json:"dictionaries,omitempty" yaml:"dictionaries,omitempty"`
	Indexes      []IndexConfig            `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// IndexConfig describes an index. Keys are field names in order; a leading
// "-" makes a field descending.
type IndexConfig struct {
	Keys   []string `json:"keys" yaml:"keys"`
	Unique bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Settings are the parsed run settings.
type Settings struct {
	ReportInterval time.Duration
	Duration       time.Duration
	GracefulStop   time.Duration
}

// Settings parses the duration settings.
func (c *Config) Settings() (Settings, error) {
	var s Settings
	var err error
	if s.ReportInterval, err = ParseDurationString(c.ReportInterval); err != nil {
		return s, fmt.Errorf("reportInterval: %w", err)
	}
	if s.Duration, err = ParseDurationString(c.Duration); err != nil {
		return s, fmt.Errorf("duration: %w", err)
	}
	if s.GracefulStop, err = ParseDurationString(c.GracefulStop); err != nil {
		return s, fmt.Errorf("gracefulStop: %w", err)
	}
	return s, nil
}

// StoreOptions returns the connection options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		URI:         c.ConnectionString,
		MaxPoolSize: c.MaxPoolSize,
		AppName:     c.AppName,
	}
}

// TemplateSpecs converts the template section.
func (c *Config) TemplateSpecs() []template.Spec {
	specs := make([]template.Spec, 0, len(c.Templates))
	for _, t := range c.Templates {
		indexes := make([]store.Index, 0, len(t.Indexes))
		for _, idx := range t.Indexes {
			indexes = append(indexes, store.Index{Keys: idx.Keys, Unique: idx.Unique, Name: idx.Name})
		}
		specs = append(specs, template.Spec{
			Name:         t.Name,
			Database:     t.Database,
			Collection:   t.Collection,
			Drop:         t.Drop,
			Document:     t.Template,
			Variables:    t.Variables,
			Dictionaries: t.Dictionaries,
			Indexes:      indexes,
		})
	}
	return specs
}

// Definitions builds a workload definition for every workload document, in
// declaration order. The first invalid workload is returned as a
// *workload.ConfigurationError.
func (c *Config) Definitions() ([]*workload.Definition, error) {
	defs := make([]*workload.Definition, 0, len(c.Workloads))
	for _, doc := range c.Workloads {
		def, err := workload.NewDefinition(doc)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
