package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/loadsim/internal/metrics"
)

// OutputFormat represents the available summary formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat converts a string to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (want text, json or yaml)", s)
	}
}

// Summary is the machine-readable result of a run.
type Summary struct {
	StartTime time.Time         `json:"startTime" yaml:"startTime"`
	EndTime   time.Time         `json:"endTime" yaml:"endTime"`
	Duration  string            `json:"duration" yaml:"duration"`
	Workloads []WorkloadSummary `json:"workloads" yaml:"workloads"`
	Total     StatsSummary      `json:"total" yaml:"total"`
}

// WorkloadSummary is the result of one workload.
type WorkloadSummary struct {
	WorkloadInfo `yaml:",inline"`
	Stats        StatsSummary `json:"stats" yaml:"stats"`
}

// StatsSummary holds counters, rates and latencies in milliseconds.
type StatsSummary struct {
	Calls       int64          `json:"calls" yaml:"calls"`
	Documents   int64          `json:"documents" yaml:"documents"`
	Failures    int64          `json:"failures" yaml:"failures"`
	ErrorRate   float64        `json:"errorRate" yaml:"errorRate"`
	CallsPerSec float64        `json:"callsPerSec" yaml:"callsPerSec"`
	DocsPerSec  float64        `json:"docsPerSec" yaml:"docsPerSec"`
	DocsPerCall float64        `json:"docsPerCall" yaml:"docsPerCall"`
	LatencyMs   LatencySummary `json:"latencyMs" yaml:"latencyMs"`
}

// LatencySummary holds latency percentiles in milliseconds.
type LatencySummary struct {
	Min  float64 `json:"min" yaml:"min"`
	Mean float64 `json:"mean" yaml:"mean"`
	P50  float64 `json:"p50" yaml:"p50"`
	P95  float64 `json:"p95" yaml:"p95"`
	P99  float64 `json:"p99" yaml:"p99"`
	Max  float64 `json:"max" yaml:"max"`
}

// NewSummary builds a Summary from a cumulative snapshot. Workloads are
// listed in the order of infos; workloads without info are omitted.
func NewSummary(snap *metrics.Snapshot, infos []WorkloadInfo) *Summary {
	s := &Summary{
		StartTime: snap.StartTime,
		EndTime:   snap.StartTime.Add(snap.Elapsed),
		Duration:  snap.Elapsed.Round(time.Millisecond).String(),
		Workloads: make([]WorkloadSummary, 0, len(infos)),
		Total:     statsSummary(snap.Total),
	}
	for _, info := range infos {
		s.Workloads = append(s.Workloads, WorkloadSummary{
			WorkloadInfo: info,
			Stats:        statsSummary(snap.Workloads[info.Name]),
		})
	}
	return s
}

func statsSummary(ws metrics.WorkloadStats) StatsSummary {
	return StatsSummary{
		Calls:       ws.Calls,
		Documents:   ws.Documents,
		Failures:    ws.Failures,
		ErrorRate:   ws.ErrorRate,
		CallsPerSec: ws.CallsPerSec,
		DocsPerSec:  ws.DocsPerSec,
		DocsPerCall: ws.DocsPerCall,
		LatencyMs: LatencySummary{
			Min:  millis(ws.Latency.Min),
			Mean: millis(ws.Latency.Mean),
			P50:  millis(ws.Latency.P50),
			P95:  millis(ws.Latency.P95),
			P99:  millis(ws.Latency.P99),
			Max:  millis(ws.Latency.Max),
		},
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// WriteSummary writes s to w in the given machine-readable format.
func WriteSummary(w io.Writer, format OutputFormat, s *Summary) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not machine-readable", format)
	}
}
