// Package output renders load statistics for people and machines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wesleyorama2/loadsim/internal/metrics"
)

// Box drawing characters
const (
	boxHorizontal = "━"
	boxThin       = "─"
)

// WorkloadInfo describes a running workload for display.
type WorkloadInfo struct {
	Name     string        `json:"name" yaml:"name"`
	Op       string        `json:"op" yaml:"op"`
	Template string        `json:"template" yaml:"template"`
	Threads  int           `json:"threads" yaml:"threads"`
	Batch    int           `json:"batch,omitempty" yaml:"batch,omitempty"`
	Pace     time.Duration `json:"pace,omitempty" yaml:"pace,omitempty"`
}

// Console prints periodic and final statistics as text tables.
type Console struct {
	writer io.Writer
	colors *ColorScheme
	quiet  bool

	mu        sync.Mutex
	workloads []WorkloadInfo
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool
	Quiet       bool
}

// NewConsole creates a console reporter.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	colors := NoColorScheme()
	switch {
	case config.ForceColors:
		colors = ForceColorScheme()
	case UseColors(config.Writer, config.NoColor):
		colors = DefaultColorScheme()
	}

	return &Console{
		writer: config.Writer,
		colors: colors,
		quiet:  config.Quiet,
	}
}

// PrintHeader prints the run header and remembers the workloads for later
// tables.
func (c *Console) PrintHeader(title string, workloads []WorkloadInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.workloads = workloads
	if c.quiet {
		return
	}

	line := strings.Repeat(boxHorizontal, 72)
	c.writeln(c.colors.Title.Sprint(line))
	c.writeln(c.colors.Title.Sprint(title))
	c.writeln(c.colors.Title.Sprint(line))

	for _, w := range workloads {
		detail := fmt.Sprintf("template=%s threads=%d", w.Template, w.Threads)
		if w.Batch > 0 {
			detail += fmt.Sprintf(" batch=%d", w.Batch)
		}
		if w.Pace > 0 {
			detail += fmt.Sprintf(" pace=%s", formatDurationShort(w.Pace))
		}
		c.writeln(fmt.Sprintf("  %s %s  %s",
			c.colors.Workload.Sprintf("%-20s", w.Name),
			c.colors.Op.Sprintf("%-14s", w.Op),
			c.colors.Dim.Sprint(detail)))
	}
	c.writeln("")
}

// PrintInterval prints the statistics of one reporting interval.
func (c *Console) PrintInterval(elapsed time.Duration, snap *metrics.Snapshot) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(c.colors.Heading.Sprintf("[%s]", formatDuration(elapsed)))
	c.writeTable(snap)
}

// PrintSummary prints the cumulative statistics of the run.
func (c *Console) PrintSummary(snap *metrics.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 72)
	c.writeln("")
	c.writeln(c.colors.Title.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("Summary (%s)", formatDuration(snap.Elapsed)))
	c.writeln(c.colors.Title.Sprint(line))
	c.writeTable(snap)

	t := snap.Total
	status := c.colors.Success.Sprint("no errors")
	if t.Failures > 0 {
		status = c.colors.Error.Sprintf("%s errors (%.2f%%)", humanize.Comma(t.Failures), t.ErrorRate*100)
	}
	c.writeln(fmt.Sprintf("Total: %s calls, %s documents, %s",
		c.colors.Value.Sprint(humanize.Comma(t.Calls)),
		c.colors.Value.Sprint(humanize.Comma(t.Documents)),
		status))
}

// PrintWarning prints a highlighted one-line warning.
func (c *Console) PrintWarning(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeln(c.colors.Warn.Sprint("⚠ " + msg))
}

func (c *Console) writeTable(snap *metrics.Snapshot) {
	c.writeln(c.colors.Dim.Sprintf("  %-20s %12s %12s %9s %10s %10s %10s %8s",
		"workload", "calls/s", "docs/s", "docs/call", "p50", "p95", "p99", "errors"))
	c.writeln(c.colors.Dim.Sprint("  " + strings.Repeat(boxThin, 98)))

	for _, name := range c.order(snap) {
		ws := snap.Workloads[name]
		errs := c.colors.Success.Sprintf("%8s", humanize.Comma(ws.Failures))
		if ws.Failures > 0 {
			errs = c.colors.Error.Sprintf("%8s", humanize.Comma(ws.Failures))
		}
		c.writeln(fmt.Sprintf("  %s %12s %12s %9s %10s %10s %10s %s",
			c.colors.Workload.Sprintf("%-20s", name),
			humanize.CommafWithDigits(ws.CallsPerSec, 1),
			humanize.CommafWithDigits(ws.DocsPerSec, 1),
			humanize.CommafWithDigits(ws.DocsPerCall, 1),
			formatDurationShort(ws.Latency.P50),
			formatDurationShort(ws.Latency.P95),
			formatDurationShort(ws.Latency.P99),
			errs))
	}
	c.writeln("")
}

// order lists workloads in declaration order, then any others by name.
func (c *Console) order(snap *metrics.Snapshot) []string {
	seen := make(map[string]bool, len(snap.Workloads))
	var names []string
	for _, w := range c.workloads {
		if _, ok := snap.Workloads[w.Name]; ok && !seen[w.Name] {
			names = append(names, w.Name)
			seen[w.Name] = true
		}
	}
	for _, name := range snap.Names() {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
