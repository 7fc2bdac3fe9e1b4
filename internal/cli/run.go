package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/loadsim/internal/config"
	"github.com/wesleyorama2/loadsim/internal/engine"
	"github.com/wesleyorama2/loadsim/internal/logging"
	"github.com/wesleyorama2/loadsim/internal/output"
	"github.com/wesleyorama2/loadsim/internal/store"
)

// connectStore opens the store for a run. Tests replace it.
var connectStore = store.Connect

const disconnectTimeout = 5 * time.Second

type runOptions struct {
	configFile string
	uri        string
	duration   string
	outputPath string
	format     string
	jsonOutput bool
	logLevel   string
	logFormat  string
	noColor    bool
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workloads of a configuration file",
		Long: `Run every workload of a configuration file against MongoDB until the
configured duration elapses or the process is interrupted.

  loadsim run --config load.yaml
  loadsim run --config load.yaml --uri mongodb://db:27017 --duration 5m
  loadsim run --config load.yaml --json --output results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.uri, "uri", "", "MongoDB connection string (overrides the configuration and "+config.EnvConnectionString+")")
	cmd.Flags().StringVar(&opts.duration, "duration", "", "Run duration (e.g., 5m, 30s); empty runs until interrupted")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the final summary to this file (default: stdout)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Summary format (text, json, yaml)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Write the final summary as JSON")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final summary")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runLoad(ctx context.Context, opts *runOptions, stdout, stderr io.Writer) error {
	format, err := summaryFormat(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:   opts.logLevel,
		Format:  opts.logFormat,
		Output:  stderr,
		NoColor: opts.noColor,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.uri != "" {
		cfg.ConnectionString = opts.uri
	}
	if opts.duration != "" {
		cfg.Duration = opts.duration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ConnectionString == "" {
		return fmt.Errorf("no connection string: set connectionString, --uri or %s", config.EnvConnectionString)
	}

	st, err := connectStore(ctx, cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := st.Disconnect(dctx); err != nil {
			logger.Warn("disconnect failed", zap.Error(err))
		}
	}()

	// A machine-readable summary on stdout must not be mixed with tables.
	consoleOut := stdout
	if format != output.FormatText && opts.outputPath == "" {
		consoleOut = stderr
	}
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  consoleOut,
		NoColor: opts.noColor,
		Quiet:   opts.quiet,
	})

	eng, err := engine.New(cfg, st, engine.Options{Logger: logger, Console: console})
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	console.PrintSummary(res.Snapshot)
	if res.Interrupted {
		console.PrintWarning("run interrupted")
	}
	if res.StuckLoops > 0 {
		console.PrintWarning(fmt.Sprintf("%d loops were still running after gracefulStop", res.StuckLoops))
	}

	if format == output.FormatText {
		return nil
	}
	return writeSummary(stdout, opts.outputPath, format, res.Summary)
}

func summaryFormat(opts *runOptions) (output.OutputFormat, error) {
	if opts.jsonOutput {
		if opts.format != "" && opts.format != string(output.FormatJSON) {
			return "", errors.New("--json conflicts with --format " + opts.format)
		}
		return output.FormatJSON, nil
	}
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return "", err
	}
	if opts.outputPath != "" && format == output.FormatText {
		// An output file without a format gets JSON.
		if opts.format == "" {
			return output.FormatJSON, nil
		}
		return "", errors.New("text summaries are printed, not written; use --format json or yaml with --output")
	}
	return format, nil
}

func writeSummary(stdout io.Writer, path string, format output.OutputFormat, summary *output.Summary) error {
	if path == "" {
		return output.WriteSummary(stdout, format, summary)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := output.WriteSummary(f, format, summary); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Results written to: %s\n", path)
	return nil
}
