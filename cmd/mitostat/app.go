package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mitostat/internal/config"
	"mitostat/internal/core"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string

	cfg      config.Config
	logger   core.Logger
	registry *prometheus.Registry
	metrics  *core.PrometheusRecorder
	trace    *os.File
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"debug":           config.KeyDebug,
	"storage":         config.KeyStorageDriver,
	"db":              config.KeySQLitePath,
	"regions":         config.KeyRegions,
	"output":          config.KeyOutput,
	"dist-range":      config.KeyDistRange,
	"references":      config.KeyReferences,
	"source-base-url": config.KeySourceBaseURL,
	"metrics-file":    config.KeyMetricsTextfile,
	"trace-file":      config.KeyTraceFile,
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "mitostat",
		Short:         "Distance distribution statistics for mitochondrial DNA samples",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.flushMetrics()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (default ./mitostat.yaml when present)")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("storage", "", "storage driver: memory, sqlite or postgres")
	pf.String("db", "", "sqlite database path")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.String("trace-file", "", "append one JSON line per service operation to this file")

	root.AddCommand(
		newReferenceCommand(a),
		newIngestCommand(a),
		newReportCommand(a),
		newRegionsCommand(a),
		newReportsCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.New(a.configPath)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	base := logrus.New()
	base.SetOutput(a.stderr)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	base.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		base.SetLevel(logrus.DebugLevel)
	}
	a.logger = core.NewLogrusLogger(base)

	a.registry = prometheus.NewRegistry()
	a.metrics, err = core.NewPrometheusRecorder(a.registry)
	return err
}

// openService opens the configured store. The caller closes the returned service's store.
func (a *app) openService(ctx context.Context) (*core.Service, error) {
	engine := core.NewDefaultRulesEngine(a.cfg.Report.References...)
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage, engine)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	opts := []core.Option{core.WithLogger(a.logger), core.WithMetricsRecorder(a.metrics)}
	if a.cfg.Debug {
		opts = append(opts, core.WithAuditRecorder(core.NewLogAuditRecorder(a.logger)))
	}
	if a.cfg.Trace.File != "" {
		f, err := os.OpenFile(a.cfg.Trace.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.trace = f
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	return core.NewService(store, opts...), nil
}

func (a *app) withService(ctx context.Context, fn func(*core.Service) error) (err error) {
	svc, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Store().Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
		if a.trace != nil {
			if cerr := a.trace.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close trace file: %w", cerr)
			}
			a.trace = nil
		}
	}()
	return fn(svc)
}

func (a *app) flushMetrics() error {
	if a.cfg.Metrics.Textfile == "" || a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
