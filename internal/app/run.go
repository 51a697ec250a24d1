package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"routeconv/internal/collect"
	"routeconv/internal/config"
	"routeconv/internal/convergence"
	"routeconv/internal/inventory"
	"routeconv/internal/logging"
	"routeconv/internal/report"
	"routeconv/internal/series"
	"routeconv/internal/source"
)

// Runtime defines runtime inputs of one collection run.
// Params: Cancel fires the operator cancel signal (nil disables it).
// Returns: Runtime value used by Run.
type Runtime struct {
	Cancel <-chan struct{}
}

type runDeps struct {
	newLogger  func(config.LogConfig) (*slog.Logger, func(), error)
	startDebug func(context.Context, config.DebugConfig, prometheus.Gatherer, *slog.Logger) (func(), string, error)
	devices    func(config.InventoryConfig) ([]string, error)
	hostInfo   func(context.Context) (report.HostInfo, error)
	newSource  func(config.SourceConfig, source.Query) (source.Source, error)
	newSink    func(*config.Config, *slog.Logger) report.Sink
}

// Run executes one collection run: sample, analyze and report.
// Params: ctx controls lifecycle (cancel acts as operator cancel); cfg validated config; rt runtime inputs.
// Returns: setup error, ErrNoUsableData when nothing was sampled, report write error, or nil.
func Run(ctx context.Context, cfg *config.Config, rt Runtime) error {
	return runWithDeps(ctx, cfg, rt, defaultRunDeps())
}

// defaultRunDeps provides production runtime dependencies.
// Params: none.
// Returns: dependency set used by Run and Probe.
func defaultRunDeps() runDeps {
	return runDeps{
		newLogger:  logging.New,
		startDebug: startDebugServer,
		devices: func(cfg config.InventoryConfig) ([]string, error) {
			return inventory.Devices(cfg.Devices, cfg.Topology, cfg.Kinds)
		},
		hostInfo:  report.CollectHostInfo,
		newSource: source.New,
		newSink:   defaultSink,
	}
}

// defaultSink builds the sink chain enabled in report config.
// Params: cfg validated config; logger sink logger.
// Returns: composite sink.
func defaultSink(cfg *config.Config, logger *slog.Logger) report.Sink {
	sinks := []report.Sink{report.NewLogSink(logger)}
	if cfg.Report.XLSX {
		sinks = append(sinks, report.NewXLSXSink(cfg.Report.Dir, cfg.Report.Prefix, logger))
	}
	if cfg.Report.SQLite {
		sinks = append(sinks, report.NewSQLiteSink(cfg.Report.Dir, cfg.Report.Prefix, logger))
	}
	return report.NewMultiSink(sinks...)
}

// runWithDeps executes run lifecycle using injectable dependencies.
// Params: ctx lifecycle; cfg validated config; rt runtime inputs; deps dependency set.
// Returns: run error or nil.
func runWithDeps(ctx context.Context, cfg *config.Config, rt Runtime, deps runDeps) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	logger, closeLogger, err := deps.newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	devices, err := deps.devices(cfg.Inventory)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}

	var analysis *convergence.Spec
	if cfg.Run.Threshold.Enabled() {
		kind, err := series.ParseKind(cfg.Run.Metric)
		if err != nil {
			return fmt.Errorf("run.metric: %w", err)
		}
		spec, err := convergence.NewSpec(cfg.Run.Protocol, kind, cfg.Run.Families, cfg.Run.Threshold.Start, cfg.Run.Threshold.End)
		if err != nil {
			return fmt.Errorf("run.threshold: %w", err)
		}
		analysis = &spec
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := collect.NewMetrics(registry)

	stopDebug, _, err := deps.startDebug(ctx, cfg.Debug, registry, logger)
	if err != nil {
		return fmt.Errorf("start debug server: %w", err)
	}
	defer stopDebug()

	host, err := deps.hostInfo(ctx)
	if err != nil {
		logger.Warn("host info incomplete", slog.String("error", err.Error()))
	}

	src, err := deps.newSource(cfg.Source, queryFor(cfg))
	if err != nil {
		return fmt.Errorf("build source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("close source", slog.String("error", err.Error()))
		}
	}()

	collector, err := collect.New(src, collectOptions(cfg), logger, metrics)
	if err != nil {
		return fmt.Errorf("build collector: %w", err)
	}

	logStartup(logger, cfg, devices, host)

	collectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchCancel(collectCtx, rt.Cancel, cancel, logger)

	run, err := collector.Collect(collectCtx, devices, cfg.Run.Duration.Duration)
	if run == nil {
		return fmt.Errorf("collect: %w", err)
	}
	// Reports are still written after an operator cancel.
	writeCtx := context.WithoutCancel(ctx)
	if errors.Is(err, collect.ErrNoUsableData) {
		_ = report.NewLogSink(logger).Write(writeCtx, report.Report{Run: run, Host: host})
		return err
	}

	rep := report.Report{
		Run:      run,
		Host:     host,
		Source:   src.Name(),
		Protocol: cfg.Run.Protocol,
	}
	if analysis != nil {
		rep.Analyzed = true
		rep.Findings = convergence.Analyze(run, *analysis)
	}

	if err := deps.newSink(cfg, logger).Write(writeCtx, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// watchCancel turns the operator cancel channel into context cancellation.
// Params: ctx stops the watcher; signal operator channel, fired by a send or a close; cancel cancel func; logger reports the signal.
// Returns: none.
func watchCancel(ctx context.Context, signal <-chan struct{}, cancel context.CancelFunc, logger *slog.Logger) {
	if signal == nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-signal:
		logger.Info("cancel requested, stopping collection")
		cancel()
	}
}

// queryFor builds the source query from run config.
// Params: cfg validated config.
// Returns: source query.
func queryFor(cfg *config.Config) source.Query {
	return source.Query{
		Protocol:        cfg.Run.Protocol,
		NetworkInstance: cfg.Run.NetworkInstance,
		Families:        cfg.Run.Families,
	}
}

// collectOptions maps run config into collector options.
// Params: cfg validated config.
// Returns: collector options.
func collectOptions(cfg *config.Config) collect.Options {
	return collect.Options{
		Protocol:     cfg.Run.Protocol,
		Families:     cfg.Run.Families,
		Interval:     cfg.Run.Interval.Duration,
		FetchTimeout: cfg.Run.FetchTimeout.Duration,
		Grace:        cfg.Run.Grace.Duration,
		MaxFailures:  cfg.Run.MaxFailures,
	}
}

// logStartup emits initial run metadata.
// Params: logger initialized slog logger; cfg validated config; devices resolved list; host collector info.
// Returns: none.
func logStartup(logger *slog.Logger, cfg *config.Config, devices []string, host report.HostInfo) {
	logger.Info(
		"run started",
		slog.Int("devices", len(devices)),
		slog.String("source", cfg.Source.Kind),
		slog.String("protocol", cfg.Run.Protocol),
		slog.Any("families", cfg.Run.Families),
		slog.Duration("duration", cfg.Run.Duration.Duration),
		slog.Duration("interval", cfg.Run.Interval.Duration),
		slog.String("host", host.String()),
	)
}
