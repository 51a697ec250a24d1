package report

import (
	"context"
	"errors"
	"log/slog"

	"routeconv/internal/convergence"
)

// LogSink writes run outcome and convergence diagnostics as log lines.
// Params: logger used for output.
// Returns: log sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
// Params: logger instance.
// Returns: sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Write logs per-device status and per-family findings.
// Params: ctx is unused; rep report.
// Returns: nil.
func (s *LogSink) Write(_ context.Context, rep Report) error {
	run := rep.Run
	s.logger.Info(
		"run summary",
		slog.String("stop", string(run.Stop)),
		slog.Time("started", run.Started),
		slog.Duration("took", run.Finished.Sub(run.Started)),
		slog.String("host", rep.Host.String()),
	)

	for _, device := range run.Devices() {
		status, _ := run.Status(device)
		set, _ := run.Series(device)
		s.logger.Info(
			"device result",
			slog.String("device", device),
			slog.String("status", status.String()),
			slog.Int("samples", set.Len()),
		)
	}

	for _, finding := range rep.Findings {
		s.logFinding(finding)
	}
	return nil
}

// logFinding logs one finding with distinct messages for each missing boundary.
// Params: finding device/family crossing result.
// Returns: none.
func (s *LogSink) logFinding(finding convergence.Finding) {
	attrs := []any{
		slog.String("device", finding.Device),
		slog.String("family", finding.Family),
		slog.String("direction", string(finding.Threshold.Direction())),
		slog.Float64("start_value", finding.Threshold.Start),
		slog.Float64("end_value", finding.Threshold.End),
	}

	if finding.Found() {
		s.logger.Info(
			"convergence",
			append(attrs,
				slog.Float64("start_time", finding.Result.StartTime),
				slog.Float64("end_time", finding.Result.EndTime),
				slog.Float64("convergence_seconds", finding.Result.Elapsed),
				slog.Float64("routes_per_second", finding.Result.Rate),
			)...,
		)
		return
	}

	var notFound *convergence.NotFoundError
	if !errors.As(finding.Err, &notFound) {
		s.logger.Warn("convergence not computed", append(attrs, slog.String("error", finding.Err.Error()))...)
		return
	}
	if notFound.StartMissing {
		s.logger.Warn("start threshold never reached", attrs...)
	}
	if notFound.EndMissing {
		s.logger.Warn("end threshold never reached", attrs...)
	}
}
