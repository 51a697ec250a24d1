package report

import (
	"context"
	"fmt"
	"path/filepath"

	"routeconv/internal/convergence"
	"routeconv/internal/series"
)

// Report is everything a sink renders for one run.
// Params: frozen run, convergence findings, collector host info and run labels.
// Returns: sink input.
type Report struct {
	Run      *series.Run
	Findings []convergence.Finding
	// Analyzed is true when thresholds were configured.
	Analyzed bool
	Host     HostInfo
	Source   string
	Protocol string
}

// Sink renders one report.
// Params: context and report payload.
// Returns: error if the artifact could not be produced.
type Sink interface {
	Write(ctx context.Context, rep Report) error
}

// MultiSink writes one report to multiple sink implementations.
// Params: sink list.
// Returns: composite sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds composite sink from sink list.
// Params: sinks target list; nil entries are skipped.
// Returns: multi sink implementation.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return &MultiSink{sinks: out}
}

// Write forwards report to each child sink.
// Params: ctx write context; rep report.
// Returns: first error from downstream sinks, if any.
func (s *MultiSink) Write(ctx context.Context, rep Report) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, rep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ArtifactPath builds <dir>/<prefix>_<unix start>.<ext>.
// Params: dir output directory; prefix file prefix; run collection run; ext file extension.
// Returns: artifact path.
func ArtifactPath(dir, prefix string, run *series.Run, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.%s", prefix, run.Started.Unix(), ext))
}
