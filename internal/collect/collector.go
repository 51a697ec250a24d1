package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"routeconv/internal/series"
	"routeconv/internal/source"
)

// ErrNoUsableData is returned when no device committed a single sample.
var ErrNoUsableData = errors.New("no device produced usable data")

// Options configures pollers of one collection run.
// Params: protocol/family selection, tick timing and failure escalation.
// Returns: collector settings.
type Options struct {
	Protocol     string
	Families     []string
	Interval     time.Duration
	FetchTimeout time.Duration
	// Grace bounds how long pollers may keep running after the run ends.
	Grace       time.Duration
	MaxFailures int
}

// Collector runs one poller per device against a shared deadline and cancel signal.
// Params: metric source, options, logger and optional metrics.
// Returns: collection orchestrator.
type Collector struct {
	source  source.Source
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// New validates options and creates a collector.
// Params: src metric source; opts poller settings; logger root logger; metrics optional instrumentation.
// Returns: collector or validation error.
func New(src source.Source, opts Options, logger *slog.Logger, metrics *Metrics) (*Collector, error) {
	if src == nil {
		return nil, fmt.Errorf("metric source is required")
	}
	if len(opts.Families) == 0 {
		return nil, fmt.Errorf("at least one family is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if opts.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be > 0")
	}
	if opts.Grace < 0 {
		return nil, fmt.Errorf("grace cannot be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		source:  src,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Collect samples every device for duration and returns the frozen run.
// Params: ctx cancellation is the operator cancel signal; devices unique ids; duration run window.
// Returns: frozen run; ErrNoUsableData (with the run) when no device has samples.
func (c *Collector) Collect(ctx context.Context, devices []string, duration time.Duration) (*series.Run, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("device list is empty")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be > 0")
	}
	seen := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		if _, dup := seen[device]; dup {
			return nil, fmt.Errorf("duplicate device %q", device)
		}
		seen[device] = struct{}{}
	}

	keys := series.KeysFor(c.opts.Protocol, c.opts.Families)
	sets := make(map[string]*series.SeriesSet, len(devices))
	for _, device := range devices {
		sets[device] = series.NewSeriesSet(keys)
	}
	board := newStatusBoard(devices, c.metrics)

	runStart := c.now()
	runCtx, cancel := context.WithDeadline(ctx, runStart.Add(duration))
	defer cancel()

	c.logger.Info(
		"collection started",
		slog.Int("devices", len(devices)),
		slog.Duration("duration", duration),
		slog.Duration("interval", c.opts.Interval),
		slog.String("source", c.source.Name()),
	)

	var wg sync.WaitGroup
	wg.Add(len(devices))
	for _, device := range devices {
		p := &poller{
			device:       device,
			protocol:     c.opts.Protocol,
			source:       c.source,
			set:          sets[device],
			interval:     c.opts.Interval,
			fetchTimeout: c.opts.FetchTimeout,
			maxFailures:  c.opts.MaxFailures,
			runStart:     runStart,
			board:        board,
			metrics:      c.metrics,
			logger:       c.logger,
			now:          c.now,
		}
		go func() {
			defer wg.Done()
			p.run(runCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	stop := c.waitRun(runCtx, ctx, done)
	if !c.waitGrace(done) {
		for _, device := range devices {
			if board.finish(device, series.Status{State: series.StateCancelled, Reason: "abandoned after grace period"}) {
				c.logger.Warn("poller abandoned", slog.String("device", device), slog.Duration("grace", c.opts.Grace))
			}
		}
	}

	for _, set := range sets {
		set.Freeze()
	}
	for _, device := range devices {
		if sets[device].Len() > 0 {
			continue
		}
		previous := board.snapshot()[device]
		board.override(device, series.Status{
			State:  series.StateNoData,
			Reason: "no successful sample (" + previous.String() + ")",
		})
		c.logger.Warn("device produced no data", slog.String("device", device), slog.String("status", previous.String()))
	}

	run := series.NewRun(runStart, duration, c.now(), stop, devices, sets, board.snapshot())
	c.logger.Info(
		"collection finished",
		slog.String("stop", string(stop)),
		slog.Int("usable", len(run.Usable())),
		slog.Int("no_data", len(run.NoData())),
	)

	if len(run.Usable()) == 0 {
		return run, ErrNoUsableData
	}
	return run, nil
}

// waitRun blocks until the run window closes or every poller returned.
// Params: runCtx deadline-bound run context; parent operator context; done closed when pollers returned.
// Returns: reason the window closed.
func (c *Collector) waitRun(runCtx, parent context.Context, done <-chan struct{}) series.StopReason {
	select {
	case <-runCtx.Done():
	case <-done:
		if runCtx.Err() == nil {
			return series.StopPollersDone
		}
	}

	if parent.Err() != nil {
		return series.StopCancelled
	}
	return series.StopDeadline
}

// waitGrace waits for pollers up to the grace period.
// Params: done closed when pollers returned.
// Returns: false when some pollers were still running after grace.
func (c *Collector) waitGrace(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
	}

	timer := time.NewTimer(c.opts.Grace)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
