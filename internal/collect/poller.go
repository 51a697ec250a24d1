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

// statusBoard is the only state shared between pollers.
type statusBoard struct {
	mu      sync.Mutex
	status  map[string]series.Status
	metrics *Metrics
}

// newStatusBoard marks every device Running.
// Params: devices device ids; metrics optional poller gauges.
// Returns: board.
func newStatusBoard(devices []string, metrics *Metrics) *statusBoard {
	board := &statusBoard{
		status:  make(map[string]series.Status, len(devices)),
		metrics: metrics,
	}
	for _, device := range devices {
		board.status[device] = series.Status{State: series.StateRunning}
		metrics.start()
	}
	return board
}

// finish moves device out of Running; later calls are ignored.
// Params: device id; status final status.
// Returns: true when the transition was applied.
func (b *statusBoard) finish(device string, status series.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.status[device]
	if current.State != series.StateRunning {
		return false
	}
	b.status[device] = status
	b.metrics.transition(current.State, status.State)
	return true
}

// override replaces device status regardless of its current state.
// Params: device id; status new status.
// Returns: none.
func (b *statusBoard) override(device string, status series.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.transition(b.status[device].State, status.State)
	b.status[device] = status
}

// snapshot copies the board.
// Params: none.
// Returns: device -> status map.
func (b *statusBoard) snapshot() map[string]series.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]series.Status, len(b.status))
	for device, status := range b.status {
		out[device] = status
	}
	return out
}

// panicError carries a panic recovered from a fetch.
type panicError struct {
	value any
}

// Error formats recovered panic value.
// Params: none.
// Returns: error text.
func (e *panicError) Error() string {
	return fmt.Sprintf("fetch panicked: %v", e.value)
}

// poller samples one device until the run context ends.
type poller struct {
	device       string
	protocol     string
	source       source.Source
	set          *series.SeriesSet
	interval     time.Duration
	fetchTimeout time.Duration
	maxFailures  int
	runStart     time.Time
	board        *statusBoard
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// run executes fetch/append/sleep ticks until ctx ends or the poller fails.
// Params: ctx carries the run deadline and the operator cancel signal.
// Returns: none; the outcome is written to the status board.
func (p *poller) run(ctx context.Context) {
	status := series.Status{State: series.StateCompleted}
	defer func() {
		if p.board.finish(p.device, status) {
			p.logger.Info(
				"poller finished",
				slog.String("device", p.device),
				slog.String("status", status.String()),
				slog.Int("samples", p.set.Len()),
			)
		}
	}()

	consecutive := 0
	for ctx.Err() == nil {
		reading, err := p.fetch(ctx)
		if err != nil {
			var panicked *panicError
			if errors.As(err, &panicked) {
				status = series.Status{State: series.StateFailed, Reason: panicked.Error()}
				return
			}

			consecutive++
			p.logger.Warn(
				"fetch failed",
				slog.String("device", p.device),
				slog.Int("consecutive", consecutive),
				slog.String("error", err.Error()),
			)
			if p.maxFailures > 0 && consecutive >= p.maxFailures {
				status = series.Status{
					State:  series.StateFailed,
					Reason: fmt.Sprintf("%d consecutive fetch failures, last: %v", consecutive, err),
				}
				return
			}
		} else {
			consecutive = 0
			if !p.commit(reading) {
				return
			}
		}

		if !p.sleep(ctx) {
			return
		}
	}
}

// fetch performs one source call bounded by fetchTimeout and detached from cancel.
// Params: ctx run context; only its values are inherited.
// Returns: reading or error; a panic is converted into *panicError.
func (p *poller) fetch(ctx context.Context) (reading series.Reading, err error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
	defer cancel()

	started := p.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			reading, err = nil, &panicError{value: recovered}
		}
		p.metrics.observeFetch(p.device, fetchResult(err), p.now().Sub(started))
	}()

	return p.source.Fetch(callCtx, p.device)
}

// commit appends one sample stamped with collector-local elapsed time.
// Params: reading decoded counters.
// Returns: false when the series set is frozen and the poller must stop.
func (p *poller) commit(reading series.Reading) bool {
	elapsed := p.now().Sub(p.runStart).Seconds()
	err := p.set.Append(series.SampleFromReading(p.protocol, elapsed, reading))
	switch {
	case err == nil:
		count := p.set.Len()
		p.metrics.setSamples(p.device, count)
		p.logger.Debug(
			"sample committed",
			slog.String("device", p.device),
			slog.Float64("elapsed", elapsed),
			slog.Int("samples", count),
		)
		return true
	case errors.Is(err, series.ErrFrozen):
		return false
	default:
		p.metrics.observeRejected(p.device)
		p.logger.Warn("sample rejected", slog.String("device", p.device), slog.String("error", err.Error()))
		return true
	}
}

// sleep waits one interval or until ctx ends.
// Params: ctx run context.
// Returns: false when the run ended during the wait.
func (p *poller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// fetchResult maps a fetch error onto a tick result label.
// Params: err fetch error or nil.
// Returns: result label.
func fetchResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, source.ErrFetchTimeout):
		return resultTimeout
	case errors.Is(err, source.ErrFetchDecode):
		return resultDecode
	default:
		return resultTransport
	}
}
