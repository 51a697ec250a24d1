package series

import (
	"fmt"
	"time"
)

// State is the lifecycle state of one device poller.
type State uint8

const (
	// StateRunning means the poller has not reported completion yet.
	StateRunning State = iota
	// StateCompleted means the loop ended on deadline or cancel signal.
	StateCompleted
	// StateFailed means the poller stopped early on an unrecoverable error.
	StateFailed
	// StateCancelled means the poller was abandoned after the grace period.
	StateCancelled
	// StateNoData means the device ended the run without any committed sample.
	StateNoData
)

// String returns lower-case state name.
// Params: none.
// Returns: state label.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateNoData:
		return "no_data"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Status is the final (or current) state of one device with optional reason.
type Status struct {
	State  State
	Reason string
}

// String renders status as "state" or "state: reason".
// Params: none.
// Returns: status label.
func (s Status) String() string {
	if s.Reason == "" {
		return s.State.String()
	}
	return s.State.String() + ": " + s.Reason
}

// StopReason tells why the collection window closed.
type StopReason string

const (
	// StopDeadline means the configured duration elapsed.
	StopDeadline StopReason = "deadline"
	// StopCancelled means the operator cancel signal fired first.
	StopCancelled StopReason = "cancelled"
	// StopPollersDone means every poller ended early before the window closed.
	StopPollersDone StopReason = "pollers_done"
)

// Run is the frozen result of one collection run.
// Params: run metadata plus per-device series and status.
// Returns: read-only collection state.
type Run struct {
	Started  time.Time
	Duration time.Duration
	Finished time.Time
	Stop     StopReason

	devices []string
	series  map[string]*SeriesSet
	status  map[string]Status
}

// NewRun assembles a run from per-device results and freezes every series set.
// Params: metadata fields; devices ordered ids; sets per-device series; statuses final status per device.
// Returns: frozen run.
func NewRun(
	started time.Time,
	duration time.Duration,
	finished time.Time,
	stop StopReason,
	devices []string,
	sets map[string]*SeriesSet,
	statuses map[string]Status,
) *Run {
	run := &Run{
		Started:  started,
		Duration: duration,
		Finished: finished,
		Stop:     stop,
		devices:  append([]string(nil), devices...),
		series:   make(map[string]*SeriesSet, len(devices)),
		status:   make(map[string]Status, len(devices)),
	}
	for _, device := range devices {
		set := sets[device]
		if set == nil {
			set = NewSeriesSet(nil)
		}
		set.Freeze()
		run.series[device] = set
		run.status[device] = statuses[device]
	}
	return run
}

// Devices returns device ids in configured order.
// Params: none.
// Returns: copy of device list.
func (r *Run) Devices() []string {
	return append([]string(nil), r.devices...)
}

// Series returns the frozen series set of device.
// Params: device id.
// Returns: series set and false for unknown devices.
func (r *Run) Series(device string) (*SeriesSet, bool) {
	set, ok := r.series[device]
	return set, ok
}

// Status returns final status of device.
// Params: device id.
// Returns: status and false for unknown devices.
func (r *Run) Status(device string) (Status, bool) {
	status, ok := r.status[device]
	return status, ok
}

// Usable returns devices with at least one committed sample.
// Params: none.
// Returns: device ids in configured order.
func (r *Run) Usable() []string {
	out := make([]string, 0, len(r.devices))
	for _, device := range r.devices {
		if r.series[device].Len() > 0 {
			out = append(out, device)
		}
	}
	return out
}

// NoData returns devices without any committed sample.
// Params: none.
// Returns: device ids in configured order.
func (r *Run) NoData() []string {
	out := make([]string, 0)
	for _, device := range r.devices {
		if r.series[device].Len() == 0 {
			out = append(out, device)
		}
	}
	return out
}
