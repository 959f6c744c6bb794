// Package clockevent implements the per-CPU clock-event device abstraction,
// generalizing original_source/include/kernel/clockevent.h and
// kernel/watchdog.c's device state machine, arbitration-by-rating, and
// program_timeout_ns clamping semantics. A fifth state (Watchdog) is added
// to the original's four (Unused/Shutdown/Periodic/Oneshot) so the same
// device abstraction backs both the tick and the watchdog subsystems.
package clockevent

import (
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

// State is one of the operating states of a clock_event_device, per
// clockevent.h's enum clock_event_state plus the added Watchdog state.
type State int

const (
	Unused State = iota
	Shutdown
	Periodic
	Oneshot
	WatchdogState
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Shutdown:
		return "SHUTDOWN"
	case Periodic:
		return "PERIODIC"
	case Oneshot:
		return "ONESHOT"
	case WatchdogState:
		return "WATCHDOG"
	default:
		return "UNKNOWN"
	}
}

// Feature is a bitmask of capabilities a Device advertises, per
// clockevent.h's CLOCK_EVT_FEAT_* defines, with FeatureWatchdog added for
// the watchdog subsystem's device offer protocol.
type Feature uint

const (
	FeaturePeriodic Feature = 1 << iota
	FeatureOneshot
	FeatureKTime
	FeatureWatchdog
)

func (f Feature) Has(bit Feature) bool { return f&bit != 0 }

// Device is the per-CPU clock event device, modeling
// clock_event_device. SetNextEvent is invoked with a delta in nanoseconds
// from "now"; EventHandler is invoked by the driving tick loop (or test
// harness) when the programmed event fires.
type Device struct {
	Name string
	CPU  int
	IRQ  int

	// Rating is the device's quality rating; lower is better (more
	// resolution), per clockevent.h's doc comment on struct
	// clock_event_device.rating.
	Rating int

	Features Feature
	State    State

	MinDeltaNs ktime.Time
	MaxDeltaNs ktime.Time

	SetNextEvent func(delta ktime.Time) error
	EventHandler func(*Device)
}

// clamp bounds nanoseconds into [MinDeltaNs, MaxDeltaNs], per
// clockevents_program_timeout_ns()'s documented "0 on success, 1 if
// nanoseconds range was clamped" contract.
func (d *Device) clamp(nanoseconds ktime.Time) (clamped ktime.Time, wasClamped bool) {
	if nanoseconds < d.MinDeltaNs {
		return d.MinDeltaNs, true
	}
	if d.MaxDeltaNs > 0 && nanoseconds > d.MaxDeltaNs {
		return d.MaxDeltaNs, true
	}
	return nanoseconds, false
}

// ProgramTimeoutNs programs the device to fire after nanoseconds, clamping
// to the device's [min,max] delta range, per clockevents_program_timeout_ns
// in the original. wasClamped reports whether the requested value was out of
// range and had to be adjusted.
func (d *Device) ProgramTimeoutNs(nanoseconds ktime.Time) (wasClamped bool, err error) {
	if d.SetNextEvent == nil {
		return false, kerr.New(kerr.NoDevice, "device %q has no set_next_event function", d.Name)
	}

	delta, clamped := d.clamp(nanoseconds)
	if err := d.SetNextEvent(delta); err != nil {
		return clamped, err
	}
	return clamped, nil
}

// SetState transitions the device to state. It does not fire the
// EventHandler; what "entering a state" means is left to callers
// (tick/watchdog subsystems decide that for their own device).
func (d *Device) SetState(state State) { d.State = state }

// SetHandler installs the event handler invoked when a programmed timeout
// fires, per clockevents_set_handler.
func (d *Device) SetHandler(h func(*Device)) { d.EventHandler = h }

// Fire invokes the device's event handler, simulating the IRQ that would
// normally deliver the clock event.
func (d *Device) Fire() {
	if d.EventHandler != nil {
		d.EventHandler(d)
	}
}
