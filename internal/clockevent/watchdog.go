// Watchdog implements the per-CPU watchdog subsystem,
// grounded directly on original_source/kernel/watchdog.c: a device claimed
// via Arbiter.Offer(FeatureWatchdog), left dormant until first fed, with a
// user-supplied bark handler invoked when the programmed timeout elapses
// without being fed again in time.
package clockevent

import (
	"sync"

	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

// Watchdog is the bark-on-timeout supervisor.
type Watchdog struct {
	mu  sync.Mutex
	arb *Arbiter
	dev *Device

	handler func(data any)
	data    any

	fed bool
}

// NewWatchdog creates a Watchdog drawing its device from arb.
func NewWatchdog(arb *Arbiter) *Watchdog {
	return &Watchdog{arb: arb}
}

// SetHandler installs the bark callback invoked when the watchdog fires
// without being fed, per watchdog_set_handler.
func (w *Watchdog) SetHandler(handler func(data any), data any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	w.data = data
}

func (w *Watchdog) bark(dev *Device) {
	w.mu.Lock()
	handler, data := w.handler, w.data
	w.mu.Unlock()

	if handler != nil {
		handler(data)
	}
}

// claim lazily selects the best-rated watchdog-capable device, per
// watchdog_check_device's offer-on-first-use pattern.
func (w *Watchdog) claim() error {
	if w.dev != nil {
		return nil
	}
	dev, err := w.arb.Offer(FeatureWatchdog)
	if err != nil {
		return err
	}
	dev.SetState(WatchdogState)
	dev.SetHandler(w.bark)
	w.dev = dev
	return nil
}

// Feed (re)programs the watchdog to bark after nanoseconds unless fed again
// before then, per watchdog_feed. The watchdog stays dormant until fed for
// the first time, matching the original's documented behaviour.
func (w *Watchdog) Feed(nanoseconds ktime.Time) (wasClamped bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.claim(); err != nil {
		return false, err
	}

	clamped, err := w.dev.ProgramTimeoutNs(nanoseconds)
	if err != nil {
		return clamped, err
	}
	w.fed = true
	return clamped, nil
}

// Mode is one of the two watchdog operating modes of watchdog_set_mode.
type Mode int

const (
	Unleash Mode = iota // CLOCK_EVT_STATE_WATCHDOG: armed
	Leash               // CLOCK_EVT_STATE_SHUTDOWN: disarmed
)

// SetMode arms or disarms the watchdog device, per watchdog_set_mode.
func (w *Watchdog) SetMode(mode Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev == nil {
		return kerr.New(kerr.NoDevice, "no watchdog device claimed")
	}

	switch mode {
	case Unleash:
		w.dev.SetState(WatchdogState)
	case Leash:
		w.dev.SetState(Shutdown)
	default:
		return kerr.New(kerr.InvalidArgument, "unknown watchdog mode %d", mode)
	}
	return nil
}

// Fed reports whether the watchdog has been fed at least once, for tests
// exercising the "dormant until first feed" invariant.
func (w *Watchdog) Fed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fed
}
