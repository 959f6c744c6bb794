// Arbiter selects which registered Device backs a subsystem (tick or
// watchdog) per CPU, by feature requirement and rating, generalizing
// clockevents_offer_device/clockevents_exchange_device and
// watchdog_check_device/watchdog_check_preferred from the original.
package clockevent

import (
	"sync"

	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// Arbiter tracks the registered Devices for one CPU and assigns the current
// device, per required Feature, to whichever subsystem asks — choosing the
// best-rated (lowest Rating) device that offers the feature, exactly as
// clockevents_offer_device walks the device list in the original.
type Arbiter struct {
	mu      sync.Mutex
	cpu     int
	devices []*Device

	current map[Feature]*Device
}

// NewArbiter creates an empty Arbiter for one CPU.
func NewArbiter(cpu int) *Arbiter {
	return &Arbiter{cpu: cpu, current: make(map[Feature]*Device)}
}

// Register adds dev to the pool of devices this CPU's subsystems may draw
// from, per clockevents_register_device.
func (a *Arbiter) Register(dev *Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	dev.CPU = a.cpu
	a.devices = append(a.devices, dev)
}

// Offer selects the best (lowest Rating) registered device that advertises
// the required feature, exchanging out any previously-assigned device for
// that feature, per clockevents_exchange_device's "out with the old"
// semantics. A device already assigned to a different feature class is not
// excluded, so one device may back several feature classes at once.
func (a *Arbiter) Offer(required Feature) (*Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var best *Device
	for _, d := range a.devices {
		if !d.Features.Has(required) {
			continue
		}
		if best == nil || d.Rating < best.Rating {
			best = d
		}
	}

	if best == nil {
		return nil, kerr.New(kerr.NoDevice, "no registered device on cpu %d offers feature %d", a.cpu, required)
	}

	if old, ok := a.current[required]; ok && old != best {
		old.SetState(Shutdown)
	}
	a.current[required] = best

	return best, nil
}

// Current returns the device currently assigned to a feature class, if any.
func (a *Arbiter) Current(required Feature) (*Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.current[required]
	return d, ok
}
