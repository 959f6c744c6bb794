// Tick implements the per-CPU periodic/oneshot tick device,
// generalizing kernel/tick.c's tick device selection and reprogramming
// loop. Each tick invokes a caller-supplied callback (normally the
// scheduler's Schedule entry point) and, in Oneshot mode, reprograms itself
// for the next interval.
package clockevent

import (
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

// Tick drives a CPU's scheduling loop from clock-event ticks.
type Tick struct {
	arb *Arbiter
	dev *Device

	period ktime.Time
	onTick func(now ktime.Time)
}

// NewTick creates a Tick with the given minimum tick period.
func NewTick(arb *Arbiter, period ktime.Time) *Tick {
	return &Tick{arb: arb, period: period}
}

// SetOnTick installs the callback invoked on every tick.
func (tk *Tick) SetOnTick(fn func(now ktime.Time)) { tk.onTick = fn }

func (tk *Tick) claim() error {
	if tk.dev != nil {
		return nil
	}
	dev, err := tk.arb.Offer(FeaturePeriodic | FeatureOneshot)
	if err != nil {
		return err
	}
	tk.dev = dev
	return nil
}

func (tk *Tick) handle(dev *Device) {
	now := ktime.Time(0)
	if tk.onTick != nil {
		tk.onTick(now)
	}
	if dev.State == Oneshot {
		_, _ = dev.ProgramTimeoutNs(tk.period)
	}
}

// StartPeriodic claims a periodic-capable device and arms it for the
// configured tick period.
func (tk *Tick) StartPeriodic() error {
	if err := tk.claim(); err != nil {
		return err
	}
	if !tk.dev.Features.Has(FeaturePeriodic) {
		return kerr.New(kerr.NotSupported, "device %q does not support periodic mode", tk.dev.Name)
	}
	tk.dev.SetState(Periodic)
	tk.dev.SetHandler(tk.handle)
	_, err := tk.dev.ProgramTimeoutNs(tk.period)
	return err
}

// StartOneshot claims a oneshot-capable device and arms the first interval;
// subsequent intervals are rearmed by handle() on every fire.
func (tk *Tick) StartOneshot() error {
	if err := tk.claim(); err != nil {
		return err
	}
	if !tk.dev.Features.Has(FeatureOneshot) {
		return kerr.New(kerr.NotSupported, "device %q does not support oneshot mode", tk.dev.Name)
	}
	tk.dev.SetState(Oneshot)
	tk.dev.SetHandler(tk.handle)
	_, err := tk.dev.ProgramTimeoutNs(tk.period)
	return err
}

// Stop shuts down the tick device.
func (tk *Tick) Stop() {
	if tk.dev != nil {
		tk.dev.SetState(Shutdown)
	}
}

// Fire is exposed for tests and the in-process simulation driver to inject
// a tick without a real timer backing the Device.
func (tk *Tick) Fire() {
	if tk.dev != nil {
		tk.dev.Fire()
	}
}
