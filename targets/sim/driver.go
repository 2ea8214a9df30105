// Package sim provides a motor driver that records what the step
// generator asks of the hardware, for the host simulator and tests.
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

// Pulse is one recorded step
type Pulse struct {
	Motor   int
	Reverse bool
	Clock   uint32
}

// Driver implements core.MotorDriver in memory. Counters are atomic so
// another goroutine may watch a running generator.
type Driver struct {
	motors   int
	steps    []atomic.Int64
	position []atomic.Int64
	reverse  []atomic.Bool
	enabled  []atomic.Bool
	limits   []atomic.Bool

	// trip a limit switch after a number of pulses on a motor
	tripMotor atomic.Int32
	tripAfter atomic.Int64

	mu       sync.Mutex
	record   bool
	pulses   []Pulse
	maxPulse int
}

// NewDriver creates a driver for the given number of motors
func NewDriver(motors int) *Driver {
	d := &Driver{
		motors:   motors,
		steps:    make([]atomic.Int64, motors),
		position: make([]atomic.Int64, motors),
		reverse:  make([]atomic.Bool, motors),
		enabled:  make([]atomic.Bool, motors),
		limits:   make([]atomic.Bool, motors),
	}
	d.tripMotor.Store(-1)
	return d
}

var _ core.MotorDriver = (*Driver)(nil)

// Record keeps up to max pulses with their clock for inspection
func (d *Driver) Record(max int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record = max > 0
	d.maxPulse = max
	d.pulses = d.pulses[:0]
}

// Pulses returns the recorded pulses
func (d *Driver) Pulses() []Pulse {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Pulse, len(d.pulses))
	copy(out, d.pulses)
	return out
}

func (d *Driver) Step(m int) {
	if m < 0 || m >= d.motors {
		return
	}
	n := d.steps[m].Add(1)
	rev := d.reverse[m].Load()
	if rev {
		d.position[m].Add(-1)
	} else {
		d.position[m].Add(1)
	}
	if int(d.tripMotor.Load()) == m && n >= d.tripAfter.Load() {
		d.limits[m].Store(true)
	}

	d.mu.Lock()
	if d.record && len(d.pulses) < d.maxPulse {
		d.pulses = append(d.pulses, Pulse{Motor: m, Reverse: rev, Clock: core.GetTime()})
	}
	d.mu.Unlock()
}

func (d *Driver) SetDirection(m int, reverse bool) {
	if m >= 0 && m < d.motors {
		d.reverse[m].Store(reverse)
	}
}

func (d *Driver) SetEnabled(m int, enabled bool) {
	if m >= 0 && m < d.motors {
		d.enabled[m].Store(enabled)
	}
}

func (d *Driver) LimitTriggered(m int) bool {
	if m < 0 || m >= d.motors {
		return false
	}
	return d.limits[m].Load()
}

// SetLimit forces the limit switch of motor m
func (d *Driver) SetLimit(m int, triggered bool) {
	d.limits[m].Store(triggered)
}

// TripLimitAfter triggers the limit switch of motor m once it has
// emitted n pulses in total
func (d *Driver) TripLimitAfter(m int, n int64) {
	d.tripAfter.Store(n)
	d.tripMotor.Store(int32(m))
}

// Steps returns the total pulses emitted on motor m
func (d *Driver) Steps(m int) int64 {
	return d.steps[m].Load()
}

// Position returns the signed step count of motor m
func (d *Driver) Position(m int) int64 {
	return d.position[m].Load()
}

// Enabled reports whether motor m is engaged
func (d *Driver) Enabled(m int) bool {
	return d.enabled[m].Load()
}

// Reverse reports the direction output of motor m
func (d *Driver) Reverse(m int) bool {
	return d.reverse[m].Load()
}

// Reset clears counters, positions and limit switches
func (d *Driver) Reset() {
	for i := 0; i < d.motors; i++ {
		d.steps[i].Store(0)
		d.position[i].Store(0)
		d.limits[i].Store(false)
	}
	d.tripMotor.Store(-1)
	d.mu.Lock()
	d.pulses = d.pulses[:0]
	d.mu.Unlock()
}
