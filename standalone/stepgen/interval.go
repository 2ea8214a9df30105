package stepgen

import (
	"errors"
	"fmt"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

// ISR cycle budget of the step interrupt
const (
	ISRBaseCycles         = 800
	ISRLoopBaseCycles32   = 4  // 32-bit cores
	ISRLoopBaseCyclesAVR  = 32 // 8-bit AVR
	ISRStepperCycles      = 88 // per motor and micro-step
	MaximumStepperRate    = 500000
	MinimumStepperPulseUS = 1
	MaxMultistepShift     = 7 // up to 128 steps per firing
)

var ErrTiming = errors.New("invalid timing parameters")

// Timing describes the clocks the interval converter works against
type Timing struct {
	CPUFrequency uint32 // Hz
	TimerRate    uint32 // step timer ticks per second
	Motors       int
	CPU32Bit     bool
}

// TimingFromConfig derives the converter timing from the machine config.
// The word size follows the build target unless the config overrides it.
func TimingFromConfig(cfg *config.MachineConfig) Timing {
	cpu32 := default32Bit
	if cfg.CPU32Bit != nil {
		cpu32 = *cfg.CPU32Bit
	}
	return Timing{
		CPUFrequency: cfg.CPUFrequency,
		TimerRate:    cfg.TimerFrequency,
		Motors:       len(cfg.Motors),
		CPU32Bit:     cpu32,
	}
}

// MinStepFrequency is the lowest step frequency the converters resolve
func (t Timing) MinStepFrequency() uint32 {
	return t.CPUFrequency / MaximumStepperRate
}

func (t Timing) loopCycles() uint32 {
	base := uint32(ISRLoopBaseCyclesAVR)
	if t.CPU32Bit {
		base = ISRLoopBaseCycles32
	}
	minPulse := t.CPUFrequency / MaximumStepperRate
	if p := (t.CPUFrequency / 500000) * MinimumStepperPulseUS; p > minPulse {
		minPulse = p
	}
	minLoop := uint32(ISRStepperCycles * t.Motors)
	if minPulse > minLoop {
		return base + minPulse
	}
	return base + minLoop
}

// executionCycles is the per-step cost of a firing that does r steps
func (t Timing) executionCycles(r uint32) uint32 {
	return (ISRBaseCycles + t.loopCycles()*r) / r
}

// StepLimits returns, per multistepping shift k, the highest frequency
// that still fits the cycle budget when 2^k steps run per firing
func (t Timing) StepLimits() [MaxMultistepShift + 1]uint32 {
	var limits [MaxMultistepShift + 1]uint32
	for k := 0; k <= MaxMultistepShift; k++ {
		r := uint32(1) << k
		limits[k] = (t.CPUFrequency / t.executionCycles(r)) >> k
	}
	return limits
}

func (t Timing) validate() error {
	if t.CPUFrequency < MaximumStepperRate || t.TimerRate == 0 {
		return fmt.Errorf("%w: cpu=%d timer=%d", ErrTiming, t.CPUFrequency, t.TimerRate)
	}
	if t.Motors <= 0 {
		return fmt.Errorf("%w: %d motors", ErrTiming, t.Motors)
	}
	return nil
}

// IntervalConverter turns a step frequency into the timer reload for the
// next firing and the number of steps that firing must emit
type IntervalConverter interface {
	Interval(freq uint32) (ticks uint32, loops uint8)
	Name() string
}

// multistepper halves the frequency until it fits the cycle budget
type multistepper struct {
	limits [MaxMultistepShift + 1]uint32
}

func (m *multistepper) split(freq uint32) (uint32, uint8) {
	loops := uint8(1)
	for idx := 0; idx < MaxMultistepShift && freq > m.limits[idx]; idx++ {
		loops <<= 1
		freq >>= 1
	}
	return freq, loops
}

// DivisionConverter divides the timer rate by the step frequency
type DivisionConverter struct {
	multistepper
	timerRate uint32
}

// NewDivisionConverter creates the converter used on cores with a fast divider
func NewDivisionConverter(t Timing) (*DivisionConverter, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &DivisionConverter{
		multistepper: multistepper{limits: t.StepLimits()},
		timerRate:    t.TimerRate,
	}, nil
}

func (c *DivisionConverter) Interval(freq uint32) (uint32, uint8) {
	f, loops := c.split(freq)
	if f == 0 {
		f = 1
	}
	return c.timerRate / f, loops
}

func (c *DivisionConverter) Name() string { return config.IntervalDivision }

// NewConverter builds the converter named by strategy, or the build
// target's default when strategy is empty
func NewConverter(strategy string, t Timing) (IntervalConverter, error) {
	if strategy == config.IntervalAuto {
		strategy = DefaultStrategy
	}
	switch strategy {
	case config.IntervalDivision:
		return NewDivisionConverter(t)
	case config.IntervalLookup:
		return NewLookupConverter(t)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrStrategy, strategy)
}
