package pio

// Cycle counts of the stepper program. A pulse is held high by
// "set pins, 1 [7]"; one pulse with the shortest delay runs the whole
// wrap: pull, four outs, both sets, two jmp y and the jmp x.
const (
	pulseHighCycles = 8
	minStepCycles   = 17
	maxClkDiv       = 65535
)

// DefaultPulseWidthNs covers the step high time of the A4988 (1 us) and
// the DRV8825 (1.9 us)
const DefaultPulseWidthNs = 2000

// PulseWidthNs is the shortest step pulse the state machines produce.
// It must be set before the backends are initialized.
var PulseWidthNs uint32 = DefaultPulseWidthNs

// ClockDivider returns the smallest integer state machine divider that
// holds the step pin high for at least pulseNs with a sysHz system clock
func ClockDivider(sysHz, pulseNs uint32) uint16 {
	const nsPerSec = 1000000000
	div := (uint64(sysHz)*uint64(pulseNs) + pulseHighCycles*nsPerSec - 1) / (pulseHighCycles * nsPerSec)
	switch {
	case div < 1:
		return 1
	case div > maxClkDiv:
		return maxClkDiv
	}
	return uint16(div)
}

// StepTiming returns the fastest pulse rate of one state machine and its
// pulse width for the given divider
func StepTiming(sysHz uint32, div uint16) (maxRate, pulseNs uint32) {
	if div == 0 || sysHz == 0 {
		return 0, 0
	}
	maxRate = uint32(uint64(sysHz) / (uint64(div) * minStepCycles))
	pulseNs = uint32(uint64(pulseHighCycles) * uint64(div) * 1000000000 / uint64(sysHz))
	return maxRate, pulseNs
}
