package planner

import (
	"sync/atomic"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

// MaxMuscles is the number of actuators a segment can drive
const MaxMuscles = config.MaxMotors

// MinimalStepRate is the slowest step rate a ramp starts or ends at (steps/s)
const MinimalStepRate = 120

// Segment flags
const (
	FlagNominal     uint32 = 1 << 0 // entry speed equals nominal speed
	FlagRecalculate uint32 = 1 << 1 // profile is being rewritten, not executable
	flagBusy        uint32 = 1 << 2 // claimed by the pulse generator
)

// Muscle is the per-actuator part of a segment
type Muscle struct {
	DeltaSteps int32   // signed step delta
	AbsDelta   uint32  // |DeltaSteps|
	Dir        int8    // +1 or -1
	DeltaUnits float64 // signed delta in machine units
	StepCount  int32   // Bresenham accumulator, owned by the pulse generator
}

// Segment is one planned straight move with its trapezoid profile
type Segment struct {
	Muscles [MaxMuscles]Muscle

	Distance      float64 // units
	NominalSpeed  float64 // units/s
	EntrySpeed    float64 // units/s
	EntrySpeedMax float64 // units/s
	Acceleration  float64 // units/s^2

	StepsTotal uint32
	StepsTaken uint32 // written by the pulse generator
	AccelUntil uint32 // last step of the acceleration ramp
	DecelAfter uint32 // first step of the deceleration ramp

	NominalRate            uint32 // steps/s
	InitialRate            uint32 // steps/s
	FinalRate              uint32 // steps/s
	AccelerationStepsPerS2 uint32
	AccelerationRate       uint32 // steps/s per tick, 8.24 fixed point

	flags atomic.Uint32
}

// Flags returns the public flag bits
func (s *Segment) Flags() uint32 {
	return s.flags.Load() &^ flagBusy
}

// IsNominal reports whether the segment enters at its nominal speed
func (s *Segment) IsNominal() bool {
	return s.flags.Load()&FlagNominal != 0
}

// NeedsRecalculation reports whether the planner holds the segment
func (s *Segment) NeedsRecalculation() bool {
	return s.flags.Load()&FlagRecalculate != 0
}

// Busy reports whether the pulse generator has claimed the segment
func (s *Segment) Busy() bool {
	return s.flags.Load()&flagBusy != 0
}

// reset prepares a free slot for a new move
func (s *Segment) reset() {
	s.Muscles = [MaxMuscles]Muscle{}
	s.Distance = 0
	s.NominalSpeed = 0
	s.EntrySpeed = 0
	s.EntrySpeedMax = 0
	s.Acceleration = 0
	s.StepsTotal = 0
	s.StepsTaken = 0
	s.AccelUntil = 0
	s.DecelAfter = 0
	s.NominalRate = 0
	s.InitialRate = 0
	s.FinalRate = 0
	s.AccelerationStepsPerS2 = 0
	s.AccelerationRate = 0
	s.flags.Store(FlagRecalculate)
}

// claim marks the segment busy unless the planner holds it
func (s *Segment) claim() bool {
	for {
		f := s.flags.Load()
		if f&(FlagRecalculate|flagBusy) != 0 {
			return false
		}
		if s.flags.CompareAndSwap(f, f|flagBusy) {
			return true
		}
	}
}

// acquire marks the segment for recalculation unless it is claimed.
// Retired segments stay busy so they can never be acquired again.
func (s *Segment) acquire() bool {
	for {
		f := s.flags.Load()
		if f&flagBusy != 0 {
			return false
		}
		if f&FlagRecalculate != 0 || s.flags.CompareAndSwap(f, f|FlagRecalculate) {
			return true
		}
	}
}

// release publishes a recalculated segment
func (s *Segment) release(nominal bool) {
	for {
		f := s.flags.Load()
		n := f &^ (FlagRecalculate | FlagNominal)
		if nominal {
			n |= FlagNominal
		}
		if s.flags.CompareAndSwap(f, n) {
			return
		}
	}
}
