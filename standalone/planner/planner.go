package planner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/kinematics"
)

var (
	ErrDegenerateMove = errors.New("move has no steps on any axis")
	ErrHalted         = errors.New("motion halted by emergency stop")
	ErrAxisCount      = errors.New("target axis count mismatch")
	ErrFeedRate       = errors.New("feed rate must be positive")
	ErrAcceleration   = errors.New("acceleration must be positive")
)

// Planner turns target positions into segments with trapezoid profiles
// and keeps the buffered queue optimal as moves are appended.
// Only one goroutine may call its mutating methods at a time.
type Planner struct {
	buf *Buffer

	motors       int
	stepsPerUnit [MaxMuscles]float64
	maxFeedRate  [MaxMuscles]float64
	maxJerk      [MaxMuscles]float64

	acceleration      float64
	minSegmentTimeUS  uint32
	arcSegmentLength  float64
	firstSegmentDelay int32
	timerRate         uint32

	// Position of the last queued target
	position      [MaxMuscles]int32
	positionUnits [MaxMuscles]float64

	// Junction state of the last queued move, valid for speedEpoch only
	previousNominalSpeed float64
	previousSafeSpeed    float64
	previousSpeed        [MaxMuscles]float64
	speedEpoch           uint32

	producer producerGuard
}

// NewPlanner creates a planner and its segment ring from the configuration
func NewPlanner(cfg *config.MachineConfig) (*Planner, error) {
	if len(cfg.Motors) == 0 {
		return nil, config.ErrNoMotors
	}
	if len(cfg.Motors) > MaxMuscles {
		return nil, fmt.Errorf("%w: %d", config.ErrTooManyMotors, len(cfg.Motors))
	}
	if cfg.Acceleration <= 0 {
		return nil, ErrAcceleration
	}
	for i, m := range cfg.Motors {
		// NaN fails every comparison, so test for the valid range
		if !(m.StepsPerUnit > 0) || !(m.MaxFeedRate > 0) || !(m.MaxJerk >= 0) {
			return nil, fmt.Errorf("%w: motor %d", config.ErrMotorParameter, i)
		}
	}
	buf, err := NewBuffer(cfg.SegmentBufferSize)
	if err != nil {
		return nil, err
	}

	p := &Planner{
		buf:               buf,
		motors:            len(cfg.Motors),
		acceleration:      cfg.Acceleration,
		minSegmentTimeUS:  cfg.MinSegmentTimeUS,
		arcSegmentLength:  cfg.ArcSegmentLength,
		firstSegmentDelay: cfg.FirstSegmentDelay,
		timerRate:         cfg.TimerFrequency,
	}
	if p.timerRate == 0 {
		p.timerRate = core.GetTimerFrequency()
	}
	for i, m := range cfg.Motors {
		p.stepsPerUnit[i] = m.StepsPerUnit
		p.maxFeedRate[i] = m.MaxFeedRate
		p.maxJerk[i] = m.MaxJerk
	}
	return p, nil
}

// Buffer returns the segment ring
func (p *Planner) Buffer() *Buffer {
	return p.buf
}

// Motors returns the number of actuators
func (p *Planner) Motors() int {
	return p.motors
}

func (p *Planner) MovesPlanned() uint32        { return p.buf.MovesPlanned() }
func (p *Planner) MovesFree() uint32           { return p.buf.MovesFree() }
func (p *Planner) MovesPlannedNotBusy() uint32 { return p.buf.MovesPlannedNotBusy() }
func (p *Planner) SegmentBufferFull() bool     { return p.buf.SegmentBufferFull() }

// Acceleration returns the acceleration applied to new moves (units/s^2)
func (p *Planner) Acceleration() float64 {
	return p.acceleration
}

// SetAcceleration changes the acceleration for moves queued from now on
func (p *Planner) SetAcceleration(accel float64) error {
	if accel <= 0 || math.IsNaN(accel) || math.IsInf(accel, 0) {
		return fmt.Errorf("%w: %v", ErrAcceleration, accel)
	}
	p.acceleration = accel
	return nil
}

// Position returns the last queued target in machine units
func (p *Planner) Position() []float64 {
	out := make([]float64, p.motors)
	copy(out, p.positionUnits[:p.motors])
	return out
}

// PositionSteps returns the last queued target in steps
func (p *Planner) PositionSteps() []int32 {
	out := make([]int32, p.motors)
	copy(out, p.position[:p.motors])
	return out
}

// Teleport redefines the current position without moving.
// The queue should be empty, otherwise queued moves keep their old frame.
func (p *Planner) Teleport(pos []float64) error {
	if len(pos) != p.motors {
		return fmt.Errorf("%w: got %d, want %d", ErrAxisCount, len(pos), p.motors)
	}
	for i, v := range pos {
		p.positionUnits[i] = v
		p.position[i] = int32(math.Round(v * p.stepsPerUnit[i]))
	}
	return nil
}

// SetPositionSteps redefines the current position from motor step counts,
// e.g. after an emergency stop left the motors short of their targets
func (p *Planner) SetPositionSteps(steps []int32) error {
	if len(steps) != p.motors {
		return fmt.Errorf("%w: got %d, want %d", ErrAxisCount, len(steps), p.motors)
	}
	for i, s := range steps {
		p.position[i] = s
		p.positionUnits[i] = float64(s) / p.stepsPerUnit[i]
	}
	return nil
}

// ZeroSpeeds forgets the junction state so the next move starts from rest
func (p *Planner) ZeroSpeeds() {
	p.previousNominalSpeed = 0
	p.previousSafeSpeed = 0
	p.previousSpeed = [MaxMuscles]float64{}
	p.speedEpoch = p.buf.Epoch()
}

// SpeedState returns the junction state the next move will be planned
// against. Everything reads zero after a flush.
func (p *Planner) SpeedState() (nominal, safe float64, speeds []float64) {
	speeds = make([]float64, p.motors)
	if p.speedEpoch != p.buf.Epoch() {
		return 0, 0, speeds
	}
	copy(speeds, p.previousSpeed[:p.motors])
	return p.previousNominalSpeed, p.previousSafeSpeed, speeds
}

// BufferLine queues a straight move to target at feedRate units/s
func (p *Planner) BufferLine(target []float64, feedRate float64) error {
	p.producer.enter()
	defer p.producer.exit()

	if len(target) != p.motors {
		return fmt.Errorf("%w: got %d, want %d", ErrAxisCount, len(target), p.motors)
	}
	if !(feedRate > 0) || math.IsInf(feedRate, 0) {
		return fmt.Errorf("%w: %v", ErrFeedRate, feedRate)
	}
	if p.buf.Halted() {
		return ErrHalted
	}
	return p.addSegment(target, feedRate)
}

// BufferArc queues an arc around the absolute centre (cx, cy) in the plane
// of the first two axes as a chain of short lines
func (p *Planner) BufferArc(cx, cy float64, dest []float64, clockwise bool, feedRate float64) error {
	if len(dest) != p.motors {
		return fmt.Errorf("%w: got %d, want %d", ErrAxisCount, len(dest), p.motors)
	}
	if p.motors < 2 {
		return fmt.Errorf("%w: arcs need two axes", ErrAxisCount)
	}
	points := kinematics.PlanArc(p.Position(), dest, cx, cy, clockwise, p.arcSegmentLength)
	for _, pt := range points {
		err := p.BufferLine(pt, feedRate)
		if errors.Is(err, ErrDegenerateMove) {
			continue // chord shorter than a step
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WaitForEmptySegmentBuffer blocks until every queued segment has run
func (p *Planner) WaitForEmptySegmentBuffer(ctx context.Context) error {
	for p.buf.MovesPlanned() != 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.buf.Meanwhile != nil {
			p.buf.Meanwhile()
		}
	}
	return nil
}

// Estop stops all motion from the planning context: the queue is dropped,
// the junction state forgotten and appends fail until ClearFault.
func (p *Planner) Estop() {
	p.buf.Halt()
	p.buf.waitISRIdle()
	p.buf.Flush()
	p.ZeroSpeeds()
}

// Halted reports whether an emergency stop is latched
func (p *Planner) Halted() bool {
	return p.buf.Halted()
}

// ClearFault flushes anything queued while halted and releases the latch
func (p *Planner) ClearFault() {
	p.buf.Halt()
	p.buf.waitISRIdle()
	p.buf.Flush()
	p.ZeroSpeeds()
	p.buf.resume()
}

// addSegment computes the steps and speed limits of a new move, appends
// it and replans the queue
func (p *Planner) addSegment(target []float64, feedRate float64) error {
	var steps [MaxMuscles]int32
	var deltaUnits [MaxMuscles]float64
	stepsTotal := uint32(0)
	distance := 0.0
	for i := 0; i < p.motors; i++ {
		steps[i] = int32(math.Round(target[i] * p.stepsPerUnit[i]))
		d := steps[i] - p.position[i]
		if d < 0 {
			d = -d
		}
		if uint32(d) > stepsTotal {
			stepsTotal = uint32(d)
		}
		deltaUnits[i] = target[i] - p.positionUnits[i]
		distance += deltaUnits[i] * deltaUnits[i]
	}
	distance = math.Sqrt(distance)
	if stepsTotal == 0 || distance == 0 {
		return ErrDegenerateMove
	}

	if p.speedEpoch != p.buf.Epoch() {
		p.ZeroSpeeds()
	}

	seg, h := p.buf.GetNextFreeBlock()
	if p.buf.Halted() {
		return ErrHalted
	}
	seg.reset()

	for i := 0; i < p.motors; i++ {
		d := steps[i] - p.position[i]
		m := &seg.Muscles[i]
		m.DeltaSteps = d
		m.Dir = 1
		if d < 0 {
			m.Dir = -1
			d = -d
		}
		m.AbsDelta = uint32(d)
		m.DeltaUnits = deltaUnits[i]
	}
	seg.StepsTotal = stepsTotal
	seg.Distance = distance

	inverseSecs := feedRate / distance

	// Slow down when the queue runs low so the buffer can refill
	queued := p.buf.MovesPlanned()
	if p.minSegmentTimeUS > 0 && queued >= 2 && queued <= p.buf.Capacity()/2-1 {
		segmentTimeUS := math.Round(1000000.0 / inverseSecs)
		if segmentTimeUS < float64(p.minSegmentTimeUS) {
			extra := math.Round(2 * (float64(p.minSegmentTimeUS) - segmentTimeUS) / float64(queued))
			inverseSecs = 1000000.0 / (segmentTimeUS + extra)
		}
	}

	// Per-axis speed caps
	var currentSpeed [MaxMuscles]float64
	speedFactor := 1.0
	for i := 0; i < p.motors; i++ {
		currentSpeed[i] = deltaUnits[i] * inverseSecs
		cs := math.Abs(currentSpeed[i])
		if cs > p.maxFeedRate[i] {
			speedFactor = math.Min(speedFactor, p.maxFeedRate[i]/cs)
		}
	}
	if speedFactor < 1 {
		for i := 0; i < p.motors; i++ {
			currentSpeed[i] *= speedFactor
		}
		inverseSecs *= speedFactor
	}
	seg.NominalSpeed = distance * inverseSecs
	seg.NominalRate = uint32(math.Ceil(float64(stepsTotal) * inverseSecs))
	if seg.NominalRate < MinimalStepRate {
		seg.NominalRate = MinimalStepRate
	}

	stepsPerUnit := float64(stepsTotal) / distance
	accelSteps := uint32(math.Ceil(p.acceleration * stepsPerUnit))
	seg.AccelerationStepsPerS2 = accelSteps
	seg.Acceleration = float64(accelSteps) / stepsPerUnit
	seg.AccelerationRate = uint32(float64(accelSteps) * 16777216.0 / float64(p.timerRate))

	// Speed the move can start at from rest without exceeding any jerk
	safeSpeed := seg.NominalSpeed
	limited := false
	for i := 0; i < p.motors; i++ {
		jerk := math.Abs(currentSpeed[i])
		maxj := p.maxJerk[i]
		if jerk > maxj {
			if limited {
				mjerk := maxj * seg.NominalSpeed
				if jerk*safeSpeed > mjerk {
					safeSpeed = mjerk / jerk
				}
			} else {
				limited = true
				safeSpeed = maxj
			}
		}
	}

	// Junction speed against the previous move
	vmaxJunction := safeSpeed
	if queued > 0 && p.previousNominalSpeed > 0.0001 {
		vmaxJunction = math.Min(seg.NominalSpeed, p.previousNominalSpeed)
		smallerSpeedFactor := vmaxJunction / p.previousNominalSpeed
		vFactor := 1.0
		limited = false
		for i := 0; i < p.motors; i++ {
			vExit := p.previousSpeed[i] * smallerSpeedFactor
			vEntry := currentSpeed[i]
			if limited {
				vExit *= vFactor
				vEntry *= vFactor
			}
			jerk := junctionJerk(vExit, vEntry)
			if jerk > p.maxJerk[i] {
				vFactor *= p.maxJerk[i] / jerk
				limited = true
			}
		}
		if limited {
			vmaxJunction *= vFactor
		}
		threshold := vmaxJunction * 0.99
		if p.previousSafeSpeed > threshold && safeSpeed > threshold {
			vmaxJunction = safeSpeed
		}
	}

	// Stationary start unless the previous segment can still be reshaped
	stationary := queued == 0
	if !stationary && !p.buf.at(h-1).acquire() {
		stationary = true
	}
	if stationary {
		vmaxJunction = 0
		if queued == 0 && p.firstSegmentDelay > 0 {
			p.buf.firstDelay.Store(p.firstSegmentDelay)
		}
	}

	seg.EntrySpeedMax = vmaxJunction
	seg.EntrySpeed = math.Min(vmaxJunction, MaxSpeedAllowed(-seg.Acceleration, 0, distance))

	p.previousSpeed = currentSpeed
	p.previousNominalSpeed = seg.NominalSpeed
	p.previousSafeSpeed = safeSpeed
	p.position = steps
	copy(p.positionUnits[:p.motors], target)

	p.buf.publish(h)
	p.recalculate()
	return nil
}

// junctionJerk is the velocity change an axis sees going from vExit to vEntry
func junctionJerk(vExit, vEntry float64) float64 {
	if vExit > vEntry {
		if vEntry > 0 || vExit < 0 {
			return vExit - vEntry
		}
		return math.Max(vExit, -vEntry)
	}
	if vEntry < 0 || vExit > 0 {
		return vEntry - vExit
	}
	return math.Max(-vExit, vEntry)
}

// MaxSpeedAllowed returns the highest speed from which targetVelocity can
// be reached over distance at acceleration acc (negative to decelerate)
func MaxSpeedAllowed(acc, targetVelocity, distance float64) float64 {
	return math.Sqrt(targetVelocity*targetVelocity - 2*acc*distance)
}

// EstimateAccelerationDistance returns the steps needed to go from
// initialRate to targetRate at accel steps/s^2
func EstimateAccelerationDistance(initialRate, targetRate, accel float64) float64 {
	if accel == 0 {
		return 0
	}
	return (targetRate*targetRate - initialRate*initialRate) / (2 * accel)
}

// IntersectionDistance returns the step at which accelerating from
// startRate must switch to decelerating so that endRate is reached exactly
// at distance steps
func IntersectionDistance(startRate, endRate, accel, distance float64) float64 {
	if accel == 0 {
		return 0
	}
	return (2*accel*distance - startRate*startRate + endRate*endRate) / (4 * accel)
}
