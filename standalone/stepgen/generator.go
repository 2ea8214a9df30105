package stepgen

import (
	"fmt"
	"sync/atomic"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/planner"
)

// IdleRate is the firing rate while no segment is executing (Hz)
const IdleRate = 1000

// Stats counts what the generator has done since creation
type Stats struct {
	Pulses     uint32 // step pulses over all motors
	StepEvents uint32 // Bresenham iterations
	Retired    uint32 // segments completed
	Underruns  uint32 // firings that found nothing to run
	LimitTrips uint32
	Loops      uint8 // steps per firing of the last computed interval
}

// Generator is the consumer side of the segment ring. Each firing first
// emits the step pulses due (pulse phase), then computes when the next
// firing happens (block phase). It must only run from the step interrupt,
// or whatever stands in for it on the host.
type Generator struct {
	buf    *planner.Buffer
	driver core.MotorDriver
	conv   IntervalConverter

	motors      int
	timerRate   uint32
	idleTicks   uint32
	limitSample uint8

	// interrupt context state
	current         *planner.Segment
	epoch           uint32
	loops           uint8
	accelTime       uint32
	decelTime       uint32
	accelPeak       uint32
	nominalInterval uint32
	nominalLoops    uint8
	limitCount      [planner.MaxMuscles]uint8

	positions [planner.MaxMuscles]atomic.Int32

	pulses     atomic.Uint32
	stepEvents atomic.Uint32
	retired    atomic.Uint32
	underruns  atomic.Uint32
	limitTrips atomic.Uint32
	lastLoops  atomic.Uint32

	engaged atomic.Bool
	timer   core.Timer
	running atomic.Bool
}

// NewGenerator creates a generator executing segments from buf on driver
func NewGenerator(buf *planner.Buffer, driver core.MotorDriver, cfg *config.MachineConfig) (*Generator, error) {
	if buf == nil || driver == nil {
		return nil, fmt.Errorf("stepgen: buffer and driver are required")
	}
	motors := len(cfg.Motors)
	if motors == 0 {
		return nil, config.ErrNoMotors
	}
	if motors > planner.MaxMuscles {
		return nil, fmt.Errorf("%w: %d", config.ErrTooManyMotors, motors)
	}
	timing := TimingFromConfig(cfg)
	if timing.TimerRate == 0 {
		timing.TimerRate = core.GetTimerFrequency()
	}
	conv, err := NewConverter(cfg.IntervalStrategy, timing)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		buf:         buf,
		driver:      driver,
		conv:        conv,
		motors:      motors,
		timerRate:   timing.TimerRate,
		idleTicks:   timing.TimerRate / IdleRate,
		limitSample: cfg.LimitSampleCount,
		epoch:       buf.Epoch(),
		loops:       1,
	}
	g.lastLoops.Store(1)
	if g.limitSample == 0 {
		g.limitSample = 1
	}
	g.timer.Handler = g.timerHandler
	return g, nil
}

// Converter returns the interval converter in use
func (g *Generator) Converter() IntervalConverter {
	return g.conv
}

// Start schedules the step timer on the core scheduler
func (g *Generator) Start() {
	if g.running.Swap(true) {
		return
	}
	g.timer.WakeTime = core.GetTime() + g.idleTicks
	core.ScheduleTimer(&g.timer)
}

// Stop removes the step timer. Motors keep their state.
func (g *Generator) Stop() {
	if !g.running.Swap(false) {
		return
	}
	core.DeleteTimer(&g.timer)
}

// Running reports whether the step timer is scheduled
func (g *Generator) Running() bool {
	return g.running.Load()
}

func (g *Generator) timerHandler(t *core.Timer) uint8 {
	t.WakeTime += g.ISR()
	return core.SF_RESCHEDULE
}

// ISR runs one firing and returns the ticks until the next one
func (g *Generator) ISR() uint32 {
	ok := g.buf.EnterISR()
	defer g.buf.ExitISR()

	if !ok {
		// stopped from the planning context
		if g.current != nil || g.engaged.Load() {
			g.current = nil
			g.disengage()
		}
		g.epoch = g.buf.Epoch()
		return g.idleTicks
	}
	if e := g.buf.Epoch(); e != g.epoch {
		g.epoch = e
		g.current = nil
	}

	if g.current != nil {
		g.pulsePhase()
		if g.buf.Halted() {
			return g.idleTicks
		}
	}
	return g.blockPhase()
}

// pulsePhase emits the steps of this firing and retires the segment
// when its last step is out
func (g *Generator) pulsePhase() {
	s := g.current
	for l := uint8(0); l < g.loops; l++ {
		for i := 0; i < g.motors; i++ {
			m := &s.Muscles[i]
			m.StepCount += int32(m.AbsDelta)
			if m.StepCount > 0 {
				m.StepCount -= int32(s.StepsTotal)
				g.driver.Step(i)
				g.positions[i].Add(int32(m.Dir))
				g.pulses.Add(1)
			}
		}
		s.StepsTaken++
		g.stepEvents.Add(1)
		if s.StepsTaken >= s.StepsTotal {
			g.buf.ReleaseCurrentBlock()
			g.current = nil
			g.retired.Add(1)
			core.RecordTiming(core.EvtBlockDone, core.NoMotor, core.GetTime(), s.StepsTotal, 0)
			break
		}
	}
	g.checkLimits()
}

// checkLimits stops everything once a switch reads triggered for
// limitSample consecutive firings
func (g *Generator) checkLimits() {
	for i := 0; i < g.motors; i++ {
		if !g.driver.LimitTriggered(i) {
			g.limitCount[i] = 0
			continue
		}
		g.limitCount[i]++
		if g.limitCount[i] >= g.limitSample {
			g.limitCount[i] = 0
			g.limitTrips.Add(1)
			core.RecordTiming(core.EvtLimitTrip, uint8(i), core.GetTime(), uint32(g.positions[i].Load()), 0)
			core.DebugAsync("[STEP] limit switch tripped")
			g.Estop()
			return
		}
	}
}

// blockPhase picks up the next segment if needed and computes the
// interval to the next firing from the position within the ramp
func (g *Generator) blockPhase() uint32 {
	if g.current == nil {
		s := g.buf.GetCurrentBlock()
		if s == nil {
			if g.buf.MovesPlanned() == 0 {
				g.underruns.Add(1)
				core.RecordTiming(core.EvtUnderrun, core.NoMotor, core.GetTime(), 0, 0)
			} else if d := g.buf.FirstSegmentDelay(); d > 0 {
				core.RecordTiming(core.EvtFirstDelay, core.NoMotor, core.GetTime(), uint32(d), 0)
			}
			g.loops = 1
			return g.idleTicks
		}
		g.load(s)
	}

	s := g.current
	var interval uint32
	var loops uint8
	switch {
	case s.StepsTaken <= s.AccelUntil:
		rate := s.InitialRate + mulRate(g.accelTime, s.AccelerationRate)
		if rate > s.NominalRate {
			rate = s.NominalRate
		}
		interval, loops = g.conv.Interval(rate)
		g.accelTime += interval
		g.accelPeak = rate
	case s.StepsTaken > s.DecelAfter:
		rate := s.FinalRate
		if step := mulRate(g.decelTime, s.AccelerationRate); step < g.accelPeak {
			rate = g.accelPeak - step
			if rate < s.FinalRate {
				rate = s.FinalRate
			}
		}
		interval, loops = g.conv.Interval(rate)
		g.decelTime += interval
	default:
		interval, loops = g.nominalInterval, g.nominalLoops
		g.accelPeak = s.NominalRate
	}

	if loops != g.loops {
		core.RecordTiming(core.EvtMultistep, core.NoMotor, core.GetTime(), uint32(loops), uint32(g.loops))
		g.loops = loops
		g.lastLoops.Store(uint32(loops))
	}
	return interval
}

// load prepares a freshly claimed segment for execution
func (g *Generator) load(s *planner.Segment) {
	g.current = s
	s.StepsTaken = 0
	for i := 0; i < g.motors; i++ {
		m := &s.Muscles[i]
		m.StepCount = -int32(s.StepsTotal >> 1)
		g.driver.SetDirection(i, m.Dir < 0)
	}
	if !g.engaged.Load() {
		for i := 0; i < g.motors; i++ {
			g.driver.SetEnabled(i, true)
		}
		g.engaged.Store(true)
	}
	g.accelTime = 0
	g.decelTime = 0
	g.accelPeak = s.InitialRate
	g.nominalInterval, g.nominalLoops = g.conv.Interval(s.NominalRate)
	core.RecordTiming(core.EvtBlockLoad, core.NoMotor, core.GetTime(), s.StepsTotal, s.NominalRate)
}

// mulRate multiplies ticks by an 8.24 fixed point rate
func mulRate(ticks, rate uint32) uint32 {
	return uint32((uint64(ticks) * uint64(rate)) >> 24)
}

func (g *Generator) disengage() {
	for i := 0; i < g.motors; i++ {
		g.driver.SetEnabled(i, false)
	}
	g.engaged.Store(false)
}

// Estop stops motion from inside a firing: the ring is flushed, the halt
// latched and the motors released. The planner must then be cleared with
// ClearFault before it accepts moves again.
func (g *Generator) Estop() {
	g.buf.Halt()
	g.buf.Flush()
	g.epoch = g.buf.Epoch()
	g.current = nil
	g.loops = 1
	g.disengage()
	core.RecordTiming(core.EvtEstop, core.NoMotor, core.GetTime(), 0, 0)
}

// Busy reports whether a segment is executing
func (g *Generator) Busy() bool {
	return g.buf.MovesPlanned() != 0
}

// Engaged reports whether the motors are enabled
func (g *Generator) Engaged() bool {
	return g.engaged.Load()
}

// Position returns the step count of every motor
func (g *Generator) Position() []int32 {
	pos := make([]int32, g.motors)
	for i := range pos {
		pos[i] = g.positions[i].Load()
	}
	return pos
}

// SetPosition overwrites the step counts. Only valid while idle.
func (g *Generator) SetPosition(steps []int32) error {
	if len(steps) != g.motors {
		return fmt.Errorf("%w: got %d, want %d", planner.ErrAxisCount, len(steps), g.motors)
	}
	for i, s := range steps {
		g.positions[i].Store(s)
	}
	return nil
}

// Stats returns the counters
func (g *Generator) Stats() Stats {
	return Stats{
		Pulses:     g.pulses.Load(),
		StepEvents: g.stepEvents.Load(),
		Retired:    g.retired.Load(),
		Underruns:  g.underruns.Load(),
		LimitTrips: g.limitTrips.Load(),
		Loops:      uint8(g.lastLoops.Load()),
	}
}
