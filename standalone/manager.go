package standalone

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/gcode"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/kinematics"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/planner"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/stepgen"
)

var (
	ErrNotInitialized     = errors.New("manager not initialized")
	ErrAlreadyInitialized = errors.New("manager already initialized")
	ErrBusy               = errors.New("moves still queued")
)

// Status is a snapshot of the machine
type Status struct {
	Position     []float64 // last queued target, units
	Steps        []int32   // motor step counts
	MovesPlanned uint32
	MovesFree    uint32
	Halted       bool
	Acceleration float64
	Stats        stepgen.Stats
}

// Manager coordinates the planner, the step generator and the command
// layer on top of them. Command methods must be called from one goroutine.
type Manager struct {
	config      *config.MachineConfig
	kinematics  kinematics.Kinematics
	planner     *planner.Planner
	generator   *stepgen.Generator
	driver      core.MotorDriver
	parser      *gcode.Parser
	interpreter *gcode.Interpreter

	// Serial interface
	inputBuffer  []byte
	outMu        sync.Mutex
	outputBuffer []byte

	initialized bool
	faultSeen   bool
}

// NewManager creates a manager from a JSON configuration
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.MachineConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		inputBuffer:  make([]byte, 0, 256),
		outputBuffer: make([]byte, 0, 256),
	}, nil
}

// Config returns the machine configuration
func (m *Manager) Config() *config.MachineConfig {
	return m.config
}

// InitializeGPIO builds the motor driver from the configured pins on gpio,
// using factory for the step backends, then initializes the manager
func (m *Manager) InitializeGPIO(gpio core.GPIODriver, factory core.BackendFactory) error {
	motors, err := m.config.CoreMotors()
	if err != nil {
		return err
	}
	if factory == nil {
		factory = core.GPIOBackendFactory(gpio)
	}
	driver, err := core.NewBackendDriver(motors, gpio, factory)
	if err != nil {
		return err
	}
	return m.Initialize(driver)
}

// Initialize sets up all components on driver
func (m *Manager) Initialize(driver core.MotorDriver) error {
	if m.initialized {
		return ErrAlreadyInitialized
	}

	var kin kinematics.Kinematics
	var err error
	switch m.config.Kinematics {
	case "cartesian":
		kin, err = kinematics.NewCartesian(m.config)
	default:
		err = fmt.Errorf("%w: %q", kinematics.ErrUnsupported, m.config.Kinematics)
	}
	if err != nil {
		return err
	}

	p, err := planner.NewPlanner(m.config)
	if err != nil {
		return err
	}
	g, err := stepgen.NewGenerator(p.Buffer(), driver, m.config)
	if err != nil {
		return err
	}

	m.kinematics = kin
	m.planner = p
	m.generator = g
	m.driver = driver
	m.interpreter = gcode.NewInterpreter(m, m.config.DefaultFeedRate)
	m.interpreter.Output = func(s string) { m.SendResponse(s + "\n") }
	m.initialized = true
	core.DebugPrintln("[MGR] " + strconv.Itoa(len(m.config.Motors)) + " motors, interval " + g.Converter().Name())
	return nil
}

// Planner returns the look-ahead planner
func (m *Manager) Planner() *planner.Planner { return m.planner }

// Generator returns the step generator
func (m *Manager) Generator() *stepgen.Generator { return m.generator }

// SetMeanwhile installs f as the work done while the planner waits for
// the queue: a full ring, M400, G4 and G92. Targets whose step timer is
// serviced from the same loop that feeds G-code must pass a function that
// dispatches the timers, or those waits never end.
func (m *Manager) SetMeanwhile(f func()) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.planner.Buffer().Meanwhile = f
	m.interpreter.Sleep = func(d time.Duration) {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			f()
		}
	}
	return nil
}

// Start schedules the step timer
func (m *Manager) Start() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.generator.Start()
	m.SendResponse("Makelangelo motion core ready\n")
	return nil
}

// Stop removes the step timer
func (m *Manager) Stop() {
	if m.initialized {
		m.generator.Stop()
	}
}

// IsRunning returns whether the step timer is scheduled
func (m *Manager) IsRunning() bool {
	return m.initialized && m.generator.Running()
}

// AxisNames returns the axis letters in motor order
func (m *Manager) AxisNames() []string {
	return m.kinematics.GetAxisNames()
}

// Position returns the last queued target in machine units
func (m *Manager) Position() []float64 {
	return m.planner.Position()
}

// BufferLine queues a straight move to target at feedRate units/s
func (m *Manager) BufferLine(target []float64, feedRate float64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	pos, err := m.kinematics.CalcPosition(target)
	if err != nil {
		return err
	}
	return m.planner.BufferLine(pos, feedRate)
}

// BufferArc queues an arc around (cx, cy) ending at dest
func (m *Manager) BufferArc(cx, cy float64, dest []float64, clockwise bool, feedRate float64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := m.kinematics.CheckLimits(dest); err != nil {
		return err
	}
	return m.planner.BufferArc(cx, cy, dest, clockwise, feedRate)
}

// Teleport redefines the current position without moving. The queue
// must be empty.
func (m *Manager) Teleport(pos []float64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := m.kinematics.CheckLimits(pos); err != nil {
		return err
	}
	if m.planner.MovesPlanned() != 0 {
		return ErrBusy
	}
	if err := m.planner.Teleport(pos); err != nil {
		return err
	}
	return m.generator.SetPosition(m.planner.PositionSteps())
}

// SetAcceleration changes the acceleration for moves queued from now on
func (m *Manager) SetAcceleration(accel float64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return m.planner.SetAcceleration(accel)
}

// WaitForEmptySegmentBuffer blocks until every queued move has run or
// the machine stops
func (m *Manager) WaitForEmptySegmentBuffer(ctx context.Context) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return m.planner.WaitForEmptySegmentBuffer(ctx)
}

// Estop stops all motion and drops the queue
func (m *Manager) Estop() {
	if !m.initialized {
		return
	}
	m.planner.Estop()
	m.reportFault("emergency stop")
}

// Halted reports whether an emergency stop is latched
func (m *Manager) Halted() bool {
	return m.initialized && m.planner.Halted()
}

// CheckFault reports a stop raised from the interrupt context (a limit
// switch) once. It returns whether the machine is halted.
func (m *Manager) CheckFault() bool {
	if !m.Halted() {
		return false
	}
	m.reportFault("halted")
	return true
}

func (m *Manager) reportFault(reason string) {
	if m.faultSeen {
		return
	}
	m.faultSeen = true
	st := m.generator.Stats()
	core.DebugPrintln("[MGR] " + reason + ", limit trips " + strconv.FormatUint(uint64(st.LimitTrips), 10))
	core.DumpTimingRing(st.Pulses)
	m.SendResponse("!! " + reason + "\n")
}

// ClearFault releases the stop latch. The planner continues from where
// the motors actually stopped.
func (m *Manager) ClearFault() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.planner.ClearFault()
	m.faultSeen = false
	core.ClearTimingRing()
	return m.planner.SetPositionSteps(m.generator.Position())
}

// Status returns a snapshot of the machine
func (m *Manager) Status() Status {
	if !m.initialized {
		return Status{}
	}
	return Status{
		Position:     m.planner.Position(),
		Steps:        m.generator.Position(),
		MovesPlanned: m.planner.MovesPlanned(),
		MovesFree:    m.planner.MovesFree(),
		Halted:       m.planner.Halted(),
		Acceleration: m.planner.Acceleration(),
		Stats:        m.generator.Stats(),
	}
}

// Report describes every queued segment
func (m *Manager) Report() []string {
	if !m.initialized {
		return nil
	}
	lines := m.planner.DescribeAllSegments()
	for _, l := range lines {
		core.DebugPrintln("[PLAN] " + l)
	}
	return lines
}

// ProcessLine executes one line of G-code
func (m *Manager) ProcessLine(ctx context.Context, line string) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		return err
	}
	return m.interpreter.Execute(ctx, cmd)
}

// ProcessByte processes a single byte of input (for serial streaming)
func (m *Manager) ProcessByte(b byte) error {
	if b != '\n' && b != '\r' {
		m.inputBuffer = append(m.inputBuffer, b)
		return nil
	}
	line := strings.TrimSpace(string(m.inputBuffer))
	m.inputBuffer = m.inputBuffer[:0]
	if line == "" {
		return nil
	}
	if err := m.ProcessLine(context.Background(), line); err != nil {
		return err
	}
	m.SendResponse("ok\n")
	return nil
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outMu.Lock()
	m.outputBuffer = append(m.outputBuffer, response...)
	m.outMu.Unlock()
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	if len(m.outputBuffer) == 0 {
		return nil
	}
	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}
