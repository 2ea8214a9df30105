package standalone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/planner"
	"github.com/navratilpetr/Makelangelo-firmware/targets/sim"
)

// fakeGPIO records pin writes
type fakeGPIO struct {
	outputs map[core.GPIOPin]bool
	inputs  map[core.GPIOPin]bool
	levels  map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		outputs: make(map[core.GPIOPin]bool),
		inputs:  make(map[core.GPIOPin]bool),
		levels:  make(map[core.GPIOPin]bool),
	}
}

func (g *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	g.inputs[pin] = true
	g.levels[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	g.inputs[pin] = true
	return nil
}

func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.levels[pin] = value
	return nil
}

func (g *fakeGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	return g.levels[pin], nil
}

func (g *fakeGPIO) ReadPin(pin core.GPIOPin) bool {
	return g.levels[pin]
}

func testConfig() *config.MachineConfig {
	cfg := config.DefaultPlotterConfig()
	cfg.FirstSegmentDelay = -1
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *sim.Driver) {
	t.Helper()
	core.ResetTimers()
	core.SetTime(0)
	t.Cleanup(func() {
		core.ResetTimers()
		core.SetTime(0)
	})

	m, err := NewManagerWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	d := sim.NewDriver(2)
	if err := m.Initialize(d); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m, d
}

func runIdle(t *testing.T, m *Manager) {
	t.Helper()
	ok := sim.RunUntilIdle(func() bool { return m.Planner().MovesPlanned() == 0 }, 200000000)
	if !ok {
		t.Fatal("Moves did not complete")
	}
}

func TestManagerNotInitialized(t *testing.T) {
	m, err := NewManagerWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	if err := m.BufferLine([]float64{1, 1}, 10); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if err := m.Start(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized from Start, got %v", err)
	}
	if m.IsRunning() || m.Halted() {
		t.Error("Uninitialized manager reports activity")
	}
}

func TestManagerConfigErrors(t *testing.T) {
	if _, err := NewManager([]byte(`{"motors": []}`)); !errors.Is(err, config.ErrNoMotors) {
		t.Errorf("Expected ErrNoMotors, got %v", err)
	}
	cfg := testConfig()
	cfg.Kinematics = "delta"
	m, err := NewManagerWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	if err := m.Initialize(sim.NewDriver(2)); err == nil {
		t.Error("Expected unsupported kinematics error")
	}
}

func TestManagerInitializeGPIO(t *testing.T) {
	m, err := NewManagerWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	gpio := newFakeGPIO()
	if err := m.InitializeGPIO(gpio, nil); err != nil {
		t.Fatalf("InitializeGPIO failed: %v", err)
	}
	for _, pin := range []core.GPIOPin{2, 3, 4, 5, 8, 9} {
		if !gpio.outputs[pin] {
			t.Errorf("Pin %d not configured as output", pin)
		}
	}
	// active-low enables start released
	if !gpio.levels[8] || !gpio.levels[9] {
		t.Error("Enable pins must start released")
	}
	if !gpio.inputs[20] || !gpio.inputs[21] {
		t.Error("Limit pins not configured as inputs")
	}
	if err := m.Initialize(sim.NewDriver(2)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("Expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestManagerGCodeStream(t *testing.T) {
	m, d := newTestManager(t)
	m.GetOutput()

	for _, b := range []byte("G1 X10 Y5 F3000\r\nG1 X0\n\n") {
		if err := m.ProcessByte(b); err != nil {
			t.Fatalf("ProcessByte failed: %v", err)
		}
	}
	if out := string(m.GetOutput()); out != "ok\nok\n" {
		t.Errorf("Expected two acknowledgements, got %q", out)
	}
	runIdle(t, m)

	if d.Position(0) != 0 || d.Position(1) != 400 {
		t.Errorf("Expected motors at 0,400, got %d,%d", d.Position(0), d.Position(1))
	}
	if err := m.ProcessLine(context.Background(), "M114"); err != nil {
		t.Fatalf("M114 failed: %v", err)
	}
	if out := string(m.GetOutput()); out != "X:0.000 Y:5.000\n" {
		t.Errorf("Unexpected position report %q", out)
	}
}

// The step timer here is only serviced from the loop that feeds G-code,
// as on the firmware, so every wait must dispatch it.
func TestManagerSingleLoopBackpressure(t *testing.T) {
	m, d := newTestManager(t)
	m.GetOutput()

	tick := func() {
		if next, ok := core.NextWakeTime(); ok {
			core.SetTime(next)
			core.ProcessTimers()
		}
	}
	if err := m.SetMeanwhile(tick); err != nil {
		t.Fatalf("SetMeanwhile failed: %v", err)
	}

	var lines []string
	for i := 1; i <= 40; i++ {
		lines = append(lines, fmt.Sprintf("G1 X%d Y0 F3000", i))
		if i == 35 {
			lines = append(lines, "G4 P1")
		}
	}
	lines = append(lines, "M400", "G92 X0 Y0", "M114")

	done := make(chan error, 1)
	go func() {
		for _, line := range lines {
			for _, b := range []byte(line + "\n") {
				if err := m.ProcessByte(b); err != nil {
					done <- fmt.Errorf("%q: %w", line, err)
					return
				}
				tick()
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ProcessByte failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Stream stalled with %d moves planned", m.Planner().MovesPlanned())
	}

	out := string(m.GetOutput())
	if n := strings.Count(out, "ok\n"); n != len(lines) {
		t.Errorf("Expected %d acknowledgements, got %d", len(lines), n)
	}
	if !strings.Contains(out, "X:0.000 Y:0.000\n") {
		t.Errorf("Unexpected output %q", out)
	}
	if d.Position(0) != 3200 || d.Position(1) != 0 {
		t.Errorf("Expected motors at 3200,0, got %d,%d", d.Position(0), d.Position(1))
	}
}

func TestManagerSetMeanwhileUninitialized(t *testing.T) {
	m, err := NewManagerWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	if err := m.SetMeanwhile(func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestManagerTeleport(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.BufferLine([]float64{10, 0}, 50); err != nil {
		t.Fatalf("BufferLine failed: %v", err)
	}
	if err := m.Teleport([]float64{0, 0}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy while moving, got %v", err)
	}
	runIdle(t, m)

	if err := m.Teleport([]float64{100, 50}); err != nil {
		t.Fatalf("Teleport failed: %v", err)
	}
	st := m.Status()
	if st.Position[0] != 100 || st.Steps[0] != 8000 || st.Steps[1] != 4000 {
		t.Errorf("Unexpected status after teleport %+v", st)
	}
}

func TestManagerLimitFault(t *testing.T) {
	m, d := newTestManager(t)
	d.TripLimitAfter(0, 200)
	m.GetOutput()

	if err := m.BufferLine([]float64{20, 0}, 50); err != nil {
		t.Fatalf("BufferLine failed: %v", err)
	}
	sim.RunUntilIdle(m.Halted, 200000000)
	if !m.CheckFault() {
		t.Fatal("Expected the limit switch to halt the machine")
	}
	m.CheckFault()
	if out := string(m.GetOutput()); out != "!! halted\n" {
		t.Errorf("Expected one fault report, got %q", out)
	}
	if err := m.BufferLine([]float64{0, 0}, 50); !errors.Is(err, planner.ErrHalted) {
		t.Errorf("Expected ErrHalted, got %v", err)
	}

	d.SetLimit(0, false)
	d.TripLimitAfter(1, 1<<40)
	if err := m.ClearFault(); err != nil {
		t.Fatalf("ClearFault failed: %v", err)
	}
	steps := m.Planner().PositionSteps()
	if int64(steps[0]) != d.Position(0) {
		t.Errorf("Planner resumed at %d, motor stopped at %d", steps[0], d.Position(0))
	}
	if err := m.BufferLine([]float64{0, 0}, 50); err != nil {
		t.Fatalf("BufferLine after ClearFault failed: %v", err)
	}
	runIdle(t, m)
	if d.Position(0) != 0 {
		t.Errorf("Expected to return to 0, at %d", d.Position(0))
	}
}

func TestManagerEstopAndReport(t *testing.T) {
	m, _ := newTestManager(t)

	for _, x := range []float64{10, 20, 30} {
		if err := m.BufferLine([]float64{x, 0}, 50); err != nil {
			t.Fatalf("BufferLine failed: %v", err)
		}
	}
	lines := m.Report()
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "segments") {
		t.Errorf("Unexpected report %q", lines)
	}

	m.Estop()
	st := m.Status()
	if !st.Halted || st.MovesPlanned != 0 {
		t.Errorf("Expected halted empty queue, got %+v", st)
	}
	if err := m.WaitForEmptySegmentBuffer(context.Background()); err != nil {
		t.Errorf("Wait on an empty queue failed: %v", err)
	}
	if err := m.ClearFault(); err != nil || m.Halted() {
		t.Errorf("ClearFault did not resume: %v", err)
	}
	if err := m.SetAcceleration(-1); !errors.Is(err, planner.ErrAcceleration) {
		t.Errorf("Expected ErrAcceleration, got %v", err)
	}
}
