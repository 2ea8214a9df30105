package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/targets/sim"
)

type fixture struct {
	console *Console
	manager *standalone.Manager
	driver  *sim.Driver
	out     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core.ResetTimers()
	core.SetTime(0)

	cfg := config.DefaultPlotterConfig()
	cfg.FirstSegmentDelay = -1
	m, err := standalone.NewManagerWithConfig(cfg)
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
	m.GetOutput()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		clock := &sim.Clock{}
		clock.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		m.Stop()
		core.ResetTimers()
		core.SetTime(0)
	})

	out := &bytes.Buffer{}
	c := New(m, out)
	c.WaitTimeout = 30 * time.Second
	return &fixture{console: c, manager: m, driver: d, out: out}
}

func (f *fixture) run(t *testing.T, script string) string {
	t.Helper()
	f.out.Reset()
	if err := f.console.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return f.out.String()
}

func TestConsoleLineAndStatus(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "line x=10 y=5 f=50\n\nwait\nstatus\n")
	if !strings.HasPrefix(out, "ok\nok\n") {
		t.Errorf("Expected acknowledgements first, got %q", out)
	}
	if !strings.Contains(out, "X:10.000(800) Y:5.000(400) queued=0") {
		t.Errorf("Status does not show the new position: %q", out)
	}
	if f.driver.Position(0) != 800 || f.driver.Position(1) != 400 {
		t.Errorf("Motors at %d,%d", f.driver.Position(0), f.driver.Position(1))
	}
}

func TestConsoleArc(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "arc cx=5 cy=0 x=10 y=0 dir=cw f=20\nwait\n")
	if out != "ok\nok\n" {
		t.Fatalf("Unexpected output %q", out)
	}
	if f.driver.Position(0) != 800 || f.driver.Position(1) != 0 {
		t.Errorf("Expected the arc to end at 800,0, got %d,%d", f.driver.Position(0), f.driver.Position(1))
	}
}

func TestConsoleGCode(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "G1 X3 F600\nM400\nM114\n")
	if !strings.Contains(out, "X:3.000 Y:0.000") {
		t.Errorf("Expected the M114 report, got %q", out)
	}
	if f.driver.Position(0) != 240 {
		t.Errorf("Expected 240 steps, got %d", f.driver.Position(0))
	}
}

func TestConsoleTeleportAndAccel(t *testing.T) {
	f := newFixture(t)

	f.run(t, "line x=1 f=10\nteleport x=50 y=60\naccel 800\n")
	pos := f.manager.Position()
	if pos[0] != 50 || pos[1] != 60 {
		t.Errorf("Expected teleport to 50,60, got %v", pos)
	}
	if f.manager.Planner().Acceleration() != 800 {
		t.Errorf("Expected acceleration 800, got %v", f.manager.Planner().Acceleration())
	}
}

func TestConsoleEstopClear(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "estop\nline x=5\nclear\nreport\n")
	if !strings.Contains(out, "!! emergency stop") {
		t.Errorf("Expected the stop to be reported, got %q", out)
	}
	if !strings.Contains(out, "error: motion halted") {
		t.Errorf("Expected the move to be refused while halted, got %q", out)
	}
	if !strings.Contains(out, "segments tail=") {
		t.Errorf("Expected a segment report, got %q", out)
	}
	if f.manager.Halted() {
		t.Error("Machine still halted after clear")
	}
}

func TestConsoleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		line string
		want error
	}{
		{"bogus", ErrUnknownCommand},
		{"line x", ErrArgument},
		{"line x=abc", ErrArgument},
		{"line f=-1", ErrArgument},
		{"accel", ErrArgument},
		{"accel fast", ErrArgument},
		{"arc x=1", ErrArgument},
		{"arc cx=0 cy=0 dir=up", ErrArgument},
		{`line x="1`, ErrArgument},
	}
	for _, tc := range cases {
		if err := f.console.Execute(ctx, tc.line); !errors.Is(err, tc.want) {
			t.Errorf("%q: expected %v, got %v", tc.line, tc.want, err)
		}
	}

	out := f.run(t, "help\nnope\n")
	if !strings.Contains(out, "commands:") || !strings.Contains(out, "error: unknown command") {
		t.Errorf("Unexpected output %q", out)
	}
}
