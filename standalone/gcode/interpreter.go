package gcode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/planner"
)

var ErrUnsupported = errors.New("unsupported gcode")

// Machine is what the interpreter drives
type Machine interface {
	AxisNames() []string
	Position() []float64
	BufferLine(target []float64, feedRate float64) error
	BufferArc(cx, cy float64, dest []float64, clockwise bool, feedRate float64) error
	Teleport(pos []float64) error
	SetAcceleration(accel float64) error
	WaitForEmptySegmentBuffer(ctx context.Context) error
	Estop()
	ClearFault() error
}

// State is the modal state carried between lines
type State struct {
	Absolute bool
	FeedRate float64 // units/s
}

// Interpreter executes commands on a Machine
type Interpreter struct {
	machine Machine
	state   State
	axes    map[byte]int

	// Output receives report lines such as the M114 position
	Output func(string)
	// Sleep implements G4 dwell
	Sleep func(time.Duration)
}

// NewInterpreter creates an interpreter in absolute mode
func NewInterpreter(m Machine, defaultFeed float64) *Interpreter {
	interp := &Interpreter{
		machine: m,
		state:   State{Absolute: true, FeedRate: defaultFeed},
		axes:    make(map[byte]int),
		Sleep:   time.Sleep,
	}
	for i, name := range m.AxisNames() {
		if name != "" {
			interp.axes[toUpper(name[0])] = i
		}
	}
	return interp
}

// State returns the modal state
func (interp *Interpreter) State() State {
	return interp.state
}

// Execute runs one command. Comment-only commands do nothing.
func (interp *Interpreter) Execute(ctx context.Context, cmd *Command) error {
	if cmd == nil {
		return nil
	}
	switch cmd.Type {
	case 0:
		return nil
	case 'G':
		return interp.executeG(ctx, cmd)
	case 'M':
		return interp.executeM(ctx, cmd)
	}
	return fmt.Errorf("%w: %c%d", ErrUnsupported, cmd.Type, cmd.Number)
}

func (interp *Interpreter) executeG(ctx context.Context, cmd *Command) error {
	switch cmd.Number {
	case 0, 1: // linear move
		return interp.doLine(cmd)
	case 2, 3: // arc, G2 clockwise
		return interp.doArc(cmd, cmd.Number == 2)
	case 4: // dwell
		return interp.doDwell(ctx, cmd)
	case 90:
		interp.state.Absolute = true
	case 91:
		interp.state.Absolute = false
	case 92: // set position
		return interp.doSetPosition(ctx, cmd)
	default:
		return fmt.Errorf("%w: G%d", ErrUnsupported, cmd.Number)
	}
	return nil
}

func (interp *Interpreter) executeM(ctx context.Context, cmd *Command) error {
	switch cmd.Number {
	case 112: // emergency stop
		interp.machine.Estop()
	case 999: // resume after a stop
		return interp.machine.ClearFault()
	case 400: // finish moves
		return interp.machine.WaitForEmptySegmentBuffer(ctx)
	case 114: // report position
		interp.report(interp.formatPosition())
	case 204: // acceleration
		accel := cmd.GetParameter('S', cmd.GetParameter('P', 0))
		return interp.machine.SetAcceleration(accel)
	default:
		return fmt.Errorf("%w: M%d", ErrUnsupported, cmd.Number)
	}
	return nil
}

// target resolves the axis words of cmd against the current position
func (interp *Interpreter) target(cmd *Command) ([]float64, bool) {
	pos := interp.machine.Position()
	moved := false
	for letter, v := range cmd.Parameters {
		i, ok := interp.axes[letter]
		if !ok {
			continue
		}
		if interp.state.Absolute {
			pos[i] = v
		} else {
			pos[i] += v
		}
		moved = true
	}
	return pos, moved
}

func (interp *Interpreter) updateFeed(cmd *Command) error {
	if !cmd.HasParameter('F') {
		return nil
	}
	f := cmd.GetParameter('F', 0)
	if f <= 0 {
		return fmt.Errorf("%w: F%v", planner.ErrFeedRate, f)
	}
	interp.state.FeedRate = f / 60.0 // units/min to units/s
	return nil
}

func (interp *Interpreter) doLine(cmd *Command) error {
	if err := interp.updateFeed(cmd); err != nil {
		return err
	}
	target, moved := interp.target(cmd)
	if !moved {
		return nil
	}
	err := interp.machine.BufferLine(target, interp.state.FeedRate)
	if errors.Is(err, planner.ErrDegenerateMove) {
		return nil
	}
	return err
}

func (interp *Interpreter) doArc(cmd *Command, clockwise bool) error {
	if err := interp.updateFeed(cmd); err != nil {
		return err
	}
	if !cmd.HasParameter('I') && !cmd.HasParameter('J') {
		return fmt.Errorf("%w: arc without I or J", ErrSyntax)
	}
	start := interp.machine.Position()
	if len(start) < 2 {
		return fmt.Errorf("%w: arcs need two axes", ErrUnsupported)
	}
	cx := start[0] + cmd.GetParameter('I', 0)
	cy := start[1] + cmd.GetParameter('J', 0)
	dest, _ := interp.target(cmd)
	return interp.machine.BufferArc(cx, cy, dest, clockwise, interp.state.FeedRate)
}

func (interp *Interpreter) doDwell(ctx context.Context, cmd *Command) error {
	if err := interp.machine.WaitForEmptySegmentBuffer(ctx); err != nil {
		return err
	}
	d := time.Duration(cmd.GetParameter('P', 0) * float64(time.Millisecond))
	d += time.Duration(cmd.GetParameter('S', 0) * float64(time.Second))
	if d > 0 && interp.Sleep != nil {
		interp.Sleep(d)
	}
	return nil
}

func (interp *Interpreter) doSetPosition(ctx context.Context, cmd *Command) error {
	if err := interp.machine.WaitForEmptySegmentBuffer(ctx); err != nil {
		return err
	}
	pos := interp.machine.Position()
	for letter, v := range cmd.Parameters {
		if i, ok := interp.axes[letter]; ok {
			pos[i] = v
		}
	}
	return interp.machine.Teleport(pos)
}

func (interp *Interpreter) formatPosition() string {
	pos := interp.machine.Position()
	names := interp.machine.AxisNames()
	var b strings.Builder
	for i, v := range pos {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i < len(names) {
			b.WriteString(strings.ToUpper(names[i]))
		}
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(v, 'f', 3, 64))
	}
	return b.String()
}

func (interp *Interpreter) report(s string) {
	if interp.Output != nil {
		interp.Output(s)
	}
}
