// Package console implements the line command interface of the simulator.
// Word commands ("line x=10 f=50") and G-code lines are both accepted.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/navratilpetr/Makelangelo-firmware/logger"
	"github.com/navratilpetr/Makelangelo-firmware/standalone"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgument       = errors.New("bad argument")
)

const help = `commands:
  line x=.. y=.. f=..              straight move, f in units/s
  arc cx=.. cy=.. x=.. y=.. dir=cw|ccw f=..
  teleport x=.. y=..               redefine the position
  accel <units/s^2>
  wait                             block until the queue is empty
  estop | clear | status | report | help
  G-code lines (G0-G4, G90-G92, M112, M114, M204, M400, M999)`

// Console executes command lines on a Manager and writes replies to out
type Console struct {
	m    *standalone.Manager
	out  io.Writer
	feed float64

	// WaitTimeout bounds "wait", 0 waits forever
	WaitTimeout time.Duration
}

// New creates a console on m
func New(m *standalone.Manager, out io.Writer) *Console {
	return &Console{m: m, out: out, feed: m.Config().DefaultFeedRate}
}

// Run reads lines from r until EOF or ctx ends. Every line gets "ok" or
// "error: ..." back.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		err := c.Execute(ctx, line)
		c.flush()
		if err != nil {
			logger.Warnf("command %q failed: %v", line, err)
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(c.out, "ok")
	}
	return sc.Err()
}

// flush forwards what the manager has to say
func (c *Console) flush() {
	c.m.CheckFault()
	if out := c.m.GetOutput(); len(out) > 0 {
		c.out.Write(out)
	}
}

// Execute runs one command line
func (c *Console) Execute(ctx context.Context, line string) error {
	if isGCode(line) {
		return c.m.ProcessLine(ctx, line)
	}
	words, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArgument, err)
	}
	if len(words) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(words[0]), words[1:]

	switch cmd {
	case "line":
		return c.doLine(args)
	case "arc":
		return c.doArc(args)
	case "teleport":
		return c.doTeleport(ctx, args)
	case "accel":
		return c.doAccel(args)
	case "wait":
		return c.doWait(ctx)
	case "estop":
		c.m.Estop()
		return nil
	case "clear":
		return c.m.ClearFault()
	case "status":
		c.printStatus()
		return nil
	case "report":
		for _, l := range c.m.Report() {
			fmt.Fprintln(c.out, l)
		}
		return nil
	case "help":
		fmt.Fprintln(c.out, help)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, words[0])
}

func isGCode(line string) bool {
	switch line[0] {
	case ';', '(':
		return true
	case 'G', 'g', 'M', 'm', 'N', 'n':
		return len(line) > 1 && (line[1] >= '0' && line[1] <= '9')
	}
	return false
}

// parseArgs splits key=value words
func parseArgs(args []string) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: %q, expected key=value", ErrArgument, a)
		}
		kv[strings.ToLower(k)] = v
	}
	return kv, nil
}

func parseFloat(kv map[string]string, key string) (float64, bool, error) {
	s, ok := kv[key]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", ErrArgument, key, s)
	}
	return v, true, nil
}

// target applies the axis arguments to the current position
func (c *Console) target(kv map[string]string) ([]float64, error) {
	pos := c.m.Position()
	for i, name := range c.m.AxisNames() {
		v, ok, err := parseFloat(kv, strings.ToLower(name))
		if err != nil {
			return nil, err
		}
		if ok {
			pos[i] = v
		}
	}
	return pos, nil
}

func (c *Console) updateFeed(kv map[string]string) error {
	f, ok, err := parseFloat(kv, "f")
	if err != nil || !ok {
		return err
	}
	if f <= 0 {
		return fmt.Errorf("%w: f=%v", ErrArgument, f)
	}
	c.feed = f
	return nil
}

func (c *Console) doLine(args []string) error {
	kv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if err := c.updateFeed(kv); err != nil {
		return err
	}
	target, err := c.target(kv)
	if err != nil {
		return err
	}
	return c.m.BufferLine(target, c.feed)
}

func (c *Console) doArc(args []string) error {
	kv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if err := c.updateFeed(kv); err != nil {
		return err
	}
	cx, okx, err := parseFloat(kv, "cx")
	if err != nil {
		return err
	}
	cy, oky, err := parseFloat(kv, "cy")
	if err != nil {
		return err
	}
	if !okx || !oky {
		return fmt.Errorf("%w: arc needs cx and cy", ErrArgument)
	}
	clockwise := false
	switch strings.ToLower(kv["dir"]) {
	case "cw":
		clockwise = true
	case "", "ccw":
	default:
		return fmt.Errorf("%w: dir=%q", ErrArgument, kv["dir"])
	}
	dest, err := c.target(kv)
	if err != nil {
		return err
	}
	return c.m.BufferArc(cx, cy, dest, clockwise, c.feed)
}

func (c *Console) doTeleport(ctx context.Context, args []string) error {
	kv, err := parseArgs(args)
	if err != nil {
		return err
	}
	pos, err := c.target(kv)
	if err != nil {
		return err
	}
	if err := c.doWait(ctx); err != nil {
		return err
	}
	return c.m.Teleport(pos)
}

func (c *Console) doAccel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: accel takes one value", ErrArgument)
	}
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("%w: accel %q", ErrArgument, args[0])
	}
	return c.m.SetAcceleration(a)
}

func (c *Console) doWait(ctx context.Context) error {
	if c.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.WaitTimeout)
		defer cancel()
	}
	return c.m.WaitForEmptySegmentBuffer(ctx)
}

func (c *Console) printStatus() {
	st := c.m.Status()
	names := c.m.AxisNames()
	var b strings.Builder
	for i, v := range st.Position {
		fmt.Fprintf(&b, "%s:%.3f(%d) ", names[i], v, st.Steps[i])
	}
	fmt.Fprintf(&b, "queued=%d free=%d accel=%g halted=%v", st.MovesPlanned, st.MovesFree, st.Acceleration, st.Halted)
	fmt.Fprintln(c.out, b.String())
	fmt.Fprintf(c.out, "pulses=%d events=%d retired=%d underruns=%d limit_trips=%d loops=%d\n",
		st.Stats.Pulses, st.Stats.StepEvents, st.Stats.Retired, st.Stats.Underruns, st.Stats.LimitTrips, st.Stats.Loops)
}
