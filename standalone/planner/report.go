package planner

import (
	"fmt"
	"strings"
)

// SegmentReport formats one segment for the debug log
func SegmentReport(s *Segment, motors int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "steps=%d/%d dist=%.3f", s.StepsTaken, s.StepsTotal, s.Distance)
	for i := 0; i < motors && i < MaxMuscles; i++ {
		fmt.Fprintf(&sb, " m%d=%d", i, s.Muscles[i].DeltaSteps)
	}
	fmt.Fprintf(&sb, " speed(entry=%.3f max=%.3f nominal=%.3f) accel=%.3f",
		s.EntrySpeed, s.EntrySpeedMax, s.NominalSpeed, s.Acceleration)
	fmt.Fprintf(&sb, " rate(initial=%d nominal=%d final=%d) ramp(%d,%d) accel_steps=%d",
		s.InitialRate, s.NominalRate, s.FinalRate, s.AccelUntil, s.DecelAfter, s.AccelerationStepsPerS2)

	f := s.flags.Load()
	var flags []string
	if f&FlagNominal != 0 {
		flags = append(flags, "NOMINAL")
	}
	if f&FlagRecalculate != 0 {
		flags = append(flags, "RECALCULATE")
	}
	if f&flagBusy != 0 {
		flags = append(flags, "BUSY")
	}
	fmt.Fprintf(&sb, " flags=[%s]", strings.Join(flags, " "))
	return sb.String()
}

// DescribeAllSegments formats the ring indices and every queued segment,
// oldest first. The segments may change while they are read.
func (p *Planner) DescribeAllSegments() []string {
	tail, nonbusy, planned, head := p.buf.Indices()
	lines := []string{fmt.Sprintf("segments tail=%d nonbusy=%d planned=%d head=%d queued=%d free=%d",
		tail&p.buf.mask, nonbusy&p.buf.mask, planned&p.buf.mask, head&p.buf.mask,
		head-tail, p.buf.Capacity()-1-(head-tail))}
	for i := tail; i != head; i++ {
		lines = append(lines, fmt.Sprintf("%2d: %s", i&p.buf.mask, SegmentReport(p.buf.at(i), p.motors)))
	}
	return lines
}
