package planner

import "math"

// recalculate replans the mutable part of the queue.
//
// The segment at the planned index has a final entry speed; its exit and
// everything after it may still change. Each segment in that range is
// acquired before it is touched. The consumer claims in order, so the
// first segment it already holds ends the range from below.
func (p *Planner) recalculate() {
	b := p.buf
	hi := b.head.Load()
	lo := b.plannedIndex()
	if !before(lo, hi) {
		return
	}

	first := lo
	for ; first != hi; first++ {
		if b.at(first).acquire() {
			break
		}
	}
	if first == hi {
		return
	}
	for i := first + 1; i != hi; i++ {
		if !b.at(i).acquire() {
			// cannot happen: the consumer is held at first
			debugViolation("claimed segment above an acquired one")
			return
		}
	}

	p.reversePass(first, hi)
	p.forwardPass(first, hi)
	p.trapezoidPass(first, hi)
}

// reversePass raises entry speeds as far as the following segments allow,
// newest to oldest. The newest segment must be able to stop.
func (p *Planner) reversePass(first, hi uint32) {
	b := p.buf
	nextEntry := 0.0
	for i := hi - 1; i != first; i-- {
		cur := b.at(i)
		if cur.IsNominal() {
			break
		}
		debugCheckMutable(cur)
		if cur.EntrySpeed != cur.EntrySpeedMax {
			cur.EntrySpeed = math.Min(cur.EntrySpeedMax,
				MaxSpeedAllowed(-cur.Acceleration, nextEntry, cur.Distance))
		}
		nextEntry = cur.EntrySpeed
	}
}

// forwardPass lowers entry speeds the previous segment cannot reach,
// oldest to newest, and moves the planned index past final entries
func (p *Planner) forwardPass(first, hi uint32) {
	b := p.buf
	prev := b.at(first)
	for i := first + 1; i != hi; i++ {
		cur := b.at(i)
		debugCheckMutable(cur)
		limited := false
		if prev.EntrySpeed < cur.EntrySpeed {
			limit := MaxSpeedAllowed(-prev.Acceleration, prev.EntrySpeed, prev.Distance)
			if cur.EntrySpeed > limit {
				cur.EntrySpeed = limit
				limited = true
			}
		}
		if limited || cur.EntrySpeed == cur.EntrySpeedMax {
			b.planned.Store(i)
		}
		prev = cur
	}
}

// trapezoidPass computes the step profile of every acquired segment and
// hands it back to the consumer, oldest first
func (p *Planner) trapezoidPass(first, hi uint32) {
	b := p.buf
	for i := first; i != hi; i++ {
		cur := b.at(i)
		exit := 0.0
		if i+1 != hi {
			exit = b.at(i + 1).EntrySpeed
		}
		debugCheckMutable(cur)
		updateTrapezoid(cur, cur.EntrySpeed/cur.NominalSpeed, exit/cur.NominalSpeed)
		cur.release(cur.EntrySpeed == cur.NominalSpeed)
	}
}

// updateTrapezoid sets the ramp boundaries and rates of s for the given
// entry and exit speeds, expressed as fractions of the nominal speed
func updateTrapezoid(s *Segment, entryFactor, exitFactor float64) {
	initialRate := uint32(math.Ceil(float64(s.NominalRate) * entryFactor))
	finalRate := uint32(math.Ceil(float64(s.NominalRate) * exitFactor))
	if initialRate < MinimalStepRate {
		initialRate = MinimalStepRate
	}
	if finalRate < MinimalStepRate {
		finalRate = MinimalStepRate
	}

	accel := float64(s.AccelerationStepsPerS2)
	nominal := float64(s.NominalRate)
	accelerateSteps := int64(math.Ceil(EstimateAccelerationDistance(float64(initialRate), nominal, accel)))
	decelerateSteps := int64(math.Floor(EstimateAccelerationDistance(nominal, float64(finalRate), -accel)))
	plateauSteps := int64(s.StepsTotal) - accelerateSteps - decelerateSteps

	if plateauSteps < 0 {
		accelerateSteps = int64(math.Ceil(IntersectionDistance(float64(initialRate), float64(finalRate), accel, float64(s.StepsTotal))))
		if accelerateSteps < 0 {
			accelerateSteps = 0
		}
		if accelerateSteps > int64(s.StepsTotal) {
			accelerateSteps = int64(s.StepsTotal)
		}
		plateauSteps = 0
	}

	s.AccelUntil = uint32(accelerateSteps)
	s.DecelAfter = uint32(accelerateSteps + plateauSteps)
	s.InitialRate = initialRate
	s.FinalRate = finalRate
}
