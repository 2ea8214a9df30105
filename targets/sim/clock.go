package sim

import (
	"context"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

// Clock drives the core scheduler from a goroutine. It jumps the virtual
// time straight to the next timer, optionally pacing it to wall time.
type Clock struct {
	// Realtime sleeps so that virtual time tracks wall time
	Realtime bool
	// Idle is called when no timer is scheduled
	Idle func()
}

// RunUntilIdle dispatches timers until cond returns true or limit ticks
// have passed. It returns whether cond was met.
func RunUntilIdle(cond func() bool, limit uint32) bool {
	start := core.GetTime()
	for !cond() {
		next, ok := core.NextWakeTime()
		if !ok {
			return cond()
		}
		if next-start > limit {
			return false
		}
		core.SetTime(next)
		core.ProcessTimers()
	}
	return true
}

// Run dispatches timers until ctx is done
func (c *Clock) Run(ctx context.Context) error {
	freq := core.GetTimerFrequency()
	wallStart := time.Now()
	last := core.GetTime()
	var elapsed uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok := core.NextWakeTime()
		if !ok {
			if c.Idle != nil {
				c.Idle()
			} else {
				time.Sleep(time.Millisecond)
			}
			continue
		}
		elapsed += uint64(next - last)
		last = next
		if c.Realtime {
			due := wallStart.Add(time.Duration(elapsed * uint64(time.Second) / uint64(freq)))
			if d := time.Until(due); d > 0 {
				time.Sleep(d)
			}
		}
		core.SetTime(next)
		core.ProcessTimers()
	}
}
