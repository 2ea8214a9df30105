package core

import "sync/atomic"

// DefaultTimerFreq is the step timer rate of the reference board
// (16MHz AVR with a /8 prescaler).
const DefaultTimerFreq = 2000000

var (
	systemTicks atomic.Uint32
	timerFreq   atomic.Uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// AdvanceTime moves the system time forward by ticks and returns the new time.
// Simulated clocks call this before ProcessTimers.
func AdvanceTime(ticks uint32) uint32 {
	return systemTicks.Add(ticks)
}

// GetTimerFrequency returns the timer tick rate in Hz
func GetTimerFrequency() uint32 {
	if f := timerFreq.Load(); f != 0 {
		return f
	}
	return DefaultTimerFreq
}

// SetTimerFrequency sets the timer tick rate. Targets call this once at boot.
func SetTimerFrequency(hz uint32) {
	timerFreq.Store(hz)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(GetTimerFrequency()) / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(GetTimerFrequency()))
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
