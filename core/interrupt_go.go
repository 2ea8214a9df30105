//go:build !tinygo

package core

import "sync"

// State is the saved interrupt state.
type State uintptr

// irqMask stands in for the interrupt mask on regular Go: the goroutine
// that plays the timer interrupt and the planning goroutines exclude each
// other on it.
var irqMask sync.Mutex

// disableInterrupts enters the critical section
func disableInterrupts() State {
	irqMask.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	irqMask.Unlock()
}
