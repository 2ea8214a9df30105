// Package pio drives step pulses from the RP2040 PIO state machines, so a
// pulse costs the step interrupt one FIFO write.
package pio

// Allocator hands out the 2 x 4 PIO state machines round robin
type Allocator struct {
	used   [2][4]bool
	nextPI uint8
	nextSM uint8
}

// Allocate reserves a free state machine
func (a *Allocator) Allocate() (pioNum, smNum uint8, ok bool) {
	for i := 0; i < 8; i++ {
		p, s := a.nextPI, a.nextSM
		a.nextSM++
		if a.nextSM >= 4 {
			a.nextSM = 0
			a.nextPI = (a.nextPI + 1) % 2
		}
		if !a.used[p][s] {
			a.used[p][s] = true
			return p, s, true
		}
	}
	return 0, 0, false
}

// Status returns which state machines are taken
func (a *Allocator) Status() [2][4]bool {
	return a.used
}
