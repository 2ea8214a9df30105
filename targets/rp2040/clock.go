//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

// The RP2040 and RP2350 both run a 64-bit microsecond timer; only the
// register block moves. The core clock keeps the low word.
var timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerBase + timerRawLOffset)))

// TimerFrequency is the rate of the hardware timer
const TimerFrequency = 1000000

// InitClock sets the core tick rate to the hardware timer
func InitClock() {
	core.SetTimerFrequency(TimerFrequency)
	core.SetTime(GetHardwareTime())
}

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}

// UpdateSystemTime copies hardware time into the core clock
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
