//go:build rp2040

package main

import (
	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/targets/pio"
)

const (
	chipName        = "rp2040"
	cpuFrequency    = 125000000
	timerBase       = 0x40054000
	timerRawLOffset = 0x28
)

var pioAllocator pio.Allocator

// stepBackends puts every motor on its own PIO state machine
func stepBackends(core.GPIODriver) core.BackendFactory {
	return pio.BackendFactory(&pioAllocator)
}

func initDebug() {}
