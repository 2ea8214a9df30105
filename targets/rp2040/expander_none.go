//go:build (rp2040 || rp2350) && !mcp23017

package main

import (
	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

func boardGPIO(*config.MachineConfig) (core.GPIODriver, error) {
	return NewRPGPIODriver(), nil
}
