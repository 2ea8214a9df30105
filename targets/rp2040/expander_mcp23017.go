//go:build (rp2040 || rp2350) && mcp23017

package main

import (
	"machine"
	"strconv"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
	"github.com/navratilpetr/Makelangelo-firmware/targets/mcp23017"
)

// Boards built with -tags mcp23017 drive the motor enables from port A
// of an expander on I2C0 (GPIO12 SDA, GPIO13 SCL). Limits stay native:
// they are sampled on every step firing.
const (
	expanderAddr = 0x20
	expanderBase = 100
)

func boardGPIO(cfg *config.MachineConfig) (core.GPIODriver, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.GPIO12,
		SCL:       machine.GPIO13,
	})
	if err != nil {
		return nil, err
	}
	exp, err := mcp23017.New(bus, expanderAddr, expanderBase)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Motors {
		cfg.Motors[i].EnablePin = "gpio" + strconv.Itoa(expanderBase+i)
	}
	return &mcp23017.Split{Native: NewRPGPIODriver(), Expander: exp}, nil
}
