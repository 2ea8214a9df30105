//go:build rp2350

package main

import (
	"machine"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

const (
	chipName        = "rp2350"
	cpuFrequency    = 150000000
	timerBase       = 0x400B0000 // TIMER0
	timerRawLOffset = 0x28
)

// stepBackends toggles the step pins from the interrupt
func stepBackends(gpio core.GPIODriver) core.BackendFactory {
	return core.GPIOBackendFactory(gpio)
}

// initDebug routes core debug output to UART1 on GPIO36/GPIO37
func initDebug() {
	uart := machine.UART1
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO36,
		RX:       machine.GPIO37,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
}
