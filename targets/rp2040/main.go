//go:build rp2040 || rp2350

// Command rp2040 is the plotter firmware for RP2040 and RP2350 boards. It
// reads G-code over USB CDC and answers "ok" per line.
package main

import (
	"machine"
	"time"

	"github.com/navratilpetr/Makelangelo-firmware/core"
	"github.com/navratilpetr/Makelangelo-firmware/standalone"
	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

var (
	readErrors  uint32
	writeErrors uint32
)

func main() {
	// clear watchdog state left over from a previous reset
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	initDebug()
	InitClock()
	core.ResetTimers()

	cfg := config.DefaultPlotterConfig()
	cfg.CPUFrequency = cpuFrequency
	cfg.TimerFrequency = TimerFrequency

	gpio, err := boardGPIO(cfg)
	if err != nil {
		core.DebugPrintln("[" + chipName + "] gpio: " + err.Error())
		fail()
	}
	manager, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		fail()
	}
	core.SetGPIODriver(gpio)
	if err := manager.InitializeGPIO(gpio, stepBackends(gpio)); err != nil {
		core.DebugPrintln("[" + chipName + "] init: " + err.Error())
		fail()
	}
	// the step timer is dispatched from this loop only, so the planner
	// must keep it running while it waits on a full queue or a drain
	if err := manager.SetMeanwhile(serviceTimers); err != nil {
		fail()
	}
	if err := manager.Start(); err != nil {
		fail()
	}
	blink(3, 200*time.Millisecond)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// a panic in the planning context must not stop the
					// step timer from being serviced
					readErrors++
				}
			}()

			for USBAvailable() > 0 {
				b, err := USBRead()
				if err != nil {
					readErrors++
					break
				}
				if err := manager.ProcessByte(b); err != nil {
					manager.SendResponse("error: " + err.Error() + "\n")
				}
			}

			manager.CheckFault()
			if out := manager.GetOutput(); len(out) > 0 {
				writeUSB(out)
			}

			serviceTimers()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// writeUSB sends out, giving up on a stalled host
func writeUSB(out []byte) {
	for written := 0; written < len(out); {
		n, err := USBWriteBytes(out[written:])
		if err != nil || n == 0 {
			writeErrors++
			return
		}
		written += n
	}
}

func serviceTimers() {
	UpdateSystemTime()
	core.ProcessTimers()
}

// fail blinks the LED fast forever
func fail() {
	for {
		blink(1, 100*time.Millisecond)
	}
}

func blink(n int, period time.Duration) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < n; i++ {
		led.High()
		time.Sleep(period)
		led.Low()
		time.Sleep(period)
	}
}
