package mcp23017

import (
	"github.com/navratilpetr/Makelangelo-firmware/core"

	"tinygo.org/x/drivers/mcp23017"
)

// Split serves the expander's pin range from Expander and every other
// pin from Native. Step pins should stay native: an expander write is a
// bus transaction.
type Split struct {
	Native   core.GPIODriver
	Expander *Driver
}

func (s *Split) pick(pin core.GPIOPin) core.GPIODriver {
	if pin != core.NoPin && pin >= s.Expander.Base && pin < s.Expander.Base+mcp23017.PinCount {
		return s.Expander
	}
	return s.Native
}

func (s *Split) ConfigureOutput(pin core.GPIOPin) error {
	return s.pick(pin).ConfigureOutput(pin)
}

func (s *Split) ConfigureInputPullUp(pin core.GPIOPin) error {
	return s.pick(pin).ConfigureInputPullUp(pin)
}

func (s *Split) ConfigureInputPullDown(pin core.GPIOPin) error {
	return s.pick(pin).ConfigureInputPullDown(pin)
}

func (s *Split) SetPin(pin core.GPIOPin, value bool) error {
	return s.pick(pin).SetPin(pin, value)
}

func (s *Split) GetPin(pin core.GPIOPin) (bool, error) {
	return s.pick(pin).GetPin(pin)
}

func (s *Split) ReadPin(pin core.GPIOPin) bool {
	return s.pick(pin).ReadPin(pin)
}
