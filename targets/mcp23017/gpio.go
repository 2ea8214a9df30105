// Package mcp23017 implements core.GPIODriver on an MCP23017 I2C port
// expander, for boards that route the motor signals through one.
package mcp23017

import (
	"errors"
	"fmt"
	"sync"

	"github.com/navratilpetr/Makelangelo-firmware/core"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp23017"
)

var (
	ErrPinRange = errors.New("mcp23017: pin out of range")
	ErrPullDown = errors.New("mcp23017: no pull-down resistors")
)

// Driver maps core pins Base..Base+15 onto the expander. Port A is
// Base+0..7, port B Base+8..15.
type Driver struct {
	Base core.GPIOPin

	mu    sync.Mutex
	dev   *mcp23017.Device
	modes [mcp23017.PinCount]mcp23017.PinMode
}

// New opens the expander at address on bus. All pins start as inputs.
func New(bus drivers.I2C, address uint8, base core.GPIOPin) (*Driver, error) {
	dev, err := mcp23017.NewI2C(bus, address)
	if err != nil {
		return nil, err
	}
	d := &Driver{Base: base, dev: dev}
	if err := dev.GetModes(d.modes[:]); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) index(pin core.GPIOPin) (int, error) {
	if pin < d.Base || pin >= d.Base+mcp23017.PinCount {
		return 0, fmt.Errorf("%w: %d", ErrPinRange, pin)
	}
	return int(pin - d.Base), nil
}

func (d *Driver) setMode(pin core.GPIOPin, mode mcp23017.PinMode) error {
	i, err := d.index(pin)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.modes[i] == mode {
		return nil
	}
	prev := d.modes[i]
	d.modes[i] = mode
	if err := d.dev.SetModes(d.modes[:]); err != nil {
		d.modes[i] = prev
		return err
	}
	return nil
}

func (d *Driver) ConfigureOutput(pin core.GPIOPin) error {
	return d.setMode(pin, mcp23017.Output)
}

func (d *Driver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.setMode(pin, mcp23017.Input|mcp23017.Pullup)
}

func (d *Driver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return ErrPullDown
}

// SetPin writes the output latch. Only the changed pin costs a bus write.
func (d *Driver) SetPin(pin core.GPIOPin, value bool) error {
	i, err := d.index(pin)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.Pin(i).Set(value)
}

func (d *Driver) GetPin(pin core.GPIOPin) (bool, error) {
	i, err := d.index(pin)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.Pin(i).Get()
}

// ReadPin reads a pin; bus errors read low
func (d *Driver) ReadPin(pin core.GPIOPin) bool {
	v, _ := d.GetPin(pin)
	return v
}
