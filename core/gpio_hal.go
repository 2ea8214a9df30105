package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// NoPin marks an optional pin that is not wired
const NoPin GPIOPin = 0xffffffff

// ErrUnknownPin is returned by LookupPin for names it cannot parse
var ErrUnknownPin = errors.New("unknown pin name")

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state (alias for GetPin for convenience)
	ReadPin(pin GPIOPin) bool
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// GetGPIODriver returns the registered driver, or nil.
func GetGPIODriver() GPIODriver {
	return gpioDriver
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// LookupPin parses a configuration pin name ("gpio5", "gp5" or "5").
// An empty name or "none" yields NoPin.
func LookupPin(name string) (GPIOPin, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == "none" {
		return NoPin, nil
	}
	switch {
	case strings.HasPrefix(n, "gpio"):
		n = n[4:]
	case strings.HasPrefix(n, "gp"):
		n = n[2:]
	}
	v, err := strconv.ParseUint(n, 10, 16)
	if err != nil {
		return NoPin, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return GPIOPin(v), nil
}
