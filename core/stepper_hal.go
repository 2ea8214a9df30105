package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoBackend     = errors.New("no stepper backend available")
	ErrMotorIndex    = errors.New("motor index out of range")
	ErrNoGPIODriver  = errors.New("GPIO driver not configured")
	ErrDuplicateAxis = errors.New("duplicate motor letter")
)

// StepperBackend defines the hardware abstraction for stepper control
// Implementations can use GPIO, PIO, or other methods
type StepperBackend interface {
	// Init initializes the stepper hardware
	// stepPin: GPIO pin for step pulses
	// dirPin: GPIO pin for direction signal
	// invertStep: invert step pin polarity
	// invertDir: invert direction pin polarity
	Init(stepPin, dirPin uint8, invertStep, invertDir bool) error

	// Step generates a single step pulse
	// Must handle pulse width timing internally
	// Should be fast (called from timer interrupt)
	Step()

	// SetDirection sets the direction output
	// dir: true = reverse, false = forward
	// Must ensure proper dir-to-step setup time
	SetDirection(dir bool)

	// Stop immediately halts stepping
	Stop()

	// GetName returns backend implementation name
	GetName() string
}

// StepperBackendInfo provides information about available backends
type StepperBackendInfo struct {
	Name          string
	MaxStepRate   uint32 // Maximum steps/second per axis
	MinPulseNs    uint32 // Minimum step pulse width (ns)
	TypicalJitter uint32 // Typical timing jitter (ns)
	CPUOverhead   uint8  // CPU overhead percentage (0-100)
}

// Motor describes the pins of one stepper channel
type Motor struct {
	Letter       byte
	StepPin      GPIOPin
	DirPin       GPIOPin
	EnablePin    GPIOPin // NoPin when the driver is always enabled
	LimitPin     GPIOPin // NoPin when the axis has no limit switch
	InvertStep   bool
	InvertDir    bool
	InvertEnable bool // true for active-low enable inputs (A4988, DRV8825)
	InvertLimit  bool // true when the switch reads low while triggered
}

// MotorDriver is what the pulse generator drives. Every method may be
// called from the step interrupt.
type MotorDriver interface {
	// Step emits one pulse on motor m
	Step(m int)
	// SetDirection selects the direction for subsequent pulses on motor m
	SetDirection(m int, reverse bool)
	// SetEnabled energises or releases the coils of motor m
	SetEnabled(m int, enabled bool)
	// LimitTriggered samples the limit switch of motor m
	LimitTriggered(m int) bool
}

// BackendFactory creates a backend for the next motor, or nil when the
// target has run out of stepping resources.
type BackendFactory func() StepperBackend

// BackendDriver implements MotorDriver on a StepperBackend per motor plus
// the GPIO driver for enable and limit pins.
type BackendDriver struct {
	motors   []Motor
	backends []StepperBackend
	gpio     GPIODriver
}

// NewBackendDriver initialises a backend for every motor and configures
// the enable and limit pins. Motors start disengaged.
func NewBackendDriver(motors []Motor, gpio GPIODriver, factory BackendFactory) (*BackendDriver, error) {
	if gpio == nil {
		return nil, ErrNoGPIODriver
	}
	d := &BackendDriver{
		motors:   motors,
		backends: make([]StepperBackend, len(motors)),
		gpio:     gpio,
	}
	seen := make(map[byte]bool, len(motors))
	for i, m := range motors {
		if seen[m.Letter] {
			return nil, fmt.Errorf("%w: %c", ErrDuplicateAxis, m.Letter)
		}
		seen[m.Letter] = true

		b := factory()
		if b == nil {
			return nil, fmt.Errorf("motor %c: %w", m.Letter, ErrNoBackend)
		}
		if err := b.Init(uint8(m.StepPin), uint8(m.DirPin), m.InvertStep, m.InvertDir); err != nil {
			return nil, fmt.Errorf("motor %c: init %s backend: %w", m.Letter, b.GetName(), err)
		}
		d.backends[i] = b

		if m.EnablePin != NoPin {
			if err := gpio.ConfigureOutput(m.EnablePin); err != nil {
				return nil, fmt.Errorf("motor %c: enable pin: %w", m.Letter, err)
			}
			if err := gpio.SetPin(m.EnablePin, m.InvertEnable); err != nil {
				return nil, fmt.Errorf("motor %c: enable pin: %w", m.Letter, err)
			}
		}
		if m.LimitPin != NoPin {
			if err := gpio.ConfigureInputPullUp(m.LimitPin); err != nil {
				return nil, fmt.Errorf("motor %c: limit pin: %w", m.Letter, err)
			}
		}
	}
	return d, nil
}

// Motors returns the motor table
func (d *BackendDriver) Motors() []Motor {
	return d.motors
}

// Backend returns the backend driving motor m
func (d *BackendDriver) Backend(m int) StepperBackend {
	return d.backends[m]
}

func (d *BackendDriver) Step(m int) {
	d.backends[m].Step()
}

func (d *BackendDriver) SetDirection(m int, reverse bool) {
	d.backends[m].SetDirection(reverse)
}

func (d *BackendDriver) SetEnabled(m int, enabled bool) {
	mo := &d.motors[m]
	if !enabled {
		d.backends[m].Stop()
	}
	if mo.EnablePin == NoPin {
		return
	}
	// Pin errors cannot be reported from the interrupt
	_ = d.gpio.SetPin(mo.EnablePin, enabled != mo.InvertEnable)
}

func (d *BackendDriver) LimitTriggered(m int) bool {
	mo := &d.motors[m]
	if mo.LimitPin == NoPin {
		return false
	}
	return d.gpio.ReadPin(mo.LimitPin) != mo.InvertLimit
}
