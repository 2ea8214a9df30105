package core

// GPIOStepperBackend implements stepper control on the registered GPIO
// driver. It is the fallback when the target has no pulse hardware.
type GPIOStepperBackend struct {
	gpio       GPIODriver
	stepPin    GPIOPin
	dirPin     GPIOPin
	invertStep bool
	invertDir  bool
	steps      uint32
}

// NewGPIOStepperBackend creates a backend on gpio
func NewGPIOStepperBackend(gpio GPIODriver) *GPIOStepperBackend {
	return &GPIOStepperBackend{gpio: gpio}
}

// GPIOBackendFactory returns a BackendFactory producing GPIO backends
func GPIOBackendFactory(gpio GPIODriver) BackendFactory {
	return func() StepperBackend {
		return NewGPIOStepperBackend(gpio)
	}
}

// Init configures both pins as outputs in their idle state
func (b *GPIOStepperBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	b.stepPin = GPIOPin(stepPin)
	b.dirPin = GPIOPin(dirPin)
	b.invertStep = invertStep
	b.invertDir = invertDir

	if err := b.gpio.ConfigureOutput(b.stepPin); err != nil {
		return err
	}
	if err := b.gpio.SetPin(b.stepPin, invertStep); err != nil {
		return err
	}
	if err := b.gpio.ConfigureOutput(b.dirPin); err != nil {
		return err
	}
	return b.gpio.SetPin(b.dirPin, invertDir)
}

// Step drives the step pin active then idle
func (b *GPIOStepperBackend) Step() {
	_ = b.gpio.SetPin(b.stepPin, !b.invertStep)
	_ = b.gpio.SetPin(b.stepPin, b.invertStep)
	b.steps++
}

// SetDirection sets the direction output
func (b *GPIOStepperBackend) SetDirection(dir bool) {
	_ = b.gpio.SetPin(b.dirPin, dir != b.invertDir)
}

// Stop leaves the step pin idle
func (b *GPIOStepperBackend) Stop() {
	_ = b.gpio.SetPin(b.stepPin, b.invertStep)
}

// StepCount returns the number of pulses emitted since Init
func (b *GPIOStepperBackend) StepCount() uint32 {
	return b.steps
}

// GetName returns the backend name
func (b *GPIOStepperBackend) GetName() string {
	return "GPIO"
}

// GetInfo returns backend performance information
func (b *GPIOStepperBackend) GetInfo() StepperBackendInfo {
	return StepperBackendInfo{
		Name:          "GPIO",
		MaxStepRate:   40000,
		MinPulseNs:    1000,
		TypicalJitter: 2000,
		CPUOverhead:   20,
	}
}
