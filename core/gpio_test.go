package core

import (
	"errors"
	"testing"
)

// MockGPIODriver is a test implementation of GPIODriver
type MockGPIODriver struct {
	pins     map[GPIOPin]bool
	outputs  map[GPIOPin]bool
	pullups  map[GPIOPin]bool
	writes   map[GPIOPin]int
	failPins map[GPIOPin]bool
}

func NewMockGPIODriver() *MockGPIODriver {
	return &MockGPIODriver{
		pins:     make(map[GPIOPin]bool),
		outputs:  make(map[GPIOPin]bool),
		pullups:  make(map[GPIOPin]bool),
		writes:   make(map[GPIOPin]int),
		failPins: make(map[GPIOPin]bool),
	}
}

var errMockPin = errors.New("mock pin failure")

func (m *MockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	if m.failPins[pin] {
		return errMockPin
	}
	m.outputs[pin] = true
	m.pins[pin] = false
	return nil
}

func (m *MockGPIODriver) ConfigureInputPullUp(pin GPIOPin) error {
	if m.failPins[pin] {
		return errMockPin
	}
	m.pullups[pin] = true
	m.pins[pin] = true
	return nil
}

func (m *MockGPIODriver) ConfigureInputPullDown(pin GPIOPin) error {
	m.pins[pin] = false
	return nil
}

func (m *MockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	m.pins[pin] = value
	m.writes[pin]++
	return nil
}

func (m *MockGPIODriver) GetPin(pin GPIOPin) (bool, error) {
	return m.pins[pin], nil
}

func (m *MockGPIODriver) ReadPin(pin GPIOPin) bool {
	return m.pins[pin]
}

func TestLookupPin(t *testing.T) {
	cases := []struct {
		name string
		want GPIOPin
	}{
		{"gpio5", 5},
		{"GP12", 12},
		{" 7 ", 7},
		{"", NoPin},
		{"none", NoPin},
	}
	for _, c := range cases {
		got, err := LookupPin(c.name)
		if err != nil {
			t.Errorf("LookupPin(%q) failed: %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("LookupPin(%q) = %d, want %d", c.name, got, c.want)
		}
	}

	if _, err := LookupPin("PA3"); !errors.Is(err, ErrUnknownPin) {
		t.Errorf("Expected ErrUnknownPin for PA3, got %v", err)
	}
}

func TestGPIODriverRegistry(t *testing.T) {
	defer SetGPIODriver(nil)

	SetGPIODriver(nil)
	if GetGPIODriver() != nil {
		t.Fatalf("Expected no driver")
	}

	mock := NewMockGPIODriver()
	SetGPIODriver(mock)
	if MustGPIO() != mock {
		t.Errorf("MustGPIO returned a different driver")
	}
}

func testMotors() []Motor {
	return []Motor{
		{Letter: 'X', StepPin: 2, DirPin: 3, EnablePin: 8, LimitPin: 10, InvertEnable: true},
		{Letter: 'Y', StepPin: 4, DirPin: 5, EnablePin: NoPin, LimitPin: NoPin, InvertDir: true},
	}
}

func TestBackendDriverInit(t *testing.T) {
	mock := NewMockGPIODriver()
	d, err := NewBackendDriver(testMotors(), mock, GPIOBackendFactory(mock))
	if err != nil {
		t.Fatalf("NewBackendDriver failed: %v", err)
	}

	for _, pin := range []GPIOPin{2, 3, 4, 5, 8} {
		if !mock.outputs[pin] {
			t.Errorf("Expected pin %d configured as output", pin)
		}
	}
	if !mock.pullups[10] {
		t.Errorf("Expected limit pin configured with pull-up")
	}
	// Active-low enable starts released (high)
	if !mock.pins[8] {
		t.Errorf("Expected enable pin high after init")
	}
	// Inverted direction idles high
	if !mock.pins[5] {
		t.Errorf("Expected inverted dir pin high after init")
	}
	if d.Backend(0).GetName() != "GPIO" {
		t.Errorf("Expected GPIO backend, got %s", d.Backend(0).GetName())
	}
}

func TestBackendDriverStepAndDirection(t *testing.T) {
	mock := NewMockGPIODriver()
	d, err := NewBackendDriver(testMotors(), mock, GPIOBackendFactory(mock))
	if err != nil {
		t.Fatalf("NewBackendDriver failed: %v", err)
	}

	before := mock.writes[2]
	d.Step(0)
	d.Step(0)
	if got := mock.writes[2] - before; got != 4 {
		t.Errorf("Expected 4 step pin writes for 2 pulses, got %d", got)
	}
	if mock.pins[2] {
		t.Errorf("Step pin must idle low after a pulse")
	}
	if n := d.Backend(0).(*GPIOStepperBackend).StepCount(); n != 2 {
		t.Errorf("Expected step count 2, got %d", n)
	}

	d.SetDirection(0, true)
	if !mock.pins[3] {
		t.Errorf("Expected dir pin high for reverse")
	}
	d.SetDirection(1, true)
	if mock.pins[5] {
		t.Errorf("Expected inverted dir pin low for reverse")
	}
}

func TestBackendDriverEnableAndLimit(t *testing.T) {
	mock := NewMockGPIODriver()
	d, err := NewBackendDriver(testMotors(), mock, GPIOBackendFactory(mock))
	if err != nil {
		t.Fatalf("NewBackendDriver failed: %v", err)
	}

	d.SetEnabled(0, true)
	if mock.pins[8] {
		t.Errorf("Expected active-low enable pin low when engaged")
	}
	d.SetEnabled(0, false)
	if !mock.pins[8] {
		t.Errorf("Expected enable pin high when released")
	}
	// No enable pin: must not panic
	d.SetEnabled(1, true)

	mock.pins[10] = false
	if d.LimitTriggered(0) {
		t.Errorf("Limit should be open while the pin reads low")
	}
	mock.pins[10] = true
	if !d.LimitTriggered(0) {
		t.Errorf("Limit should be triggered while the pin reads high")
	}
	mock.pins[10] = false
	d.motors[0].InvertLimit = true
	if !d.LimitTriggered(0) {
		t.Errorf("Limit should read triggered with inverted polarity")
	}
	if d.LimitTriggered(1) {
		t.Errorf("Motor without limit pin must never trigger")
	}
}

func TestBackendDriverErrors(t *testing.T) {
	mock := NewMockGPIODriver()

	if _, err := NewBackendDriver(testMotors(), nil, GPIOBackendFactory(mock)); !errors.Is(err, ErrNoGPIODriver) {
		t.Errorf("Expected ErrNoGPIODriver, got %v", err)
	}

	none := func() StepperBackend { return nil }
	if _, err := NewBackendDriver(testMotors(), mock, none); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Expected ErrNoBackend, got %v", err)
	}

	dup := testMotors()
	dup[1].Letter = 'X'
	if _, err := NewBackendDriver(dup, mock, GPIOBackendFactory(mock)); !errors.Is(err, ErrDuplicateAxis) {
		t.Errorf("Expected ErrDuplicateAxis, got %v", err)
	}

	mock.failPins[2] = true
	if _, err := NewBackendDriver(testMotors(), mock, GPIOBackendFactory(mock)); !errors.Is(err, errMockPin) {
		t.Errorf("Expected wrapped pin error, got %v", err)
	}
}
