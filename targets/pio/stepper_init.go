//go:build rp2040

package pio

import (
	"errors"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

var ErrInvertedStep = errors.New("pio: inverted step output not supported")

// BackendFactory returns a core.BackendFactory that places every motor on
// its own state machine. It yields nil once all eight are taken.
func BackendFactory(a *Allocator) core.BackendFactory {
	return func() core.StepperBackend {
		p, s, ok := a.Allocate()
		if !ok {
			return nil
		}
		return NewBackend(p, s)
	}
}
