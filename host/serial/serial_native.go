//go:build !wasm && !tinygo

package serial

import (
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// tarmPort is a Port on a local tty
type tarmPort struct {
	*serial.Port
	device string
}

// Open opens the device described by cfg as 8N1
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serial: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: p, device: cfg.Device}, nil
}

// OpenRetry keeps trying Open until it succeeds or ctx ends. A board that
// was just reset needs a moment to enumerate its USB CDC device again.
func OpenRetry(ctx context.Context, cfg *Config, every time.Duration) (Port, error) {
	for {
		p, err := Open(cfg)
		if err == nil {
			return p, nil
		}
		if cfg == nil || cfg.Validate() != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(every):
		}
	}
}

func (p *tarmPort) String() string {
	return p.device
}
