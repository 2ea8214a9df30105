package kinematics

import (
	"fmt"
	"math"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

// Cartesian implements 1:1 kinematics: every axis drives one motor
type Cartesian struct {
	names []string
}

// NewCartesian creates a Cartesian kinematics instance for the configured motors
func NewCartesian(cfg *config.MachineConfig) (*Cartesian, error) {
	if cfg.Kinematics != "cartesian" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Kinematics)
	}
	if len(cfg.Motors) == 0 {
		return nil, config.ErrNoMotors
	}
	names := make([]string, len(cfg.Motors))
	for i, m := range cfg.Motors {
		names[i] = m.Letter
	}
	return &Cartesian{names: names}, nil
}

// CalcPosition converts coordinates to motor positions.
// For Cartesian, this is a 1:1 mapping
func (k *Cartesian) CalcPosition(pos []float64) ([]float64, error) {
	if err := k.CheckLimits(pos); err != nil {
		return nil, err
	}
	out := make([]float64, len(pos))
	copy(out, pos)
	return out, nil
}

// GetAxisNames returns the axis letters in motor order
func (k *Cartesian) GetAxisNames() []string {
	return k.names
}

// CheckLimits validates the position vector
func (k *Cartesian) CheckLimits(pos []float64) error {
	if len(pos) != len(k.names) {
		return fmt.Errorf("%w: got %d, want %d", ErrAxisCount, len(pos), len(k.names))
	}
	for i, v := range pos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNotFinite, k.names[i], v)
		}
	}
	return nil
}
