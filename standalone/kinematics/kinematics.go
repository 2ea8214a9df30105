package kinematics

import "errors"

var (
	ErrAxisCount   = errors.New("axis count mismatch")
	ErrNotFinite   = errors.New("coordinate is not finite")
	ErrUnsupported = errors.New("unsupported kinematics")
)

// Kinematics defines the interface for coordinate transformations
type Kinematics interface {
	// CalcPosition converts machine coordinates to motor positions (units)
	CalcPosition(pos []float64) ([]float64, error)

	// GetAxisNames returns the names of axes controlled by this kinematics
	GetAxisNames() []string

	// CheckLimits validates that a position can be handed to the planner
	CheckLimits(pos []float64) error
}
