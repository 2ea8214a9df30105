package kinematics

import "math"

// PlanArc splits an arc around the absolute centre (cx, cy) in the plane
// of the first two axes into chords no longer than segLen. Remaining axes
// move linearly (helical motion). The last point is exactly target.
func PlanArc(current, target []float64, cx, cy float64, clockwise bool, segLen float64) [][]float64 {
	// Radius vector from center to current location
	rP := current[0] - cx
	rQ := current[1] - cy
	rtP := target[0] - cx
	rtQ := target[1] - cy

	angularTravel := math.Atan2(rP*rtQ-rQ*rtP, rP*rtP+rQ*rtQ)
	if angularTravel < 0 {
		angularTravel += 2 * math.Pi
	}
	if clockwise {
		angularTravel -= 2 * math.Pi
	}

	// Full circle when the end point is the start point
	if angularTravel == 0 && current[0] == target[0] && current[1] == target[1] {
		angularTravel = 2 * math.Pi
		if clockwise {
			angularTravel = -angularTravel
		}
	}

	radius := math.Hypot(rP, rQ)
	flat := math.Abs(radius * angularTravel)
	linear := 0.0
	for i := 2; i < len(current); i++ {
		d := target[i] - current[i]
		linear += d * d
	}
	travel := math.Sqrt(flat*flat + linear)

	segments := 1.0
	if segLen > 0 {
		segments = math.Max(1, math.Floor(travel/segLen))
	}
	n := int(segments)
	theta := angularTravel / segments

	points := make([][]float64, 0, n)
	for i := 1; i <= n; i++ {
		if i == n {
			p := make([]float64, len(target))
			copy(p, target)
			points = append(points, p)
			break
		}
		sin, cos := math.Sincos(float64(i) * theta)
		p := make([]float64, len(current))
		p[0] = cx + rP*cos - rQ*sin
		p[1] = cy + rP*sin + rQ*cos
		frac := float64(i) / segments
		for j := 2; j < len(current); j++ {
			p[j] = current[j] + (target[j]-current[j])*frac
		}
		points = append(points, p)
	}
	return points
}
