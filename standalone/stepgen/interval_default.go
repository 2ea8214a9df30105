//go:build !avr

package stepgen

import "github.com/navratilpetr/Makelangelo-firmware/standalone/config"

// DefaultStrategy divides: 32-bit cores have a hardware divider
const DefaultStrategy = config.IntervalDivision

const default32Bit = true
