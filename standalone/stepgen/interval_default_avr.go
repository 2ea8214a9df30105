//go:build avr

package stepgen

import "github.com/navratilpetr/Makelangelo-firmware/standalone/config"

// DefaultStrategy uses the lookup tables: division is slow on AVR
const DefaultStrategy = config.IntervalLookup

const default32Bit = false
