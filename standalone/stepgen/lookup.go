package stepgen

import "github.com/navratilpetr/Makelangelo-firmware/standalone/config"

// LookupConverter interpolates the reload value from two tables instead
// of dividing, for cores without a hardware divider. Frequencies below
// 2048 Hz above the floor use the slow table (8 Hz per entry), the rest
// the fast table (256 Hz per entry). Each entry holds the reload value and
// its difference to the next entry.
type LookupConverter struct {
	multistepper
	minFreq uint32
	fast    [256][2]uint16
	slow    [256][2]uint16
}

// NewLookupConverter builds both tables for the given clocks
func NewLookupConverter(t Timing) (*LookupConverter, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	c := &LookupConverter{
		multistepper: multistepper{limits: t.StepLimits()},
		minFreq:      t.MinStepFrequency(),
	}
	fillTable(&c.fast, t.TimerRate, c.minFreq, 256)
	fillTable(&c.slow, t.TimerRate, c.minFreq, 8)
	return c, nil
}

func fillTable(table *[256][2]uint16, timerRate, minFreq, step uint32) {
	var a [256]uint32
	for i := range a {
		a[i] = timerRate / (uint32(i)*step + minFreq)
		if a[i] > 0xffff {
			a[i] = 0xffff
		}
	}
	for i := range a {
		table[i][0] = uint16(a[i])
		if i < len(a)-1 {
			table[i][1] = uint16(a[i] - a[i+1])
		} else {
			table[i][1] = table[i-1][1]
		}
	}
}

func (c *LookupConverter) Interval(freq uint32) (uint32, uint8) {
	f, loops := c.split(freq)
	if f < c.minFreq {
		f = c.minFreq
	}
	f -= c.minFreq

	if f >= 8*256 {
		idx := f >> 8
		if idx > 255 {
			idx = 255
		}
		entry := c.fast[idx]
		drop := ((f & 0xff) * uint32(entry[1])) >> 8
		return uint32(entry[0]) - drop, loops
	}
	entry := c.slow[f>>3]
	drop := (uint32(entry[1]) * (f & 7)) >> 3
	return uint32(entry[0]) - drop, loops
}

func (c *LookupConverter) Name() string { return config.IntervalLookup }
