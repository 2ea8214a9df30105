package stepgen

import (
	"errors"
	"testing"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

var avrTiming = Timing{CPUFrequency: 16000000, TimerRate: 2000000, Motors: 2, CPU32Bit: false}

func TestStepLimits(t *testing.T) {
	limits := avrTiming.StepLimits()
	want := []uint32{15873, 13157, 9803}
	for k, w := range want {
		if limits[k] != w {
			t.Errorf("limit[%d]: expected %d, got %d", k, w, limits[k])
		}
	}

	// the per-step cost shrinks on a 32-bit core
	fast := avrTiming
	fast.CPU32Bit = true
	if fast.StepLimits()[0] <= limits[0] {
		t.Errorf("Expected a higher single-step limit on 32-bit, got %d <= %d", fast.StepLimits()[0], limits[0])
	}
}

func TestMultistepThresholds(t *testing.T) {
	c, err := NewDivisionConverter(avrTiming)
	if err != nil {
		t.Fatalf("NewDivisionConverter failed: %v", err)
	}

	ticks, loops := c.Interval(15000)
	if loops != 1 || ticks != 133 {
		t.Errorf("15kHz: expected 133 ticks x1, got %d x%d", ticks, loops)
	}
	ticks, loops = c.Interval(15873)
	if loops != 1 {
		t.Errorf("At the limit: expected a single step, got x%d", loops)
	}
	ticks, loops = c.Interval(16000)
	if loops != 2 || ticks != 250 {
		t.Errorf("16kHz: expected 250 ticks x2, got %d x%d", ticks, loops)
	}

	prev := uint8(1)
	for f := uint32(100); f < 400000; f += 500 {
		_, loops := c.Interval(f)
		if loops&(loops-1) != 0 || loops > 1<<MaxMultistepShift {
			t.Fatalf("%d Hz: loops %d not a power of two up to 128", f, loops)
		}
		if loops < prev {
			t.Fatalf("%d Hz: loops dropped from %d to %d", f, prev, loops)
		}
		prev = loops
	}
}

func TestDivisionAccuracy(t *testing.T) {
	c, _ := NewDivisionConverter(avrTiming)
	for f := uint32(120); f <= 15000; f += 37 {
		ticks, loops := c.Interval(f)
		if loops != 1 {
			t.Fatalf("%d Hz: unexpected multistepping x%d", f, loops)
		}
		if ticks != 2000000/f {
			t.Errorf("%d Hz: expected %d ticks, got %d", f, 2000000/f, ticks)
		}
	}
	if ticks, _ := c.Interval(0); ticks != 2000000 {
		t.Errorf("0 Hz: expected the full timer rate, got %d", ticks)
	}
}

func TestLookupExactPoints(t *testing.T) {
	c, err := NewLookupConverter(avrTiming)
	if err != nil {
		t.Fatalf("NewLookupConverter failed: %v", err)
	}
	if ticks, _ := c.Interval(1000); ticks != 2000 {
		t.Errorf("1kHz: expected 2000 ticks, got %d", ticks)
	}
	if ticks, _ := c.Interval(5000); ticks != 400 {
		t.Errorf("5kHz: expected 400 ticks, got %d", ticks)
	}
	// below the table floor the slowest entry applies
	if ticks, _ := c.Interval(10); ticks != 62500 {
		t.Errorf("10Hz: expected 62500 ticks, got %d", ticks)
	}
}

func TestLookupAccuracy(t *testing.T) {
	c, _ := NewLookupConverter(avrTiming)
	for f := uint32(32); f <= 15000; f++ {
		ticks, loops := c.Interval(f)
		if loops != 1 {
			t.Fatalf("%d Hz: unexpected multistepping x%d", f, loops)
		}
		exact := int64(2000000 / f)

		var gain int64
		rel := f - 32
		if rel >= 2048 {
			gain = int64(c.fast[rel>>8][1])
		} else {
			gain = int64(c.slow[rel>>3][1])
		}
		diff := int64(ticks) - exact
		if diff < 0 {
			diff = -diff
		}
		if diff > gain+1 {
			t.Fatalf("%d Hz: %d ticks, exact %d, off by more than one table step (%d)", f, ticks, exact, gain)
		}
		if f >= 2080 && diff*100 > exact {
			t.Fatalf("%d Hz: %d ticks, exact %d, more than 1%% off", f, ticks, exact)
		}
	}
}

func TestNewConverter(t *testing.T) {
	c, err := NewConverter(config.IntervalAuto, avrTiming)
	if err != nil {
		t.Fatalf("NewConverter failed: %v", err)
	}
	if c.Name() != DefaultStrategy {
		t.Errorf("Expected default strategy %q, got %q", DefaultStrategy, c.Name())
	}
	c, err = NewConverter(config.IntervalLookup, avrTiming)
	if err != nil || c.Name() != config.IntervalLookup {
		t.Errorf("Expected lookup converter, got %v, %v", c, err)
	}

	if _, err := NewConverter("table", avrTiming); !errors.Is(err, config.ErrStrategy) {
		t.Errorf("Expected ErrStrategy, got %v", err)
	}
	bad := avrTiming
	bad.TimerRate = 0
	if _, err := NewConverter(config.IntervalDivision, bad); !errors.Is(err, ErrTiming) {
		t.Errorf("Expected ErrTiming, got %v", err)
	}
}

func TestTimingFromConfig(t *testing.T) {
	cfg := &config.MachineConfig{
		Motors:         make([]config.MotorConfig, 3),
		CPUFrequency:   120000000,
		TimerFrequency: 1000000,
	}
	tm := TimingFromConfig(cfg)
	if tm.Motors != 3 || tm.CPUFrequency != 120000000 || tm.TimerRate != 1000000 {
		t.Errorf("Unexpected timing %+v", tm)
	}
	if tm.CPU32Bit != default32Bit {
		t.Errorf("Expected build default %v, got %v", default32Bit, tm.CPU32Bit)
	}
	off := !default32Bit
	cfg.CPU32Bit = &off
	if TimingFromConfig(cfg).CPU32Bit != off {
		t.Error("Config override of the word size ignored")
	}
}
