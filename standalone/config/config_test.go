package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

const testJSON = `{
	"motors": [
		{"letter": "x", "step_pin": "gpio2", "dir_pin": "gpio3", "limit_pin": "gpio20", "steps_per_unit": 100},
		{"letter": "Y", "step_pin": "gpio4", "dir_pin": "gpio5", "max_jerk": 5}
	],
	"acceleration": 250,
	"segment_buffer_size": 16
}`

const testTOML = `
acceleration = 250
segment_buffer_size = 16
interval_strategy = "lookup"

[[motors]]
letter = "X"
step_pin = "gpio2"
dir_pin = "gpio3"
steps_per_unit = 100.0

[[motors]]
letter = "Y"
step_pin = "gpio4"
dir_pin = "gpio5"
invert_dir = true
`

func TestLoadConfigJSON(t *testing.T) {
	cfg, err := LoadConfig([]byte(testJSON))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Motors) != 2 {
		t.Fatalf("Expected 2 motors, got %d", len(cfg.Motors))
	}
	if cfg.Motors[0].Letter != "X" {
		t.Errorf("Expected letter upper-cased, got %q", cfg.Motors[0].Letter)
	}
	if cfg.Motors[0].StepsPerUnit != 100 {
		t.Errorf("Expected 100 steps/unit, got %v", cfg.Motors[0].StepsPerUnit)
	}
	if cfg.Motors[1].StepsPerUnit != 80 {
		t.Errorf("Expected default 80 steps/unit, got %v", cfg.Motors[1].StepsPerUnit)
	}
	if cfg.Motors[1].MaxJerk != 5 {
		t.Errorf("Expected jerk 5, got %v", cfg.Motors[1].MaxJerk)
	}
	if cfg.SegmentBufferSize != 16 {
		t.Errorf("Expected buffer 16, got %d", cfg.SegmentBufferSize)
	}
	if cfg.Acceleration != 250 {
		t.Errorf("Expected accel 250, got %v", cfg.Acceleration)
	}
	if cfg.TimerFrequency != core.DefaultTimerFreq || cfg.CPUFrequency != 16000000 {
		t.Errorf("Unexpected clocks %d/%d", cfg.CPUFrequency, cfg.TimerFrequency)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	cfg, err := LoadConfigTOML([]byte(testTOML))
	if err != nil {
		t.Fatalf("LoadConfigTOML failed: %v", err)
	}
	if cfg.IntervalStrategy != IntervalLookup {
		t.Errorf("Expected lookup strategy, got %q", cfg.IntervalStrategy)
	}
	if !cfg.Motors[1].InvertDir {
		t.Errorf("Expected Y direction inverted")
	}
	if cfg.Motors[0].StepsPerUnit != 100 {
		t.Errorf("Expected 100 steps/unit, got %v", cfg.Motors[0].StepsPerUnit)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "machine.json")
	tomlPath := filepath.Join(dir, "machine.toml")
	yamlPath := filepath.Join(dir, "machine.yaml")
	for path, data := range map[string]string{jsonPath: testJSON, tomlPath: testTOML, yamlPath: "x: 1"} {
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	if _, err := LoadFile(jsonPath); err != nil {
		t.Errorf("LoadFile(json) failed: %v", err)
	}
	if _, err := LoadFile(tomlPath); err != nil {
		t.Errorf("LoadFile(toml) failed: %v", err)
	}
	if _, err := LoadFile(yamlPath); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MachineConfig)
		want   error
	}{
		{"buffer not power of two", func(c *MachineConfig) { c.SegmentBufferSize = 24 }, ErrBufferSize},
		{"buffer too small", func(c *MachineConfig) { c.SegmentBufferSize = 2 }, ErrBufferSize},
		{"no motors", func(c *MachineConfig) { c.Motors = nil }, ErrNoMotors},
		{"too many motors", func(c *MachineConfig) {
			for len(c.Motors) <= MaxMotors {
				c.Motors = append(c.Motors, c.Motors[0])
			}
		}, ErrTooManyMotors},
		{"bad letter", func(c *MachineConfig) { c.Motors[0].Letter = "XY" }, ErrMotorParameter},
		{"negative steps", func(c *MachineConfig) { c.Motors[0].StepsPerUnit = -1 }, ErrMotorParameter},
		{"bad pin", func(c *MachineConfig) { c.Motors[0].StepPin = "PB7" }, core.ErrUnknownPin},
		{"bad strategy", func(c *MachineConfig) { c.IntervalStrategy = "magic" }, ErrStrategy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPlotterConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := DefaultPlotterConfig().Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestCoreMotors(t *testing.T) {
	motors, err := DefaultPlotterConfig().CoreMotors()
	if err != nil {
		t.Fatalf("CoreMotors failed: %v", err)
	}
	if len(motors) != 2 {
		t.Fatalf("Expected 2 motors, got %d", len(motors))
	}
	x := motors[0]
	if x.Letter != 'X' || x.StepPin != 2 || x.DirPin != 3 || x.EnablePin != 8 || x.LimitPin != 20 {
		t.Errorf("Unexpected X motor %+v", x)
	}
	if !x.InvertEnable {
		t.Errorf("Expected active-low enable")
	}
}
