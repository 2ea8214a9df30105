package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/navratilpetr/Makelangelo-firmware/core"
)

// MaxMotors is the number of actuators a segment can carry
const MaxMotors = 6

var (
	ErrBufferSize     = errors.New("segment buffer size must be a power of two >= 4")
	ErrNoMotors       = errors.New("no motors configured")
	ErrTooManyMotors  = errors.New("too many motors")
	ErrMotorParameter = errors.New("invalid motor parameter")
	ErrFormat         = errors.New("unsupported configuration format")
	ErrStrategy       = errors.New("unknown interval strategy")
)

// LoadConfig parses a JSON configuration and returns a MachineConfig
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}
	return finish(&config)
}

// LoadConfigTOML parses a TOML configuration and returns a MachineConfig
func LoadConfigTOML(tomlData []byte) (*MachineConfig, error) {
	var config MachineConfig

	if _, err := toml.Decode(string(tomlData), &config); err != nil {
		return nil, err
	}
	return finish(&config)
}

// LoadFile reads a configuration file, choosing the decoder by extension
func LoadFile(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *MachineConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = LoadConfig(data)
	case ".toml":
		cfg, err = LoadConfigTOML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

func finish(config *MachineConfig) (*MachineConfig, error) {
	applyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.Kinematics == "" {
		config.Kinematics = "cartesian"
	}
	if config.SegmentBufferSize == 0 {
		config.SegmentBufferSize = 32
	}
	if config.Acceleration == 0 {
		config.Acceleration = 500.0 // units/s^2
	}
	if config.DefaultFeedRate == 0 {
		config.DefaultFeedRate = 50.0 // units/s
	}
	if config.ArcSegmentLength == 0 {
		config.ArcSegmentLength = 0.5
	}
	if config.FirstSegmentDelay == 0 {
		config.FirstSegmentDelay = 50 // about 50ms at the idle poll rate
	}
	if config.LimitSampleCount == 0 {
		config.LimitSampleCount = 4
	}
	if config.CPUFrequency == 0 {
		config.CPUFrequency = 16000000
	}
	if config.TimerFrequency == 0 {
		config.TimerFrequency = core.DefaultTimerFreq
	}

	for i := range config.Motors {
		m := &config.Motors[i]
		m.Letter = strings.ToUpper(m.Letter)
		if m.StepsPerUnit == 0 {
			m.StepsPerUnit = 80.0
		}
		if m.MaxFeedRate == 0 {
			m.MaxFeedRate = 200.0
		}
		if m.MaxJerk == 0 {
			m.MaxJerk = 10.0
		}
	}
}

// Validate checks the values the motion core cannot run without
func (c *MachineConfig) Validate() error {
	n := c.SegmentBufferSize
	if n < 4 || n&(n-1) != 0 {
		return fmt.Errorf("%w: %d", ErrBufferSize, n)
	}
	if len(c.Motors) == 0 {
		return ErrNoMotors
	}
	if len(c.Motors) > MaxMotors {
		return fmt.Errorf("%w: %d > %d", ErrTooManyMotors, len(c.Motors), MaxMotors)
	}
	for i, m := range c.Motors {
		if len(m.Letter) != 1 {
			return fmt.Errorf("%w: motor %d letter %q", ErrMotorParameter, i, m.Letter)
		}
		if m.StepsPerUnit <= 0 || m.MaxFeedRate <= 0 || m.MaxJerk < 0 {
			return fmt.Errorf("%w: motor %s", ErrMotorParameter, m.Letter)
		}
		for _, pin := range []string{m.StepPin, m.DirPin, m.EnablePin, m.LimitPin} {
			if _, err := core.LookupPin(pin); err != nil {
				return fmt.Errorf("motor %s: %w", m.Letter, err)
			}
		}
	}
	if c.Acceleration <= 0 {
		return fmt.Errorf("%w: acceleration %v", ErrMotorParameter, c.Acceleration)
	}
	switch c.IntervalStrategy {
	case IntervalAuto, IntervalDivision, IntervalLookup:
	default:
		return fmt.Errorf("%w: %q", ErrStrategy, c.IntervalStrategy)
	}
	return nil
}

// CoreMotors resolves the pin names into the HAL motor table
func (c *MachineConfig) CoreMotors() ([]core.Motor, error) {
	motors := make([]core.Motor, len(c.Motors))
	for i, m := range c.Motors {
		var err error
		mo := core.Motor{
			Letter:       m.Letter[0],
			InvertStep:   m.InvertStep,
			InvertDir:    m.InvertDir,
			InvertEnable: m.InvertEnable,
			InvertLimit:  m.InvertLimit,
		}
		if mo.StepPin, err = core.LookupPin(m.StepPin); err != nil {
			return nil, err
		}
		if mo.DirPin, err = core.LookupPin(m.DirPin); err != nil {
			return nil, err
		}
		if mo.EnablePin, err = core.LookupPin(m.EnablePin); err != nil {
			return nil, err
		}
		if mo.LimitPin, err = core.LookupPin(m.LimitPin); err != nil {
			return nil, err
		}
		motors[i] = mo
	}
	return motors, nil
}

// DefaultPlotterConfig returns a default configuration for a two-motor
// plotter with limit switches on both axes
func DefaultPlotterConfig() *MachineConfig {
	cfg := &MachineConfig{
		Motors: []MotorConfig{
			{
				Letter:       "X",
				StepPin:      "gpio2",
				DirPin:       "gpio3",
				EnablePin:    "gpio8",
				LimitPin:     "gpio20",
				InvertEnable: true,
				StepsPerUnit: 80.0,
				MaxFeedRate:  200.0,
				MaxJerk:      10.0,
			},
			{
				Letter:       "Y",
				StepPin:      "gpio4",
				DirPin:       "gpio5",
				EnablePin:    "gpio9",
				LimitPin:     "gpio21",
				InvertEnable: true,
				StepsPerUnit: 80.0,
				MaxFeedRate:  200.0,
				MaxJerk:      10.0,
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}
