package config

// MotorConfig represents configuration for a single motor
type MotorConfig struct {
	Letter       string  `json:"letter" toml:"letter"`               // Axis letter ("X", "Y", ...)
	StepPin      string  `json:"step_pin" toml:"step_pin"`           // GPIO pin for step pulses
	DirPin       string  `json:"dir_pin" toml:"dir_pin"`             // GPIO pin for direction
	EnablePin    string  `json:"enable_pin" toml:"enable_pin"`       // GPIO pin for enable (optional)
	LimitPin     string  `json:"limit_pin" toml:"limit_pin"`         // Limit switch input (optional)
	InvertStep   bool    `json:"invert_step" toml:"invert_step"`     // Invert step signal
	InvertDir    bool    `json:"invert_dir" toml:"invert_dir"`       // Invert direction signal
	InvertEnable bool    `json:"invert_enable" toml:"invert_enable"` // Active-low enable
	InvertLimit  bool    `json:"invert_limit" toml:"invert_limit"`   // Switch reads low when triggered
	StepsPerUnit float64 `json:"steps_per_unit" toml:"steps_per_unit"`
	MaxFeedRate  float64 `json:"max_feed_rate" toml:"max_feed_rate"` // units/s
	MaxJerk      float64 `json:"max_jerk" toml:"max_jerk"`           // units/s
}

// Interval strategies
const (
	IntervalAuto     = ""         // decided by build target
	IntervalDivision = "division" // timer_rate / f
	IntervalLookup   = "lookup"   // interpolated tables
)

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Kinematics string        `json:"kinematics" toml:"kinematics"` // "cartesian"
	Motors     []MotorConfig `json:"motors" toml:"motors"`

	// Planner
	SegmentBufferSize uint32  `json:"segment_buffer_size" toml:"segment_buffer_size"` // power of two
	Acceleration      float64 `json:"acceleration" toml:"acceleration"`               // units/s^2
	DefaultFeedRate   float64 `json:"default_feed_rate" toml:"default_feed_rate"`     // units/s
	MinSegmentTimeUS  uint32  `json:"min_segment_time_us" toml:"min_segment_time_us"` // 0 disables
	ArcSegmentLength  float64 `json:"arc_segment_length" toml:"arc_segment_length"`   // units
	FirstSegmentDelay int32   `json:"first_segment_delay" toml:"first_segment_delay"` // block phase invocations, -1 disables

	// Step generator
	LimitSampleCount uint8  `json:"limit_sample_count" toml:"limit_sample_count"`
	CPUFrequency     uint32 `json:"cpu_frequency" toml:"cpu_frequency"`         // Hz
	TimerFrequency   uint32 `json:"timer_frequency" toml:"timer_frequency"`     // Hz
	IntervalStrategy string `json:"interval_strategy" toml:"interval_strategy"` // "", "division", "lookup"
	CPU32Bit         *bool  `json:"cpu_32bit" toml:"cpu_32bit"`                 // nil: decided by build target
}
