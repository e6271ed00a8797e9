package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/urad/internal/serialport"
	"github.com/banshee-data/urad/internal/units"
	"github.com/banshee-data/urad/internal/urad"
)

// DefaultConfigPath is the path to the canonical radar defaults file.
const DefaultConfigPath = "config/urad.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults used by the Get* accessors. They describe the velocity meter: CW
// mode at 24.125 GHz looking for three targets across the full velocity
// range.
const (
	DefaultMode                   = 1
	DefaultF0                     = 125
	DefaultBandwidth              = 240
	DefaultSampleCount            = 200
	DefaultTargetCount            = 3
	DefaultRangeOrVelocityMax     = 75
	DefaultMovementThreshold      = 1
	DefaultAlphaDB                = 20
	DefaultPollInterval           = 5 * time.Millisecond
	DefaultReadTimeout            = urad.DefaultReadTimeout
	DefaultSettleDelay            = urad.DefaultSettleDelay
	DefaultMaxConsecutiveFailures = 10
	DefaultStartRetries           = 5
)

// RadarConfig is the on-disk configuration: radar parameters, serial options
// and loop timing. Every field is optional; omitted fields fall back to the
// defaults above, so partial configs are safe. JSON and YAML share the same
// field names.
type RadarConfig struct {
	// Radar parameters, clamped by urad.BuildConfig
	Mode               *int  `json:"mode,omitempty" yaml:"mode,omitempty"`
	F0                 *int  `json:"f0,omitempty" yaml:"f0,omitempty"`
	Bandwidth          *int  `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	SampleCount        *int  `json:"sample_count,omitempty" yaml:"sample_count,omitempty"`
	TargetCount        *int  `json:"target_count,omitempty" yaml:"target_count,omitempty"`
	RangeOrVelocityMax *int  `json:"max_range_or_velocity,omitempty" yaml:"max_range_or_velocity,omitempty"`
	MTI                *bool `json:"mti,omitempty" yaml:"mti,omitempty"`
	MovementThreshold  *int  `json:"movement_threshold,omitempty" yaml:"movement_threshold,omitempty"`
	AlphaDB            *int  `json:"alpha_db,omitempty" yaml:"alpha_db,omitempty"`

	Report *urad.Report `json:"report,omitempty" yaml:"report,omitempty"`

	Serial *serialport.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`

	// SpeedUnit selects how velocities are printed: mps, mph or kmph
	SpeedUnit *string `json:"speed_unit,omitempty" yaml:"speed_unit,omitempty"`

	// Loop params, duration strings like "5ms"
	PollInterval           *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	ReadTimeout            *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	SettleDelay            *string `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"`
	MaxConsecutiveFailures *int    `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	StartRetries           *int    `json:"start_retries,omitempty" yaml:"start_retries,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptyRadarConfig returns a RadarConfig with all fields set to nil.
func EmptyRadarConfig() *RadarConfig {
	return &RadarConfig{}
}

// DefaultRadarConfig returns a RadarConfig with every field populated from
// the defaults.
func DefaultRadarConfig() *RadarConfig {
	return &RadarConfig{
		Mode:                   ptrInt(DefaultMode),
		F0:                     ptrInt(DefaultF0),
		Bandwidth:              ptrInt(DefaultBandwidth),
		SampleCount:            ptrInt(DefaultSampleCount),
		TargetCount:            ptrInt(DefaultTargetCount),
		RangeOrVelocityMax:     ptrInt(DefaultRangeOrVelocityMax),
		MTI:                    ptrBool(false),
		MovementThreshold:      ptrInt(DefaultMovementThreshold),
		AlphaDB:                ptrInt(DefaultAlphaDB),
		Report:                 &urad.Report{Velocity: true, SNR: true},
		Serial:                 &serialport.PortOptions{BaudRate: serialport.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		SpeedUnit:              ptrString(string(units.MPS)),
		PollInterval:           ptrString(DefaultPollInterval.String()),
		ReadTimeout:            ptrString(DefaultReadTimeout.String()),
		SettleDelay:            ptrString(DefaultSettleDelay.String()),
		MaxConsecutiveFailures: ptrInt(DefaultMaxConsecutiveFailures),
		StartRetries:           ptrInt(DefaultStartRetries),
	}
}

// LoadRadarConfig loads a RadarConfig from a .json, .yaml or .yml file of at
// most 1MB and validates it.
func LoadRadarConfig(path string) (*RadarConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRadarConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *RadarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRadarConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects values that clamping cannot repair: a target count below
// one, bad durations, a settle delay shorter than the radar needs and bad
// serial options.
// Out-of-range radar parameters are accepted and clamped by urad.BuildConfig.
func (c *RadarConfig) Validate() error {
	if c.TargetCount != nil && *c.TargetCount < 1 {
		return fmt.Errorf("target_count must be at least 1, got %d", *c.TargetCount)
	}

	for name, v := range map[string]*string{
		"poll_interval": c.PollInterval,
		"read_timeout":  c.ReadTimeout,
		"settle_delay":  c.SettleDelay,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if d := c.GetSettleDelay(); d < DefaultSettleDelay {
		return fmt.Errorf("settle_delay must be at least %s, got %s", DefaultSettleDelay, d)
	}

	if c.MaxConsecutiveFailures != nil && *c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max_consecutive_failures must be non-negative, got %d", *c.MaxConsecutiveFailures)
	}
	if c.StartRetries != nil && *c.StartRetries < 0 {
		return fmt.Errorf("start_retries must be non-negative, got %d", *c.StartRetries)
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	if c.SpeedUnit != nil {
		if _, err := units.ParseSpeed(*c.SpeedUnit); err != nil {
			return fmt.Errorf("invalid speed_unit: %w", err)
		}
	}
	return nil
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMTI returns the mti value or the default.
func (c *RadarConfig) GetMTI() bool {
	if c.MTI == nil {
		return false
	}
	return *c.MTI
}

// GetReport returns the report selection or the velocity meter default of
// velocity and SNR.
func (c *RadarConfig) GetReport() urad.Report {
	if c.Report == nil {
		return urad.Report{Velocity: true, SNR: true}
	}
	return *c.Report
}

// Params returns the radar parameters with defaults applied, ready for
// urad.BuildConfig.
func (c *RadarConfig) Params() urad.Params {
	mti := 0
	if c.GetMTI() {
		mti = 1
	}
	return urad.Params{
		Mode:               getInt(c.Mode, DefaultMode),
		F0:                 getInt(c.F0, DefaultF0),
		Bandwidth:          getInt(c.Bandwidth, DefaultBandwidth),
		SampleCount:        getInt(c.SampleCount, DefaultSampleCount),
		TargetCount:        getInt(c.TargetCount, DefaultTargetCount),
		RangeOrVelocityMax: getInt(c.RangeOrVelocityMax, DefaultRangeOrVelocityMax),
		MTI:                mti,
		MovementThreshold:  getInt(c.MovementThreshold, DefaultMovementThreshold),
		AlphaDB:            getInt(c.AlphaDB, DefaultAlphaDB),
		Report:             c.GetReport(),
	}
}

// GetPortOptions returns the serial options, defaulting to 115200 8N1.
func (c *RadarConfig) GetPortOptions() serialport.PortOptions {
	if c.Serial == nil {
		return serialport.PortOptions{}
	}
	return *c.Serial
}

// GetSpeedUnit returns the display unit for velocities, m/s by default.
func (c *RadarConfig) GetSpeedUnit() units.Speed {
	if c.SpeedUnit == nil {
		return units.MPS
	}
	u, err := units.ParseSpeed(*c.SpeedUnit)
	if err != nil {
		return units.MPS
	}
	return u
}

// GetPollInterval returns the pause between detections.
func (c *RadarConfig) GetPollInterval() time.Duration {
	return getDuration(c.PollInterval, DefaultPollInterval)
}

// GetReadTimeout returns the bound on each response read.
func (c *RadarConfig) GetReadTimeout() time.Duration {
	return getDuration(c.ReadTimeout, DefaultReadTimeout)
}

// GetSettleDelay returns the pause between a command and its response.
func (c *RadarConfig) GetSettleDelay() time.Duration {
	return getDuration(c.SettleDelay, DefaultSettleDelay)
}

// GetMaxConsecutiveFailures returns the failure limit of the poll loop.
func (c *RadarConfig) GetMaxConsecutiveFailures() int {
	return getInt(c.MaxConsecutiveFailures, DefaultMaxConsecutiveFailures)
}

// GetStartRetries returns the retry limit for turn on and configure.
func (c *RadarConfig) GetStartRetries() int {
	return getInt(c.StartRetries, DefaultStartRetries)
}
