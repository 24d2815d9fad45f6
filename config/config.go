package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Probe source selection. The simulator is an explicit choice, never a
// fallback for the real probe path.
const (
	SourceICMP = "icmp"
	SourceSim  = "sim"
)

// Config represents the monitor configuration
type Config struct {
	Targets []TargetConfig `yaml:"targets"`

	Probe struct {
		Interval  duration `yaml:"interval"`
		Timeout   duration `yaml:"timeout"`
		Source    string   `yaml:"source"`
		Interface string   `yaml:"interface"`
	} `yaml:"probe"`

	Window struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"window"`

	Alert struct {
		WarningMs  float64 `yaml:"warning-threshold-ms"`
		CriticalMs float64 `yaml:"critical-threshold-ms"`
		Hysteresis int     `yaml:"hysteresis"`
	} `yaml:"alert"`

	Log struct {
		File string `yaml:"file"`
	} `yaml:"log"`
}

type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *duration) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// Duration is a convenience getter.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set updates the underlying duration.
func (d *duration) Set(dur time.Duration) {
	*d = duration(dur)
}

// FromYAML reads YAML from reader and unmarshals it to Config
func FromYAML(r io.Reader) (*Config, error) {
	c := &Config{}
	err := yaml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration before any monitor is started.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return errors.New("at least one target must be specified")
	}
	for _, t := range c.Targets {
		if t.Addr == "" {
			return errors.New("target address must not be empty")
		}
	}

	if c.Probe.Interval.Duration() <= 0 {
		return fmt.Errorf("probe.interval must be positive, got %v", c.Probe.Interval.Duration())
	}
	if c.Probe.Timeout.Duration() <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %v", c.Probe.Timeout.Duration())
	}
	switch c.Probe.Source {
	case SourceICMP, SourceSim:
	default:
		return fmt.Errorf("probe.source must be %q or %q, got %q", SourceICMP, SourceSim, c.Probe.Source)
	}

	if c.Window.Capacity < 1 {
		return fmt.Errorf("window.capacity must be greater than 0, got %d", c.Window.Capacity)
	}

	if c.Alert.WarningMs <= 0 {
		return fmt.Errorf("alert.warning-threshold-ms must be positive, got %g", c.Alert.WarningMs)
	}
	if c.Alert.CriticalMs <= c.Alert.WarningMs {
		return fmt.Errorf("alert.critical-threshold-ms (%g) must be greater than alert.warning-threshold-ms (%g)",
			c.Alert.CriticalMs, c.Alert.WarningMs)
	}
	if c.Alert.Hysteresis < 1 {
		return fmt.Errorf("alert.hysteresis must be at least 1, got %d", c.Alert.Hysteresis)
	}

	return nil
}
