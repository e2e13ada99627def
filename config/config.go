// Package config handles YAML runtime configuration for the dsv4l2 CLI.
// All values are optional. No command flag overrides a config value; the
// file is the only source of these settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a dsv4l2.yaml configuration file.
type Config struct {
	// ProfileDir is the device profile directory.
	ProfileDir string `yaml:"profile_dir"`
	// Mission tags every emitted event.
	Mission string `yaml:"mission"`
	// Instrumentation selects the runtime level: off, ops, exercise,
	// forensic. Empty defers to the DSV4L2_PROFILE environment override.
	Instrumentation string `yaml:"instrumentation"`
	// RingCapacity overrides the event ring size.
	RingCapacity int `yaml:"ring_capacity"`

	Sinks   SinksConfig   `yaml:"sinks"`
	Archive ArchiveConfig `yaml:"archive"`
	Devices DevicesConfig `yaml:"devices"`
}

// SinksConfig selects and configures event sinks.
type SinksConfig struct {
	// File is the binary event file path. Empty disables the file sink.
	File string `yaml:"file"`
	// Redis configures the pub/sub sink. Empty URL disables it.
	Redis RedisConfig `yaml:"redis"`
	// SQLite configures the relational sink. Empty path disables it.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// RedisConfig holds pub/sub sink settings.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// SQLiteConfig holds relational sink settings.
type SQLiteConfig struct {
	Path       string `yaml:"path"`
	Background bool   `yaml:"background"`
}

// ArchiveConfig describes signed-chunk export backends. The section is
// parsed, but no command reads it; archive stores are not built from it.
type ArchiveConfig struct {
	// Dir names a local directory backend.
	Dir string `yaml:"dir"`
	// S3 holds S3 backend settings.
	S3 S3Config `yaml:"s3"`
}

// S3Config holds S3 archive settings.
type S3Config struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// DevicesConfig holds device plane defaults.
type DevicesConfig struct {
	// DevDir is scanned during enumeration (default /dev).
	DevDir string `yaml:"dev_dir"`
	// FusionWindow is the frame/metadata correlation tolerance. It is parsed
	// but not applied to opened devices, which keep the 50ms device default.
	FusionWindow Duration `yaml:"fusion_window"`
	// Simulated declares in-memory devices for demonstration and testing.
	Simulated []SimDeviceConfig `yaml:"simulated"`
}

// SimDeviceConfig declares one simulated device.
type SimDeviceConfig struct {
	Path string `yaml:"path"`
	Card string `yaml:"card"`
	// TempestCtrl seeds the TEMPEST control backing store when true.
	TempestCtrl bool `yaml:"tempest_ctrl"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "50ms").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "50ms".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct. Unknown keys are rejected to catch typos
// early.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}
