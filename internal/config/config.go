// Package config loads and persists the configuration record of
// spec.md §6. Grounded on the teacher's flag.String CLI parsing for
// ad-hoc overrides, upgraded to github.com/alexflint/go-arg for struct
// tags, with the persisted record itself stored as YAML
// (gopkg.in/yaml.v2) matching the pack's preferred config format.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/kabeerthockchom/xr872ctl/internal/protocol"
)

// Config is the persisted configuration record described verbatim in
// spec.md §6. Field names carry yaml tags so the on-disk format matches
// the spec's snake_case keys.
type Config struct {
	DroneIP             string `yaml:"drone_ip"`
	CtlPort             int    `yaml:"ctl_port"`
	VideoPort           int    `yaml:"video_port"`
	ControlIntervalMs   int    `yaml:"control_interval_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
	RxTimeoutS          int    `yaml:"rx_timeout_s"`
	HoverThrottleCap    int    `yaml:"hover_throttle_cap"`
	IndoorDefault       bool   `yaml:"indoor_default"`
	LowBatteryWarn      int    `yaml:"low_battery_warn"`
	LowBatteryLand      int    `yaml:"low_battery_land"`
}

// Default returns the configuration record with every default listed
// in spec.md §6.
func Default() Config {
	return Config{
		DroneIP:             "192.168.28.1",
		CtlPort:             7080,
		VideoPort:           7070,
		ControlIntervalMs:   140,
		HeartbeatIntervalMs: 1000,
		RxTimeoutS:          3,
		HoverThrottleCap:    30,
		IndoorDefault:       true,
		LowBatteryWarn:      20,
		LowBatteryLand:      10,
	}
}

// Validate checks the invariants a coordinator needs before connect(),
// surfacing a ConfigError per spec.md §7 on failure.
func (c Config) Validate() error {
	if c.DroneIP == "" {
		return protocol.New(protocol.ConfigError, "config.Validate", protocol.ErrInvalidLength)
	}
	if c.CtlPort <= 0 || c.VideoPort <= 0 {
		return protocol.New(protocol.ConfigError, "config.Validate", protocol.ErrInvalidLength)
	}
	if c.HoverThrottleCap < 0 || c.HoverThrottleCap > 100 {
		return protocol.New(protocol.ConfigError, "config.Validate", protocol.ErrInvalidLength)
	}
	return nil
}

// Load reads a YAML config record from path on top of Default(), so any
// field the file omits keeps its default and a partial file is still
// usable. A field the file sets explicitly, even to zero, is taken as
// written.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, protocol.New(protocol.ConfigError, "config.Load", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, protocol.New(protocol.ConfigError, "config.Load", err)
	}
	return cfg, nil
}

// Save persists cfg as YAML to path, used by the status website's
// /api/config POST handler.
func Save(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return protocol.New(protocol.ConfigError, "config.Save", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// CLIArgs mirrors the teacher's flag-based overrides (ifname/httpAddr/
// periodMs in rcdcan.go's main), reworked as go-arg struct tags so
// groundstationd gets --help for free. No field reads an environment
// variable.
type CLIArgs struct {
	ConfigPath string `arg:"--config" default:"xr872ctl.yaml" help:"path to the persisted configuration record"`
	HTTPAddr   string `arg:"--http" default:":8081" help:"HTTP address for the status website"`
	DroneIP    string `arg:"--drone-ip" help:"override the persisted drone_ip"`
}
