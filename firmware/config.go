// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// This file implements Config, the platform-specific attributes used to
// switch boot modes.

package firmware

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/fwmode/errors"
)

// ModeSwitcherType is the legacy name of a platform's mode switching
// method. It is mapped to Capabilities.
type ModeSwitcherType string

// Known mode switcher types.
const (
	JetStreamSwitcher        ModeSwitcherType = "jetstream_switcher"
	TabletDetachableSwitcher ModeSwitcherType = "tablet_detachable_switcher"
	KeyboardDevSwitcher      ModeSwitcherType = "keyboard_dev_switcher"
	MenuSwitcher             ModeSwitcherType = "menu_switcher"
)

// defaultName is the name of the config file holding default values,
// without its extension.
const defaultName = "DEFAULTS"

// Seconds is a duration written as a number of seconds in config files.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

// Capabilities describes how a platform's firmware screens are driven.
type Capabilities struct {
	// HasMenuUI is set for firmware with the menu UI.
	HasMenuUI bool
	// HasDetachableButtons is set when navigation uses volume keys and the
	// power button instead of a keyboard.
	HasDetachableButtons bool
	// RequiresGBBForce is set when developer mode can only be switched by
	// rewriting GBB flags.
	RequiresGBBForce bool
}

// RetryConfig is the serialized form of RetryPolicy.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	TimeoutPerAttempt Seconds `yaml:"timeout_per_attempt"`
	Backoff           Seconds `yaml:"backoff"`
}

// ConsolePatterns are regular expressions extracting state from AP
// console lines. Each must have one capturing group.
type ConsolePatterns struct {
	BootMode       string `yaml:"mainfw_type"`
	FirmwareSlot   string `yaml:"mainfw_act"`
	RecoveryReason string `yaml:"recovery_reason"`
}

// Config contains platform-specific attributes. Config files are JSON or
// YAML; fields follow autotest's DEFAULTS.json.
type Config struct {
	Platform string `yaml:"platform"`
	Parent   string `yaml:"parent"`

	ModeSwitcherType     ModeSwitcherType `yaml:"mode_switcher_type"`
	HasMenuUI            *bool            `yaml:"has_menu_ui"`
	HasDetachableButtons *bool            `yaml:"has_detachable_buttons"`
	RequiresGBBForce     *bool            `yaml:"requires_gbb_force"`
	PowerButtonDevSwitch bool             `yaml:"power_button_dev_switch"`
	RecButtonDevSwitch   bool             `yaml:"rec_button_dev_switch"`

	FirmwareScreen    Seconds `yaml:"firmware_screen"`
	DelayRebootToPing Seconds `yaml:"delay_reboot_to_ping"`
	ConfirmScreen     Seconds `yaml:"confirm_screen"`
	USBPlug           Seconds `yaml:"usb_plug"`
	KeypressDelay     Seconds `yaml:"keypress_delay"`
	ShutdownTimeout   Seconds `yaml:"shutdown_timeout"`
	PollInterval      Seconds `yaml:"poll_interval"`
	PingTimeout      Seconds `yaml:"ping_timeout"`
	HoldPowerButton   Seconds `yaml:"hold_pwr_button_poweron"`

	// BypassRetries is the number of times a bypass is repeated after the
	// first attempt leaves the DUT unreachable.
	BypassRetries int         `yaml:"bypass_retries"`
	Retry         RetryConfig `yaml:"retry"`

	ServoControls   map[string]string `yaml:"servo_controls"`
	ConsolePatterns ConsolePatterns   `yaml:"console_patterns"`
}

// DefaultConfig returns the built-in defaults, matching DEFAULTS.json.
func DefaultConfig() *Config {
	return &Config{
		Platform:          defaultName,
		ModeSwitcherType:  KeyboardDevSwitcher,
		FirmwareScreen:    10,
		DelayRebootToPing: 30,
		ConfirmScreen:     3,
		USBPlug:           10,
		KeypressDelay:     0.5,
		ShutdownTimeout:   15,
		PollInterval:      1,
		PingTimeout:      1,
		HoldPowerButton:   0.2,
		BypassRetries:     1,
		Retry: RetryConfig{
			MaxAttempts:       1,
			TimeoutPerAttempt: 180,
			Backoff:           5,
		},
		ConsolePatterns: ConsolePatterns{
			BootMode:       `mainfw_type[:=]\s*(\S+)`,
			FirmwareSlot:   `mainfw_act[:=]\s*([AB])`,
			RecoveryReason: `recovery_reason[:=]\s*(\d+)`,
		},
	}
}

// Capabilities returns the platform's capabilities. They are derived from
// ModeSwitcherType; explicitly set capability fields take precedence.
func (c *Config) Capabilities() Capabilities {
	var caps Capabilities
	switch c.ModeSwitcherType {
	case MenuSwitcher:
		caps.HasMenuUI = true
	case TabletDetachableSwitcher:
		caps.HasDetachableButtons = true
	case JetStreamSwitcher:
		caps.RequiresGBBForce = true
	}
	if c.HasMenuUI != nil {
		caps.HasMenuUI = *c.HasMenuUI
	}
	if c.HasDetachableButtons != nil {
		caps.HasDetachableButtons = *c.HasDetachableButtons
	}
	if c.RequiresGBBForce != nil {
		caps.RequiresGBBForce = *c.RequiresGBBForce
	}
	return caps
}

// RetryPolicy returns the configured retry policy.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       c.Retry.MaxAttempts,
		TimeoutPerAttempt: c.Retry.TimeoutPerAttempt.Duration(),
		Backoff:           c.Retry.Backoff.Duration(),
	}
}

// Validate checks that c can drive a Switcher.
func (c *Config) Validate() error {
	switch c.ModeSwitcherType {
	case JetStreamSwitcher, TabletDetachableSwitcher, KeyboardDevSwitcher, MenuSwitcher:
	default:
		return errors.Errorf("unknown mode_switcher_type %q", c.ModeSwitcherType)
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("poll_interval must be positive; got %v", c.PollInterval)
	}
	if c.PingTimeout <= 0 {
		return errors.Errorf("ping_timeout must be positive; got %v", c.PingTimeout)
	}
	if c.DelayRebootToPing <= 0 {
		return errors.Errorf("delay_reboot_to_ping must be positive; got %v", c.DelayRebootToPing)
	}
	if c.BypassRetries < 0 {
		return errors.Errorf("bypass_retries must not be negative; got %d", c.BypassRetries)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return errors.Wrap(err, "bad retry")
	}
	return nil
}

// LoadConfig reads the config of platform from dir. Values are inherited
// from DEFAULTS, then from the chain of parent platforms, then from the
// platform itself and finally from the entry for model in its "models"
// map. model may be empty.
func LoadConfig(dir, platform, model string) (*Config, error) {
	merged, err := readConfigFile(dir, defaultName)
	if err != nil {
		return nil, err
	}

	// Collect the platform and its ancestors, nearest first.
	var chain []map[string]interface{}
	seen := make(map[string]bool)
	for name := strings.ToLower(platform); name != "" && name != strings.ToLower(defaultName); {
		if seen[name] {
			return nil, errors.Errorf("config inheritance loop at %s", name)
		}
		seen[name] = true
		m, err := readConfigFile(dir, name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
		parent, _ := m["parent"].(string)
		name = strings.ToLower(parent)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		overlay(merged, chain[i])
	}

	if model != "" && len(chain) > 0 {
		if models, ok := asMap(chain[0]["models"]); ok {
			if m, ok := asMap(models[model]); ok {
				overlay(merged, m)
			}
		}
	}
	delete(merged, "models")

	b, err := yaml.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-encode config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config for %s", platform)
	}
	if platform != "" {
		cfg.Platform = platform
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config for %s", platform)
	}
	return cfg, nil
}

// readConfigFile reads "<name>.json" or "<name>.yaml" from dir.
func readConfigFile(dir, name string) (map[string]interface{}, error) {
	var b []byte
	var err error
	var path string
	for _, ext := range []string{".json", ".yaml"} {
		path = filepath.Join(dir, name+ext)
		if b, err = os.ReadFile(path); err == nil {
			break
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", name)
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if m == nil {
		m = make(map[string]interface{})
	}
	return m, nil
}

// overlay copies the values of src over dst. Nested maps are merged.
func overlay(dst, src map[string]interface{}) {
	for k, v := range src {
		sm, ok := asMap(v)
		if !ok {
			dst[k] = v
			continue
		}
		dm, ok := asMap(dst[k])
		if !ok {
			dm = make(map[string]interface{})
		}
		overlay(dm, sm)
		dst[k] = dm
	}
}

// asMap returns v as a map with string keys if it is a map.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}
