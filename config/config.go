// Package config loads the device configuration shared by both roles:
// addressing, link timings and the camera-side tunables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcotidei/LAURACam/protocol"
)

// Duration wraps time.Duration so YAML can carry values like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// MQTT configures the broker bridge used when the radio is reached through a
// LoRa gateway instead of a local modem.
type MQTT struct {
	BrokerURL string `yaml:"broker_url"`
	Network   string `yaml:"network"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Camera configures the controller's short-range link.
type Camera struct {
	// Identifier narrows BLE discovery to one camera ("GoPro" matches any).
	Identifier string `yaml:"identifier"`
	// WakeTimeout bounds how long a wake/connect attempt may block the loop.
	WakeTimeout Duration `yaml:"wake_timeout"`
}

// Config is the recognized set of tunables both roles accept at
// construction. Defaults mirror the original firmware: 5 s heartbeats, 16 s
// to LOST, 300 s inactivity sleep.
type Config struct {
	DeviceID protocol.DeviceID   `yaml:"device_id"`
	Devices  []protocol.DeviceID `yaml:"devices"` // camera IDs the remote commands

	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	StaleThreshold    Duration `yaml:"stale_threshold"`
	OfflineThreshold  Duration `yaml:"offline_threshold"`

	MaxRetries     int      `yaml:"max_retries"`
	RetryInterval  Duration `yaml:"retry_interval"`
	CommandTimeout Duration `yaml:"command_timeout"`

	// FreshnessWindow decides when a StatusRequest re-queries the camera
	// instead of serving the cached snapshot.
	FreshnessWindow Duration `yaml:"freshness_window"`
	IdleTimeout     Duration `yaml:"idle_timeout"`

	MQTT   MQTT   `yaml:"mqtt"`
	Camera Camera `yaml:"camera"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Devices:           []protocol.DeviceID{1, 2, 3},
		HeartbeatInterval: Duration(5 * time.Second),
		StaleThreshold:    Duration(16 * time.Second),
		OfflineThreshold:  Duration(48 * time.Second),
		MaxRetries:        3,
		RetryInterval:     Duration(2 * time.Second),
		CommandTimeout:    Duration(20 * time.Second),
		FreshnessWindow:   Duration(5 * time.Second),
		IdleTimeout:       Duration(300 * time.Second),
		MQTT: MQTT{
			BrokerURL: "tcp://127.0.0.1:1883",
			Network:   "default",
			ClientID:  "laura",
		},
		Camera: Camera{
			Identifier:  "GoPro",
			WakeTimeout: Duration(15 * time.Second),
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects IDs the frame format cannot carry, duplicate device
// entries, and threshold orderings that would collapse a rung of the
// connectivity ladder.
func (c *Config) Validate() error {
	if c.DeviceID > protocol.MaxDeviceID {
		return fmt.Errorf("device_id %d: %w", c.DeviceID, protocol.ErrInvalidDeviceID)
	}
	seen := make(map[protocol.DeviceID]struct{}, len(c.Devices))
	for _, id := range c.Devices {
		if id > protocol.MaxDeviceID {
			return fmt.Errorf("devices entry %d: %w", id, protocol.ErrInvalidDeviceID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("devices entry %d listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if c.HeartbeatInterval.Std() >= c.StaleThreshold.Std() {
		return fmt.Errorf("stale_threshold must exceed heartbeat_interval")
	}
	if c.StaleThreshold.Std() >= c.OfflineThreshold.Std() {
		return fmt.Errorf("offline_threshold must exceed stale_threshold")
	}
	return nil
}
