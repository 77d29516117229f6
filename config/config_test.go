package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laura.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate() on defaults error = %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device_id: 0x10
devices: [4, 5]
heartbeat_interval: 10s
stale_threshold: 30s
max_retries: 5
mqtt:
  broker_url: tcp://broker.local:1883
  network: field
camera:
  identifier: GoPro 9160
  wake_timeout: 20s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DeviceID != 0x10 {
		t.Errorf("DeviceID = %d, want 0x10", cfg.DeviceID)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[0] != 4 || cfg.Devices[1] != 5 {
		t.Errorf("Devices = %v, want [4 5]", cfg.Devices)
	}
	if cfg.HeartbeatInterval.Std() != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.HeartbeatInterval.Std())
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.MQTT.Network != "field" {
		t.Errorf("MQTT.Network = %q, want field", cfg.MQTT.Network)
	}
	if cfg.Camera.WakeTimeout.Std() != 20*time.Second {
		t.Errorf("Camera.WakeTimeout = %v, want 20s", cfg.Camera.WakeTimeout.Std())
	}
	// Untouched keys keep their defaults.
	if cfg.RetryInterval.Std() != 2*time.Second {
		t.Errorf("RetryInterval = %v, want the 2s default", cfg.RetryInterval.Std())
	}
}

func TestLoadRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "device ID outside the address space",
			content: "device_id: 200\n",
			wantErr: "device_id",
		},
		{
			name:    "device entry outside the address space",
			content: "devices: [1, 200]\n",
			wantErr: "devices entry",
		},
		{
			name:    "duplicate device entry",
			content: "devices: [1, 2, 1]\n",
			wantErr: "listed twice",
		},
		{
			name:    "stale threshold below heartbeat interval",
			content: "heartbeat_interval: 20s\nstale_threshold: 10s\n",
			wantErr: "stale_threshold",
		},
		{
			name:    "offline threshold below stale threshold",
			content: "stale_threshold: 50s\noffline_threshold: 40s\n",
			wantErr: "offline_threshold",
		},
		{
			name:    "unparseable duration",
			content: "heartbeat_interval: fast\n",
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() on a missing file succeeded, want error")
	}
}
