package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads full config", func(t *testing.T) {
		path := writeConfigFile(t, `
service:
  id: fleetstate-test
  tenant: acme
database:
  path: /tmp/test.db
  wal_mode: true
  busy_timeout: 10
api:
  port: 9090
directory:
  base_url: http://directory:8081
  cache_ttl: 60
presence:
  enabled: true
  check_interval: 5m
  missing_interval: 1h
state:
  max_measurement_names: 100
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Service.Tenant != "acme" {
			t.Errorf("Tenant = %q, want %q", cfg.Service.Tenant, "acme")
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Database.Path = %q, want /tmp/test.db", cfg.Database.Path)
		}
		if cfg.API.Port != 9090 {
			t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
		}
		if cfg.Presence.CheckInterval != 5*time.Minute {
			t.Errorf("Presence.CheckInterval = %v, want 5m", cfg.Presence.CheckInterval)
		}
		if cfg.State.MaxMeasurementNames != 100 {
			t.Errorf("MaxMeasurementNames = %d, want 100", cfg.State.MaxMeasurementNames)
		}
	})

	t.Run("applies defaults for missing values", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.API.Port != 8080 {
			t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
		}
		if cfg.Directory.CacheTTL != 300 {
			t.Errorf("Directory.CacheTTL = %d, want default 300", cfg.Directory.CacheTTL)
		}
	})

	t.Run("environment variables override file values", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/from-file.db
`)
		t.Setenv("FLEETSTATE_DATABASE_PATH", "/tmp/from-env.db")
		t.Setenv("FLEETSTATE_API_PORT", "7070")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Database.Path != "/tmp/from-env.db" {
			t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
		}
		if cfg.API.Port != 7070 {
			t.Errorf("API.Port = %d, want env override 7070", cfg.API.Port)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})

	t.Run("returns error for malformed YAML", func(t *testing.T) {
		path := writeConfigFile(t, "database: [not a mapping")
		if _, err := Load(path); err == nil {
			t.Error("Load() expected error for malformed YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	t.Run("accepts defaults", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("rejects empty database path", func(t *testing.T) {
		cfg := valid()
		cfg.Database.Path = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database path")
		}
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		cfg := valid()
		cfg.API.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0")
		}
	})

	t.Run("rejects invalid QoS when MQTT enabled", func(t *testing.T) {
		cfg := valid()
		cfg.MQTT.Enabled = true
		cfg.MQTT.QoS = 3
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for QoS 3")
		}
	})

	t.Run("rejects influx without token", func(t *testing.T) {
		cfg := valid()
		cfg.InfluxDB.Enabled = true
		cfg.InfluxDB.Token = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing influx token")
		}
	})

	t.Run("rejects negative measurement bound", func(t *testing.T) {
		cfg := valid()
		cfg.State.MaxMeasurementNames = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for negative bound")
		}
	})

	t.Run("rejects zero presence intervals when enabled", func(t *testing.T) {
		cfg := valid()
		cfg.Presence.Enabled = true
		cfg.Presence.CheckInterval = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero check interval")
		}
	})
}
