// Package config loads the monitor configuration from YAML with POSTURE_* environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/posture"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source types
const (
	SourceBLE       = "ble"
	SourceSynthetic = "synthetic"
	SourceSerial    = "serial"
)

type Config struct {
	Settings   SettingsConfig   `yaml:"settings"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Session    SessionConfig    `yaml:"session"`
	Connection ConnectionConfig `yaml:"connection"`
	Source     SourceConfig     `yaml:"source"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Feed       FeedConfig       `yaml:"feed"`
}

// SettingsConfig configures logging
type SettingsConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogOutput is stdout, stderr or a file path
	LogOutput string `yaml:"log_output"`
}

type ClassifierConfig struct {
	posture.Config `yaml:",inline"`
	// Baseline is used until the first calibration and restored on disconnect
	Baseline models.Baseline `yaml:"baseline"`
}

type SessionConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
}

type ConnectionConfig struct {
	// DeviceName selects sensors whose advertised name contains it (case insensitive)
	DeviceName string `yaml:"device_name"`
	// DeviceAddress selects one sensor by address
	DeviceAddress string        `yaml:"device_address"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// Matches reports whether p passes the name and address filters; empty filters match everything
func (c ConnectionConfig) Matches(p models.PeripheralHandle) bool {
	if c.DeviceAddress != "" && !util.AddrEqualAddr(c.DeviceAddress, p.ID) {
		return false
	}
	if c.DeviceName != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(c.DeviceName)) {
		return false
	}
	return true
}

type SourceConfig struct {
	Type string `yaml:"type"`
	// Interval and Seed drive the synthetic source; seed 0 picks a random one
	Interval time.Duration `yaml:"interval"`
	Seed     uint64        `yaml:"seed"`
	// Port and Baud drive the serial source
	Port string `yaml:"port"`
	Baud uint   `yaml:"baud"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Defaults() *Config {
	return &Config{
		Settings: SettingsConfig{LogLevel: "info", LogFormat: "text", LogOutput: "stderr"},
		Classifier: ClassifierConfig{
			Config:   posture.DefaultConfig(),
			Baseline: models.DefaultBaseline(),
		},
		Session: SessionConfig{HistoryCapacity: util.DefaultHistoryCapacity},
		Connection: ConnectionConfig{
			StepTimeout:   util.DefaultStepTimeout,
			RetryInterval: util.DefaultRetryInterval,
			DialTimeout:   util.DefaultDialTimeout,
		},
		Source: SourceConfig{Type: SourceBLE, Interval: time.Second, Baud: 115200},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "posture-client",
			TopicPrefix: "posture",
		},
		Feed: FeedConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, applies env overrides and validates.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrap(err, "read config")
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps POSTURE_* env vars to config fields
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("POSTURE_LOG_LEVEL"); v != "" {
		cfg.Settings.LogLevel = v
	}
	if v := os.Getenv("POSTURE_LOG_FORMAT"); v != "" {
		cfg.Settings.LogFormat = v
	}
	if v := os.Getenv("POSTURE_SOURCE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("POSTURE_SERIAL_PORT"); v != "" {
		cfg.Source.Port = v
	}
	if v := os.Getenv("POSTURE_DEVICE_NAME"); v != "" {
		cfg.Connection.DeviceName = v
	}
	if v := os.Getenv("POSTURE_DEVICE_ADDRESS"); v != "" {
		cfg.Connection.DeviceAddress = v
	}
	if v := os.Getenv("POSTURE_STEP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "POSTURE_STEP_TIMEOUT")
		}
		cfg.Connection.StepTimeout = d
	}
	if v := os.Getenv("POSTURE_MQTT_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "POSTURE_MQTT_ENABLED")
		}
		cfg.MQTT.Enabled = b
	}
	if v := os.Getenv("POSTURE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("POSTURE_FEED_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "POSTURE_FEED_ENABLED")
		}
		cfg.Feed.Enabled = b
	}
	if v := os.Getenv("POSTURE_FEED_ADDR"); v != "" {
		cfg.Feed.Addr = v
	}
	return nil
}
