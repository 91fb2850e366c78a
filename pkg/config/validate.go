package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError listing every problem found
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSettings(cfg, ve)
	validateClassifier(cfg, ve)
	validateConnection(cfg, ve)
	validateSource(cfg, ve)
	validateMQTT(cfg, ve)
	validateFeed(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSettings(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Settings.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("settings.log_level %q is not one of debug, info, warn, error", cfg.Settings.LogLevel)
	}
	switch strings.ToLower(cfg.Settings.LogFormat) {
	case "text", "json":
	default:
		ve.Add("settings.log_format %q is not one of text, json", cfg.Settings.LogFormat)
	}
}

func validateClassifier(cfg *Config, ve *ValidationError) {
	if err := cfg.Classifier.Validate(); err != nil {
		ve.Add("classifier: %s", err)
	}
	if cfg.Session.HistoryCapacity < cfg.Classifier.Window {
		ve.Add("session.history_capacity must be >= classifier.window (%d)", cfg.Classifier.Window)
	}
}

func validateConnection(cfg *Config, ve *ValidationError) {
	if cfg.Connection.StepTimeout < 0 {
		ve.Add("connection.step_timeout must be >= 0")
	}
	if cfg.Connection.RetryInterval <= 0 {
		ve.Add("connection.retry_interval must be > 0")
	}
	if cfg.Connection.DialTimeout <= 0 {
		ve.Add("connection.dial_timeout must be > 0")
	}
}

func validateSource(cfg *Config, ve *ValidationError) {
	switch cfg.Source.Type {
	case SourceBLE:
	case SourceSynthetic:
		if cfg.Source.Interval <= 0 {
			ve.Add("source.interval must be > 0")
		}
	case SourceSerial:
		if cfg.Source.Port == "" {
			ve.Add("source.port is required for the serial source")
		}
		if cfg.Source.Baud == 0 {
			ve.Add("source.baud must be > 0")
		}
	default:
		ve.Add("source.type %q is not one of ble, synthetic, serial", cfg.Source.Type)
	}
}

func validateMQTT(cfg *Config, ve *ValidationError) {
	if !cfg.MQTT.Enabled {
		return
	}
	if cfg.MQTT.Broker == "" {
		ve.Add("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.TopicPrefix == "" {
		ve.Add("mqtt.topic_prefix is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		ve.Add("mqtt.qos must be 0, 1 or 2")
	}
}

func validateFeed(cfg *Config, ve *ValidationError) {
	if cfg.Feed.Enabled && cfg.Feed.Addr == "" {
		ve.Add("feed.addr is required when the feed is enabled")
	}
}
