// Package config loads application settings from defaults, an optional
// YAML file and ELEARN_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// FirestoreConfig selects the Firestore project. An empty ProjectID makes
// the application run on the in-memory store.
type FirestoreConfig struct {
	ProjectID       string        `mapstructure:"project_id"`
	CredentialsFile string        `mapstructure:"credentials_file" validate:"omitempty,file"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
}

// StoreConfig tunes the document store.
type StoreConfig struct {
	IgnoreUndefinedProperties bool `mapstructure:"ignore_undefined_properties"`
	// Seed loads the fixed sample data set into the in-memory store.
	Seed bool `mapstructure:"seed"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
	Protocol    string `mapstructure:"protocol" validate:"oneof=grpc http/protobuf"`
}
