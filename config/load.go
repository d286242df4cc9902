package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ELEARN"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.credentials_file", "")
	v.SetDefault("firestore.probe_timeout", "5s")
	v.SetDefault("store.ignore_undefined_properties", true)
	v.SetDefault("store.seed", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "elearning-docstore")
	v.SetDefault("telemetry.protocol", "grpc")
}

// Load reads configuration. path names a YAML file; when empty, a
// config.yaml in the working directory is used if present. Environment
// variables such as ELEARN_SERVER_PORT take precedence over the file.
// The Google Cloud variables GOOGLE_CLOUD_PROJECT and
// GOOGLE_APPLICATION_CREDENTIALS are honored as fallbacks.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("firestore.project_id", EnvPrefix+"_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("firestore.credentials_file", EnvPrefix+"_FIRESTORE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
