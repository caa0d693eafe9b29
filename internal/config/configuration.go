package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigurationTemplate documents the file format. With neither
// authentication_token nor a non-default authentication_secret set, the admin
// API, including POST /stats/report, accepts unauthenticated requests.
const ConfigurationTemplate = `{
  "data_directory_path": "./data",
  "log_directory_path": "./logs",
  "server_port": 8080,
  "persistence_interval_in_seconds": 5,
  "truncate_snapshot_on_write": false,
  "authentication_secret": "CHANGE_ME",
  "maximum_cpu_count": 0,
  "log_severity_level": "INFO"
}`

const (
	DefaultServerPort                   = 8080
	DefaultPersistenceIntervalInSeconds = 5
	EnvironmentPrefix                   = "ROWSTATS"
	DefaultAuthenticationSecret         = "DEFAULT_SECRET_CHANGE_ME_IN_PROD"
)

type StatsServiceConfiguration struct {
	DataDirectoryPath            string `mapstructure:"data_directory_path"`
	LogDirectoryPath             string `mapstructure:"log_directory_path"`
	ServerPort                   int    `mapstructure:"server_port"`
	PersistenceIntervalInSeconds int    `mapstructure:"persistence_interval_in_seconds"`
	TruncateSnapshotOnWrite      bool   `mapstructure:"truncate_snapshot_on_write"`
	AuthenticationToken          string `mapstructure:"authentication_token"`
	AuthenticationSecret         string `mapstructure:"authentication_secret"`
	MaximumCpuCount              int    `mapstructure:"maximum_cpu_count"`
	LogSeverityLevel             string `mapstructure:"log_severity_level"`
}

func (c StatsServiceConfiguration) PersistenceInterval() time.Duration {
	if c.PersistenceIntervalInSeconds <= 0 {
		return DefaultPersistenceIntervalInSeconds * time.Second
	}
	return time.Duration(c.PersistenceIntervalInSeconds) * time.Second
}

// LoadConfigurationFromFile reads defaults, then the JSON file at filePath
// (when set), then ROWSTATS_* environment variables, later sources winning.
func LoadConfigurationFromFile(filePath string) (StatsServiceConfiguration, error) {
	v := viper.New()

	v.SetDefault("data_directory_path", "./data")
	v.SetDefault("log_directory_path", "./logs")
	v.SetDefault("server_port", DefaultServerPort)
	v.SetDefault("persistence_interval_in_seconds", DefaultPersistenceIntervalInSeconds)
	v.SetDefault("truncate_snapshot_on_write", false)
	v.SetDefault("authentication_token", "")
	v.SetDefault("authentication_secret", DefaultAuthenticationSecret)
	v.SetDefault("maximum_cpu_count", 0)
	v.SetDefault("log_severity_level", "INFO")

	v.SetEnvPrefix(EnvironmentPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return StatsServiceConfiguration{}, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	var config StatsServiceConfiguration
	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return config, nil
}
