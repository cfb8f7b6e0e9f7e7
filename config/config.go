// Package config defines the data structures related to configuration and
// includes functions for loading and parsing the config.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Configuration holds all configuration for the loan servicing server.
type Configuration struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP listener parameters.
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the SQLite parameters.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig holds the logger parameters.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// Defaults applied when a field is absent from the config file.
const (
	DefaultPort   = 8080
	DefaultDBPath = "loans.db"
	DefaultLevel  = "info"
	DefaultFormat = "json"
)

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields the defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	configuration := &Configuration{
		Server:   ServerConfig{Port: DefaultPort},
		Database: DatabaseConfig{Path: DefaultDBPath},
		Logging:  LoggingConfig{Level: DefaultLevel, Format: DefaultFormat},
	}
	if configPath == "" {
		return configuration, nil
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	if err := viper.Unmarshal(configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	return configuration, nil
}
