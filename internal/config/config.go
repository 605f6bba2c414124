// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SPGW_LOG_LEVEL.
const EnvPrefix = "SPGW"

// Config defines the global configuration structure
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Modbus      SerialConfig      `mapstructure:"modbus"`
	SP          SPConfig          `mapstructure:"sp"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Tags        TagsConfig        `mapstructure:"tags"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SPConfig defines the link to the field device
type SPConfig struct {
	SerialConfig `mapstructure:",squash"`
	// Repeat seeds the auto-repeat register. Zero leaves it off.
	Repeat time.Duration `mapstructure:"repeat"`
}

// PersistenceConfig defines template and parameter storage
type PersistenceConfig struct {
	Type   string `mapstructure:"type"`   // "memory", "file", "mmap", "sql"
	Path   string `mapstructure:"path"`   // File path, or DSN for "sql"
	Driver string `mapstructure:"driver"` // database/sql driver for "sql"
}

// TagsConfig sizes the parameter tag store
type TagsConfig struct {
	Capacity int `mapstructure:"capacity"`
	History  int `mapstructure:"history"`
}

// MetricsConfig defines the Prometheus listener
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // e.g. ":9108"; empty disables
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"` // 0 takes the persisted baud index
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`
	// Timeout bounds a single read; frames complete on line silence.
	Timeout time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// Flags registers the command line flags understood by LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sp-gateway", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Path to config file")
	fs.StringP("log-level", "v", "info", "Log level (debug, info, warn, error)")
	fs.StringP("log-file", "L", "", "Log file path (default stdout)")
	return fs
}

// LoadConfig loads configuration from file, environment and flags.
// When configFile is empty the usual locations are searched and a
// missing file falls back to defaults.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/spgw/")
		v.AddConfigPath("$HOME/.spgw")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{"log.level": "log-level", "log.file": "log-file"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Modbus, 20*time.Millisecond)
	fixupSerial(&config.SP.SerialConfig, 10*time.Millisecond)
	config.Persistence.Type = strings.ToLower(config.Persistence.Type)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("modbus.device", "/dev/ttyUSB0")
	v.SetDefault("modbus.data_bits", 8)
	v.SetDefault("modbus.parity", "N")
	v.SetDefault("modbus.stop_bits", 1)
	v.SetDefault("modbus.timeout", 20*time.Millisecond)

	v.SetDefault("sp.device", "/dev/ttyUSB1")
	v.SetDefault("sp.data_bits", 8)
	v.SetDefault("sp.parity", "N")
	v.SetDefault("sp.stop_bits", 1)
	v.SetDefault("sp.timeout", 10*time.Millisecond)
	v.SetDefault("sp.repeat", 0)

	v.SetDefault("persistence.type", "memory")
	v.SetDefault("persistence.path", "")
	v.SetDefault("persistence.driver", "sqlite3")

	v.SetDefault("tags.capacity", 50)
	v.SetDefault("tags.history", 100)

	v.SetDefault("metrics.listen", "")
}

func fixupSerial(s *SerialConfig, timeout time.Duration) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = timeout
	}
}
