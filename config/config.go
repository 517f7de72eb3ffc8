// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/constants"
	"github.com/stratastor/partd/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	instance   *Config
	once       sync.Once
	configPath string // Tracks where the config was loaded from

	validate = validator.New()
)

type Config struct {
	Helper struct {
		SocketPath     string        `mapstructure:"socketPath" yaml:"socketPath" validate:"required"`
		PIDFile        string        `mapstructure:"pidFile" yaml:"pidFile"`
		Elevate        string        `mapstructure:"elevate" yaml:"elevate"`
		Binary         string        `mapstructure:"binary" yaml:"binary"` // empty means the running executable
		KeyBits        int           `mapstructure:"keyBits" yaml:"keyBits" validate:"min=2048,max=16384"`
		StartTimeout   time.Duration `mapstructure:"startTimeout" yaml:"startTimeout" validate:"gt=0"`
		CallTimeout    time.Duration `mapstructure:"callTimeout" yaml:"callTimeout" validate:"gt=0"`
		MaxOutputBytes int           `mapstructure:"maxOutputBytes" yaml:"maxOutputBytes" validate:"gt=0,lte=16777216"`
		CopyChunkSize  int64         `mapstructure:"copyChunkSize" yaml:"copyChunkSize" validate:"gt=0"`
	} `mapstructure:"helper" yaml:"helper"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel" yaml:"logLevel" validate:"oneof=debug info warn error"`
		EnableSentry bool   `mapstructure:"enableSentry" yaml:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN" yaml:"sentryDSN" validate:"required_if=EnableSentry true"`
	} `mapstructure:"logger" yaml:"logger"`

	Environment string `mapstructure:"environment" yaml:"environment" validate:"oneof=dev prod"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("helper.socketPath", DefaultSocketPath())
	v.SetDefault("helper.pidFile", DefaultPIDFile())
	v.SetDefault("helper.elevate", constants.DefaultElevate)
	v.SetDefault("helper.binary", "")
	v.SetDefault("helper.keyBits", 4096)
	v.SetDefault("helper.startTimeout", "2m")
	v.SetDefault("helper.callTimeout", "240h") // ten days; long copies must not be cut off
	v.SetDefault("helper.maxOutputBytes", 10*1024*1024)
	v.SetDefault("helper.copyChunkSize", 10*1024*1024)

	v.SetDefault("logger.logLevel", "info")
	v.SetDefault("logger.enableSentry", false)
	v.SetDefault("logger.sentryDSN", "")
}

// Validate checks the loaded values against the field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", f.Namespace(), f.Tag()))
			}
			return errors.New(errors.ConfigInvalid, strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, errors.ConfigInvalid)
	}
	return nil
}

// resolvePath picks the config file: explicit path, then $PARTD_CONFIG,
// then the config directory.
func resolvePath(configFilePath string) string {
	path := configFilePath
	if path == "" {
		path = os.Getenv(constants.ConfigEnvVar)
	}
	if path == "" {
		path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// Load reads the configuration at path with defaults and PARTD_ environment
// overrides applied. A missing file is not an error. The bool reports
// whether a file was read.
func Load(path string) (*Config, bool, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			found = false
		default:
			return nil, false, errors.Wrap(err, errors.ConfigLoadFailed).
				WithMetadata("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, found, errors.Wrap(err, errors.ConfigLoadFailed).
			WithMetadata("path", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return &cfg, found, nil
}

// defaults returns the built-in configuration
func defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig loads the configuration once for the process. Invalid files
// are reported and replaced by defaults. A missing file is created with
// the defaults.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		l, err := logger.NewTag(NewLoggerConfig(nil), "config")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}

		configPath = resolvePath(configFilePath)
		l.Debug("Using config file", "path", configPath)

		cfg, found, err := Load(configPath)
		switch {
		case err != nil:
			l.Error("Error reading config file, using defaults", "path", configPath, "err", err)
			instance = defaults()
		case !found:
			instance = cfg
			l.Debug("Config file not found, creating default", "path", configPath)
			if err := SaveConfig(configPath); err != nil {
				l.Warn("Failed to save default configuration", "err", err)
			}
		default:
			instance = cfg
			l.Debug("Config file loaded successfully", "path", configPath)
		}

		debugCfg := *instance
		if debugCfg.Logger.SentryDSN != "" {
			debugCfg.Logger.SentryDSN = "[REDACTED]"
		}
		l.Debug("Loaded configuration", "config", fmt.Sprintf("%+v", debugCfg))
	})

	return instance
}

// SaveConfig persists the current configuration to path. An empty path
// means the file in the config directory.
func SaveConfig(path string) error {
	if path == "" {
		path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
	}
	if instance == nil {
		instance = defaults()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("path", path)
	}

	configYAML, err := yaml.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, errors.ConfigWriteFailed)
	}
	if err := os.WriteFile(path, configYAML, 0644); err != nil {
		return errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("path", path)
	}

	configPath = path
	return nil
}

// GetLoadedConfigPath returns the path of the currently loaded configuration file.
func GetLoadedConfigPath() string {
	return configPath
}

// GetConfig returns the current configuration instance, loading the
// default file on first use.
func GetConfig() *Config {
	if instance == nil {
		return LoadConfig("")
	}
	return instance
}

func NewLoggerConfig(cfg *Config) logger.Config {
	if cfg == nil {
		return logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
	}

	return logger.Config{
		LogLevel:     cfg.Logger.LogLevel,
		EnableSentry: cfg.Logger.EnableSentry,
		SentryDSN:    cfg.Logger.SentryDSN,
	}
}
