package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// EnvPrefix prefixes every environment variable read into Settings.
const EnvPrefix = "DIVA"

// Settings holds the runtime options of the engine. They come from, in
// increasing priority: defaults, an optional settings file, a .env file and
// DIVA_* environment variables.
type Settings struct {
	Workers     int               `mapstructure:"workers" validate:"min=1,max=256"`
	QueueSize   int               `mapstructure:"queue_size" validate:"min=1"`
	LogLevel    string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string            `mapstructure:"log_format" validate:"oneof=json console"`
	DataDir     string            `mapstructure:"data_dir"`
	PreviewSize int               `mapstructure:"preview_size" validate:"min=16,max=8192"`
	Telemetry   TelemetrySettings `mapstructure:"telemetry"`
}

// TelemetrySettings configures the OTLP exporters. An empty endpoint
// disables export.
type TelemetrySettings struct {
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Workers:     4,
		QueueSize:   64,
		LogLevel:    "info",
		LogFormat:   "console",
		PreviewSize: 512,
		Telemetry:   TelemetrySettings{SampleRate: 1},
	}
}

// SettingsOption customises LoadSettings.
type SettingsOption func(*settingsLoader)

type settingsLoader struct {
	file    string
	envFile string
	// envRequired is set when the caller named the .env file explicitly.
	envRequired bool
}

// WithSettingsFile reads settings from a YAML, TOML or JSON file.
func WithSettingsFile(path string) SettingsOption {
	return func(l *settingsLoader) { l.file = path }
}

// WithEnvFile loads variables from the given .env file. Variables already
// present in the environment win.
func WithEnvFile(path string) SettingsOption {
	return func(l *settingsLoader) {
		l.envFile = path
		l.envRequired = true
	}
}

// LoadSettings resolves and validates the runtime settings.
func LoadSettings(opts ...SettingsOption) (*Settings, error) {
	loader := settingsLoader{envFile: ".env"}
	for _, opt := range opts {
		opt(&loader)
	}

	if err := loader.loadEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultSettings())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if loader.file != "" {
		v.SetConfigFile(loader.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, divaerrors.NewParseError(loader.file, extractLine(err), err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, divaerrors.NewValidationError("settings", fmt.Sprintf("decode settings: %v", err), err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings ranges.
func (s *Settings) Validate() error {
	if err := validatorInstance().Struct(s); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func (l settingsLoader) loadEnv() error {
	if l.envFile == "" {
		return nil
	}
	if _, err := os.Stat(l.envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !l.envRequired {
			return nil
		}
		return divaerrors.NewParseError(l.envFile, 0, err)
	}
	if err := godotenv.Load(l.envFile); err != nil {
		return divaerrors.NewParseError(l.envFile, 0, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("preview_size", d.PreviewSize)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
}
