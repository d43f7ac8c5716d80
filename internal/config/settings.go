package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROSTER_DB.
const EnvPrefix = "ROSTER"

// Setting keys. Flag names match the keys.
const (
	KeyDB          = "db"
	KeyFormat      = "format"
	KeyLogFormat   = "log-format"
	KeyVerbose     = "verbose"
	KeyPipeline    = "pipeline"
	KeyRate        = "rate"
	KeyMetricsFile = "metrics-file"
)

// Settings are the runtime knobs that are not part of a pipeline
// definition.
type Settings struct {
	DB          string  `mapstructure:"db"`
	Format      string  `mapstructure:"format"`
	LogFormat   string  `mapstructure:"log-format"`
	Verbose     bool    `mapstructure:"verbose"`
	Pipeline    string  `mapstructure:"pipeline"`
	Rate        float64 `mapstructure:"rate"`
	MetricsFile string  `mapstructure:"metrics-file"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		DB:        "roster.db",
		Format:    "text",
		LogFormat: "text",
		Pipeline:  "roster.cue",
	}
}

// NewViper returns a viper instance with defaults and ROSTER_ environment
// overrides. "log-format" reads ROSTER_LOG_FORMAT.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultSettings()
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyFormat, d.Format)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyVerbose, d.Verbose)
	v.SetDefault(KeyPipeline, d.Pipeline)
	v.SetDefault(KeyRate, d.Rate)
	v.SetDefault(KeyMetricsFile, d.MetricsFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs to the viper key of the same name.
// A flag set on the command line wins over the environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// ReadSettings decodes the bound values and validates them.
func ReadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	switch s.Format {
	case "text", "json":
	default:
		return s, fmt.Errorf("invalid format %q: must be text or json", s.Format)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return s, fmt.Errorf("invalid log format %q: must be text or json", s.LogFormat)
	}
	if s.Rate < 0 {
		return s, fmt.Errorf("invalid rate %v: must not be negative", s.Rate)
	}
	return s, nil
}
