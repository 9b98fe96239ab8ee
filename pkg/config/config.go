// Package config provides configuration loading and management for blotquant.
// It handles loading configuration from YAML files, applies BLOTQUANT_*
// environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"blotquant/pkg/geometry"
	"blotquant/pkg/preprocess"
	"blotquant/pkg/quanterr"
	"blotquant/pkg/quantify"
	"blotquant/pkg/stats"
)

// EnvPrefix prefixes every environment override, e.g.
// BLOTQUANT_QUANTIFICATION_SENSITIVITY.
const EnvPrefix = "BLOTQUANT"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Lane quantification parameters
	Quantification struct {
		// Sensitivity is k in threshold = background + k * stddev
		Sensitivity float64 `yaml:"sensitivity" envconfig:"SENSITIVITY" validate:"gte=0"`

		// Workers bounds lane and image parallelism; 0 uses every core
		Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
	} `yaml:"quantification" envconfig:"QUANTIFICATION"`

	// Default lane layout for passes that do not set their own
	Geometry struct {
		// Pairing is none, block or interleaved
		Pairing string `yaml:"pairing" envconfig:"PAIRING" validate:"oneof=none block interleaved"`

		// Groups are the labels pairing assigns, in lane order
		Groups []string `yaml:"groups" envconfig:"GROUPS" validate:"dive,required"`

		// DefaultGroup labels lanes when pairing is none
		DefaultGroup string `yaml:"defaultGroup" envconfig:"DEFAULT_GROUP"`
	} `yaml:"geometry" envconfig:"GEOMETRY"`

	// Rotation fill
	Preprocess struct {
		// FillPolicy is replicate or constant
		FillPolicy string `yaml:"fillPolicy" envconfig:"FILL_POLICY" validate:"oneof=replicate constant"`

		// FillValue is written outside the source when FillPolicy is constant
		FillValue float64 `yaml:"fillValue" envconfig:"FILL_VALUE" validate:"gte=0"`
	} `yaml:"preprocess" envconfig:"PREPROCESS"`

	// Hypothesis testing
	Statistics struct {
		// Test is student_t, welch_t or two_way_anova
		Test string `yaml:"test" envconfig:"TEST" validate:"oneof=student_t welch_t two_way_anova"`

		// Alpha is the significance level
		Alpha float64 `yaml:"alpha" envconfig:"ALPHA" validate:"gt=0,lt=1"`

		// Reference is the group every other group is compared against
		Reference string `yaml:"reference" envconfig:"REFERENCE" validate:"required"`

		// Paired selects the paired t-test
		Paired bool `yaml:"paired" envconfig:"PAIRED"`
	} `yaml:"statistics" envconfig:"STATISTICS"`

	// Output parameters
	Output struct {
		// LogLevel is debug, info, warn or error
		LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`

		// LogFormat is text or json
		LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT" validate:"oneof=text json"`

		// Verbose lowers the log level to debug
		Verbose bool `yaml:"verbose" envconfig:"VERBOSE"`
	} `yaml:"output" envconfig:"OUTPUT"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Quantification.Sensitivity = quantify.DefaultSensitivity
	cfg.Quantification.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Geometry.Pairing = geometry.PairingBlock.String()
	cfg.Geometry.Groups = []string{geometry.GroupControl, geometry.GroupTreatment}
	cfg.Geometry.DefaultGroup = geometry.GroupControl

	cfg.Preprocess.FillPolicy = "replicate"
	cfg.Preprocess.FillValue = 0

	cfg.Statistics.Test = stats.WelchT.String()
	cfg.Statistics.Alpha = stats.DefaultAlpha
	cfg.Statistics.Reference = geometry.GroupControl
	cfg.Statistics.Paired = false

	cfg.Output.LogLevel = "info"
	cfg.Output.LogFormat = "text"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file, then applies environment
// overrides and validates the result.
// If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	// Only variables that are set replace file values
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return quanterr.Wrap(quanterr.InvalidParameter, "config", err)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Pairing returns the parsed default pairing policy.
func (c *Config) Pairing() geometry.Pairing {
	p, err := geometry.ParsePairing(c.Geometry.Pairing)
	if err != nil {
		return geometry.PairingBlock
	}
	return p
}

// Test returns the parsed test kind.
func (c *Config) Test() stats.TestKind {
	k, err := stats.ParseTestKind(c.Statistics.Test)
	if err != nil {
		return stats.WelchT
	}
	return k
}

// Fill returns the rotation fill.
func (c *Config) Fill() preprocess.Fill {
	if c.Preprocess.FillPolicy == "constant" {
		return preprocess.Fill{Policy: preprocess.FillConstant, Value: c.Preprocess.FillValue}
	}
	return preprocess.Fill{Policy: preprocess.FillReplicate}
}

// StatOptions returns the options shared by every comparison.
func (c *Config) StatOptions() stats.Options {
	return stats.Options{Alpha: c.Statistics.Alpha, Paired: c.Statistics.Paired}
}
