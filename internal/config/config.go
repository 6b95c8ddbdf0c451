// Package config loads the settings of a reconstruction or cross-validation
// run from MBR_* environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/ntthung/mbr"
	"github.com/ntthung/mbr/cvfolds"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig signals a setting outside its allowed range.
var ErrInvalidConfig = errors.New("invalid config")

// Optimizer names accepted in ModelConfig.Optimizer.
const (
	OptimizerLBFGS      = "lbfgs"
	OptimizerNelderMead = "nelder-mead"
)

// Config represents the complete run configuration.
type Config struct {
	Model ModelConfig `yaml:"model" envconfig:"MODEL"`
	Folds FoldsConfig `yaml:"folds" envconfig:"FOLDS"`
	Paths PathsConfig `yaml:"paths" envconfig:"PATHS"`
}

// ModelConfig contains the regression settings.
type ModelConfig struct {
	StartYear        int      `yaml:"start_year" envconfig:"START_YEAR"`
	Lambda           float64  `yaml:"lambda" envconfig:"LAMBDA" default:"1"`
	LogTransform     []string `yaml:"log_transform" envconfig:"LOG_TRANSFORM"`
	ForceStandardize bool     `yaml:"force_standardize" envconfig:"FORCE_STANDARDIZE"`
	PenaltyOffset    bool     `yaml:"penalty_offset" envconfig:"PENALTY_OFFSET"`
	Optimizer        string   `yaml:"optimizer" envconfig:"OPTIMIZER" default:"lbfgs"`
	Concurrency      int      `yaml:"concurrency" envconfig:"CONCURRENCY" default:"1"`
	ReturnType       string   `yaml:"return_type" envconfig:"RETURN_TYPE" default:"fval"`
}

// FoldsConfig contains the cross-validation fold settings.
type FoldsConfig struct {
	Runs      int     `yaml:"runs" envconfig:"RUNS" default:"30"`
	Frac      float64 `yaml:"frac" envconfig:"FRAC" default:"0.1"`
	Scattered bool    `yaml:"scattered" envconfig:"SCATTERED"`
	Seed      uint64  `yaml:"seed" envconfig:"SEED" default:"24"`
}

// PathsConfig contains input and output locations. Input comes either from
// Workbook or from Instrumental plus one PCs file per target.
type PathsConfig struct {
	Instrumental string   `yaml:"instrumental" envconfig:"INSTRUMENTAL"`
	PCs          []string `yaml:"pcs" envconfig:"PCS"`
	Workbook     string   `yaml:"workbook" envconfig:"WORKBOOK"`
	Output       string   `yaml:"output" envconfig:"OUTPUT"`
}

// Load reads the environment first; keys present in the YAML file at path
// then override. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MBR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile decodes the YAML file onto cfg, so absent keys keep their value.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks every setting that does not depend on the data.
func (c *Config) Validate() error {
	m := c.Model
	if math.IsNaN(m.Lambda) || math.IsInf(m.Lambda, 0) || m.Lambda < 0 {
		return fmt.Errorf("%w: lambda must be finite and non-negative, got %v", ErrInvalidConfig, m.Lambda)
	}
	if _, err := c.minimizer(); err != nil {
		return err
	}
	if _, err := c.ReturnType(); err != nil {
		return err
	}
	if m.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative, got %d", ErrInvalidConfig, m.Concurrency)
	}
	if c.Folds.Runs < 1 {
		return fmt.Errorf("%w: runs must be positive, got %d", ErrInvalidConfig, c.Folds.Runs)
	}
	if !(c.Folds.Frac > 0 && c.Folds.Frac < 1) {
		return fmt.Errorf("%w: frac must be in (0, 1), got %v", ErrInvalidConfig, c.Folds.Frac)
	}
	return nil
}

func (c *Config) minimizer() (mbr.Minimizer, error) {
	switch strings.ToLower(c.Model.Optimizer) {
	case OptimizerLBFGS, "":
		return mbr.LBFGS{}, nil
	case OptimizerNelderMead:
		return mbr.NelderMead{}, nil
	}
	return nil, fmt.Errorf("%w: unknown optimizer %q", ErrInvalidConfig, c.Model.Optimizer)
}

// ReturnType parses Model.ReturnType.
func (c *Config) ReturnType() (mbr.ReturnType, error) {
	rt, err := mbr.ParseReturnType(c.Model.ReturnType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return rt, nil
}

// Engine builds the engine settings for the given canonical target order,
// resolving log-transform target names to indices.
func (c *Config) Engine(targets []string) (mbr.Config, error) {
	m, err := c.minimizer()
	if err != nil {
		return mbr.Config{}, err
	}
	idx := make(map[string]int, len(targets))
	for k, t := range targets {
		idx[t] = k
	}
	var logIdx []int
	for _, name := range c.Model.LogTransform {
		k, ok := idx[strings.TrimSpace(name)]
		if !ok {
			return mbr.Config{}, fmt.Errorf("%w: log-transform target %q is not one of %v", ErrInvalidConfig, name, targets)
		}
		logIdx = append(logIdx, k)
	}
	return mbr.Config{
		Lambda:           c.Model.Lambda,
		LogTransform:     logIdx,
		ForceStandardize: c.Model.ForceStandardize,
		PenaltyOffset:    c.Model.PenaltyOffset,
		Minimizer:        m,
		Concurrency:      c.Model.Concurrency,
	}, nil
}

// FoldOptions returns the fold generator settings.
func (c *Config) FoldOptions() cvfolds.Options {
	return cvfolds.Options{
		Runs:       c.Folds.Runs,
		Frac:       c.Folds.Frac,
		Contiguous: !c.Folds.Scattered,
		Seed:       c.Folds.Seed,
	}
}
