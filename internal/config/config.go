// Package config reads and writes parsergen.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = "parsergen.yaml"

// Sandbox modes.
const (
	SandboxProcess   = "process"
	SandboxInProcess = "inprocess"
)

// Config represents the top-level parsergen.yaml configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Generation GenerationConfig `yaml:"generation"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Validation ValidationConfig `yaml:"validation"`
	Loop       LoopConfig       `yaml:"loop"`
	Git        GitConfig        `yaml:"git"`
}

// PathsConfig locates the workspace directories, relative to the config
// file unless absolute.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir"`
	ParsersDir string `yaml:"parsers_dir"`
	LogsDir    string `yaml:"logs_dir"`
}

// GenerationConfig controls calls to the code-generation model.
type GenerationConfig struct {
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	ExcerptChars      int           `yaml:"excerpt_chars"`
	SampleRows        int           `yaml:"sample_rows"`
	Temperature       float32       `yaml:"temperature"`
}

// SandboxConfig controls routine execution.
type SandboxConfig struct {
	Mode           string        `yaml:"mode"` // process | inprocess
	Timeout        time.Duration `yaml:"timeout"`
	AllowedImports []string      `yaml:"allowed_imports"`
}

// ValidationConfig controls table comparison.
type ValidationConfig struct {
	NumericTolerance       float64  `yaml:"numeric_tolerance"`
	CaseInsensitiveColumns []string `yaml:"case_insensitive_columns,omitempty"`
}

// LoopConfig bounds the refinement loop.
type LoopConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	FeedbackLimit int `yaml:"feedback_limit"` // bytes
	FeedbackRows  int `yaml:"feedback_rows"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Default returns a Config with sensible defaults for a new workspace.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:    "data",
			ParsersDir: "custom_parsers",
			LogsDir:    "logs",
		},
		Generation: GenerationConfig{
			Model:             "gemini-2.5-flash",
			APIKeyEnv:         "GEMINI_API_KEY",
			Timeout:           2 * time.Minute,
			RequestsPerMinute: 10,
			ExcerptChars:      2000,
			SampleRows:        10,
			Temperature:       0.2,
		},
		Sandbox: SandboxConfig{
			Mode:    SandboxProcess,
			Timeout: 30 * time.Second,
			AllowedImports: []string{
				"bytes", "errors", "fmt", "math", "regexp", "sort",
				"strconv", "strings", "time", "unicode", "unicode/utf8",
			},
		},
		Validation: ValidationConfig{
			NumericTolerance: 0.01,
		},
		Loop: LoopConfig{
			MaxAttempts:   3,
			FeedbackLimit: 4000,
			FeedbackRows:  10,
		},
		Git: GitConfig{
			AutoCommit:  false,
			AuthorName:  "parsergen",
			AuthorEmail: "parsergen@localhost",
		},
	}
}

// Load reads a parsergen.yaml file from disk. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects settings the loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("loop.max_attempts must be at least 1, got %d", c.Loop.MaxAttempts))
	}
	if c.Loop.FeedbackLimit < 0 || c.Loop.FeedbackRows < 0 {
		errs = append(errs, errors.New("loop feedback limits must not be negative"))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout))
	}
	if c.Sandbox.Mode != SandboxProcess && c.Sandbox.Mode != SandboxInProcess {
		errs = append(errs, fmt.Errorf("sandbox.mode must be %q or %q, got %q", SandboxProcess, SandboxInProcess, c.Sandbox.Mode))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("generation.timeout must be positive, got %s", c.Generation.Timeout))
	}
	if c.Generation.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("generation.requests_per_minute must not be negative"))
	}
	if c.Validation.NumericTolerance < 0 {
		errs = append(errs, fmt.Errorf("validation.numeric_tolerance must not be negative, got %g", c.Validation.NumericTolerance))
	}
	return errors.Join(errs...)
}

// Tolerance returns the numeric tolerance as a decimal.
func (c *Config) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.Validation.NumericTolerance)
}

// Resolve returns p relative to root unless p is absolute.
func Resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// APIKey reads the generation API key, loading <root>/.env first. Values
// already in the environment win over .env.
func (c *Config) APIKey(root string) (string, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("loading .env: %w", err)
	}
	key := os.Getenv(c.Generation.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s is not set", c.Generation.APIKeyEnv)
	}
	return key, nil
}
