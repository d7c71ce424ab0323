package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file, so secrets can live in .env
const (
	EnvDatabaseURL = "CROP_PLANNER_DATABASE_URL"
	EnvPlanSheetID = "CROP_PLANNER_PLAN_SHEET_ID"
)

// Optimization algorithms
const (
	AlgorithmGreedy      = "greedy"
	AlgorithmLocalSearch = "greedy+local-search"
	AlgorithmALNS        = "greedy+alns"
)

// LocalSearchConfig tunes the hill-climbing improvement phase
type LocalSearchConfig struct {
	MaxIterations           int           `yaml:"maxIterations,omitempty" validate:"gte=0"`
	MaxNoImprovement        int           `yaml:"maxNoImprovement,omitempty" validate:"gte=0"`
	MaxNeighborsPerOperator int           `yaml:"maxNeighborsPerOperator,omitempty" validate:"gte=0"`
	TimeBudget              time.Duration `yaml:"timeBudget,omitempty" validate:"gte=0"`
	Operators               []string      `yaml:"operators,omitempty" validate:"dive,oneof=field_swap field_move field_replace field_remove crop_insert crop_change period_replace quantity_adjust"`
}

// ALNSConfig tunes the adaptive large neighborhood search phase
type ALNSConfig struct {
	MaxIterations      int           `yaml:"maxIterations,omitempty" validate:"gte=0"`
	TimeBudget         time.Duration `yaml:"timeBudget,omitempty" validate:"gte=0"`
	DestroyFraction    float64       `yaml:"destroyFraction,omitempty" validate:"gte=0,lte=1"`
	TimeSliceDays      int           `yaml:"timeSliceDays,omitempty" validate:"gte=0"`
	InitialTemperature float64       `yaml:"initialTemperature,omitempty" validate:"gte=0"`
	CoolingRate        float64       `yaml:"coolingRate,omitempty" validate:"gte=0,lt=1"`
	ReactionFactor     float64       `yaml:"reactionFactor,omitempty" validate:"gte=0,lte=1"`
}

// OptimizerConfig controls one optimization run. It is passed by value into every
// stage so a run never observes a change made after it started.
type OptimizerConfig struct {
	Algorithm      string    `yaml:"algorithm" validate:"required,oneof=greedy greedy+local-search greedy+alns"`
	QuantityLevels []float64 `yaml:"quantityLevels,omitempty" validate:"dive,gt=0,lte=1"`
	TopK           int       `yaml:"topK,omitempty" validate:"gte=0"`
	MinProfitRate  *float64  `yaml:"minProfitRate,omitempty"`

	// StartDateRule is an RFC 5545 recurrence restricting admissible start dates
	StartDateRule string `yaml:"startDateRule,omitempty"`

	Workers int   `yaml:"workers,omitempty" validate:"gte=0"`
	Seed    int64 `yaml:"seed,omitempty"`

	LocalSearch LocalSearchConfig `yaml:"localSearch,omitempty"`
	ALNS        ALNSConfig        `yaml:"alns,omitempty"`
}

// Config represents the application configuration
type Config struct {
	// DatabaseURL is a Postgres connection string; saving runs is disabled without it
	DatabaseURL string `yaml:"databaseURL,omitempty"`

	// PlanSheetID is the spreadsheet plans are published to
	PlanSheetID string `yaml:"planSheetID,omitempty"`

	// MetricsFile is a Prometheus textfile written after each run
	MetricsFile string `yaml:"metricsFile,omitempty"`

	Optimizer OptimizerConfig `yaml:"optimizer"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from crop_plan_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration with an environment suffix
// For example, env="test" will look for "crop_plan_config.test.yaml"
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills in settings a config file may leave out
func ApplyDefaults(cfg *Config) {
	if cfg.Optimizer.Algorithm == "" {
		cfg.Optimizer.Algorithm = AlgorithmLocalSearch
	}
}

// ApplyEnvOverrides replaces connection settings with their environment variables when set
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(EnvPlanSheetID); v != "" {
		cfg.PlanSheetID = v
	}
}

// LoadDotEnv loads .env.<env> and then .env from the current directory, returning the
// files it read. Missing files are skipped. Variables already in the environment are
// never overwritten, so the environment-specific file wins over .env.
func LoadDotEnv(env string) ([]string, error) {
	names := []string{".env"}
	if env != "" {
		names = []string{".env." + env, ".env"}
	}

	var loaded []string
	for _, name := range names {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", name, err)
		}
		loaded = append(loaded, name)
	}
	return loaded, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return ValidateStartDateRule(cfg.Optimizer.StartDateRule)
}

// ValidateStartDateRule checks the recurrence syntax (empty means every day)
func ValidateStartDateRule(rule string) error {
	if rule == "" {
		return nil
	}
	if _, err := rrule.StrToRRule(rule); err != nil {
		return fmt.Errorf("invalid rrule in startDateRule: %w", err)
	}
	return nil
}

// configFileName returns the config file name for an environment
func configFileName(env string) string {
	if env == "" {
		return "crop_plan_config.yaml"
	}
	return "crop_plan_config." + env + ".yaml"
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(env string) (string, error) {
	return findFile(configFileName(env))
}

// findFile returns name if it exists in the current directory, otherwise the same name
// under the user's home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
