package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/psychometry/irtreport/internal/errors"
)

// Duration wraps time.Duration so YAML values like "90s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// Config is the full run configuration. Everything has a default; a
// YAML file and environment variables override it in that order.
type Config struct {
	// DatasetPath is the delimited input file with a header row.
	DatasetPath string `yaml:"dataset_path"`
	// ItemColumns selects columns by header name, in order. Empty means
	// take the first ItemCount columns.
	ItemColumns []string `yaml:"item_columns"`
	// ItemCount is used when ItemColumns is empty.
	ItemCount int `yaml:"item_count"`
	// Categories is the ordinal category ceiling; 0 infers it from the
	// data maximum. Responses are validated against [1, Categories].
	Categories int `yaml:"categories"`
	// MissingMarkers are cell values treated as missing responses.
	MissingMarkers []string `yaml:"missing_markers"`
	// Delimiter for the input file; defaults to comma.
	Delimiter string `yaml:"delimiter"`

	// Dimensions of the latent trait; only 1 is supported.
	Dimensions int `yaml:"dimensions"`
	// ItemType of the model; only "graded" is supported.
	ItemType string `yaml:"item_type"`
	// FitTimeout bounds the estimation stage.
	FitTimeout Duration `yaml:"fit_timeout"`

	// ThetaMin and ThetaMax bound the display range for figures.
	ThetaMin float64 `yaml:"theta_min"`
	ThetaMax float64 `yaml:"theta_max"`

	// ScaleName labels the instrument in the rendered report.
	ScaleName string `yaml:"scale_name"`
	// OutputDir receives the report and figure artifacts.
	OutputDir string `yaml:"output_dir"`
	// Workers bounds the scoring pool; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Default returns the baseline configuration: six items, inferred
// category count, unidimensional graded model, theta displayed on
// [-3, 3].
func Default() Config {
	return Config{
		ItemCount:      6,
		Categories:     0,
		MissingMarkers: []string{"", "NA"},
		Delimiter:      ",",
		Dimensions:     1,
		ItemType:       "graded",
		FitTimeout:     Duration(5 * time.Minute),
		ThetaMin:       -3,
		ThetaMax:       3,
		ScaleName:      "scale",
		OutputDir:      "./report",
		Workers:        0,
	}
}

// Build assembles the configuration from defaults, an optional YAML
// file, and environment overrides, without validating it. Callers that
// layer further overrides on top (such as command-line flags) validate
// once after the last layer is applied.
func Build(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, apperrors.NewConfigurationError(
				fmt.Sprintf("cannot read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, apperrors.NewConfigurationError(
				fmt.Sprintf("cannot parse config file %s", path), err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Load builds the configuration and validates it.
func Load(path string) (Config, error) {
	cfg, err := Build(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays IRTREPORT_* environment variables.
func (c *Config) applyEnv() {
	c.DatasetPath = getEnvOrDefault("IRTREPORT_DATASET", c.DatasetPath)
	c.OutputDir = getEnvOrDefault("IRTREPORT_OUTPUT_DIR", c.OutputDir)
	c.ScaleName = getEnvOrDefault("IRTREPORT_SCALE_NAME", c.ScaleName)

	if v := os.Getenv("IRTREPORT_ITEM_COLUMNS"); v != "" {
		cols := strings.Split(v, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		c.ItemColumns = cols
	}
	if v, ok := getEnvInt("IRTREPORT_ITEM_COUNT"); ok {
		c.ItemCount = v
	}
	if v, ok := getEnvInt("IRTREPORT_CATEGORIES"); ok {
		c.Categories = v
	}
	if v, ok := getEnvInt("IRTREPORT_WORKERS"); ok {
		c.Workers = v
	}
	if v := os.Getenv("IRTREPORT_FIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FitTimeout = Duration(d)
		}
	}
	if v := os.Getenv("IRTREPORT_THETA_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ThetaMin = f
		}
	}
	if v := os.Getenv("IRTREPORT_THETA_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ThetaMax = f
		}
	}
}

// Validate rejects configurations the pipeline cannot run.
func (c *Config) Validate() error {
	if c.DatasetPath == "" {
		return apperrors.NewConfigurationError("dataset_path is required", nil)
	}
	if len(c.ItemColumns) == 0 && c.ItemCount < 2 {
		return apperrors.NewConfigurationError("at least two items are required", nil)
	}
	if c.Categories < 0 {
		return apperrors.NewConfigurationError("categories must be 0 (infer) or >= 2", nil)
	}
	if c.Categories == 1 {
		return apperrors.NewConfigurationError("categories must be 0 (infer) or >= 2", nil)
	}
	if c.Dimensions != 1 {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("dimensions must be 1, got %d", c.Dimensions), nil)
	}
	if c.ItemType != "graded" {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("item_type must be %q, got %q", "graded", c.ItemType), nil)
	}
	if c.ThetaMin >= c.ThetaMax {
		return apperrors.NewConfigurationError("theta_min must be below theta_max", nil)
	}
	if c.FitTimeout <= 0 {
		return apperrors.NewConfigurationError("fit_timeout must be positive", nil)
	}
	return nil
}

// EffectiveWorkers resolves the scoring pool size.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
