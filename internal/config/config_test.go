package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/psychometry/irtreport/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 6, cfg.ItemCount)
	assert.Equal(t, 0, cfg.Categories)
	assert.Equal(t, 1, cfg.Dimensions)
	assert.Equal(t, "graded", cfg.ItemType)
	assert.Equal(t, -3.0, cfg.ThetaMin)
	assert.Equal(t, 3.0, cfg.ThetaMax)
	assert.Contains(t, cfg.MissingMarkers, "NA")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.DatasetPath = "responses.csv"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing dataset path",
			mutate:  func(c *Config) { c.DatasetPath = "" },
			wantErr: true,
		},
		{
			name:    "too few items",
			mutate:  func(c *Config) { c.ItemCount = 1 },
			wantErr: true,
		},
		{
			name:    "single category",
			mutate:  func(c *Config) { c.Categories = 1 },
			wantErr: true,
		},
		{
			name:    "multidimensional unsupported",
			mutate:  func(c *Config) { c.Dimensions = 2 },
			wantErr: true,
		},
		{
			name:    "unknown item type",
			mutate:  func(c *Config) { c.ItemType = "rasch" },
			wantErr: true,
		},
		{
			name:    "inverted theta bounds",
			mutate:  func(c *Config) { c.ThetaMin, c.ThetaMax = 3, -3 },
			wantErr: true,
		},
		{
			name:    "named columns allow item_count zero",
			mutate:  func(c *Config) { c.ItemCount = 0; c.ItemColumns = []string{"q1", "q2"} },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "irtreport.yaml")
	content := []byte(`
dataset_path: data/ams.csv
item_count: 6
categories: 4
scale_name: AMS
fit_timeout: 90s
theta_min: -4
theta_max: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("IRTREPORT_SCALE_NAME", "FOS")
	t.Setenv("IRTREPORT_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/ams.csv", cfg.DatasetPath)
	assert.Equal(t, 4, cfg.Categories)
	assert.Equal(t, 90*time.Second, cfg.FitTimeout.AsDuration())
	assert.Equal(t, -4.0, cfg.ThetaMin)
	// Environment overrides the file.
	assert.Equal(t, "FOS", cfg.ScaleName)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 3, cfg.EffectiveWorkers())
}

func TestBuildDefersValidation(t *testing.T) {
	// With no file and no environment the dataset path is empty. Build
	// must still succeed so a later layer (command-line flags) can
	// supply it before the single Validate call.
	t.Setenv("IRTREPORT_DATASET", "")
	cfg, err := Build("")
	require.NoError(t, err)
	assert.Empty(t, cfg.DatasetPath)

	// Load of the same inputs fails: it validates immediately.
	_, err = Load("")
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))

	// The flag-override flow: set the dataset after Build, validate once.
	cfg.DatasetPath = "responses.csv"
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataset_path: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}
