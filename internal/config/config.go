// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DatasetURL is the OWID CSV endpoint.
	DatasetURL string `koanf:"dataset_url"`

	// FallbackFile is the local CSV used when every download attempt fails.
	FallbackFile string `koanf:"fallback_file"`

	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `koanf:"timeout_seconds"`

	// MaxRetries sets how many download attempts are made.
	MaxRetries int `koanf:"max_retries"`

	// Countries selects the series kept by the cleaning stage.
	Countries []string `koanf:"countries"`

	// DateFrom and DateTo bound the analysis window, inclusive (YYYY-MM-DD).
	DateFrom string `koanf:"date_from"`
	DateTo   string `koanf:"date_to"`

	// Window is the rolling window length in rows.
	Window int `koanf:"window"`

	// PopulationFallback is used when a series carries no positive population.
	PopulationFallback float64 `koanf:"population_fallback"`

	// OutputDir is where CSV extracts and the workbook are written.
	OutputDir string `koanf:"output_dir"`

	// Quality thresholds.
	NullFraction   float64 `koanf:"null_fraction"`
	Completeness   float64 `koanf:"completeness_threshold"`
	MinBucketShare float64 `koanf:"min_bucket_share"`
	OverlapMin     float64 `koanf:"overlap_threshold"`
	IncidenceMax   float64 `koanf:"incidence_max"`
	GrowthMax      float64 `koanf:"growth_max"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		DatasetURL:         "https://covid.ourworldindata.org/data/owid-covid-data.csv",
		FallbackFile:       "covid.csv",
		TimeoutSeconds:     30,
		MaxRetries:         3,
		Countries:          []string{"Ecuador", "Spain"},
		DateFrom:           "2020-01-01",
		DateTo:             "2023-12-31",
		Window:             7,
		PopulationFallback: 1_000_000,
		OutputDir:          "reports",
		NullFraction:       0.05,
		Completeness:       0.95,
		MinBucketShare:     0.05,
		OverlapMin:         0.80,
		IncidenceMax:       2000,
		GrowthMax:          50,
	}
}

// DateWindow parses the configured analysis bounds.
func (c *Config) DateWindow() (from, to time.Time, err error) {
	from, err = time.Parse("2006-01-02", c.DateFrom)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err = time.Parse("2006-01-02", c.DateTo)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
