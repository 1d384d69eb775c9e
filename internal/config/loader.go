package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if COVIDPIPE_CONFIG is set
//  3. env (prefix COVIDPIPE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("COVIDPIPE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: COVIDPIPE_WINDOW, COVIDPIPE_OUTPUT_DIR, ...
	// Map env keys like COVIDPIPE_OUTPUT_DIR -> output_dir (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("COVIDPIPE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "covidpipe_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Countries) == 0 {
		return fmt.Errorf("%w: countries must not be empty", ErrInvalidConfig)
	}
	if c.Window < 1 {
		return fmt.Errorf("%w: window must be at least 1", ErrInvalidConfig)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfig)
	}
	if c.PopulationFallback <= 0 {
		return fmt.Errorf("%w: population_fallback must be positive", ErrInvalidConfig)
	}
	from, to, err := c.DateWindow()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: date_to precedes date_from", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"null_fraction":          c.NullFraction,
		"completeness_threshold": c.Completeness,
		"min_bucket_share":       c.MinBucketShare,
		"overlap_threshold":      c.OverlapMin,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1]", ErrInvalidConfig, name)
		}
	}
	if c.IncidenceMax <= 0 || c.GrowthMax <= 0 {
		return fmt.Errorf("%w: range bounds must be positive", ErrInvalidConfig)
	}
	return nil
}
