package app

import (
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/adapters/report"
	"github.com/jonnathanguaman/covidpipeline/internal/adapters/source"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/quality"
	"github.com/jonnathanguaman/covidpipeline/pkg/logger"
	pkgmetrics "github.com/jonnathanguaman/covidpipeline/pkg/metrics"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics replaces the metric manager.
func WithMetrics(m *pkgmetrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.meter = m
		}
	}
}

// WithFetcher replaces the dataset source.
func WithFetcher(f source.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithCleaner replaces the cleaning stage.
func WithCleaner(c *dataset.Cleaner) Option {
	return func(s *Service) {
		if c != nil {
			s.cleaner = c
		}
	}
}

// WithEngine replaces the metric engine.
func WithEngine(e *metrics.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithReporter replaces the report writer.
func WithReporter(w *report.Writer) Option {
	return func(s *Service) {
		if w != nil {
			s.reporter = w
		}
	}
}

// WithRules replaces the default rule set entirely.
func WithRules(specs []quality.RuleSpec) Option {
	return func(s *Service) {
		s.rules = specs
	}
}

// WithQualityParams overrides the quality thresholds.
func WithQualityParams(p quality.Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

// WithRunDate pins the reference date used by future-date checks. Zero means
// the current time.
func WithRunDate(at time.Time) Option {
	return func(s *Service) {
		s.runDate = at
	}
}

// WithoutCSVExtracts skips the per-table CSV files and writes only the
// workbook on a successful run.
func WithoutCSVExtracts() Option {
	return func(s *Service) {
		s.skipCSV = true
	}
}
