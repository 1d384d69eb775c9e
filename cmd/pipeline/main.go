package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/adapters/report"
	"github.com/jonnathanguaman/covidpipeline/internal/adapters/source"
	"github.com/jonnathanguaman/covidpipeline/internal/app"
	"github.com/jonnathanguaman/covidpipeline/internal/config"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/quality"
	"github.com/jonnathanguaman/covidpipeline/pkg/logger"
)

// Exit codes: 1 for operational failures, 2 when the quality gate trips.
const (
	exitFailure     = 1
	exitQualityGate = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFailure
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return exitFailure
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := buildService(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build pipeline", logger.Error(err))
		return exitFailure
	}

	rep, runErr := svc.Run(ctx)

	// Log the final metric snapshot whatever the outcome; a halted run's
	// counters are exactly what an operator wants to see first.
	if snapshot, err := svc.Metrics().Snapshot(); err == nil {
		log.Info(ctx, "run metrics", logger.Any("snapshot", snapshot))
	}
	for _, p := range rep.Paths {
		log.Info(ctx, "artifact written", logger.String("path", p))
	}

	if runErr != nil {
		if errors.Is(runErr, quality.ErrQualityGate) {
			log.Error(ctx, "run rejected by quality gate", logger.Error(runErr))
			return exitQualityGate
		}
		log.Error(ctx, "run failed", logger.Error(runErr))
		return exitFailure
	}

	log.Info(ctx, "run finished", logger.String("run_id", rep.RunID))
	return 0
}

func buildService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	from, to, err := cfg.DateWindow()
	if err != nil {
		return nil, err
	}

	fetcher := source.NewOWID(
		source.WithURL(cfg.DatasetURL),
		source.WithFallbackFile(cfg.FallbackFile),
		source.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		source.WithMaxRetries(cfg.MaxRetries),
	)
	cleaner := dataset.NewCleaner(
		dataset.WithCountries(cfg.Countries),
		dataset.WithDateRange(from, to),
	)
	engine := metrics.NewEngine(
		metrics.WithWindow(cfg.Window),
		metrics.WithPopulationFallback(cfg.PopulationFallback),
	)
	reporter := report.NewWriter(report.WithOutputDir(cfg.OutputDir))

	return app.New(
		app.WithLogger(log.Named("app")),
		app.WithFetcher(fetcher),
		app.WithCleaner(cleaner),
		app.WithEngine(engine),
		app.WithReporter(reporter),
		app.WithQualityParams(quality.Params{
			NullFraction:    cfg.NullFraction,
			Completeness:    cfg.Completeness,
			MinBucketShare:  cfg.MinBucketShare,
			OverlapFraction: cfg.OverlapMin,
			IncidenceMax:    cfg.IncidenceMax,
			GrowthMax:       cfg.GrowthMax,
		}),
	)
}
