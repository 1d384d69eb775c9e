// Package app wires the pipeline stages together: acquisition, cleaning,
// metric computation, quality gating and report generation.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonnathanguaman/covidpipeline/internal/adapters/report"
	"github.com/jonnathanguaman/covidpipeline/internal/adapters/source"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/quality"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
	"github.com/jonnathanguaman/covidpipeline/pkg/logger"
	pkgmetrics "github.com/jonnathanguaman/covidpipeline/pkg/metrics"
)

// Stage names used for timing observations.
const (
	stageFetch   = "fetch"
	stageClean   = "clean"
	stageMetrics = "metrics"
	stageChecks  = "checks"
	stageReport  = "report"
)

// Service runs the end-to-end pipeline. Every collaborator has a default so
// tests can replace only the piece under test.
type Service struct {
	log      logger.Logger
	meter    *pkgmetrics.Manager
	fetcher  source.Fetcher
	cleaner  *dataset.Cleaner
	engine   *metrics.Engine
	reporter *report.Writer
	params   quality.Params
	rules    []quality.RuleSpec
	runDate  time.Time
	skipCSV  bool
}

// RunReport summarizes one pipeline run for the caller.
type RunReport struct {
	RunID    string
	Results  []quality.CheckResult
	Warnings []metrics.Warning
	Paths    []string
	Halted   bool
}

// New builds a Service, applying options before filling in the remaining
// defaults so no default collaborator is constructed just to be replaced.
func New(opts ...Option) (*Service, error) {
	s := &Service{params: quality.DefaultParams()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("app")
	}
	if s.meter == nil {
		meter, err := pkgmetrics.NewManager()
		if err != nil {
			return nil, err
		}
		s.meter = meter
	}
	if s.fetcher == nil {
		s.fetcher = source.NewOWID()
	}
	if s.cleaner == nil {
		s.cleaner = dataset.NewCleaner()
	}
	if s.engine == nil {
		s.engine = metrics.NewEngine()
	}
	if s.reporter == nil {
		s.reporter = report.NewWriter()
	}
	return s, nil
}

// Metrics exposes the run's metric manager for end-of-run snapshots.
func (s *Service) Metrics() *pkgmetrics.Manager { return s.meter }

// Run executes fetch, clean, quality gates, metric computation and report
// generation. A FAIL from a fatal rule halts metric and report computation
// downstream of the failing table, but the consolidated check summary is
// still written so operators can see what tripped. The returned RunReport
// always carries every result produced before the halt.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.NewString()
	rep := &RunReport{RunID: runID}
	log := s.log
	log.Info(ctx, "pipeline run starting", logger.String("run_id", runID))

	raw, err := s.timedFetch(ctx)
	if err != nil {
		return rep, err
	}
	s.meter.RowsFetched(raw.Len())
	log.Info(ctx, "raw dataset fetched", logger.Int("rows", raw.Len()))

	evaluator := quality.NewEvaluator([]*table.Table{raw}, quality.WithRunDate(s.runDate))
	specs := s.rules
	if specs == nil {
		specs = quality.DefaultRuleSet(raw.Name(), s.params)
	}
	rawRules, cleanedRules, metricRules := splitRules(specs)

	gateErr := s.runChecks(ctx, evaluator, rawRules, rep)
	if gateErr != nil {
		return s.finish(ctx, rep, nil, gateErr)
	}

	ds, err := s.timedClean(ctx, raw)
	if err != nil {
		return rep, err
	}
	cleaned := ds.Table()
	evaluator.AddTable(cleaned)

	gateErr = s.runChecks(ctx, evaluator, cleanedRules, rep)
	if gateErr != nil {
		return s.finish(ctx, rep, []*table.Table{cleaned}, gateErr)
	}

	result, err := s.timedMetrics(ctx, ds)
	if err != nil {
		return rep, err
	}
	rep.Warnings = result.Warnings
	for _, w := range result.Warnings {
		s.meter.PopulationFallback()
		log.Warn(ctx, "population fallback applied",
			logger.String("country", w.Country), logger.String("reason", w.Reason))
	}
	s.meter.MetricRows(len(result.Rows))

	incidence := metrics.IncidenceTable(result.Rows)
	growth := metrics.GrowthTable(result.Rows)
	evaluator.AddTable(incidence)
	evaluator.AddTable(growth)

	gateErr = s.runMetricChecks(ctx, evaluator, metricRules, rep)

	tables := []*table.Table{cleaned, incidence, growth}
	summary := report.Summary(runID, time.Now().UTC(), ds, result.Rows)
	if gateErr != nil {
		return s.finish(ctx, rep, tables, gateErr)
	}
	return s.finishFull(ctx, rep, tables, summary, strings.Join(ds.Countries(), "_"))
}

func (s *Service) timedFetch(ctx context.Context) (*table.Table, error) {
	start := time.Now()
	raw, err := s.fetcher.Fetch(ctx)
	s.meter.ObserveStage(stageFetch, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return raw, nil
}

func (s *Service) timedClean(ctx context.Context, raw *table.Table) (*dataset.Dataset, error) {
	start := time.Now()
	ds, stats, err := s.cleaner.Clean(ctx, raw)
	s.meter.ObserveStage(stageClean, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}

	s.meter.RowsKept(stats.RowsKept)
	s.meter.RowsDropped("off_country", stats.DroppedCountry)
	s.meter.RowsDropped("bad_date", stats.DroppedBadDate)
	s.meter.RowsDropped("out_of_range", stats.DroppedOutOfRange)
	s.meter.ValuesImputed(dataset.ColNewCases, stats.ImputedNewCases)
	s.meter.ValuesImputed(dataset.ColNewDeaths, stats.ImputedNewDeaths)
	s.meter.DuplicatesMerged(stats.DuplicatesMerged)

	s.log.Info(ctx, "dataset cleaned",
		logger.Int("rows_in", stats.RowsIn),
		logger.Int("rows_kept", stats.RowsKept),
		logger.Int("duplicates_merged", stats.DuplicatesMerged),
		logger.Int("imputed_new_cases", stats.ImputedNewCases),
		logger.Int("imputed_new_deaths", stats.ImputedNewDeaths))
	return ds, nil
}

// timedMetrics computes metric rows per country concurrently and stitches
// them back together in dataset order.
func (s *Service) timedMetrics(ctx context.Context, ds *dataset.Dataset) (*metrics.Result, error) {
	start := time.Now()
	defer func() { s.meter.ObserveStage(stageMetrics, time.Since(start)) }()

	partials := make([]*metrics.Result, len(ds.Series))
	errs := make([]error, len(ds.Series))

	var wg sync.WaitGroup
	for i := range ds.Series {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			partials[i], errs[i] = s.engine.ComputeSeries(ctx, ds.Series[i])
		}(i)
	}
	wg.Wait()

	out := &metrics.Result{}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("metrics for %s: %w", ds.Series[i].Country, err)
		}
		out.Rows = append(out.Rows, partials[i].Rows...)
		out.Warnings = append(out.Warnings, partials[i].Warnings...)
	}
	return out, nil
}

// runChecks evaluates rules serially and records results. The returned error
// is the quality gate or a rule-resolution failure; either halts the run.
func (s *Service) runChecks(ctx context.Context, ev *quality.Evaluator, specs []quality.RuleSpec, rep *RunReport) error {
	if len(specs) == 0 {
		return nil
	}
	start := time.Now()
	results, err := ev.Run(ctx, specs)
	s.meter.ObserveStage(stageChecks, time.Since(start))

	s.record(ctx, results, rep)
	return err
}

// runMetricChecks fans rules out concurrently. Each rule reads independent
// state so the evaluator needs no locking once its tables are registered.
func (s *Service) runMetricChecks(ctx context.Context, ev *quality.Evaluator, specs []quality.RuleSpec, rep *RunReport) error {
	if len(specs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { s.meter.ObserveStage(stageChecks, time.Since(start)) }()

	results := make([]quality.CheckResult, len(specs))
	errs := make([]error, len(specs))
	var wg sync.WaitGroup
	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ev.Evaluate(ctx, specs[i])
		}(i)
	}
	wg.Wait()

	var failed []string
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("rule %s: %w", specs[i].Name, err)
		}
		if results[i].Status == quality.StatusFail {
			failed = append(failed, specs[i].Name)
		}
	}
	s.record(ctx, results, rep)
	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", quality.ErrQualityGate, failed)
	}
	return nil
}

func (s *Service) record(ctx context.Context, results []quality.CheckResult, rep *RunReport) {
	for _, r := range results {
		s.meter.CheckEvaluated(string(r.Status))
		fields := []logger.Field{
			logger.String("rule", r.RuleName),
			logger.String("table", r.Target),
			logger.String("status", string(r.Status)),
			logger.Int("rows_affected", r.RowsAffected),
		}
		switch r.Status {
		case quality.StatusFail:
			s.log.Error(ctx, "quality check failed", fields...)
		case quality.StatusWarn:
			s.log.Warn(ctx, "quality check warned", fields...)
		default:
			s.log.Debug(ctx, "quality check passed", fields...)
		}
	}
	rep.Results = append(rep.Results, results...)
}

// finish writes whatever artifacts exist after a halt, then surfaces the
// gate error. The check summary always goes out.
func (s *Service) finish(ctx context.Context, rep *RunReport, tables []*table.Table, gateErr error) (*RunReport, error) {
	rep.Halted = true
	s.log.Error(ctx, "pipeline halted by quality gate", logger.Error(gateErr))

	start := time.Now()
	defer func() { s.meter.ObserveStage(stageReport, time.Since(start)) }()

	out := append(tables, quality.ResultsTable(rep.Results))
	for _, t := range out {
		path, err := s.reporter.WriteCSV(t)
		if err != nil {
			s.log.Error(ctx, "partial report write failed", logger.Error(err))
			continue
		}
		rep.Paths = append(rep.Paths, path)
	}
	return rep, gateErr
}

// finishFull writes the CSV extracts and the consolidated workbook.
func (s *Service) finishFull(ctx context.Context, rep *RunReport, tables []*table.Table, summary *table.Table, tag string) (*RunReport, error) {
	start := time.Now()
	defer func() { s.meter.ObserveStage(stageReport, time.Since(start)) }()

	checks := quality.ResultsTable(rep.Results)
	all := append(tables, checks)

	if !s.skipCSV {
		for _, t := range all {
			path, err := s.reporter.WriteCSV(t)
			if err != nil {
				return rep, err
			}
			rep.Paths = append(rep.Paths, path)
		}
	}

	workbook := append(all, summary)
	path, err := s.reporter.WriteWorkbook(tag, workbook)
	if err != nil {
		return rep, err
	}
	rep.Paths = append(rep.Paths, path)

	s.log.Info(ctx, "pipeline run complete",
		logger.String("run_id", rep.RunID),
		logger.Int("checks", len(rep.Results)),
		logger.Int("artifacts", len(rep.Paths)))
	return rep, nil
}

// splitRules partitions the rule set by pipeline stage so each gate runs as
// soon as its target table exists.
func splitRules(specs []quality.RuleSpec) (raw, cleaned, metric []quality.RuleSpec) {
	for _, spec := range specs {
		switch spec.Target {
		case dataset.CleanedTableName:
			cleaned = append(cleaned, spec)
		case metrics.IncidenceTableName, metrics.GrowthTableName:
			metric = append(metric, spec)
		default:
			raw = append(raw, spec)
		}
	}
	return raw, cleaned, metric
}
