// Package quality evaluates declarative data-quality rules against tables
// and produces the consolidated check-result records. Adding a rule is a
// data-only change: the evaluator dispatches on a closed set of predicate
// kinds, each carrying its own parameters.
package quality

import (
	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
)

// Kind enumerates the supported predicate kinds.
type Kind int

const (
	KindNoFutureDates Kind = iota
	KindRequiredColumns
	KindUniqueness
	KindPositivePopulation
	KindBoundedRange
	KindCompleteness
	KindDistributionDiversity
	KindTemporalOverlap
)

// Severity decides whether a violated rule is fatal to the pipeline.
type Severity int

const (
	// SeverityWarn records the violation and continues unconditionally.
	SeverityWarn Severity = iota
	// SeverityError signals a fatal input condition to the caller.
	SeverityError
)

// Status of one evaluated rule.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// RuleSpec describes one check declaratively. Only the fields relevant to
// the Kind are read; the zero value of the rest is ignored.
type RuleSpec struct {
	Name     string
	Target   string
	Kind     Kind
	Severity Severity

	// Column names the single column a columnar predicate inspects;
	// Columns is the critical set for required-columns; KeyColumns the
	// uniqueness key.
	Column     string
	Columns    []string
	KeyColumns []string

	// Min and Max bound bounded-range inclusively. Values at or above
	// IgnoreAbove (when > 0) are excluded from analysis, which keeps the
	// growth-from-zero sentinel out of range statistics.
	Min, Max    float64
	IgnoreAbove float64

	// Threshold is the minimum acceptable fraction for completeness and
	// temporal overlap, and the maximum tolerated null fraction for
	// required-columns.
	Threshold float64

	// Distribution-diversity parameters: rows are classified into
	// decline/stable/growth around 1.0 and every bucket must reach
	// MinShare of the analyzed rows.
	StableLow, StableHigh float64
	MinShare              float64

	// Temporal-overlap parameters: the second table and the date/group
	// columns compared between the two.
	SecondTarget     string
	DateColumn       string
	SecondDateColumn string
	GroupColumn      string
}

// CheckResult is the outcome of one rule, one per rule per run.
type CheckResult struct {
	RuleName     string
	Target       string
	Status       Status
	RowsAffected int
	TotalRows    int
	Notes        string
}

// Params gathers the configurable thresholds of the default rule set.
type Params struct {
	NullFraction    float64 // tolerated null fraction in critical columns
	Completeness    float64 // minimum non-null fraction
	MinBucketShare  float64 // minimum share per trend bucket
	OverlapFraction float64 // minimum shared date fraction between metrics
	IncidenceMax    float64 // upper bound of plausible incidence
	GrowthMax       float64 // upper bound of plausible growth factor
}

// DefaultParams returns the thresholds used by the published pipeline.
func DefaultParams() Params {
	return Params{
		NullFraction:    0.05,
		Completeness:    0.95,
		MinBucketShare:  0.05,
		OverlapFraction: 0.80,
		IncidenceMax:    2000,
		GrowthMax:       50,
	}
}

// DefaultRuleSet mirrors the checks of the published pipeline run: two on
// the raw dataset, two on the cleaned table, and the rest on the metric
// tables. Only the uniqueness rule is fatal.
func DefaultRuleSet(rawTable string, p Params) []RuleSpec {
	return []RuleSpec{
		{
			Name:       "fechas_no_futuras",
			Target:     rawTable,
			Kind:       KindNoFutureDates,
			Severity:   SeverityWarn,
			DateColumn: dataset.ColDate,
		},
		{
			Name:      "columnas_clave_no_nulas",
			Target:    rawTable,
			Kind:      KindRequiredColumns,
			Severity:  SeverityWarn,
			Columns:   []string{dataset.ColCountry, dataset.ColDate, dataset.ColPopulation},
			Threshold: p.NullFraction,
		},
		{
			Name:       "unicidad_pais_fecha",
			Target:     dataset.CleanedTableName,
			Kind:       KindUniqueness,
			Severity:   SeverityError,
			KeyColumns: []string{dataset.ColCountry, dataset.ColDate},
		},
		{
			Name:     "poblacion_positiva",
			Target:   dataset.CleanedTableName,
			Kind:     KindPositivePopulation,
			Severity: SeverityWarn,
			Column:   dataset.ColPopulation,
		},
		{
			Name:     "rango_incidencia_7d",
			Target:   metrics.IncidenceTableName,
			Kind:     KindBoundedRange,
			Severity: SeverityWarn,
			Column:   metrics.ColIncidencia7d,
			Min:      0,
			Max:      p.IncidenceMax,
		},
		{
			Name:      "completitud_incidencia_7d",
			Target:    metrics.IncidenceTableName,
			Kind:      KindCompleteness,
			Severity:  SeverityWarn,
			Column:    metrics.ColIncidencia7d,
			Threshold: p.Completeness,
		},
		{
			Name:        "rango_factor_crec_7d",
			Target:      metrics.GrowthTableName,
			Kind:        KindBoundedRange,
			Severity:    SeverityWarn,
			Column:      metrics.ColFactorCrec7d,
			Min:         0,
			Max:         p.GrowthMax,
			IgnoreAbove: metrics.GrowthFromZeroSentinel,
		},
		{
			Name:        "distribucion_tendencias_7d",
			Target:      metrics.GrowthTableName,
			Kind:        KindDistributionDiversity,
			Severity:    SeverityWarn,
			Column:      metrics.ColFactorCrec7d,
			StableLow:   0.9,
			StableHigh:  1.1,
			MinShare:    p.MinBucketShare,
			IgnoreAbove: metrics.GrowthFromZeroSentinel,
		},
		{
			Name:             "consistencia_temporal_metricas",
			Target:           metrics.IncidenceTableName,
			Kind:             KindTemporalOverlap,
			Severity:         SeverityWarn,
			Threshold:        p.OverlapFraction,
			SecondTarget:     metrics.GrowthTableName,
			DateColumn:       metrics.ColFecha,
			SecondDateColumn: metrics.ColSemanaFin,
			GroupColumn:      metrics.ColPais,
		},
	}
}
