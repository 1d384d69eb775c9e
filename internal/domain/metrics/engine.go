// Package metrics computes the rolling-window epidemiological metrics:
// 7-day case sum, 7-day incidence per 100k population and 7-day growth
// factor. The engine is a pure function of its input; countries are
// independent, so callers may fan the work out per country.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

const (
	// DefaultWindow is the rolling window length in available rows, not
	// calendar days. Gaps in a series are never backfilled.
	DefaultWindow = 7

	// DefaultPopulationFallback substitutes a missing or non-positive
	// population. Using it degrades data quality and is surfaced as a
	// warning, not an error.
	DefaultPopulationFallback = 1_000_000

	// GrowthFromZeroSentinel stands in for "growth from a zero baseline"
	// and is also the upper clamp of the growth factor. The exact value is
	// a compatibility requirement of the published reports.
	GrowthFromZeroSentinel = 999.9

	// incidenceScale normalizes incidence per 100,000 inhabitants.
	incidenceScale = 100_000
)

// Exported metric table names and columns.
const (
	IncidenceTableName = "metrica_incidencia_7d"
	GrowthTableName    = "metrica_factor_crec_7d"

	ColFecha          = "fecha"
	ColPais           = "pais"
	ColCasos7d        = "casos_7d"
	ColIncidencia7d   = "incidencia_7d"
	ColSemanaFin      = "semana_fin"
	ColSemanaActual   = "casos_semana_actual"
	ColSemanaAnterior = "casos_semana_anterior"
	ColFactorCrec7d   = "factor_crec_7d"
)

// Row carries every derived value for one (country, date).
type Row struct {
	Country string
	Date    time.Time

	// Cases7d is the trailing 7-available-row sum of new cases, floored
	// at zero so revision rows cannot push it negative.
	Cases7d float64

	// Incidence7d = Cases7d / population * 100000.
	Incidence7d float64

	// CurrentWeek and PreviousWeek are the rolling sums feeding the
	// growth factor; PreviousWeek is the sum from 7 positions earlier.
	CurrentWeek  float64
	PreviousWeek float64

	// GrowthFactor7d is CurrentWeek/PreviousWeek clamped into
	// [0, GrowthFromZeroSentinel]; 1.0 when no prior week exists.
	GrowthFactor7d float64
}

// Warning flags a non-fatal data-quality degradation for one country.
type Warning struct {
	Country string
	Reason  string
}

// Result is the engine output for one input dataset.
type Result struct {
	Rows     []Row
	Warnings []Warning
}

// Engine computes metric rows from cleaned time series.
type Engine struct {
	window             int
	populationFallback float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWindow sets the rolling window length in rows.
func WithWindow(window int) Option {
	return func(e *Engine) {
		if window > 0 {
			e.window = window
		}
	}
}

// WithPopulationFallback sets the substitute population.
func WithPopulationFallback(population float64) Option {
	return func(e *Engine) {
		if population > 0 {
			e.populationFallback = population
		}
	}
}

// NewEngine builds an Engine with default configuration.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		window:             DefaultWindow,
		populationFallback: DefaultPopulationFallback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute derives metric rows for every series in the dataset. Series are
// processed independently and concatenated in dataset order, so the output
// is deterministic and re-running on the same input is bit-identical.
//
// The cleaner must have sorted each series; a non-strictly-increasing date
// axis is a caller bug and fails fast with ErrUnsortedInput.
func (e *Engine) Compute(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	out := &Result{}
	for _, series := range ds.Series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, warns, err := e.computeSeries(series)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, rows...)
		out.Warnings = append(out.Warnings, warns...)
	}
	return out, nil
}

// ComputeSeries derives metric rows for a single country. It is the unit of
// parallelism: callers may invoke it concurrently for different series as
// long as they concatenate results in input order.
func (e *Engine) ComputeSeries(ctx context.Context, series dataset.TimeSeries) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, warns, err := e.computeSeries(series)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, Warnings: warns}, nil
}

func (e *Engine) computeSeries(series dataset.TimeSeries) ([]Row, []Warning, error) {
	for i := 1; i < len(series.Obs); i++ {
		if !series.Obs[i-1].Date.Before(series.Obs[i].Date) {
			return nil, nil, fmt.Errorf("%w: %s at row %d", ErrUnsortedInput, series.Country, i)
		}
	}

	var warnings []Warning
	population, ok := resolvePopulation(series)
	if !ok {
		population = e.populationFallback
		warnings = append(warnings, Warning{
			Country: series.Country,
			Reason:  "population missing or non-positive; using fallback",
		})
	}

	rows := make([]Row, len(series.Obs))
	var windowSum float64
	for i, obs := range series.Obs {
		windowSum += obs.NewCases
		if i >= e.window {
			windowSum -= series.Obs[i-e.window].NewCases
		}

		cases7d := windowSum
		if cases7d < 0 {
			cases7d = 0
		}

		row := Row{
			Country:     series.Country,
			Date:        obs.Date,
			Cases7d:     cases7d,
			Incidence7d: cases7d / population * incidenceScale,
			CurrentWeek: cases7d,
		}

		if i < e.window {
			// No prior week exists; assume stability absent evidence.
			row.GrowthFactor7d = 1.0
		} else {
			prev := rows[i-e.window].Cases7d
			row.PreviousWeek = prev
			row.GrowthFactor7d = growthFactor(cases7d, prev)
		}
		rows[i] = row
	}
	return rows, warnings, nil
}

// resolvePopulation takes the most recent non-missing positive population.
func resolvePopulation(series dataset.TimeSeries) (float64, bool) {
	for i := len(series.Obs) - 1; i >= 0; i-- {
		obs := series.Obs[i]
		if obs.HasPopulation && obs.Population > 0 {
			return obs.Population, true
		}
	}
	return 0, false
}

// growthFactor applies the sentinel and clamping policy for current/prev.
func growthFactor(current, prev float64) float64 {
	if prev == 0 {
		if current > 0 {
			return GrowthFromZeroSentinel
		}
		return 1.0
	}
	f := current / prev
	if f < 0 {
		return 0
	}
	if f > GrowthFromZeroSentinel {
		return GrowthFromZeroSentinel
	}
	return f
}

// IncidenceTable projects the incidence metric onto its export table.
func IncidenceTable(rows []Row) *table.Table {
	t := table.New(IncidenceTableName, []string{ColFecha, ColPais, ColCasos7d, ColIncidencia7d})
	for _, r := range rows {
		_ = t.AppendRow(
			table.Date(r.Date),
			table.String(r.Country),
			table.Number(r.Cases7d),
			table.Number(r.Incidence7d),
		)
	}
	return t
}

// GrowthTable projects the growth-factor metric onto its export table.
func GrowthTable(rows []Row) *table.Table {
	t := table.New(GrowthTableName, []string{
		ColSemanaFin, ColPais, ColSemanaActual, ColSemanaAnterior, ColFactorCrec7d,
	})
	for _, r := range rows {
		_ = t.AppendRow(
			table.Date(r.Date),
			table.String(r.Country),
			table.Number(r.CurrentWeek),
			table.Number(r.PreviousWeek),
			table.Number(r.GrowthFactor7d),
		)
	}
	return t
}
