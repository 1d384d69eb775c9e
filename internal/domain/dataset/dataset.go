// Package dataset defines the cleaned observation model and the cleaner
// that projects the raw OWID table onto it.
package dataset

import (
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// Column names of the canonical cleaned table.
const (
	ColCountry     = "country"
	ColDate        = "date"
	ColNewCases    = "new_cases"
	ColTotalCases  = "total_cases"
	ColNewDeaths   = "new_deaths"
	ColTotalDeaths = "total_deaths"
	ColPopulation  = "population"
)

// CleanedTableName identifies the cleaned table as a check target.
const CleanedTableName = "datos_procesados"

// Observation is one (country, date) row of the cleaned dataset. Missing
// new_cases/new_deaths have already been imputed to zero by the cleaner;
// the remaining optional columns carry explicit presence markers.
type Observation struct {
	Country     string
	Date        time.Time
	NewCases    float64
	NewDeaths   float64
	TotalCases  float64
	TotalDeaths float64
	Population  float64

	HasTotalCases  bool
	HasTotalDeaths bool
	HasPopulation  bool
}

// TimeSeries is the ordered run of observations for one country. Dates are
// strictly increasing; gaps are allowed and never backfilled.
type TimeSeries struct {
	Country string
	Obs     []Observation
}

// Len returns the number of observations.
func (s TimeSeries) Len() int { return len(s.Obs) }

// Dataset is the cleaned output: one series per country, in the configured
// country order. The ordering is what makes downstream concatenation
// deterministic.
type Dataset struct {
	Series []TimeSeries
}

// Countries returns the country order of the dataset.
func (d *Dataset) Countries() []string {
	out := make([]string, len(d.Series))
	for i, s := range d.Series {
		out[i] = s.Country
	}
	return out
}

// Rows returns the total observation count across all series.
func (d *Dataset) Rows() int {
	n := 0
	for _, s := range d.Series {
		n += len(s.Obs)
	}
	return n
}

// Table projects the dataset onto the canonical cleaned table, suitable for
// quality checks and report serialization. Missing optional values render
// as null cells.
func (d *Dataset) Table() *table.Table {
	t := table.New(CleanedTableName, []string{
		ColCountry, ColDate, ColNewCases, ColTotalCases,
		ColNewDeaths, ColTotalDeaths, ColPopulation,
	})
	for _, s := range d.Series {
		for _, o := range s.Obs {
			totalCases := table.Null()
			if o.HasTotalCases {
				totalCases = table.Number(o.TotalCases)
			}
			totalDeaths := table.Null()
			if o.HasTotalDeaths {
				totalDeaths = table.Number(o.TotalDeaths)
			}
			population := table.Null()
			if o.HasPopulation {
				population = table.Number(o.Population)
			}
			// Arity is fixed here, so the error cannot trigger.
			_ = t.AppendRow(
				table.String(o.Country),
				table.Date(o.Date),
				table.Number(o.NewCases),
				totalCases,
				table.Number(o.NewDeaths),
				totalDeaths,
				population,
			)
		}
	}
	return t
}
