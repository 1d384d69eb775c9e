package dataset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// Default cleaning configuration.
var (
	defaultCountries = []string{"Ecuador", "Spain"}
	defaultFrom      = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultTo        = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
)

// CleanStats summarizes what the cleaner did to the raw table. Dropped rows
// are recovered locally, never fatal.
type CleanStats struct {
	RowsIn            int
	RowsKept          int
	DroppedCountry    int
	DroppedBadDate    int
	DroppedOutOfRange int
	DuplicatesMerged  int
	ImputedNewCases   int
	ImputedNewDeaths  int
}

// Cleaner reduces a raw heterogeneous table to the canonical per-country
// time series with validated types.
type Cleaner struct {
	countries []string
	from, to  time.Time
}

// Option applies a configuration option to the Cleaner.
type Option func(*Cleaner)

// WithCountries sets the target country set. Matching is case-sensitive and
// exact; the given order becomes the dataset's country order.
func WithCountries(countries []string) Option {
	return func(c *Cleaner) {
		if len(countries) > 0 {
			c.countries = append([]string(nil), countries...)
		}
	}
}

// WithDateRange restricts observations to the inclusive [from, to] window.
func WithDateRange(from, to time.Time) Option {
	return func(c *Cleaner) {
		if !from.IsZero() && !to.IsZero() && !to.Before(from) {
			c.from, c.to = from, to
		}
	}
}

// NewCleaner builds a Cleaner with default configuration.
func NewCleaner(opts ...Option) *Cleaner {
	c := &Cleaner{
		countries: defaultCountries,
		from:      defaultFrom,
		to:        defaultTo,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean projects the raw table onto a Dataset. The raw table must carry at
// least the country and date columns; every other column is optional.
// Rows with unparseable dates are dropped and counted, never fatal. Missing
// new_cases/new_deaths are imputed to zero — "no report means zero new
// events", a documented source of undercount bias that downstream metrics
// depend on and must not be changed silently.
func (c *Cleaner) Clean(ctx context.Context, raw *table.Table) (*Dataset, CleanStats, error) {
	stats := CleanStats{RowsIn: raw.Len()}

	for _, col := range []string{ColCountry, ColDate} {
		if !raw.HasColumn(col) {
			return nil, stats, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	targets := make(map[string]bool, len(c.countries))
	for _, name := range c.countries {
		targets[name] = true
	}

	perCountry := make(map[string][]Observation, len(c.countries))
	for i := 0; i < raw.Len(); i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, stats, ctx.Err()
		}

		countryCell, _ := raw.Cell(i, ColCountry)
		country := countryCell.Text()
		if !targets[country] {
			stats.DroppedCountry++
			continue
		}

		dateCell, _ := raw.Cell(i, ColDate)
		date, ok := dateCell.AsTime()
		if !ok {
			stats.DroppedBadDate++
			continue
		}
		if date.Before(c.from) || date.After(c.to) {
			stats.DroppedOutOfRange++
			continue
		}

		obs := Observation{Country: country, Date: date}

		obs.NewCases, ok = numericAt(raw, i, ColNewCases)
		if !ok {
			stats.ImputedNewCases++
		}
		obs.NewDeaths, ok = numericAt(raw, i, ColNewDeaths)
		if !ok {
			stats.ImputedNewDeaths++
		}
		obs.TotalCases, obs.HasTotalCases = numericAt(raw, i, ColTotalCases)
		obs.TotalDeaths, obs.HasTotalDeaths = numericAt(raw, i, ColTotalDeaths)
		obs.Population, obs.HasPopulation = numericAt(raw, i, ColPopulation)

		perCountry[country] = append(perCountry[country], obs)
	}

	ds := &Dataset{}
	for _, country := range c.countries {
		obs := perCountry[country]
		if len(obs) == 0 {
			continue
		}
		// Stable sort keeps raw input order among equal dates, so the
		// keep-last duplicate strategy takes the most recent revision.
		sort.SliceStable(obs, func(a, b int) bool { return obs[a].Date.Before(obs[b].Date) })

		deduped := obs[:0]
		for _, o := range obs {
			if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(o.Date) {
				deduped[n-1] = o
				stats.DuplicatesMerged++
				continue
			}
			deduped = append(deduped, o)
		}
		stats.RowsKept += len(deduped)
		ds.Series = append(ds.Series, TimeSeries{Country: country, Obs: deduped})
	}

	return ds, stats, nil
}

// numericAt reads a coerced numeric value; ok is false when the cell is
// absent, null or not numeric. Coercion failures are treated as missing.
func numericAt(t *table.Table, row int, col string) (float64, bool) {
	if !t.HasColumn(col) {
		return 0, false
	}
	cell, _ := t.Cell(row, col)
	return cell.AsNumber()
}
