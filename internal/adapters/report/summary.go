package report

import (
	"math"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// SummaryTableName is the sheet holding per-country run statistics.
const SummaryTableName = "resumen_ejecutivo"

var summaryColumns = []string{
	"pais",
	"registros",
	"fecha_inicio",
	"fecha_fin",
	"casos_7d_max",
	"incidencia_7d_max",
	"incidencia_7d_promedio",
	"factor_crec_7d_max",
	"factor_crec_7d_promedio",
	"run_id",
	"generado",
}

type countryStats struct {
	rows        int
	first, last time.Time
	casesMax    float64
	incMax      float64
	incSum      float64
	incN        int
	facMax      float64
	facSum      float64
	facN        int
}

// Summary condenses one run into a per-country statistics table. Growth
// factors at or above the growth-from-zero sentinel are excluded from the
// max and mean so a single explosive restart does not drown the signal.
func Summary(runID string, generatedAt time.Time, ds *dataset.Dataset, rows []metrics.Row) *table.Table {
	stats := make(map[string]*countryStats)
	order := ds.Countries()
	for _, c := range order {
		stats[c] = &countryStats{incMax: math.Inf(-1), facMax: math.Inf(-1)}
	}

	for _, r := range rows {
		s, ok := stats[r.Country]
		if !ok {
			continue
		}
		s.rows++
		if s.rows == 1 || r.Date.Before(s.first) {
			s.first = r.Date
		}
		if r.Date.After(s.last) {
			s.last = r.Date
		}
		if r.Cases7d > s.casesMax {
			s.casesMax = r.Cases7d
		}
		if r.Incidence7d > s.incMax {
			s.incMax = r.Incidence7d
		}
		s.incSum += r.Incidence7d
		s.incN++
		if r.GrowthFactor7d < metrics.GrowthFromZeroSentinel {
			if r.GrowthFactor7d > s.facMax {
				s.facMax = r.GrowthFactor7d
			}
			s.facSum += r.GrowthFactor7d
			s.facN++
		}
	}

	t := table.New(SummaryTableName, summaryColumns)
	for _, c := range order {
		s := stats[c]
		t.AppendRow(
			table.String(c),
			table.Number(float64(s.rows)),
			dateOrNull(s.rows, s.first),
			dateOrNull(s.rows, s.last),
			meanOrNull(s.rows, s.casesMax),
			meanOrNull(s.incN, s.incMax),
			meanOrNull(s.incN, s.incSum/nonZero(s.incN)),
			meanOrNull(s.facN, s.facMax),
			meanOrNull(s.facN, s.facSum/nonZero(s.facN)),
			table.String(runID),
			table.Date(generatedAt),
		)
	}
	return t
}

func dateOrNull(n int, d time.Time) table.Cell {
	if n == 0 {
		return table.Null()
	}
	return table.Date(d)
}

func meanOrNull(n int, v float64) table.Cell {
	if n == 0 {
		return table.Null()
	}
	return table.Number(v)
}

func nonZero(n int) float64 {
	if n == 0 {
		return 1
	}
	return float64(n)
}
