package metrics_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func seriesOf(country string, population float64, cases ...float64) dataset.TimeSeries {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	s := dataset.TimeSeries{Country: country}
	for i, c := range cases {
		s.Obs = append(s.Obs, dataset.Observation{
			Country:       country,
			Date:          start.AddDate(0, 0, i),
			NewCases:      c,
			Population:    population,
			HasPopulation: population != 0,
		})
	}
	return s
}

func TestEngineRollingWindow(t *testing.T) {
	Convey("Given a constant series that jumps on day 8", t, func() {
		cases := []float64{10, 10, 10, 10, 10, 10, 10, 20, 10, 10, 10, 10, 10, 10}
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{seriesOf("Ecuador", 1_000_000, cases...)}}
		engine := metrics.NewEngine()

		Convey("When computing metrics", func() {
			res, err := engine.Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			So(res.Rows, ShouldHaveLength, 14)

			Convey("Then the first row uses a window of one", func() {
				So(res.Rows[0].Cases7d, ShouldEqual, 10)
				So(res.Rows[0].Incidence7d, ShouldEqual, 1.0)
			})

			Convey("And day 7 carries the full week", func() {
				So(res.Rows[6].Cases7d, ShouldEqual, 70)
				So(res.Rows[6].Incidence7d, ShouldEqual, 7.0)
			})

			Convey("And day 8 rolls the jump in", func() {
				So(res.Rows[7].Cases7d, ShouldEqual, 80)
			})

			Convey("And day 14 compares two full disjoint weeks", func() {
				row := res.Rows[13]
				So(row.CurrentWeek, ShouldEqual, 80)
				So(row.PreviousWeek, ShouldEqual, 70)
				So(row.GrowthFactor7d, ShouldAlmostEqual, 1.142857, 0.000001)
			})

			Convey("And every factor stays within the clamp", func() {
				for _, row := range res.Rows {
					So(row.GrowthFactor7d, ShouldBeGreaterThanOrEqualTo, 0)
					So(row.GrowthFactor7d, ShouldBeLessThanOrEqualTo, metrics.GrowthFromZeroSentinel)
				}
			})
		})
	})
}

func TestEngineGrowthDefaults(t *testing.T) {
	Convey("Given a series shorter than eight rows", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 1_000_000, 1, 2, 3, 4, 5, 6, 7),
		}}

		Convey("Then every growth factor defaults to stability", func() {
			res, err := metrics.NewEngine().Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			for _, row := range res.Rows {
				So(row.GrowthFactor7d, ShouldEqual, 1.0)
			}
		})
	})

	Convey("Given growth from a zero baseline", t, func() {
		// Seven quiet rows, then an outbreak.
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 1_000_000, 0, 0, 0, 0, 0, 0, 0, 50),
		}}

		Convey("Then the sentinel replaces the undefined ratio", func() {
			res, err := metrics.NewEngine().Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			last := res.Rows[7]
			So(last.CurrentWeek, ShouldEqual, 50)
			So(last.PreviousWeek, ShouldEqual, 0)
			So(last.GrowthFactor7d, ShouldEqual, metrics.GrowthFromZeroSentinel)
		})
	})

	Convey("Given two all-zero weeks", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 1_000_000, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		}}

		Convey("Then zero over zero is treated as stable, not NaN", func() {
			res, err := metrics.NewEngine().Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			for _, row := range res.Rows {
				So(row.GrowthFactor7d, ShouldEqual, 1.0)
			}
		})
	})

	Convey("Given negative revision rows", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 1_000_000, 5, -20, 1),
		}}

		Convey("Then the rolling sum is floored at zero", func() {
			res, err := metrics.NewEngine().Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			So(res.Rows[1].Cases7d, ShouldEqual, 0)
			So(res.Rows[1].Incidence7d, ShouldEqual, 0)
			for _, row := range res.Rows {
				So(row.Cases7d, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})
	})
}

func TestEnginePopulation(t *testing.T) {
	Convey("Given a series with no usable population", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Atlantis", 0, 10, 10),
		}}

		Convey("When computing metrics", func() {
			res, err := metrics.NewEngine().Compute(context.Background(), ds)
			So(err, ShouldBeNil)

			Convey("Then the fallback population is used and warned about", func() {
				So(res.Warnings, ShouldHaveLength, 1)
				So(res.Warnings[0].Country, ShouldEqual, "Atlantis")
				So(res.Rows[0].Incidence7d, ShouldEqual, 1.0) // 10 / 1e6 * 1e5
			})
		})
	})

	Convey("Given a population that changes over time", t, func() {
		s := seriesOf("Ecuador", 1_000_000, 10, 10)
		s.Obs[1].Population = 2_000_000

		Convey("Then the most recent value wins", func() {
			res, err := metrics.NewEngine().Compute(context.Background(),
				&dataset.Dataset{Series: []dataset.TimeSeries{s}})
			So(err, ShouldBeNil)
			So(res.Warnings, ShouldBeEmpty)
			So(res.Rows[0].Incidence7d, ShouldEqual, 0.5) // 10 / 2e6 * 1e5
		})
	})
}

func TestEnginePreconditions(t *testing.T) {
	Convey("Given an unsorted series", t, func() {
		s := seriesOf("Ecuador", 1_000_000, 1, 2, 3)
		s.Obs[0], s.Obs[2] = s.Obs[2], s.Obs[0]

		Convey("Then the engine fails fast instead of computing garbage", func() {
			_, err := metrics.NewEngine().Compute(context.Background(),
				&dataset.Dataset{Series: []dataset.TimeSeries{s}})
			So(errors.Is(err, metrics.ErrUnsortedInput), ShouldBeTrue)
		})
	})

	Convey("Given a series with a duplicated date", t, func() {
		s := seriesOf("Ecuador", 1_000_000, 1, 2)
		s.Obs[1].Date = s.Obs[0].Date

		Convey("Then the strictness check rejects it too", func() {
			_, err := metrics.NewEngine().Compute(context.Background(),
				&dataset.Dataset{Series: []dataset.TimeSeries{s}})
			So(errors.Is(err, metrics.ErrUnsortedInput), ShouldBeTrue)
		})
	})
}

func TestEngineDeterminism(t *testing.T) {
	Convey("Given any cleaned input", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 17_000_000, 3, 9, 4, 0, 12, 7, 7, 1, 5),
			seriesOf("Spain", 47_000_000, 100, 90, 80, 120, 110, 95, 130, 140),
		}}
		engine := metrics.NewEngine()

		Convey("Then re-running yields bit-identical output", func() {
			a, err := engine.Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			b, err := engine.Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			So(reflect.DeepEqual(a, b), ShouldBeTrue)
		})

		Convey("And rows concatenate in dataset country order", func() {
			res, err := engine.Compute(context.Background(), ds)
			So(err, ShouldBeNil)
			So(res.Rows[0].Country, ShouldEqual, "Ecuador")
			So(res.Rows[len(res.Rows)-1].Country, ShouldEqual, "Spain")
		})
	})
}

func TestMetricTables(t *testing.T) {
	Convey("Given computed metric rows", t, func() {
		ds := &dataset.Dataset{Series: []dataset.TimeSeries{
			seriesOf("Ecuador", 1_000_000, 10, 20, 30, 40, 50, 60, 70, 80),
		}}
		res, err := metrics.NewEngine().Compute(context.Background(), ds)
		So(err, ShouldBeNil)

		Convey("When projecting the export tables", func() {
			inc := metrics.IncidenceTable(res.Rows)
			growth := metrics.GrowthTable(res.Rows)

			Convey("Then both keep one row per metric row", func() {
				So(inc.Name(), ShouldEqual, metrics.IncidenceTableName)
				So(inc.Len(), ShouldEqual, len(res.Rows))
				So(growth.Name(), ShouldEqual, metrics.GrowthTableName)
				So(growth.Len(), ShouldEqual, len(res.Rows))
			})

			Convey("And the incidence identity holds in the table", func() {
				for i := 0; i < inc.Len(); i++ {
					c, _ := inc.Cell(i, metrics.ColCasos7d)
					v, _ := inc.Cell(i, metrics.ColIncidencia7d)
					cases, _ := c.AsNumber()
					incidence, _ := v.AsNumber()
					So(incidence, ShouldAlmostEqual, cases/1_000_000*100_000, 1e-9)
				}
			})
		})
	})
}
