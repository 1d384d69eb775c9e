package dataset_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/dataset"
	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
	. "github.com/smartystreets/goconvey/convey"
)

func rawTable(rows [][]string) *table.Table {
	t := table.New("raw", []string{
		"country", "date", "new_cases", "total_cases",
		"new_deaths", "total_deaths", "population",
	})
	for _, r := range rows {
		cells := make([]table.Cell, len(r))
		for i, v := range r {
			cells[i] = table.String(v)
		}
		if err := t.AppendRow(cells...); err != nil {
			panic(err)
		}
	}
	return t
}

func TestCleanerProjection(t *testing.T) {
	Convey("Given a raw table with mixed quality rows", t, func() {
		raw := rawTable([][]string{
			{"Ecuador", "2021-01-02", "10", "100", "1", "5", "17000000"},
			{"Ecuador", "2021-01-01", "5", "90", "0", "4", "17000000"},
			{"Peru", "2021-01-01", "50", "500", "2", "20", "33000000"},
			{"Spain", "2021-01-01", "x", "1000", "", "40", "47000000"},
			{"Ecuador", "not-a-date", "7", "", "", "", "17000000"},
			{"Spain", "2019-06-01", "3", "0", "0", "0", "47000000"},
		})
		cleaner := dataset.NewCleaner(
			dataset.WithCountries([]string{"Ecuador", "Spain"}),
			dataset.WithDateRange(
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
			),
		)

		Convey("When cleaning", func() {
			ds, stats, err := cleaner.Clean(context.Background(), raw)
			So(err, ShouldBeNil)

			Convey("Then off-target, unparseable and out-of-window rows are dropped", func() {
				So(stats.RowsIn, ShouldEqual, 6)
				So(stats.DroppedCountry, ShouldEqual, 1)
				So(stats.DroppedBadDate, ShouldEqual, 1)
				So(stats.DroppedOutOfRange, ShouldEqual, 1)
				So(stats.RowsKept, ShouldEqual, 3)
			})

			Convey("And coercion failures are imputed to zero", func() {
				So(stats.ImputedNewCases, ShouldEqual, 1)
				So(stats.ImputedNewDeaths, ShouldEqual, 1)
				spain := ds.Series[1]
				So(spain.Country, ShouldEqual, "Spain")
				So(spain.Obs[0].NewCases, ShouldEqual, 0)
				So(spain.Obs[0].NewDeaths, ShouldEqual, 0)
			})

			Convey("And each series is strictly increasing by date", func() {
				So(ds.Countries(), ShouldResemble, []string{"Ecuador", "Spain"})
				ec := ds.Series[0]
				So(ec.Len(), ShouldEqual, 2)
				So(ec.Obs[0].Date.Before(ec.Obs[1].Date), ShouldBeTrue)
				So(ec.Obs[0].NewCases, ShouldEqual, 5)
			})
		})
	})
}

func TestCleanerDuplicates(t *testing.T) {
	Convey("Given duplicated (country, date) rows", t, func() {
		raw := rawTable([][]string{
			{"Ecuador", "2021-01-01", "10", "", "", "", "17000000"},
			{"Ecuador", "2021-01-01", "12", "", "", "", "17000000"},
			{"Ecuador", "2021-01-02", "8", "", "", "", "17000000"},
		})
		cleaner := dataset.NewCleaner(dataset.WithCountries([]string{"Ecuador"}))

		Convey("When cleaning", func() {
			ds, stats, err := cleaner.Clean(context.Background(), raw)
			So(err, ShouldBeNil)

			Convey("Then the last revision wins and the merge is counted", func() {
				So(stats.DuplicatesMerged, ShouldEqual, 1)
				ec := ds.Series[0]
				So(ec.Len(), ShouldEqual, 2)
				So(ec.Obs[0].NewCases, ShouldEqual, 12)
			})

			Convey("And (country, date) pairs are unique in the output", func() {
				seen := map[string]bool{}
				for _, s := range ds.Series {
					for _, o := range s.Obs {
						key := o.Country + o.Date.Format("2006-01-02")
						So(seen[key], ShouldBeFalse)
						seen[key] = true
					}
				}
			})
		})
	})
}

func TestCleanerMissingColumns(t *testing.T) {
	Convey("Given a raw table without a date column", t, func() {
		raw := table.New("raw", []string{"country", "new_cases"})
		So(raw.AppendRow(table.String("Ecuador"), table.String("1")), ShouldBeNil)

		Convey("Then cleaning should fail with the sentinel", func() {
			_, _, err := dataset.NewCleaner().Clean(context.Background(), raw)
			So(errors.Is(err, dataset.ErrMissingColumn), ShouldBeTrue)
		})
	})

	Convey("Given a raw table missing only optional columns", t, func() {
		raw := table.New("raw", []string{"country", "date"})
		So(raw.AppendRow(table.String("Ecuador"), table.String("2021-01-01")), ShouldBeNil)

		Convey("Then cleaning should tolerate it and impute the numerics", func() {
			ds, stats, err := dataset.NewCleaner(dataset.WithCountries([]string{"Ecuador"})).
				Clean(context.Background(), raw)
			So(err, ShouldBeNil)
			So(stats.RowsKept, ShouldEqual, 1)
			obs := ds.Series[0].Obs[0]
			So(obs.NewCases, ShouldEqual, 0)
			So(obs.HasPopulation, ShouldBeFalse)
		})
	})
}

func TestDatasetTable(t *testing.T) {
	Convey("Given a cleaned dataset", t, func() {
		raw := rawTable([][]string{
			{"Ecuador", "2021-01-01", "5", "", "1", "", "17000000"},
		})
		ds, _, err := dataset.NewCleaner(dataset.WithCountries([]string{"Ecuador"})).
			Clean(context.Background(), raw)
		So(err, ShouldBeNil)

		Convey("When projecting it onto a table", func() {
			tbl := ds.Table()

			Convey("Then the canonical shape and nulls are preserved", func() {
				So(tbl.Name(), ShouldEqual, dataset.CleanedTableName)
				So(tbl.Len(), ShouldEqual, 1)

				c, _ := tbl.Cell(0, dataset.ColTotalCases)
				So(c.IsNull(), ShouldBeTrue)
				p, _ := tbl.Cell(0, dataset.ColPopulation)
				n, ok := p.AsNumber()
				So(ok, ShouldBeTrue)
				So(n, ShouldEqual, 17000000)
			})
		})
	})
}
