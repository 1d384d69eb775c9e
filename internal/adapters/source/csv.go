package source

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// headerAliases maps feed-specific column names onto the canonical ones the
// rest of the pipeline expects.
var headerAliases = map[string]string{
	"location": "country",
}

// DecodeCSV reads a CSV stream into a table named name. The first record is
// the header, with feed-specific column names mapped to canonical ones.
// Short records are padded with null cells and long records are truncated to
// the header width, so ragged exports still load. Empty fields become null
// cells; typing happens lazily at read time.
func DecodeCSV(name string, r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrDecode, err)
	}
	for i, col := range header {
		if canonical, ok := headerAliases[col]; ok {
			header[i] = canonical
		}
	}

	t := table.New(name, header)
	cells := make([]table.Cell, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		for i := range cells {
			if i < len(rec) {
				cells[i] = table.String(rec[i])
			} else {
				cells[i] = table.Null()
			}
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
