package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// WriteWorkbook writes every table to its own sheet of a single workbook
// named reporte_covid_<tag>_<timestamp>.xlsx, where tag names the covered
// countries. Sheet order follows the slice order and each sheet freezes its
// header row. Returns the path of the file.
func (w *Writer) WriteWorkbook(tag string, tables []*table.Table) (string, error) {
	if len(tables) == 0 {
		return "", fmt.Errorf("%w: no tables to export", ErrWrite)
	}
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for _, t := range tables {
		if err := writeSheet(f, t); err != nil {
			return "", err
		}
	}
	// excelize seeds every workbook with Sheet1.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	stem := workbookPrefix
	if tag != "" {
		stem += "_" + tag
	}
	name := fmt.Sprintf("%s_%s.xlsx", stem, w.now().Format(timestampLayout))
	path := filepath.Join(w.outDir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, t *table.Table) error {
	sheet := t.Name()
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("%w: sheet %s: %v", ErrWrite, sheet, err)
	}

	header := make([]interface{}, len(t.Columns()))
	for i, c := range t.Columns() {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%w: sheet %s: %v", ErrWrite, sheet, err)
	}

	row := make([]interface{}, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		for j, c := range t.Row(i) {
			row[j] = cellValue(c)
		}
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("%w: sheet %s: %v", ErrWrite, sheet, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// cellValue maps a table cell to the value excelize stores. Numbers stay
// numeric so spreadsheet formulas keep working; dates are rendered as text
// to match the CSV extracts.
func cellValue(c table.Cell) interface{} {
	switch c.Kind() {
	case table.KindNull:
		return nil
	case table.KindNumber:
		n, _ := c.AsNumber()
		return n
	default:
		return c.Text()
	}
}
