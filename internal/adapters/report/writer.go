// Package report persists pipeline outputs: timestamped CSV extracts per
// table and a consolidated Excel workbook with an executive summary sheet.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

const (
	timestampLayout = "20060102_150405"
	workbookPrefix  = "reporte_covid"
)

// Writer renders tables to files under a single output directory. Every
// artifact from one run shares the same timestamp suffix.
type Writer struct {
	outDir string
	now    func() time.Time
}

// Option applies a configuration option to the writer.
type Option func(*Writer)

// WithOutputDir sets the directory artifacts are written into.
func WithOutputDir(dir string) Option {
	return func(w *Writer) {
		if dir != "" {
			w.outDir = dir
		}
	}
}

// WithClock replaces the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWriter builds a writer targeting the current directory by default.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		outDir: ".",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteCSV writes one table as <name>_<timestamp>.csv and returns the path.
func (w *Writer) WriteCSV(t *table.Table) (string, error) {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	name := fmt.Sprintf("%s_%s.csv", t.Name(), w.now().Format(timestampLayout))
	path := filepath.Join(w.outDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Columns()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	record := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		for j, c := range row {
			record[j] = c.Text()
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return path, nil
}
