// Package tabular reads and writes the wavelength-indexed tables the tool
// exchanges with the outside world: EQE curves, spectra and coupling
// matrices as CSV or XLSX.
package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Table is a numeric table with an optional header row.
type Table struct {
	Header []string
	Rows   [][]float64
}

// Column returns column i of every row.
func (t *Table) Column(i int) []float64 {
	out := make([]float64, len(t.Rows))
	for k, r := range t.Rows {
		out[k] = r[i]
	}
	return out
}

// Width is the number of columns.
func (t *Table) Width() int {
	if len(t.Rows) > 0 {
		return len(t.Rows[0])
	}
	return len(t.Header)
}

// Read loads a table from a .csv, .txt or .xlsx file. Lines starting with '#'
// are skipped in text files.
func Read(path string) (*Table, error) {
	if isXLSX(path) {
		return readXLSX(path)
	}

	fp, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer fp.Close()

	t, err := ReadCSV(fp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}

// ReadCSV parses comma-separated records. The first record is a header when
// its first cell is not a number.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return parseRecords(records)
}

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warnf("failed to close %s", path)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, pkgerrors.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read sheet %q of %s", sheets[0], path)
	}
	t, err := parseRecords(rows)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "sheet %q of %s", sheets[0], path)
	}
	return t, nil
}

func parseRecords(records [][]string) (*Table, error) {
	t := &Table{}
	for n, rec := range records {
		rec = trimTrailingEmpty(rec)
		if len(rec) == 0 {
			continue
		}
		if t.Header == nil && len(t.Rows) == 0 {
			if _, err := parseFloat(rec[0]); err != nil {
				t.Header = trimAll(rec)
				continue
			}
		}

		row := make([]float64, len(rec))
		for i, cell := range rec {
			v, err := parseFloat(cell)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "row %d, column %d", n+1, i+1)
			}
			row[i] = v
		}
		if len(t.Rows) > 0 && len(row) != len(t.Rows[0]) {
			return nil, pkgerrors.Errorf("row %d has %d columns, want %d", n+1, len(row), len(t.Rows[0]))
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, pkgerrors.New("no data rows")
	}
	if t.Header != nil && len(t.Header) != len(t.Rows[0]) {
		return nil, pkgerrors.Errorf("header has %d columns but rows have %d", len(t.Header), len(t.Rows[0]))
	}
	return t, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func trimTrailingEmpty(rec []string) []string {
	for len(rec) > 0 && strings.TrimSpace(rec[len(rec)-1]) == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, s := range rec {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
