package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/charlie0129/lcqe/pkg/coupling"
	"github.com/charlie0129/lcqe/pkg/eqe"
	"github.com/charlie0129/lcqe/pkg/result"
)

// ReadEQE loads measured EQE: wavelength in nm in the first column, one
// column per junction, top junction first. Header cells after the first name
// the junctions.
func ReadEQE(path string) (*eqe.Set, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	return EQEFromTable(t)
}

// EQEFromTable converts a table already in memory.
func EQEFromTable(t *Table) (*eqe.Set, error) {
	if t.Width() < 2 {
		return nil, pkgerrors.New("an EQE table needs a wavelength column and at least one junction column")
	}

	var names []string
	if t.Header != nil {
		names = t.Header[1:]
	}
	curves := make([][]float64, t.Width()-1)
	for j := range curves {
		curves[j] = t.Column(j + 1)
	}
	return eqe.FromTable(t.Column(0), names, curves)
}

// ReadCoupling loads a square coupling matrix, one row per line, no header.
func ReadCoupling(path string) (*coupling.Matrix, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	return coupling.New(t.Rows)
}

// WriteEQE writes the corrected EQE of r as CSV.
func WriteEQE(w io.Writer, r *result.Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"wavelength_nm"}, r.Names()...)); err != nil {
		return err
	}
	for _, row := range r.Table() {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes r to path: an XLSX workbook with the corrected curves and
// a current summary sheet when path ends in .xlsx, CSV otherwise.
func WriteFile(path string, r *result.Set) error {
	if isXLSX(path) {
		return writeXLSX(path, r)
	}

	fp, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", path)
	}
	defer fp.Close()

	if err := WriteEQE(fp, r); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	return fp.Close()
}

const (
	correctedSheet = "corrected"
	currentsSheet  = "currents"
)

func writeXLSX(path string, r *result.Set) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warnf("failed to close %s", path)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), correctedSheet); err != nil {
		return pkgerrors.Wrap(err, "failed to name sheet")
	}
	header := append([]any{"wavelength_nm"}, toAny(r.Names())...)
	if err := f.SetSheetRow(correctedSheet, "A1", &header); err != nil {
		return pkgerrors.Wrap(err, "failed to write header")
	}
	for k, row := range r.Table() {
		cell, _ := excelize.CoordinatesToCellName(1, k+2)
		values := toAny(row)
		if err := f.SetSheetRow(correctedSheet, cell, &values); err != nil {
			return pkgerrors.Wrapf(err, "failed to write row %d", k+2)
		}
	}

	if _, err := f.NewSheet(currentsSheet); err != nil {
		return pkgerrors.Wrap(err, "failed to add sheet")
	}
	summary := []any{"junction", "measured_mA_cm2", "corrected_mA_cm2", "ratio", "limiting"}
	if err := f.SetSheetRow(currentsSheet, "A1", &summary); err != nil {
		return pkgerrors.Wrap(err, "failed to write header")
	}
	for i, m := range r.Mismatch() {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{m.Name, m.MeasuredCurrent, m.Current, m.Ratio, m.Limiting}
		if err := f.SetSheetRow(currentsSheet, cell, &values); err != nil {
			return pkgerrors.Wrapf(err, "failed to write row %d", i+2)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return pkgerrors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}

func toAny[T any](v []T) []any {
	out := make([]any, len(v))
	for i := range v {
		out[i] = v[i]
	}
	return out
}
