// Package chart renders measured and corrected EQE curves.
package chart

import (
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

// Default canvas size.
var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

// New builds a plot with one dashed measured and one solid corrected line
// per junction, sharing a colour.
func New(r *result.Set) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Luminescent coupling corrected EQE"
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "EQE"
	p.Y.Min = 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, name := range r.Names() {
		m, err := plotter.NewLine(xys(r.MeasuredCurve(i)))
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "measured curve of %s", name)
		}
		m.Color = plotutil.Color(i)
		m.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

		c, err := plotter.NewLine(xys(r.CorrectedCurve(i)))
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "corrected curve of %s", name)
		}
		c.Color = plotutil.Color(i)
		c.Width = vg.Points(1.5)

		p.Add(m, c)
		p.Legend.Add(name+" measured", m)
		p.Legend.Add(name+" corrected", c)
	}
	return p, nil
}

// RenderEQE saves the plot of r to path. The format follows the extension
// (.png, .svg, .pdf, ...).
func RenderEQE(r *result.Set, path string) error {
	p, err := New(r)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return pkgerrors.Wrapf(err, "failed to save chart to %s", path)
	}
	return nil
}

func xys(s spectral.Series) plotter.XYs {
	pts := make(plotter.XYs, s.Len())
	for i := range pts {
		pts[i].X = s.Grid().At(i)
		pts[i].Y = s.Value(i)
	}
	return pts
}
