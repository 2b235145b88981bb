package convergence

import (
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/RALE0/croptrain/pkg/errors"
)

// SavePlot renders the raw trajectory of every monitored metric with markers
// at the best epoch and the stop epoch. The output format follows the file
// extension (.png, .svg, .pdf). It fails when no epochs have been evaluated.
func (c *Controller) SavePlot(path string) error {
	if c.epochsSeen == 0 {
		return errors.NewUsageError("SavePlot", "no epochs have been evaluated")
	}

	p := plot.New()
	p.Title.Text = "Training convergence"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "metric value"
	p.Legend.Top = true

	yMin, yMax := math.Inf(1), math.Inf(-1)
	var series []interface{}
	for _, m := range c.metrics {
		pts := make(plotter.XYs, len(m.history))
		for i, v := range m.history {
			pts[i].X = float64(m.epochs[i])
			pts[i].Y = v
			if v < yMin {
				yMin = v
			}
			if v > yMax {
				yMax = v
			}
		}
		series = append(series, m.spec.Name, pts)
	}
	if err := plotutil.AddLines(p, series...); err != nil {
		return errors.Wrap(err, "failed to add metric series to plot")
	}

	if yMin > yMax {
		yMin, yMax = 0, 1
	}
	if c.bestEpoch >= 0 {
		if err := addEpochMarker(p, "best epoch", c.bestEpoch, yMin, yMax,
			color.RGBA{G: 160, A: 255}); err != nil {
			return err
		}
	}
	if c.stopEpoch >= 0 {
		if err := addEpochMarker(p, "stop epoch", c.stopEpoch, yMin, yMax,
			color.RGBA{R: 200, A: 255}); err != nil {
			return err
		}
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}

// addEpochMarker draws a dashed vertical line at the given epoch.
func addEpochMarker(p *plot.Plot, name string, epoch int, yMin, yMax float64, clr color.Color) error {
	line, err := plotter.NewLine(plotter.XYs{
		{X: float64(epoch), Y: yMin},
		{X: float64(epoch), Y: yMax},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to build %s marker", name)
	}
	line.LineStyle.Color = clr
	line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
