// Package plot renders the diagnostic figures for a calibrated model:
// per-item trace curves, information curves, the test information and
// standard-error profile, conditional reliability, and the scale
// characteristic curve.
package plot

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/irt"
)

const (
	gridPoints = 201

	figWidth  = 6 * vg.Inch
	figHeight = 4 * vg.Inch
)

// Options controls the theta range the figures cover.
type Options struct {
	ThetaMin float64
	ThetaMax float64
}

func (o Options) grid() []float64 {
	lo, hi := o.ThetaMin, o.ThetaMax
	if hi <= lo {
		lo, hi = -3, 3
	}
	step := (hi - lo) / float64(gridPoints-1)
	xs := make([]float64, gridPoints)
	for i := range xs {
		xs[i] = lo + float64(i)*step
	}
	return xs
}

// RenderAll writes every figure under dir and returns the file names in
// a stable order.
func RenderAll(dir string, model *irt.Model, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewInternalError(apperrors.StagePlot,
			"cannot create figure directory", err)
	}

	var files []string
	traces, err := TraceCurves(dir, model, opts)
	if err != nil {
		return nil, err
	}
	files = append(files, traces...)

	for _, render := range []func(string, *irt.Model, Options) (string, error){
		ItemInformationCurves,
		TestInformationCurve,
		ReliabilityCurve,
		ExpectedScoreCurve,
	} {
		name, err := render(dir, model, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, nil
}

// TraceCurves writes one figure per item showing the category response
// curves across theta.
func TraceCurves(dir string, model *irt.Model, opts Options) ([]string, error) {
	xs := opts.grid()
	names := make([]string, 0, model.NItems())

	for i, item := range model.Items {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Trace curves — %s", item.Name)
		p.X.Label.Text = "theta"
		p.Y.Label.Text = "P(category)"
		p.Y.Min, p.Y.Max = 0, 1

		for k := 0; k < model.Categories; k++ {
			pts := make(plotter.XYs, len(xs))
			for j, theta := range xs {
				pts[j].X = theta
				pts[j].Y = model.CategoryProbs(i, theta)[k]
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, plotError(err)
			}
			line.Color = plotutil.Color(k)
			p.Add(line)
			p.Legend.Add(fmt.Sprintf("cat %d", k+1), line)
		}

		name := fmt.Sprintf("trace_%s.png", item.Name)
		if err := p.Save(figWidth, figHeight, filepath.Join(dir, name)); err != nil {
			return nil, plotError(err)
		}
		names = append(names, name)
	}
	return names, nil
}

// ItemInformationCurves writes a single figure with every item's
// information curve.
func ItemInformationCurves(dir string, model *irt.Model, opts Options) (string, error) {
	xs := opts.grid()

	p := plot.New()
	p.Title.Text = "Item information"
	p.X.Label.Text = "theta"
	p.Y.Label.Text = "information"

	for i, item := range model.Items {
		pts := make(plotter.XYs, len(xs))
		for j, theta := range xs {
			pts[j].X = theta
			pts[j].Y = model.ItemInformation(i, theta)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", plotError(err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(item.Name, line)
	}

	const name = "item_information.png"
	if err := p.Save(figWidth, figHeight, filepath.Join(dir, name)); err != nil {
		return "", plotError(err)
	}
	return name, nil
}

// TestInformationCurve writes the test information function together
// with the corresponding standard error of measurement.
func TestInformationCurve(dir string, model *irt.Model, opts Options) (string, error) {
	xs := opts.grid()

	p := plot.New()
	p.Title.Text = "Test information and standard error"
	p.X.Label.Text = "theta"

	info := make(plotter.XYs, len(xs))
	se := make(plotter.XYs, len(xs))
	for j, theta := range xs {
		v := model.TestInformation(theta)
		info[j] = plotter.XY{X: theta, Y: v}
		se[j] = plotter.XY{X: theta, Y: 1 / math.Sqrt(math.Max(v, 1e-12))}
	}

	infoLine, err := plotter.NewLine(info)
	if err != nil {
		return "", plotError(err)
	}
	infoLine.Color = plotutil.Color(0)
	seLine, err := plotter.NewLine(se)
	if err != nil {
		return "", plotError(err)
	}
	seLine.Color = plotutil.Color(1)
	seLine.Dashes = plotutil.Dashes(1)

	p.Add(infoLine, seLine)
	p.Legend.Add("information", infoLine)
	p.Legend.Add("SE(theta)", seLine)

	const name = "test_information.png"
	if err := p.Save(figWidth, figHeight, filepath.Join(dir, name)); err != nil {
		return "", plotError(err)
	}
	return name, nil
}

// ReliabilityCurve writes conditional reliability across theta under
// the unit-variance prior.
func ReliabilityCurve(dir string, model *irt.Model, opts Options) (string, error) {
	xs := opts.grid()

	p := plot.New()
	p.Title.Text = "Conditional reliability"
	p.X.Label.Text = "theta"
	p.Y.Label.Text = "reliability"
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, len(xs))
	for j, theta := range xs {
		info := model.TestInformation(theta)
		pts[j] = plotter.XY{X: theta, Y: info / (info + 1)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", plotError(err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)

	const name = "conditional_reliability.png"
	if err := p.Save(figWidth, figHeight, filepath.Join(dir, name)); err != nil {
		return "", plotError(err)
	}
	return name, nil
}

// ExpectedScoreCurve writes the scale characteristic curve mapping
// theta to the expected summed score.
func ExpectedScoreCurve(dir string, model *irt.Model, opts Options) (string, error) {
	xs := opts.grid()

	p := plot.New()
	p.Title.Text = "Scale characteristic curve"
	p.X.Label.Text = "theta"
	p.Y.Label.Text = "expected summed score"
	p.Y.Min = model.MinSumScore()
	p.Y.Max = model.MaxSumScore()

	pts := make(plotter.XYs, len(xs))
	for j, theta := range xs {
		pts[j] = plotter.XY{X: theta, Y: model.ExpectedSumScore(theta)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", plotError(err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)

	const name = "expected_score.png"
	if err := p.Save(figWidth, figHeight, filepath.Join(dir, name)); err != nil {
		return "", plotError(err)
	}
	return name, nil
}

func plotError(err error) error {
	return apperrors.NewInternalError(apperrors.StagePlot, "cannot render figure", err)
}
