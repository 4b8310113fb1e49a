package report

import (
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"

	apperrors "github.com/psychometry/irtreport/internal/errors"
	"github.com/psychometry/irtreport/internal/fit"
	"github.com/psychometry/irtreport/internal/scoring"
)

//go:embed templates/*.tpl
var templatesFS embed.FS

// ScoreSummary condenses the respondent score distribution for the
// report narrative.
type ScoreSummary struct {
	Mean   float64
	SD     float64
	Min    float64
	Max    float64
	MeanSE float64
}

// Data is everything the report template needs for one run.
type Data struct {
	ScaleName   string
	RunID       string
	GeneratedAt string
	DatasetPath string

	NRows      int
	NItems     int
	Categories int
	ThetaMin   float64
	ThetaMax   float64

	Iterations int
	LogLik     float64

	Global   fit.GlobalFit
	ItemFits []fit.ItemFit

	IRT                 []IRTItem
	Factor              []FactorItem
	MarginalReliability float64

	Scores  ScoreSummary
	Figures []string
}

// NewRunID stamps a report run.
func NewRunID() string { return uuid.NewString() }

// SummarizeScores reduces per-respondent estimates to the summary the
// narrative quotes.
func SummarizeScores(scores []scoring.ScoreEstimate) ScoreSummary {
	if len(scores) == 0 {
		return ScoreSummary{}
	}
	s := ScoreSummary{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, e := range scores {
		s.Mean += e.Theta
		s.MeanSE += e.SE
		s.Min = math.Min(s.Min, e.Theta)
		s.Max = math.Max(s.Max, e.Theta)
	}
	n := float64(len(scores))
	s.Mean /= n
	s.MeanSE /= n
	for _, e := range scores {
		d := e.Theta - s.Mean
		s.SD += d * d
	}
	s.SD = math.Sqrt(s.SD / n)
	return s
}

// Renderer fills the embedded report template.
type Renderer struct {
	set *pongo2.TemplateSet
}

// NewRenderer loads the embedded template set.
func NewRenderer() *Renderer {
	return &Renderer{
		set: pongo2.NewSet("report", pongo2.NewFSLoader(templatesFS)),
	}
}

// irtRow is the template view of one IRT parameter row, with the
// threshold column preformatted since the template cannot pair up two
// parallel slices.
type irtRow struct {
	Name       string
	Slope      float64
	SlopeSE    float64
	Thresholds string
}

func irtRows(items []IRTItem) []irtRow {
	rows := make([]irtRow, len(items))
	for i, item := range items {
		var b strings.Builder
		for k, th := range item.Thresholds {
			if k > 0 {
				b.WriteString(", ")
			}
			se := math.NaN()
			if k < len(item.ThresholdSEs) {
				se = item.ThresholdSEs[k]
			}
			fmt.Fprintf(&b, "%.3f (%.3f)", th, se)
		}
		rows[i] = irtRow{
			Name:       item.Name,
			Slope:      item.Slope,
			SlopeSE:    item.SlopeSE,
			Thresholds: b.String(),
		}
	}
	return rows
}

// Render produces the report body.
func (r *Renderer) Render(data Data) (string, error) {
	tmpl, err := r.set.FromFile("templates/report.md.tpl")
	if err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot load report template", err)
	}

	if data.GeneratedAt == "" {
		data.GeneratedAt = time.Now().Format(time.RFC3339)
	}

	out, err := tmpl.Execute(pongo2.Context{
		"scale":        data.ScaleName,
		"run_id":       data.RunID,
		"generated_at": data.GeneratedAt,
		"dataset":      data.DatasetPath,
		"n_rows":       data.NRows,
		"n_items":      data.NItems,
		"categories":   data.Categories,
		"theta_min":    data.ThetaMin,
		"theta_max":    data.ThetaMax,
		"iterations":   data.Iterations,
		"log_lik":      data.LogLik,
		"global":       data.Global,
		"item_fits":    data.ItemFits,
		"irt_rows":     irtRows(data.IRT),
		"factor":       data.Factor,
		"reliability":  data.MarginalReliability,
		"scores":       data.Scores,
		"figures":      data.Figures,
	})
	if err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot render report template", err)
	}
	return out, nil
}

// WriteReport renders and writes report.md under dir.
func (r *Renderer) WriteReport(dir string, data Data) (string, error) {
	body, err := r.Render(data)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot create output directory", err)
	}
	path := filepath.Join(dir, "report.md")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot write report", err)
	}
	return path, nil
}

// WriteScores writes the per-respondent score table as CSV under dir.
func WriteScores(dir string, scores []scoring.ScoreEstimate) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot create output directory", err)
	}
	path := filepath.Join(dir, "scores.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.NewInternalError(apperrors.StageReport,
			"cannot write scores", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "respondent,theta,se")
	for i, e := range scores {
		fmt.Fprintf(f, "%d,%.6f,%.6f\n", i+1, e.Theta, e.SE)
	}
	return path, nil
}
