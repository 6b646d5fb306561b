// Package monitor renders per-run telemetry plots. A RunPlotter hangs
// off the pipeline as its event sink, accumulates one FrameRecord per
// processed frame, and turns the run into PNG time-series plots after
// Finalize. It is diagnostic tooling: nothing in the detection path
// depends on it.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/decider"
	"github.com/bumpsetcut/rallycore/internal/rally/pipeline"
)

// RunPlotter records pipeline telemetry for visualization. It
// implements pipeline.EventSink; install it with Pipeline.SetSink
// before processing and call GeneratePlots after Finalize.
type RunPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	records     []pipeline.FrameRecord
	diagnostics []string
}

// NewRunPlotter creates a disabled plotter. Call Start to begin
// recording.
func NewRunPlotter() *RunPlotter {
	return &RunPlotter{}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/match-003/20260828_101500").
func (rp *RunPlotter) Start(outputDir string) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	rp.outputDir = outputDir
	rp.enabled = true
	rp.records = nil
	rp.diagnostics = nil
	return nil
}

// Stop disables recording. Call GeneratePlots() to produce output files.
func (rp *RunPlotter) Stop() {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (rp *RunPlotter) IsEnabled() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.enabled
}

// RecordFrame appends one frame's telemetry.
func (rp *RunPlotter) RecordFrame(rec pipeline.FrameRecord) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if !rp.enabled {
		return
	}
	rp.records = append(rp.records, rec)
}

// RecordDiagnostic appends one out-of-band pipeline message.
func (rp *RunPlotter) RecordDiagnostic(message string) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if !rp.enabled {
		return
	}
	rp.diagnostics = append(rp.diagnostics, message)
}

// SampleCount returns the number of frames recorded so far.
func (rp *RunPlotter) SampleCount() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.records)
}

// Diagnostics returns a copy of the recorded diagnostic messages.
func (rp *RunPlotter) Diagnostics() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	out := make([]string, len(rp.diagnostics))
	copy(out, rp.diagnostics)
	return out
}

// OutputDir returns the current output directory for plots.
func (rp *RunPlotter) OutputDir() string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.outputDir
}

// GeneratePlots creates PNG files summarizing the run: ball position,
// confidence and quality, physics sub-scores, and rally state.
// Returns the number of plots generated and any error.
func (rp *RunPlotter) GeneratePlots() (int, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(rp.records) == 0 {
		return 0, nil
	}

	count := 0
	for _, gen := range []struct {
		name string
		fn   func() (*plot.Plot, error)
	}{
		{"position.png", rp.positionPlot},
		{"confidence.png", rp.confidencePlot},
		{"physics.png", rp.physicsPlot},
		{"state.png", rp.statePlot},
	} {
		p, err := gen.fn()
		if err != nil {
			return count, fmt.Errorf("%s: %w", gen.name, err)
		}
		file := filepath.Join(rp.outputDir, gen.name)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return count, fmt.Errorf("save %s: %w", gen.name, err)
		}
		count++
	}
	return count, nil
}

// positionPlot shows tracked X and Y over time, with Y only while a
// detection was accepted so coasting gaps are visible.
func (rp *RunPlotter) positionPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Tracked Position"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Normalized coordinate"

	xPts := make(plotter.XYs, 0, len(rp.records))
	yPts := make(plotter.XYs, 0, len(rp.records))
	obsPts := make(plotter.XYs, 0, len(rp.records))
	for _, r := range rp.records {
		xPts = append(xPts, plotter.XY{X: r.Timestamp, Y: r.Position.X})
		yPts = append(yPts, plotter.XY{X: r.Timestamp, Y: r.Position.Y})
		if r.DetectionAccepted {
			obsPts = append(obsPts, plotter.XY{X: r.Timestamp, Y: r.Position.Y})
		}
	}

	if err := addLine(p, "x", xPts, color.RGBA{R: 31, G: 119, B: 180, A: 255}); err != nil {
		return nil, err
	}
	if err := addLine(p, "y", yPts, color.RGBA{R: 255, G: 127, B: 14, A: 255}); err != nil {
		return nil, err
	}
	if len(obsPts) > 0 {
		sc, err := plotter.NewScatter(obsPts)
		if err != nil {
			return nil, err
		}
		sc.Radius = vg.Points(1.5)
		sc.Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
		p.Add(sc)
		p.Legend.Add("y (accepted)", sc)
	}

	legendTopRight(p)
	return p, nil
}

// confidencePlot shows tracking confidence against the composite
// quality score.
func (rp *RunPlotter) confidencePlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Confidence and Quality"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Score"

	confPts := make(plotter.XYs, 0, len(rp.records))
	qualPts := make(plotter.XYs, 0, len(rp.records))
	for _, r := range rp.records {
		confPts = append(confPts, plotter.XY{X: r.Timestamp, Y: r.TrackingConfidence})
		qualPts = append(qualPts, plotter.XY{X: r.Timestamp, Y: r.Quality.Composite})
	}

	if err := addLine(p, "tracking confidence", confPts, color.RGBA{R: 31, G: 119, B: 180, A: 255}); err != nil {
		return nil, err
	}
	if err := addLine(p, "quality", qualPts, color.RGBA{R: 214, G: 39, B: 40, A: 255}); err != nil {
		return nil, err
	}

	legendTopRight(p)
	return p, nil
}

// physicsPlot shows the individual physics sub-scores.
func (rp *RunPlotter) physicsPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Physics Sub-Scores"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Score"

	series := []struct {
		label string
		get   func(rally.PhysicsScore) float64
		col   color.Color
	}{
		{"r-squared (clamped)", rally.PhysicsScore.ClampedRSquared, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"velocity consistency", func(s rally.PhysicsScore) float64 { return s.VelocityConsistency }, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
		{"acceleration pattern", func(s rally.PhysicsScore) float64 { return s.AccelerationPattern }, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"smoothness", func(s rally.PhysicsScore) float64 { return s.Smoothness }, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
		{"vertical motion", func(s rally.PhysicsScore) float64 { return s.VerticalMotion }, color.RGBA{R: 148, G: 103, B: 189, A: 255}},
	}

	for _, s := range series {
		pts := make(plotter.XYs, 0, len(rp.records))
		for _, r := range rp.records {
			pts = append(pts, plotter.XY{X: r.Timestamp, Y: s.get(r.Physics)})
		}
		if err := addLine(p, s.label, pts, s.col); err != nil {
			return nil, err
		}
	}

	legendTopRight(p)
	return p, nil
}

// statePlot shows the rally state machine output as a step trace
// alongside gate validity.
func (rp *RunPlotter) statePlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Rally State"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Active / valid"

	statePts := make(plotter.XYs, 0, len(rp.records))
	gatePts := make(plotter.XYs, 0, len(rp.records))
	for _, r := range rp.records {
		active := 0.0
		if r.State == decider.Active {
			active = 1.0
		}
		valid := 0.0
		if r.GateValid {
			valid = 0.5
		}
		statePts = append(statePts, plotter.XY{X: r.Timestamp, Y: active})
		gatePts = append(gatePts, plotter.XY{X: r.Timestamp, Y: valid})
	}

	if err := addLine(p, "rally active", statePts, color.RGBA{R: 214, G: 39, B: 40, A: 255}); err != nil {
		return nil, err
	}
	if err := addLine(p, "gate valid (0.5)", gatePts, color.RGBA{R: 31, G: 119, B: 180, A: 255}); err != nil {
		return nil, err
	}

	p.Y.Min = -0.1
	p.Y.Max = 1.1
	legendTopRight(p)
	return p, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, col color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = col
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func legendTopRight(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for
// one run's plots: plots/<source_basename>/<timestamp>.
func MakePlotOutputDir(baseDir, sourceFile string) string {
	ts := FormatTimestamp(time.Now())
	if sourceFile != "" {
		base := filepath.Base(sourceFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
