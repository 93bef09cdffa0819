// Package report renders what a tracker predicted against what actually
// happened, as a PNG for offline runs and an interactive HTML chart for the
// server.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/birdgame/internal/density"
	"github.com/banshee-data/birdgame/internal/tracker"
)

// AssetsHost is where rendered HTML charts load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoData is returned when asked to render an empty recorder.
var ErrNoData = errors.New("no points recorded")

// Band quantiles: roughly two standard deviations either side of the mean.
const (
	lowerQuantile = 0.025
	upperQuantile = 0.975
)

// Point is one observation with the band of the prediction issued at the
// same time.
type Point struct {
	Time    float64 `json:"time"`
	Value   float64 `json:"value"`
	CoreLoc float64 `json:"core_loc"`
	CoreLo  float64 `json:"core_lo"`
	CoreHi  float64 `json:"core_hi"`
	TailLo  float64 `json:"tail_lo"`
	TailHi  float64 `json:"tail_hi"`
}

// Recorder keeps the points that fall within a trailing time window.
type Recorder struct {
	window float64
	points []Point
}

// NewRecorder keeps points no older than window time units behind the
// latest one. A window <= 0 keeps everything.
func NewRecorder(window float64) *Recorder {
	return &Recorder{window: window}
}

// Add records obs together with the bands of m, the prediction made at
// obs.Time.
func (r *Recorder) Add(obs tracker.Observation, m density.Mixture) {
	p := Point{Time: obs.Time, Value: obs.Value}
	if len(m.Components) > 0 {
		p.CoreLoc = m.Components[0].Density.Params.Loc
		p.CoreLo = m.Quantile(0, lowerQuantile)
		p.CoreHi = m.Quantile(0, upperQuantile)
		p.TailLo, p.TailHi = p.CoreLo, p.CoreHi
	}
	if len(m.Components) > 1 {
		p.TailLo = m.Quantile(1, lowerQuantile)
		p.TailHi = m.Quantile(1, upperQuantile)
	}
	r.points = append(r.points, p)
	r.trim(obs.Time)
}

func (r *Recorder) trim(latest float64) {
	if r.window <= 0 {
		return
	}
	cut := 0
	for cut < len(r.points) && r.points[cut].Time < latest-r.window {
		cut++
	}
	if cut > 0 {
		r.points = append(r.points[:0], r.points[cut:]...)
	}
}

// Points returns a copy of the recorded points, oldest first.
func (r *Recorder) Points() []Point {
	return append([]Point(nil), r.points...)
}

func (r *Recorder) Len() int { return len(r.points) }

// WritePNG saves a band plot of the recorded points to path.
func (r *Recorder) WritePNG(path string) error {
	if len(r.points) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Dove location vs predicted bands"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Location"

	series := []struct {
		label  string
		color  color.Color
		dashed bool
		y      func(Point) float64
	}{
		{"observed", color.Black, false, func(p Point) float64 { return p.Value }},
		{"core 95%", color.RGBA{R: 31, G: 119, B: 180, A: 255}, false, func(p Point) float64 { return p.CoreLo }},
		{"", color.RGBA{R: 31, G: 119, B: 180, A: 255}, false, func(p Point) float64 { return p.CoreHi }},
		{"tail 95%", color.RGBA{R: 214, G: 39, B: 40, A: 255}, true, func(p Point) float64 { return p.TailLo }},
		{"", color.RGBA{R: 214, G: 39, B: 40, A: 255}, true, func(p Point) float64 { return p.TailHi }},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(r.points))
		for i, pt := range r.points {
			pts[i] = plotter.XY{X: pt.Time, Y: s.y(pt)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		if s.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		if s.label != "" {
			p.Legend.Add(s.label, line)
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// WriteHTML renders the recorded points as an interactive line chart.
func (r *Recorder) WriteHTML(w io.Writer, title string) error {
	if len(r.points) == 0 {
		return ErrNoData
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d window=%g", len(r.points), r.window)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Location", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	noSymbol := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})
	add := func(name string, y func(Point) float64) {
		data := make([]opts.LineData, len(r.points))
		for i, pt := range r.points {
			data[i] = opts.LineData{Value: []interface{}{pt.Time, y(pt)}}
		}
		line.AddSeries(name, data, noSymbol)
	}
	add("observed", func(p Point) float64 { return p.Value })
	add("core loc", func(p Point) float64 { return p.CoreLoc })
	add("core lo", func(p Point) float64 { return p.CoreLo })
	add("core hi", func(p Point) float64 { return p.CoreHi })
	add("tail lo", func(p Point) float64 { return p.TailLo })
	add("tail hi", func(p Point) float64 { return p.TailHi })

	return line.Render(w)
}

// WriteFiles writes report.png and report.html into dir, creating it if
// needed.
func (r *Recorder) WriteFiles(dir, title string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := r.WritePNG(filepath.Join(dir, "report.png")); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "report.html"))
	if err != nil {
		return fmt.Errorf("failed to create report.html: %w", err)
	}
	if err := r.WriteHTML(f, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
