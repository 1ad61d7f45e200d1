// Package monitoring collects the pulses seen by the cross-talk stage and
// turns them into summary statistics and PNG histograms.
package monitoring

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"

	calocell "github.com/lorenzetti/calocell_go/pkg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const nBins = 50

// Collector records cross-talk samples per sampling layer. It is safe for
// use by several event workers at once.
type Collector struct {
	mu      sync.Mutex
	samples map[string][]float64
	// per-sample sums of the center pulses, before and after distortion
	before   map[calocell.Sampling][]float64
	after    map[calocell.Sampling][]float64
	nCenters map[calocell.Sampling]int
}

func NewCollector() *Collector {
	return &Collector{
		samples:  make(map[string][]float64),
		before:   make(map[calocell.Sampling][]float64),
		after:    make(map[calocell.Sampling][]float64),
		nCenters: make(map[calocell.Sampling]int),
	}
}

func histName(kind string, sampling calocell.Sampling) string {
	return fmt.Sprintf("samples_xtalk_%s_%v", kind, sampling)
}

func (c *Collector) ObserveCoupling(sampling calocell.Sampling, inductive, capacitive calocell.PulseVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[histName("inductive", sampling)] = append(c.samples[histName("inductive", sampling)], inductive...)
	c.samples[histName("capacitive", sampling)] = append(c.samples[histName("capacitive", sampling)], capacitive...)
}

func (c *Collector) ObserveCenter(sampling calocell.Sampling, before, after calocell.PulseVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[histName("center_before", sampling)] = append(c.samples[histName("center_before", sampling)], before...)
	c.samples[histName("center_after", sampling)] = append(c.samples[histName("center_after", sampling)], after...)
	c.before[sampling] = accumulate(c.before[sampling], before)
	c.after[sampling] = accumulate(c.after[sampling], after)
	c.nCenters[sampling]++
}

func (c *Collector) ObserveCorrection(sampling calocell.Sampling, excess calocell.PulseVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[histName("excess", sampling)] = append(c.samples[histName("excess", sampling)], excess...)
}

func accumulate(acc []float64, pulse calocell.PulseVector) []float64 {
	if len(acc) < len(pulse) {
		grown := make([]float64, len(pulse))
		copy(grown, acc)
		acc = grown
	}
	for i, v := range pulse {
		acc[i] += v
	}
	return acc
}

// Names returns the names of every non-empty histogram, sorted.
func (c *Collector) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.samples))
	for name, values := range c.samples {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the samples of a histogram.
func (c *Collector) Values(name string) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.samples[name]))
	copy(out, c.samples[name])
	return out
}

type Stats struct {
	Name   string
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: n=%d mean=%.4g std=%.4g min=%.4g max=%.4g", s.Name, s.N, s.Mean, s.StdDev, s.Min, s.Max)
}

// Summary computes the statistics of every non-empty histogram.
func (c *Collector) Summary() []Stats {
	names := c.Names()
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		values := c.Values(name)
		s := Stats{Name: name, N: len(values), Min: floats.Min(values), Max: floats.Max(values)}
		if len(values) > 1 {
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
		} else {
			s.Mean = values[0]
		}
		out = append(out, s)
	}
	return out
}

// Histogram renders one histogram as PNG.
func (c *Collector) Histogram(name string) ([]byte, error) {
	values := c.Values(name)
	if len(values) == 0 {
		return nil, fmt.Errorf("no samples in histogram %s", name)
	}

	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "Sample amplitude (MeV)"
	p.Y.Label.Text = "Entries"
	p.Add(plotter.NewGrid())

	h, err := plotter.NewHist(plotter.Values(values), nBins)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	h.FillColor = color.RGBA{B: 200, A: 255}
	p.Add(h)
	return render(p)
}

// PulseShape plots the mean center pulse of a sampling before and after the
// cross-talk distortion.
func (c *Collector) PulseShape(sampling calocell.Sampling) ([]byte, error) {
	c.mu.Lock()
	n := c.nCenters[sampling]
	before := append([]float64(nil), c.before[sampling]...)
	after := append([]float64(nil), c.after[sampling]...)
	c.mu.Unlock()
	if n == 0 {
		return nil, fmt.Errorf("no cross-talk centers in sampling %v", sampling)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean center pulse (%v)", sampling)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Amplitude (MeV)"
	p.Add(plotter.NewGrid())

	lines := []struct {
		label  string
		sums   []float64
		colour color.Color
	}{
		{"before cross-talk", before, color.RGBA{B: 255, A: 255}},
		{"after cross-talk", after, color.RGBA{R: 255, A: 255}},
	}
	for _, l := range lines {
		pts := make(plotter.XYs, len(l.sums))
		for i, v := range l.sums {
			pts[i] = plotter.XY{X: float64(i), Y: v / float64(n)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line %s: %w", l.label, err)
		}
		line.Color = l.colour
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(l.label, line)
	}
	p.Legend.Top = true
	return render(p)
}

func render(p *plot.Plot) ([]byte, error) {
	writer, err := p.WriterTo(vg.Points(800), vg.Points(400), "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %w", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// SavePlots writes every histogram and pulse shape plot to dir and returns
// the written paths.
func (c *Collector) SavePlots(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, name := range c.Names() {
		data, err := c.Histogram(name)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, name+".png")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	c.mu.Lock()
	samplings := make([]calocell.Sampling, 0, len(c.nCenters))
	for s := range c.nCenters {
		samplings = append(samplings, s)
	}
	c.mu.Unlock()
	sort.Slice(samplings, func(i, j int) bool { return samplings[i] < samplings[j] })

	for _, s := range samplings {
		data, err := c.PulseShape(s)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, fmt.Sprintf("pulse_shape_%v.png", s))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
