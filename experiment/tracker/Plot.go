package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot caches tracked scalars and, on Save, draws them against
// environment steps. Scalars are grouped by the part of their name
// before the last "/", and each group is drawn as one PNG in dir with
// one line per scalar. For example "loss/pi/a" and "loss/pi/b" are
// drawn as two lines in loss_pi.png.
type Plot struct {
	dir  string
	data Series
}

// NewPlot returns a new Plot Tracker which saves its plots to dir
func NewPlot(dir string) *Plot {
	return &Plot{dir: dir, data: make(Series)}
}

// Track caches the scalars
func (p *Plot) Track(step int, scalars map[string]float64) error {
	p.data.add(step, scalars)
	return nil
}

// Save draws all cached scalars
func (p *Plot) Save() error {
	if err := PlotSeries(p.data, p.dir); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// PlotSeries draws data as PNG plots in dir, creating dir if needed
func PlotSeries(data Series, dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("plotSeries: %w", err)
	}

	groups := make(map[string][]string)
	var order []string
	for _, k := range data.Keys() {
		group, name := k, k
		if i := strings.LastIndex(k, "/"); i > 0 {
			group, name = k[:i], k[i+1:]
		}
		if _, ok := groups[group]; !ok {
			order = append(order, group)
		}
		groups[group] = append(groups[group], name)
	}

	for _, group := range order {
		p := plot.New()
		p.Title.Text = group
		p.X.Label.Text = "Environment steps"
		p.Y.Label.Text = group

		for i, name := range groups[group] {
			key := name
			if key != group {
				key = group + "/" + name
			}
			points := make(plotter.XYs, len(data[key]))
			for j, pt := range data[key] {
				points[j] = plotter.XY{X: float64(pt.Step), Y: pt.Value}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				return fmt.Errorf("plotSeries: %v: %w", key, err)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(name, line)
		}

		file := filepath.Join(dir, strings.ReplaceAll(group, "/", "_")+".png")
		if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
			return fmt.Errorf("plotSeries: %w", err)
		}
	}
	return nil
}
