package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/rcliao/pksim/internal/model"
)

// plotSeries turns every reported series into a chart line. Missing points
// are dropped; a series needs at least two points to be drawn.
func plotSeries(resp *model.SimulateResponse) []chart.Series {
	var names []string
	all := make(map[string][]*float64)
	for name, ys := range resp.Series {
		names = append(names, name)
		all[name] = ys
	}
	for name, ys := range resp.Derived {
		names = append(names, name)
		all[name] = ys
	}
	sort.Strings(names)

	var series []chart.Series
	for _, name := range names {
		var xs, ys []float64
		for i, y := range all[name] {
			if y == nil || i >= len(resp.Time) {
				continue
			}
			xs = append(xs, resp.Time[i])
			ys = append(ys, *y)
		}
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeWidth: 2.0,
			},
		})
	}
	return series
}

func writePlot(path string, resp *model.SimulateResponse) error {
	series := plotSeries(resp)
	if len(series) == 0 {
		return fmt.Errorf("nothing to plot: no series has two or more points")
	}

	graph := chart.Chart{
		Width:  1024,
		Height: 512,
		XAxis: chart.XAxis{
			Name: "Time",
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%g", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name: "Amount",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("render plot: %w", err)
	}
	return f.Close()
}
