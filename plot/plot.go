// Package plot renders a scalar series into a PNG line chart.
package plot

import (
	"bytes"

	"github.com/gidra39/tensorbot/types"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
)

type Renderer struct{}

// Render draws value over iteration for one metric and returns the PNG
// bytes. An empty series is an error; callers decide what to send instead.
func (Renderer) Render(metric string, series types.Series) ([]byte, error) {
	if series.Empty() {
		return nil, errors.New("cannot render an empty series")
	}

	xs := make([]float64, 0, len(series)+1)
	ys := make([]float64, 0, len(series)+1)
	for _, sample := range series {
		xs = append(xs, float64(sample.Iteration))
		ys = append(ys, sample.Value)
	}
	if len(xs) == 1 {
		// A single sample has no x-range; extend it into a flat segment.
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}

	graph := chart.Chart{
		XAxis: chart.XAxis{Name: "iteration"},
		YAxis: chart.YAxis{Name: metric},
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: xs, YValues: ys},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrapf(err, "failed to render chart for %s", metric)
	}
	return buf.Bytes(), nil
}
