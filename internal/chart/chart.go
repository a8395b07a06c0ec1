// Package chart renders portfolio history images.
package chart

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/indicators"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// MaxPoints is the number of most recent snapshots drawn.
const MaxPoints = 100

const smoothingPeriod = 7

// ErrNotEnoughPoints is returned when fewer than two snapshots are given.
var ErrNotEnoughPoints = errors.New("not enough points to draw")

// RenderHistory renders a PNG line chart of snapshot values in time order.
// Only the last MaxPoints snapshots are drawn. With enough points a dashed
// seven-point average is drawn on top.
func RenderHistory(snapshots []domain.Snapshot) ([]byte, error) {
	if len(snapshots) < 2 {
		return nil, ErrNotEnoughPoints
	}
	if len(snapshots) > MaxPoints {
		snapshots = snapshots[len(snapshots)-MaxPoints:]
	}

	xValues := make([]time.Time, len(snapshots))
	yValues := make([]float64, len(snapshots))
	values := make([]decimal.Decimal, len(snapshots))
	for i, s := range snapshots {
		xValues[i] = s.Timestamp
		yValues[i] = s.Value.InexactFloat64()
		values[i] = s.Value
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "Value",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"),
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: yValues,
		},
	}

	if sma, err := indicators.CalculateSMA(values, smoothingPeriod); err == nil && len(sma) > 1 {
		offset := len(values) - len(sma)
		smaY := make([]float64, len(sma))
		for i, v := range sma {
			smaY[i] = v.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name: fmt.Sprintf("%d-point average", smoothingPeriod),
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"),
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues[offset:],
			YValues: smaY,
		})
	}

	graph := chart.Chart{
		Title:  "Portfolio value",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("02.01 15:04")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "render chart")
	}

	return buf.Bytes(), nil
}
