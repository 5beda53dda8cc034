package trend

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/session"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no trend data for today")

// RenderChart renders the day's profit curve as PNG with a zero reference line.
// The line is red while the latest point is a gain and green for a loss.
func RenderChart(h *models.TrendHistory) ([]byte, error) {
	if h == nil || len(h.Points) == 0 {
		return nil, ErrNoData
	}

	day, err := time.ParseInLocation("2006-01-02", h.Date, session.China)
	if err != nil {
		return nil, fmt.Errorf("invalid trend date %q: %w", h.Date, err)
	}

	points := h.Points
	if len(points) == 1 {
		points = []models.TrendPoint{points[0], points[0]}
	}

	xValues := make([]time.Time, 0, len(points))
	yValues := make([]float64, 0, len(points))
	for i, p := range points {
		tod, err := time.Parse("15:04", p.Time)
		if err != nil {
			continue
		}
		x := day.Add(time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute)
		if i > 0 && len(xValues) > 0 && !x.After(xValues[len(xValues)-1]) {
			x = xValues[len(xValues)-1].Add(time.Second)
		}
		xValues = append(xValues, x)
		yValues = append(yValues, p.Profit)
	}
	if len(xValues) < 2 {
		return nil, ErrNoData
	}

	lineColor := drawing.ColorFromHex("ef4444") // gain
	if yValues[len(yValues)-1] < 0 {
		lineColor = drawing.ColorFromHex("10b981") // loss
	}

	profitSeries := chart.TimeSeries{
		Name: "Profit",
		Style: chart.Style{
			StrokeColor: lineColor,
			StrokeWidth: 2,
		},
		XValues: xValues,
		YValues: yValues,
	}

	zeroSeries := chart.TimeSeries{
		Name: "Zero",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("d1d5db"),
			StrokeWidth:     1,
			StrokeDashArray: []float64{4.0, 3.0},
		},
		XValues: []time.Time{xValues[0], xValues[len(xValues)-1]},
		YValues: []float64{0, 0},
	}

	graph := chart.Chart{
		Title:  "Profit " + h.Date,
		Width:  800,
		Height: 320,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).In(session.China).Format("15:04")
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
		Series: []chart.Series{
			zeroSeries,
			profitSeries,
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
