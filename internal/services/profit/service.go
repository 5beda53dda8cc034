// Package profit computes per-holding and total daily profit.
package profit

import (
	"math"
	"strconv"

	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// Badge colours.
const (
	ColorGain    = "#ef4444"
	ColorLoss    = "#10b981"
	ColorNeutral = "#6b7280"
)

// Service implements interfaces.ProfitAggregator. It holds no state.
type Service struct{}

// NewService creates an aggregator.
func NewService() *Service {
	return &Service{}
}

// Compute derives every row and the totals from holdings and the displayed percents.
// Rows keep the holdings order. A missing or NaN percent yields a zero-profit row.
func (s *Service) Compute(holdings []models.Holding, percents map[string]models.DisplayedPercent) models.AggregateResult {
	result := models.AggregateResult{Rows: make([]models.ProfitRow, 0, len(holdings))}
	var t models.ProfitTotals

	for i, h := range holdings {
		a, b := finite(h.CapitalA), finite(h.CapitalB)
		amount := a + b

		row := models.ProfitRow{
			Index:    i,
			ID:       h.ID,
			Code:     h.Code,
			Name:     h.Name,
			CapitalA: a,
			CapitalB: b,
			Amount:   amount,
			Percent:  math.NaN(),
		}
		if dp, ok := percents[h.Code]; ok && h.Code != "" {
			row.Percent = dp.Percent
			row.IsReal = dp.IsReal && !math.IsNaN(dp.Percent)
		}

		t.CapitalA += a
		t.CapitalB += b
		if amount > 0 {
			t.TotalCapital += amount
		}

		if amount > 0 && !math.IsNaN(row.Percent) && !math.IsInf(row.Percent, 0) {
			row.Valid = true
			row.ProfitA = a * row.Percent / 100
			row.ProfitB = b * row.Percent / 100
			row.RowProfit = row.ProfitA + row.ProfitB

			t.ProfitA += row.ProfitA
			t.ProfitB += row.ProfitB
			t.TotalProfit += row.RowProfit
		}

		result.Rows = append(result.Rows, row)
	}

	if t.TotalCapital > 0 {
		t.TotalPercent = t.TotalProfit / t.TotalCapital * 100
	}
	result.Totals = t
	return result
}

// Badge renders the total profit as at most four characters plus a colour.
// The text carries no sign; colour conveys direction.
func (s *Service) Badge(totalProfit float64) models.Badge {
	return models.Badge{Text: badgeText(totalProfit), Color: badgeColor(totalProfit)}
}

func badgeText(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	abs := math.Abs(v)
	if abs == 0 {
		return "0"
	}
	if abs < 1000 {
		return strconv.FormatFloat(math.Floor(abs+0.5), 'f', 0, 64)
	}

	k := abs / 1000
	text := strconv.FormatFloat(k, 'f', 2, 64) + "k"
	if len(text) > 4 {
		text = strconv.FormatFloat(k, 'f', 1, 64) + "k"
	}
	if len(text) > 4 {
		text = strconv.FormatFloat(math.Floor(k+0.5), 'f', 0, 64) + "k"
	}
	if len(text) > 4 {
		core := strconv.FormatFloat(math.Floor(k+0.5), 'f', 0, 64)
		text = core[:3] + "k"
	}
	return text
}

func badgeColor(v float64) string {
	switch {
	case math.IsNaN(v) || v == 0:
		return ColorNeutral
	case v > 0:
		return ColorGain
	default:
		return ColorLoss
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var _ interfaces.ProfitAggregator = (*Service)(nil)
