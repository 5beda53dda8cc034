package report

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/session"
)

func TestSummary(t *testing.T) {
	snap := &models.Snapshot{
		Result: models.AggregateResult{
			Rows: []models.ProfitRow{
				{Name: "000001  华夏成长混合", Percent: 1.5, RowProfit: 150, IsReal: true},
				{Name: "000002  B Fund", Percent: -2, RowProfit: -200},
				{Name: "", Percent: math.NaN()},
			},
			Totals: models.ProfitTotals{TotalCapital: 20000, TotalProfit: -50, TotalPercent: -0.25},
		},
		Order: []int{1, 0, 2},
	}
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, session.China)

	got := Summary(snap, now)
	lines := strings.Split(strings.TrimSpace(got), "\n")

	assert.Equal(t, []string{
		"Fund report 2024-03-05 15:00:00",
		"Total holding: 20000.00",
		"Daily profit: -50.00 (-0.25%)",
		"----------------",
		"1. B Fund: -2.00% (-200.00)",
		"2. 华夏成长混合: 1.50% (real) (150.00)",
		"3. Unnamed: -- (0.00)",
	}, lines)
}

func TestSummary_NilSnapshot(t *testing.T) {
	got := Summary(nil, time.Date(2024, 3, 5, 9, 0, 0, 0, session.China))
	assert.Contains(t, got, "No data yet")
}

func TestMoney_Rounds(t *testing.T) {
	assert.Equal(t, "1.24", money(1.235))
	assert.Equal(t, "-0.13", money(-0.125))
	assert.Equal(t, "0.00", money(math.NaN()))
}
