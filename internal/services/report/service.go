// Package report renders the plain-text daily summary of a snapshot.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/session"
)

const separator = "----------------"

// Summary formats snap in display order:
//
//	Fund report 2024-03-05 15:00:00
//	Total holding: 20000.00
//	Daily profit: -50.00 (-0.25%)
//	----------------
//	1. 招商中证白酒指数: 1.50% (150.00)
func Summary(snap *models.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fund report %s\n", now.In(session.China).Format("2006-01-02 15:04:05"))
	if snap == nil {
		b.WriteString("No data yet\n")
		return b.String()
	}

	t := snap.Result.Totals
	fmt.Fprintf(&b, "Total holding: %s\n", money(t.TotalCapital))
	fmt.Fprintf(&b, "Daily profit: %s (%s%%)\n", money(t.TotalProfit), money(t.TotalPercent))
	b.WriteString(separator)
	b.WriteString("\n")

	order := snap.Order
	if len(order) != len(snap.Result.Rows) {
		order = make([]int, len(snap.Result.Rows))
		for i := range order {
			order[i] = i
		}
	}

	for n, idx := range order {
		row := snap.Result.Rows[idx]
		fmt.Fprintf(&b, "%d. %s: %s (%s)\n", n+1, shortName(row.Name), percentText(row), money(row.RowProfit))
	}
	return b.String()
}

// shortName drops the leading code from "{code}  {name}".
func shortName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unnamed"
	}
	fields := strings.Fields(name)
	if len(fields) > 1 {
		return strings.Join(fields[1:], " ")
	}
	return name
}

func percentText(row models.ProfitRow) string {
	if math.IsNaN(row.Percent) || math.IsInf(row.Percent, 0) {
		return "--"
	}
	s := money(row.Percent) + "%"
	if row.IsReal {
		s += " (real)"
	}
	return s
}

// money renders v with two decimals, half away from zero.
func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
