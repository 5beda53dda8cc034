package models

import (
	"encoding/json"
	"time"
)

// ProfitRow is the per-holding output of an aggregation pass.
// Percent is NaN when no value is known; Valid is false for rows that contribute no profit.
type ProfitRow struct {
	Index     int     `json:"index"`
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	CapitalA  float64 `json:"capital_a"`
	CapitalB  float64 `json:"capital_b"`
	Amount    float64 `json:"amount"`
	Percent   float64 `json:"-"`
	ProfitA   float64 `json:"profit_a"`
	ProfitB   float64 `json:"profit_b"`
	RowProfit float64 `json:"row_profit"`
	Valid     bool    `json:"valid"`
	IsReal    bool    `json:"is_real"`
}

func (r ProfitRow) MarshalJSON() ([]byte, error) {
	type alias ProfitRow
	return json.Marshal(struct {
		alias
		Percent *float64 `json:"percent"`
	}{alias(r), nullable(r.Percent)})
}

func (r *ProfitRow) UnmarshalJSON(data []byte) error {
	type alias ProfitRow
	aux := struct {
		*alias
		Percent *float64 `json:"percent"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Percent = fromNullable(aux.Percent)
	return nil
}

// ProfitTotals are the aggregate figures across all holdings.
type ProfitTotals struct {
	CapitalA     float64 `json:"capital_a"`
	CapitalB     float64 `json:"capital_b"`
	TotalCapital float64 `json:"total_capital"`
	ProfitA      float64 `json:"profit_a"`
	ProfitB      float64 `json:"profit_b"`
	TotalProfit  float64 `json:"total_profit"`
	TotalPercent float64 `json:"total_percent"`
}

// AggregateResult is recomputed wholesale on every pass.
type AggregateResult struct {
	Rows   []ProfitRow  `json:"rows"`
	Totals ProfitTotals `json:"totals"`
}

// Badge is the compact total-profit indicator.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// SortField names the column a holdings view is ordered by.
type SortField string

const (
	SortByPercent SortField = "percent"
	SortByProfit  SortField = "profit"
)

// SortOrder is the ordering direction.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// SortPreference is the active ordering. A nil preference keeps the stored order.
type SortPreference struct {
	Field SortField `json:"field"`
	Order SortOrder `json:"order"`
}

// TrendPoint is the total profit at one minute of the day.
type TrendPoint struct {
	Time   string  `json:"time"` // HH:MM
	Profit float64 `json:"profit"`
}

// TrendHistory is the same-day profit curve.
type TrendHistory struct {
	Date   string       `json:"date"`
	Points []TrendPoint `json:"points"`
}

// CycleKind identifies what produced a snapshot.
type CycleKind string

const (
	CycleEstimate CycleKind = "estimate"
	CycleReal     CycleKind = "real"
	CycleRecalc   CycleKind = "recalc"
)

// Snapshot is published after every aggregation pass.
// Order holds row indices in display order.
type Snapshot struct {
	CycleID     string          `json:"cycle_id"`
	Kind        CycleKind       `json:"kind"`
	Session     SessionState    `json:"session"`
	Result      AggregateResult `json:"result"`
	Order       []int           `json:"order"`
	Sort        *SortPreference `json:"sort,omitempty"`
	Badge       Badge           `json:"badge"`
	Succeeded   int             `json:"succeeded"`
	Attempted   int             `json:"attempted"`
	RealDone    bool            `json:"real_done"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Notice is a user-facing message, emitted only for user-initiated cycles.
type Notice struct {
	Level   string    `json:"level"` // "warn", "error"
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
