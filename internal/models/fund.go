// Package models defines data structures for fundwatch
package models

import (
	"encoding/json"
	"math"
	"time"
)

// Holding is one row of the user's fund list.
// Capital values are the previous trading day's position values per account.
type Holding struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	CapitalA float64 `json:"capital_a"`
	CapitalB float64 `json:"capital_b"`
}

// Amount returns A+B with non-finite components counted as zero.
func (h Holding) Amount() float64 {
	return finite(h.CapitalA) + finite(h.CapitalB)
}

// IsEmpty reports whether the row carries no user input.
func (h Holding) IsEmpty() bool {
	return h.Name == "" && h.Code == "" && finite(h.CapitalA) == 0 && finite(h.CapitalB) == 0
}

// QuoteKind distinguishes intraday estimates from published end-of-day values.
type QuoteKind string

const (
	KindEstimate QuoteKind = "estimate"
	KindReal     QuoteKind = "real"
)

// QuotePercent is the daily percentage change of one fund.
// AsOfDate (YYYY-MM-DD) is set for real values only.
type QuotePercent struct {
	Code      string    `json:"code"`
	Percent   float64   `json:"percent"`
	Kind      QuoteKind `json:"kind"`
	AsOfDate  string    `json:"as_of_date,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FundInfo is the full intraday estimate payload for a fund.
type FundInfo struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	NAVDate         string  `json:"nav_date"`
	NAV             float64 `json:"nav"`
	EstimateNAV     float64 `json:"estimate_nav"`
	EstimatePercent float64 `json:"estimate_percent"`
	EstimateTime    string  `json:"estimate_time"`
}

// FundSearchResult is one match from the fund search endpoint.
type FundSearchResult struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Label renders the resolved display name used for holdings: "{code}  {name}".
func (r FundSearchResult) Label() string {
	return r.Code + "  " + r.Name
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// nullable converts NaN/Inf to nil so values survive JSON encoding.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// DisplayedPercent is the value currently shown for a fund code.
// Percent is NaN when nothing has been fetched yet.
type DisplayedPercent struct {
	Percent   float64   `json:"-"`
	IsReal    bool      `json:"is_real"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d DisplayedPercent) MarshalJSON() ([]byte, error) {
	type alias DisplayedPercent
	return json.Marshal(struct {
		alias
		Percent *float64 `json:"percent"`
	}{alias(d), nullable(d.Percent)})
}

func (d *DisplayedPercent) UnmarshalJSON(data []byte) error {
	type alias DisplayedPercent
	aux := struct {
		*alias
		Percent *float64 `json:"percent"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Percent = fromNullable(aux.Percent)
	return nil
}

// PercentStatus is the persisted last real value for a fund code.
type PercentStatus struct {
	Percent float64   `json:"percent"`
	IsReal  bool      `json:"is_real"`
	Time    time.Time `json:"time"`
}
