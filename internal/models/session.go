package models

import "time"

// SessionState is the market phase at a point in time.
type SessionState string

const (
	SessionEstimate SessionState = "ESTIMATE_WINDOW"
	SessionReal     SessionState = "REAL_WINDOW"
	SessionPaused   SessionState = "PAUSED"
)

// SessionInfo describes the clock's view of a moment, served by the session endpoint.
type SessionInfo struct {
	State           SessionState `json:"state"`
	Now             time.Time    `json:"now"`
	Today           string       `json:"today"`
	TradingDay      bool         `json:"trading_day"`
	EstimateOnly    bool         `json:"estimate_only"`
	ManualRealFetch bool         `json:"manual_real_fetch"`
	ExpectedDate    string       `json:"expected_date"`
}
