package models

import "encoding/json"

// Message types understood by the host messaging endpoint.
const (
	MessageFetchEstimate   = "fetchFundJson"
	MessageFetchReal       = "fetchFundRealPercent"
	MessageSearchFund      = "searchFund"
	MessageUpdateBadge     = "updateBadge"
	MessageHoldingsUpdated = "holdingsUpdated"
)

// MessageRequest is the envelope sent to the host.
type MessageRequest struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// MessageResponse is the host's answer. Data is set only when OK.
type MessageResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Kind  string          `json:"kind,omitempty"`
}

// RealPercentData is the payload of a fetchFundRealPercent answer.
type RealPercentData struct {
	Percent float64 `json:"percent"`
	Date    string  `json:"date"`
}
