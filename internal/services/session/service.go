// Package session maps wall-clock time onto the fund market's daily phases.
package session

import (
	"fmt"
	"time"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// China is the fixed UTC+8 zone all session decisions are made in.
var China = time.FixedZone("CST", 8*3600)

// Service implements interfaces.SessionClock. Boundaries are minutes since midnight.
type Service struct {
	morningStart int
	afternoonEnd int
	eveningStart int
	eveningEnd   int
	marketOpen   int
}

// NewService builds a clock from the [session] config section.
func NewService(cfg common.SessionConfig) (*Service, error) {
	var s Service
	fields := []struct {
		name string
		in   string
		out  *int
	}{
		{"morning_start", cfg.MorningStart, &s.morningStart},
		{"afternoon_end", cfg.AfternoonEnd, &s.afternoonEnd},
		{"evening_start", cfg.EveningStart, &s.eveningStart},
		{"evening_end", cfg.EveningEnd, &s.eveningEnd},
		{"market_open", cfg.MarketOpen, &s.marketOpen},
	}
	for _, f := range fields {
		m, err := common.ParseClock(f.in)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", f.name, err)
		}
		*f.out = m
	}
	return &s, nil
}

// NewDefaultService uses the standard 09:20/15:10 and 18:00/22:00 windows.
func NewDefaultService() *Service {
	s, _ := NewService(common.NewDefaultConfig().Session)
	return s
}

// Boundaries returns the window boundaries in minutes: morning start, afternoon end, evening start, evening end.
func (s *Service) Boundaries() (int, int, int, int) {
	return s.morningStart, s.afternoonEnd, s.eveningStart, s.eveningEnd
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Current returns the session state at now.
func (s *Service) Current(now time.Time) models.SessionState {
	t := now.In(China)
	if !isWeekday(t) {
		return models.SessionPaused
	}

	m := minuteOfDay(t)
	switch {
	case m >= s.morningStart && m < s.afternoonEnd:
		return models.SessionEstimate
	case m >= s.eveningStart && m < s.eveningEnd:
		return models.SessionReal
	default:
		return models.SessionPaused
	}
}

// IsTradingDay reports Monday to Friday. Exchange holidays are not modelled.
func (s *Service) IsTradingDay(now time.Time) bool {
	return isWeekday(now.In(China))
}

// EstimateOnly reports whether intraday estimates should replace stored real values:
// any trading day from 09:00 onward.
func (s *Service) EstimateOnly(now time.Time) bool {
	t := now.In(China)
	return isWeekday(t) && t.Hour() >= 9
}

// IsManualRealFetchTime reports whether a user refresh should prefer real values,
// from evening start through the next morning's estimate window.
func (s *Service) IsManualRealFetchTime(now time.Time) bool {
	m := minuteOfDay(now.In(China))
	return m >= s.eveningStart || m < s.morningStart
}

// ExpectedTradingDate is the date a current real value must carry.
// Weekends expect Friday; weekdays before market open expect the previous trading day.
func (s *Service) ExpectedTradingDate(now time.Time) string {
	t := now.In(China)
	switch t.Weekday() {
	case time.Sunday:
		t = t.AddDate(0, 0, -2)
	case time.Saturday:
		t = t.AddDate(0, 0, -1)
	default:
		if minuteOfDay(t) < s.marketOpen {
			if t.Weekday() == time.Monday {
				t = t.AddDate(0, 0, -3)
			} else {
				t = t.AddDate(0, 0, -1)
			}
		}
	}
	return t.Format("2006-01-02")
}

// Today returns the UTC+8 calendar date.
func (s *Service) Today(now time.Time) string {
	return now.In(China).Format("2006-01-02")
}

// Info bundles every view of now.
func (s *Service) Info(now time.Time) models.SessionInfo {
	return models.SessionInfo{
		State:           s.Current(now),
		Now:             now.In(China),
		Today:           s.Today(now),
		TradingDay:      s.IsTradingDay(now),
		EstimateOnly:    s.EstimateOnly(now),
		ManualRealFetch: s.IsManualRealFetchTime(now),
		ExpectedDate:    s.ExpectedTradingDate(now),
	}
}

func isWeekday(t time.Time) bool {
	d := t.Weekday()
	return d != time.Saturday && d != time.Sunday
}

var _ interfaces.SessionClock = (*Service)(nil)
