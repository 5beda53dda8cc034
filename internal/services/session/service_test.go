package session

import (
	"testing"
	"time"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// 2024-03-04 is a Monday.
func at(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, China)
}

func TestCurrent_Boundaries(t *testing.T) {
	s := NewDefaultService()

	tests := []struct {
		name string
		t    time.Time
		want models.SessionState
	}{
		{"before morning start", at(5, 9, 19), models.SessionPaused},
		{"morning start", at(5, 9, 20), models.SessionEstimate},
		{"midday", at(5, 12, 0), models.SessionEstimate},
		{"last estimate minute", at(5, 15, 9), models.SessionEstimate},
		{"afternoon end", at(5, 15, 10), models.SessionPaused},
		{"gap", at(5, 17, 59), models.SessionPaused},
		{"evening start", at(5, 18, 0), models.SessionReal},
		{"last real minute", at(5, 21, 59), models.SessionReal},
		{"evening end", at(5, 22, 0), models.SessionPaused},
		{"night", at(5, 23, 30), models.SessionPaused},
		{"saturday midday", at(9, 12, 0), models.SessionPaused},
		{"sunday evening", at(10, 19, 0), models.SessionPaused},
	}
	for _, tt := range tests {
		if got := s.Current(tt.t); got != tt.want {
			t.Errorf("%s: Current(%s) = %s, want %s", tt.name, tt.t.Format("Mon 15:04"), got, tt.want)
		}
	}
}

func TestCurrent_ConvertsFromOtherZones(t *testing.T) {
	s := NewDefaultService()
	// 01:30 UTC Tuesday = 09:30 UTC+8 Tuesday
	utc := time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)
	if got := s.Current(utc); got != models.SessionEstimate {
		t.Errorf("Current = %s, want ESTIMATE_WINDOW", got)
	}
	// 16:00 UTC Friday = 00:00 UTC+8 Saturday
	utc = time.Date(2024, 3, 8, 16, 0, 0, 0, time.UTC)
	if s.IsTradingDay(utc) {
		t.Error("expected Saturday in UTC+8 to be non-trading")
	}
}

func TestExpectedTradingDate(t *testing.T) {
	s := NewDefaultService()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"sunday", at(10, 20, 0), "2024-03-08"},
		{"saturday", at(9, 8, 0), "2024-03-08"},
		{"monday before open", at(11, 9, 29), "2024-03-08"},
		{"monday at open", at(11, 9, 30), "2024-03-11"},
		{"wednesday early", at(6, 7, 0), "2024-03-05"},
		{"wednesday evening", at(6, 19, 0), "2024-03-06"},
		{"month boundary", time.Date(2024, 4, 1, 8, 0, 0, 0, China), "2024-03-29"},
	}
	for _, tt := range tests {
		if got := s.ExpectedTradingDate(tt.t); got != tt.want {
			t.Errorf("%s: ExpectedTradingDate = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestEstimateOnly(t *testing.T) {
	s := NewDefaultService()
	if s.EstimateOnly(at(5, 8, 59)) {
		t.Error("08:59 should not be estimate-only")
	}
	if !s.EstimateOnly(at(5, 9, 0)) {
		t.Error("09:00 on a weekday should be estimate-only")
	}
	if !s.EstimateOnly(at(5, 20, 0)) {
		t.Error("weekday evening should be estimate-only")
	}
	if s.EstimateOnly(at(9, 12, 0)) {
		t.Error("saturday should not be estimate-only")
	}
}

func TestIsManualRealFetchTime(t *testing.T) {
	s := NewDefaultService()
	cases := map[time.Time]bool{
		at(5, 9, 19):  true,
		at(5, 9, 20):  false,
		at(5, 17, 59): false,
		at(5, 18, 0):  true,
		at(5, 23, 0):  true,
		at(5, 0, 5):   true,
	}
	for tm, want := range cases {
		if got := s.IsManualRealFetchTime(tm); got != want {
			t.Errorf("IsManualRealFetchTime(%s) = %v, want %v", tm.Format("15:04"), got, want)
		}
	}
}

func TestNewService_CustomWindows(t *testing.T) {
	cfg := common.NewDefaultConfig().Session
	cfg.MorningStart = "09:00"
	cfg.EveningEnd = "23:00"
	s, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if got := s.Current(at(5, 9, 5)); got != models.SessionEstimate {
		t.Errorf("Current(09:05) = %s, want ESTIMATE_WINDOW", got)
	}
	if got := s.Current(at(5, 22, 30)); got != models.SessionReal {
		t.Errorf("Current(22:30) = %s, want REAL_WINDOW", got)
	}

	cfg.AfternoonEnd = "late"
	if _, err := NewService(cfg); err == nil {
		t.Error("expected error for invalid boundary")
	}
}

func TestInfo(t *testing.T) {
	info := NewDefaultService().Info(at(5, 19, 0))
	if info.State != models.SessionReal || !info.TradingDay || !info.ManualRealFetch {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Today != "2024-03-05" || info.ExpectedDate != "2024-03-05" {
		t.Errorf("unexpected dates: %+v", info)
	}
}
