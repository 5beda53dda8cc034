package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestHolding_AmountIgnoresNonFinite(t *testing.T) {
	h := Holding{CapitalA: 1000, CapitalB: math.NaN()}
	if got := h.Amount(); got != 1000 {
		t.Errorf("Amount() = %v, want 1000", got)
	}
	h = Holding{CapitalA: math.Inf(1), CapitalB: 250}
	if got := h.Amount(); got != 250 {
		t.Errorf("Amount() = %v, want 250", got)
	}
}

func TestProfitRow_NaNPercentEncodesAsNull(t *testing.T) {
	row := ProfitRow{Code: "000001", Percent: math.NaN()}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"percent":null`) {
		t.Errorf("expected null percent, got %s", data)
	}

	var back ProfitRow
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsNaN(back.Percent) {
		t.Errorf("expected NaN after decode, got %v", back.Percent)
	}
	if back.Code != "000001" {
		t.Errorf("expected code preserved, got %q", back.Code)
	}
}

func TestDisplayedPercent_EncodesValue(t *testing.T) {
	data, err := json.Marshal(DisplayedPercent{Percent: 1.25, IsReal: true})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"percent":1.25`) || !strings.Contains(string(data), `"is_real":true`) {
		t.Errorf("unexpected encoding: %s", data)
	}
}
