package models

import (
	"testing"
	"time"
)

func TestParsePlan(t *testing.T) {
	for _, name := range []string{"free", "standard", "premium"} {
		if _, err := ParsePlan(name); err != nil {
			t.Errorf("ParsePlan(%q): %v", name, err)
		}
	}
	if _, err := ParsePlan("gold"); err == nil {
		t.Error("ParsePlan(gold): want error")
	}
}

func TestPlanInfoEffective(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		info PlanInfo
		want Plan
	}{
		{"missing row", PlanInfo{}, PlanFree},
		{"free", PlanInfo{Plan: PlanFree}, PlanFree},
		{"standard no expiry", PlanInfo{Plan: PlanStandard}, PlanStandard},
		{"standard future expiry", PlanInfo{Plan: PlanStandard, ExpiresAt: &future}, PlanStandard},
		{"standard expired", PlanInfo{Plan: PlanStandard, ExpiresAt: &past}, PlanFree},
		{"standard expires exactly now", PlanInfo{Plan: PlanStandard, ExpiresAt: &now}, PlanFree},
		{"premium expired", PlanInfo{Plan: PlanPremium, ExpiresAt: &past}, PlanFree},
	}
	for _, tt := range tests {
		if got := tt.info.Effective(now); got != tt.want {
			t.Errorf("%s: Effective = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPeriodKeys(t *testing.T) {
	// 23:30 in UTC-3 is already the next day in UTC; keys must agree
	// regardless of the wall clock's zone.
	loc := time.FixedZone("UTC-3", -3*60*60)
	local := time.Date(2024, 1, 31, 23, 30, 0, 0, loc)

	if got := DayKey(local); got != "20240201" {
		t.Errorf("DayKey = %q, want 20240201", got)
	}
	if got := MonthKey(local); got != "202402" {
		t.Errorf("MonthKey = %q, want 202402", got)
	}
}
