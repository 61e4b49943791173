package detector

import (
	"math"
	"testing"

	"ocengine/internal/model"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// TestComputeEntryCounterTrendLong mirrors spec.md §8 S1.
func TestComputeEntryCounterTrendLong(t *testing.T) {
	st := model.Strategy{
		Interval: "1m", OCThreshold: 3, TradeType: model.TradeLong,
		IsReverseStrategy: true, Extend: 50, TakeProfit: 55, StopLoss: 20, Amount: 100,
	}
	plan := ComputeEntry(st, model.SideLong, 0.07500, 0.07811)

	if !approxEqual(plan.Entry, 0.073445, 1e-6) {
		t.Errorf("Entry = %v, want ~0.073445", plan.Entry)
	}
	if !approxEqual(plan.TakeProfit, 0.077485, 1e-6) {
		t.Errorf("TakeProfit = %v, want ~0.077485", plan.TakeProfit)
	}
	if !plan.HasSL || !approxEqual(plan.StopLoss, 0.071976, 1e-6) {
		t.Errorf("StopLoss = %v (hasSL=%v), want ~0.071976", plan.StopLoss, plan.HasSL)
	}
	if !plan.RestingLimit {
		t.Error("expected RestingLimit=true for counter-trend entry")
	}
}

// TestComputeEntryTrendFollowing mirrors spec.md §8 S2.
func TestComputeEntryTrendFollowing(t *testing.T) {
	st := model.Strategy{TradeType: model.TradeBoth, IsReverseStrategy: false}
	plan := ComputeEntry(st, model.SideLong, 106.00, 100.00)

	if plan.Entry != 106.00 {
		t.Errorf("Entry = %v, want 106.00 (MARKET at trigger price)", plan.Entry)
	}
	if plan.RestingLimit {
		t.Error("trend-following plan must not be a resting limit")
	}
}

func TestComputeEntrySideNoneSkips(t *testing.T) {
	plan := ComputeEntry(model.Strategy{}, model.SideNone, 100, 95)
	if !plan.Skip {
		t.Error("expected Skip=true when side is none")
	}
}

func TestComputeEntryExtendZeroEqualsCurrent(t *testing.T) {
	st := model.Strategy{IsReverseStrategy: true, Extend: 0}
	plan := ComputeEntry(st, model.SideLong, 0.0750, 0.07811)
	if plan.Entry != 0.0750 {
		t.Errorf("extend=0 entry = %v, want current 0.0750", plan.Entry)
	}
}

func TestComputeEntryExtendFullReachesOpen(t *testing.T) {
	st := model.Strategy{IsReverseStrategy: true, Extend: 100}
	plan := ComputeEntry(st, model.SideLong, 1.000, 0.900)
	if !approxEqual(plan.Entry, 0.900, 1e-9) {
		t.Errorf("extend=100 entry = %v, want open 0.900", plan.Entry)
	}
}

func TestComputeEntryNoStopLossWhenZero(t *testing.T) {
	st := model.Strategy{IsReverseStrategy: false, StopLoss: 0, TakeProfit: 30}
	plan := ComputeEntry(st, model.SideShort, 95, 100)
	if plan.HasSL {
		t.Error("stoploss=0 must produce HasSL=false")
	}
	if plan.StopLoss != 0 {
		t.Errorf("StopLoss = %v, want 0", plan.StopLoss)
	}
}

// TestExtendAdmission mirrors spec.md §8 S4 exactly.
func TestExtendAdmission(t *testing.T) {
	entry, delta := 0.950, 0.100
	cases := []struct {
		live float64
		want bool
	}{
		{0.990, true},  // diffRatio 0.40 <= 0.5
		{1.000, true},  // diffRatio 0.50 <= 0.5, inclusive
		{1.010, false}, // diffRatio 0.60 > 0.5
	}
	for _, c := range cases {
		got := ExtendAdmission(entry, delta, c.live, 0.5)
		if got != c.want {
			t.Errorf("ExtendAdmission(live=%v) = %v, want %v", c.live, got, c.want)
		}
	}
}

func TestExtendAdmissionZeroDeltaAlwaysAdmits(t *testing.T) {
	if !ExtendAdmission(100, 0, 500, 0.1) {
		t.Error("zero delta must always admit")
	}
}
