package orderservice

import (
	"testing"

	"ocengine/internal/model"
)

func TestRoundToTick(t *testing.T) {
	cases := []struct{ price, tick, want float64 }{
		{100.23, 0.1, 100.2},
		{100.27, 0.1, 100.3},
		{100.0, 0, 100.0},
		{0.073412, 0.00001, 0.07341},
	}
	for _, c := range cases {
		if got := roundToTick(c.price, c.tick); !approxEq(got, c.want, 1e-9) {
			t.Errorf("roundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}

func TestFloorToStep(t *testing.T) {
	cases := []struct{ qty, step, want float64 }{
		{1.2345, 0.001, 1.234},
		{1.2345, 0, 1.2345},
		{0.0009, 0.001, 0},
	}
	for _, c := range cases {
		if got := floorToStep(c.qty, c.step); !approxEq(got, c.want, 1e-9) {
			t.Errorf("floorToStep(%v, %v) = %v, want %v", c.qty, c.step, got, c.want)
		}
	}
}

func TestResolveQuantityBumpsOneStepForMinNotional(t *testing.T) {
	f := model.SymbolFilter{StepSize: 0.01, MinNotional: 10}
	qty, err := resolveQuantity(9.5, 100, f) // floor(0.095/0.01)*0.01 = 0.09 -> notional 9 < 10
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEq(qty, 0.10, 1e-9) {
		t.Errorf("qty = %v, want 0.10 after one step bump", qty)
	}
}

func TestResolveQuantityFailsWhenStillUnderMinNotional(t *testing.T) {
	f := model.SymbolFilter{StepSize: 0.0001, MinNotional: 1000}
	_, err := resolveQuantity(1, 100, f)
	if err == nil {
		t.Fatal("expected precision error")
	}
}

func TestResolveQuantityNonPositiveEntryIsValidationError(t *testing.T) {
	_, err := resolveQuantity(100, 0, model.SymbolFilter{})
	if err == nil {
		t.Fatal("expected validation error for non-positive entry")
	}
}

func approxEq(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
