package orderservice

import (
	"math"

	"ocengine/internal/errs"
	"ocengine/internal/model"
)

// roundToTick rounds price to the nearest multiple of tickSize (spec.md
// §4.7). A zero or negative tickSize means "no rounding" (venue reports no
// precision constraint).
func roundToTick(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Round(price/tickSize) * tickSize
}

// floorToStep floors quantity down to the nearest multiple of stepSize.
func floorToStep(qty, stepSize float64) float64 {
	if stepSize <= 0 {
		return qty
	}
	return math.Floor(qty/stepSize) * stepSize
}

// resolveQuantity derives the order quantity from notional amount and
// entry price, flooring to step_size and bumping one step up if the
// resulting notional is under min_notional, per spec.md §4.7. Returns an
// errs.Precision error if even one step up cannot clear min_notional.
func resolveQuantity(amount, entry float64, f model.SymbolFilter) (float64, error) {
	if entry <= 0 {
		return 0, errs.Validation(errQty("entry price must be positive"))
	}
	qty := floorToStep(amount/entry, f.StepSize)
	if qty <= 0 {
		return 0, errs.Precision(errQty("quantity rounds to zero at this step size"))
	}

	if f.MinNotional > 0 && qty*entry < f.MinNotional {
		step := f.StepSize
		if step <= 0 {
			step = qty // no step size known: double as a last resort
		}
		qty += step
		if qty*entry < f.MinNotional {
			return 0, errs.Precision(errQty("quantity below min_notional even after one step up"))
		}
	}
	return qty, nil
}

type qtyErr string

func (e qtyErr) Error() string { return string(e) }

func errQty(msg string) error { return qtyErr(msg) }
