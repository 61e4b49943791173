package detector

import (
	"math"

	"ocengine/internal/model"
)

// EntryPlan is the computed entry/TP/SL for one match, before filter
// rounding (spec.md §4.7). Delta is carried alongside Entry so a resting
// LIMIT order's admission can be re-checked against later ticks via
// ExtendAdmission without recomputing the original pullback.
type EntryPlan struct {
	Side         model.Side
	Entry        float64
	Delta        float64 // |triggering current − open|; 0 for MARKET plans
	TakeProfit   float64
	StopLoss     float64 // 0 if HasSL is false
	HasSL        bool
	RestingLimit bool // true for counter-trend: order rests as LIMIT until filled or extend-admission fails
	Skip         bool
	SkipReason   string
}

// ComputeEntry derives the entry price: trend-following strategies submit
// MARKET at the triggering price; counter-trend (is_reverse_strategy)
// strategies submit a LIMIT at a pullback price computed from the extend
// percentage. current is the triggering tick price, open is the resolved
// bucket open. The resulting LIMIT order's continued validity against
// later ticks is checked by ExtendAdmission, not here — at the moment of
// computation the pullback fraction always equals extend/100 by
// construction, so there is nothing to admit or reject yet.
func ComputeEntry(st model.Strategy, side model.Side, current, open float64) EntryPlan {
	if side == model.SideNone {
		return EntryPlan{Side: model.SideNone, Skip: true, SkipReason: "side selection produced no side"}
	}

	if !st.IsReverseStrategy {
		plan := EntryPlan{Side: side, Entry: current}
		plan.TakeProfit, plan.StopLoss, plan.HasSL = takeProfitStopLoss(st, side, current)
		return plan
	}

	delta := math.Abs(current - open)
	extendRatio := float64(st.Extend) / 100
	var entry float64
	switch side {
	case model.SideLong:
		entry = current - extendRatio*delta
	case model.SideShort:
		entry = current + extendRatio*delta
	}

	plan := EntryPlan{Side: side, Entry: entry, Delta: delta, RestingLimit: true}
	plan.TakeProfit, plan.StopLoss, plan.HasSL = takeProfitStopLoss(st, side, entry)
	return plan
}

// ExtendAdmission reports whether a resting counter-trend LIMIT order
// placed at entry (with its triggering delta) is still worth keeping given
// a later live price: the market must not have run more than
// maxExtendDiffRatio × delta past the target entry (spec.md §8 S4).
// diffRatio == maxExtendDiffRatio is inclusive (still admitted).
func ExtendAdmission(entry, delta, livePrice, maxExtendDiffRatio float64) bool {
	if delta <= 0 {
		return true
	}
	diffRatio := math.Abs(livePrice-entry) / delta
	return diffRatio <= maxExtendDiffRatio
}

func takeProfitStopLoss(st model.Strategy, side model.Side, entry float64) (tp, sl float64, hasSL bool) {
	tpPct := st.TakeProfitPercent() / 100
	switch side {
	case model.SideLong:
		tp = entry * (1 + tpPct)
	case model.SideShort:
		tp = entry * (1 - tpPct)
	}

	if !st.HasStopLoss() {
		return tp, 0, false
	}
	slPct := st.StopLossPercent() / 100
	switch side {
	case model.SideLong:
		sl = entry * (1 - slPct)
	case model.SideShort:
		sl = entry * (1 + slPct)
	}
	return tp, sl, true
}
