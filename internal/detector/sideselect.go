// Package detector implements the OC match engine: bucket resolution via
// the Open-Price Cache, the OC% threshold test, side selection, and
// entry/TP/SL pricing (spec.md §4.5-§4.7).
package detector

import "ocengine/internal/model"

// SelectSide maps (direction, trade_type, is_reverse_strategy) to an
// actionable side or SideNone (skip), per the table in spec.md §4.6.
func SelectSide(direction model.Direction, tradeType model.TradeType, isReverse bool) model.Side {
	bullish := direction == model.DirectionBullish

	if !isReverse {
		switch tradeType {
		case model.TradeLong:
			if bullish {
				return model.SideLong
			}
			return model.SideNone
		case model.TradeShort:
			if bullish {
				return model.SideNone
			}
			return model.SideShort
		case model.TradeBoth:
			if bullish {
				return model.SideLong
			}
			return model.SideShort
		default:
			return model.SideNone
		}
	}

	// Counter-trend: invert the trend-following mapping.
	switch tradeType {
	case model.TradeLong:
		if bullish {
			return model.SideNone
		}
		return model.SideLong
	case model.TradeShort:
		if bullish {
			return model.SideShort
		}
		return model.SideNone
	case model.TradeBoth:
		if bullish {
			return model.SideShort
		}
		return model.SideLong
	default:
		return model.SideNone
	}
}
