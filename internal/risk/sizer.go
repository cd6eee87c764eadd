package risk

import (
	"math"

	"github.com/rs/zerolog/log"
)

// SizeRequest carries everything the sizer needs. The lot step is
// injected by the exchange adapter; it is never computed here.
type SizeRequest struct {
	Capital        float64 // realized equity in quote currency
	RiskPerTrade   float64 // percent of capital risked per trade
	EntryPrice     float64
	StopLossPrice  float64
	MaxExposurePct float64 // max portfolio exposure, percent of capital
	OpenNotional   float64 // notional already committed to open positions
	LotStep        float64 // exchange minimum lot increment, 0 to skip rounding
}

// SizeResult is the sized order before placement.
type SizeResult struct {
	Amount     float64 // base-currency units
	Notional   float64 // Amount × EntryPrice
	RiskAmount float64 // quote currency at risk if the stop is hit
}

// SizePosition converts a signal plus account state into a concrete
// order amount respecting per-trade risk and the portfolio exposure
// cap. Pure function of its inputs.
func SizePosition(req SizeRequest) (SizeResult, error) {
	if req.EntryPrice <= 0 || math.IsNaN(req.EntryPrice) || math.IsInf(req.EntryPrice, 0) {
		return SizeResult{}, ErrInvalidMarketPrice
	}

	riskAmount := req.Capital * req.RiskPerTrade / 100
	perUnitRisk := math.Abs(req.EntryPrice - req.StopLossPrice)
	if perUnitRisk <= 0 || math.IsNaN(perUnitRisk) {
		return SizeResult{}, ErrInvalidStopDistance
	}

	amount := riskAmount / perUnitRisk

	// Cap to the remaining exposure budget.
	budget := req.MaxExposurePct/100*req.Capital - req.OpenNotional
	if maxAmount := budget / req.EntryPrice; amount > maxAmount {
		log.Debug().
			Float64("raw_amount", amount).
			Float64("capped_amount", maxAmount).
			Float64("budget", budget).
			Msg("Position size capped by exposure budget")
		amount = maxAmount
	}
	if amount <= 0 {
		return SizeResult{}, ErrExposureLimitExceeded
	}

	if req.LotStep > 0 {
		amount = math.Floor(amount/req.LotStep) * req.LotStep
		if amount <= 0 {
			return SizeResult{}, ErrExposureLimitExceeded
		}
	}

	return SizeResult{
		Amount:     amount,
		Notional:   amount * req.EntryPrice,
		RiskAmount: riskAmount,
	}, nil
}

// StopLossPrice derives a stop level from a percent distance for the
// given side. LONG stops sit below entry, SHORT stops above.
func StopLossPrice(entryPrice, stopPct float64, long bool) float64 {
	if long {
		return entryPrice * (1 - stopPct/100)
	}
	return entryPrice * (1 + stopPct/100)
}

// ATRStopLossPrice derives a stop level from a volatility distance of
// mult average true ranges. LONG stops sit below entry, SHORT above.
func ATRStopLossPrice(entryPrice, atr, mult float64, long bool) float64 {
	if long {
		return entryPrice - mult*atr
	}
	return entryPrice + mult*atr
}

// TakeProfitPrice derives a take-profit level from a percent distance
// for the given side.
func TakeProfitPrice(entryPrice, tpPct float64, long bool) float64 {
	if long {
		return entryPrice * (1 + tpPct/100)
	}
	return entryPrice * (1 - tpPct/100)
}
