package exchange

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/engine"
	"tradepulse/internal/position"
)

// PaperExecutor simulates order fills against live quotes. Fills land
// at the last price adjusted for slippage, with taker fees charged on
// the filled notional.
type PaperExecutor struct {
	prices      engine.MarketData
	takerFeePct float64
	slippagePct float64
}

// NewPaperExecutor builds a paper-trading executor. Fee and slippage
// are percentages, e.g. 0.1 for 0.1%.
func NewPaperExecutor(prices engine.MarketData, takerFeePct, slippagePct float64) *PaperExecutor {
	return &PaperExecutor{prices: prices, takerFeePct: takerFeePct, slippagePct: slippagePct}
}

// PlaceOrder fills immediately at the quoted price shifted against the
// taker by the configured slippage.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, symbol string, side position.Side, amount float64) (engine.Fill, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return engine.Fill{}, fmt.Errorf("invalid order amount %f for %s", amount, symbol)
	}

	price, err := p.prices.LatestPrice(ctx, symbol)
	if err != nil {
		return engine.Fill{}, fmt.Errorf("paper fill for %s: %w", symbol, err)
	}

	fillPrice := price * (1 + p.slippagePct/100*side.Sign())
	fees := fillPrice * amount * p.takerFeePct / 100

	log.Debug().
		Str("symbol", symbol).
		Str("side", side.String()).
		Float64("amount", amount).
		Float64("fill_price", fillPrice).
		Float64("fees", fees).
		Msg("paper order filled")

	return engine.Fill{Price: fillPrice, Fees: fees}, nil
}
