// Package validator decides whether a detected opportunity is worth admitting.
// Every function here is pure; a rejection is an ordinary result carrying a
// reason code, never an error.
package validator

import "math"

// Reason is the code attached to a rejection.
type Reason string

const (
	ReasonBelowThreshold        Reason = "below_threshold"
	ReasonInsufficientLiquidity Reason = "insufficient_liquidity"
	ReasonSlippageExceeded      Reason = "slippage_exceeded"
	ReasonInvalidQuote          Reason = "invalid_quote"
)

// epsilon absorbs float noise so that an edge computed as exactly the
// threshold is accepted.
const epsilon = 1e-9

// Decision is the outcome of a validation.
type Decision struct {
	Accepted bool
	Reason   Reason
	// EdgePct is the edge the decision was based on: the same-market edge,
	// the cross-venue net, or the fair-value gap, in percent.
	EdgePct float64
}

func accept(edge float64) Decision { return Decision{Accepted: true, EdgePct: edge} }

func reject(r Reason, edge float64) Decision { return Decision{Reason: r, EdgePct: edge} }

// SameMarketConfig holds the thresholds for complementary-outcome arbitrage.
type SameMarketConfig struct {
	MinProfitThresholdPct float64
	MaxTradeSizeUSDC      float64
	SlippageTolerancePct  float64
}

// SameMarketQuote is a YES/NO pair as seen on the book.
type SameMarketQuote struct {
	YesAsk       float64
	NoAsk        float64
	YesLiquidity float64 // USDC available on the YES asks
	NoLiquidity  float64 // USDC available on the NO asks
	SlippagePct  float64 // projected execution slippage
}

// CombinedCost is the price of one YES+NO pair.
func (q SameMarketQuote) CombinedCost() float64 { return q.YesAsk + q.NoAsk }

// EdgePct is (1 - combined cost) in percent.
func (q SameMarketQuote) EdgePct() float64 { return (1 - q.CombinedCost()) * 100 }

// SameMarket checks, in order: edge against the threshold, liquidity on both
// sides against the trade size, then slippage against the tolerance. The
// first failing check names the rejection.
func SameMarket(q SameMarketQuote, cfg SameMarketConfig) Decision {
	if !probability(q.YesAsk) || !probability(q.NoAsk) {
		return reject(ReasonInvalidQuote, 0)
	}
	edge := q.EdgePct()
	if edge+epsilon < cfg.MinProfitThresholdPct {
		return reject(ReasonBelowThreshold, edge)
	}
	if math.Min(q.YesLiquidity, q.NoLiquidity)+epsilon < cfg.MaxTradeSizeUSDC {
		return reject(ReasonInsufficientLiquidity, edge)
	}
	if q.SlippagePct > cfg.SlippageTolerancePct+epsilon {
		return reject(ReasonSlippageExceeded, edge)
	}
	return accept(edge)
}

// CrossVenueQuote describes buying on one venue and selling on another.
type CrossVenueQuote struct {
	RawSpreadPct float64
	FeePct       float64
	SlippagePct  float64
}

// NetPct is the spread left after fees and slippage.
func (q CrossVenueQuote) NetPct() float64 {
	return q.RawSpreadPct - q.FeePct - q.SlippagePct
}

// CrossVenue accepts when the net spread reaches thresholdPct.
func CrossVenue(q CrossVenueQuote, thresholdPct float64) Decision {
	net := q.NetPct()
	if math.IsNaN(net) || math.IsInf(net, 0) {
		return reject(ReasonInvalidQuote, 0)
	}
	if net+epsilon < thresholdPct {
		return reject(ReasonBelowThreshold, net)
	}
	return accept(net)
}

// FairValue accepts when a model probability and a market price disagree by
// at least minEdgePct percentage points, in either direction. The sign of
// Decision.EdgePct tells the caller which outcome is cheap.
func FairValue(fair, price, minEdgePct float64) Decision {
	if !probability(fair) || !probability(price) {
		return reject(ReasonInvalidQuote, 0)
	}
	edge := (fair - price) * 100
	if math.Abs(edge)+epsilon < minEdgePct {
		return reject(ReasonBelowThreshold, edge)
	}
	return accept(edge)
}

func probability(p float64) bool {
	return p > 0 && p < 1
}
