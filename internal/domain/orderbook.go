package domain

import (
	"math"
	"time"
)

// PriceLevel is a single price level in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Book is an order book snapshot for one CLOB token, asks ascending and bids
// descending.
type Book struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestAsk returns the lowest ask, or 0 for an empty side.
func (b Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// BestBid returns the highest bid, or 0 for an empty side.
func (b Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// AskDepthUSDC sums price*size over the first depth ask levels. depth <= 0
// means the whole side.
func (b Book) AskDepthUSDC(depth int) float64 {
	var total float64
	for i, l := range b.Asks {
		if depth > 0 && i >= depth {
			break
		}
		total += l.Price * l.Size
	}
	return total
}

// VenueBook is a centralized-exchange order book for one trading pair.
type VenueBook struct {
	Venue     string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestAsk returns the lowest ask, or 0 for an empty side.
func (b VenueBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// BestBid returns the highest bid, or 0 for an empty side.
func (b VenueBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// WalkBuy fills usdc worth of asks and returns the volume-weighted price and
// the notional actually filled. An empty book returns +Inf.
func WalkBuy(asks []PriceLevel, usdc float64) (vwap, filled float64) {
	return walk(asks, usdc, math.Inf(1))
}

// WalkSell fills usdc worth of bids and returns the volume-weighted price and
// the notional actually filled. An empty book returns 0.
func WalkSell(bids []PriceLevel, usdc float64) (vwap, filled float64) {
	return walk(bids, usdc, 0)
}

func walk(levels []PriceLevel, usdc, empty float64) (float64, float64) {
	remaining := usdc
	var cost, qty float64
	for _, l := range levels {
		if l.Price <= 0 {
			continue
		}
		notional := l.Price * l.Size
		if remaining <= notional {
			q := remaining / l.Price
			cost += q * l.Price
			qty += q
			remaining = 0
			break
		}
		cost += notional
		qty += l.Size
		remaining -= notional
	}
	if qty == 0 {
		return empty, 0
	}
	return cost / qty, usdc - remaining
}
