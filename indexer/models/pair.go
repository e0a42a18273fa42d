package models

import (
	"github.com/shopspring/decimal"
)

// RatePrecision is the number of decimal places kept when dividing reserves.
const RatePrecision int32 = 36

// Pair is a snapshot of a two token liquidity pool
type Pair struct {
	// Address or other representation of the pool, the only identification of the pair
	ID     string `json:"id"`
	Token0 Token  `json:"token0"`
	Token1 Token  `json:"token1"`
	// Liquidity held by the pool for each side
	Reserve0 decimal.Decimal `json:"reserve0"`
	Reserve1 decimal.Decimal `json:"reserve1"`
	// Prices as reported by the indexer, token0 priced in token1 and vice versa
	Price0 decimal.Decimal `json:"token0Price"`
	Price1 decimal.Decimal `json:"token1Price"`

	VolumeUSD decimal.NullDecimal `json:"volumeUSD"`
	// USD capacity of each side when the source reports it
	Capacity0 decimal.NullDecimal `json:"capacity0"`
	Capacity1 decimal.NullDecimal `json:"capacity1"`
	SwapFee   decimal.NullDecimal `json:"swapFee"`
	DevFee    decimal.NullDecimal `json:"devFee"`
}

// Flip returns the same pool seen from token1's side. The id, volume and fees are kept.
func (p Pair) Flip() Pair {
	return Pair{
		ID:        p.ID,
		Token0:    p.Token1,
		Token1:    p.Token0,
		Reserve0:  p.Reserve1,
		Reserve1:  p.Reserve0,
		Price0:    p.Price1,
		Price1:    p.Price0,
		VolumeUSD: p.VolumeUSD,
		Capacity0: p.Capacity1,
		Capacity1: p.Capacity0,
		SwapFee:   p.SwapFee,
		DevFee:    p.DevFee,
	}
}

// Reserves returns reserve0 and reserve1.
func (p Pair) Reserves() (decimal.Decimal, decimal.Decimal) {
	return p.Reserve0, p.Reserve1
}

// Prices returns the indexer reported prices of token0 and token1.
func (p Pair) Prices() (decimal.Decimal, decimal.Decimal) {
	return p.Price0, p.Price1
}

// Capacities returns the source reported capacities, if any.
func (p Pair) Capacities() (decimal.NullDecimal, decimal.NullDecimal) {
	return p.Capacity0, p.Capacity1
}

// Rate0 is the trading rate of token0 expressed in token1 (reserve1/reserve0).
// ok is false when reserve0 is zero.
func (p Pair) Rate0() (decimal.Decimal, bool) {
	return ratio(p.Reserve1, p.Reserve0)
}

// Rate1 is the trading rate of token1 expressed in token0 (reserve0/reserve1).
func (p Pair) Rate1() (decimal.Decimal, bool) {
	return ratio(p.Reserve0, p.Reserve1)
}

func ratio(numerator, denominator decimal.Decimal) (decimal.Decimal, bool) {
	if denominator.IsZero() {
		return decimal.Zero, false
	}
	return numerator.DivRound(denominator, RatePrecision), true
}

// Contains reports whether token is one of the two sides of the pair.
func (p Pair) Contains(token Token) bool {
	return p.Token0.Equal(token) || p.Token1.Equal(token)
}

// LookupKey is the order independent key of the pair's tokens.
func (p Pair) LookupKey() string {
	return PairKey(p.Token0, p.Token1)
}

// Equal compares every field of both pairs.
func (p Pair) Equal(other Pair) bool {
	return p.ID == other.ID &&
		p.Token0 == other.Token0 &&
		p.Token1 == other.Token1 &&
		p.Reserve0.Equal(other.Reserve0) &&
		p.Reserve1.Equal(other.Reserve1) &&
		p.Price0.Equal(other.Price0) &&
		p.Price1.Equal(other.Price1) &&
		nullEqual(p.VolumeUSD, other.VolumeUSD) &&
		nullEqual(p.Capacity0, other.Capacity0) &&
		nullEqual(p.Capacity1, other.Capacity1) &&
		nullEqual(p.SwapFee, other.SwapFee) &&
		nullEqual(p.DevFee, other.DevFee)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
