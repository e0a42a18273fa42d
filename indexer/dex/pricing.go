package dex

import (
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

// GetCapacity estimates the USD liquidity of one side of pair from the cached pairs.
// ok is false when the capacity cannot be priced.
//
// Handles these cases:
//   - a side is the stable coin: that side's reserve
//   - a side is the native wrap token: wrap/stable rate * that side's reserve
//   - neither: one hop through the (token0, native wrap) pair, token0/wrap rate * wrap/stable rate * reserve0
//
// Only token0 is ever routed through the native wrap token, a pair whose token1 is the
// only one paired against the wrap token stays unpriced. There is no deeper path search.
func (d *Dex) GetCapacity(pair models.Pair) (decimal.Decimal, bool) {
	wrap := d.chain.NativeWrap()
	stable := d.chain.StableCoin()
	if wrap == nil || stable == nil {
		return decimal.Zero, false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	anchor := d.getPair(*wrap, *stable)
	if anchor == nil {
		return decimal.Zero, false
	}

	switch {
	case pair.Token0.Equal(*stable):
		return pair.Reserve0, true
	case pair.Token1.Equal(*stable):
		return pair.Reserve1, true
	}

	wrapRate, ok := anchor.Rate0()
	if !ok {
		return decimal.Zero, false
	}

	switch {
	case pair.Token0.Equal(*wrap):
		return wrapRate.Mul(pair.Reserve0), true
	case pair.Token1.Equal(*wrap):
		return wrapRate.Mul(pair.Reserve1), true
	}

	hop := d.getPair(pair.Token0, *wrap)
	if hop == nil {
		return decimal.Zero, false
	}
	hopRate, ok := hop.Rate0()
	if !ok {
		return decimal.Zero, false
	}
	return hopRate.Mul(wrapRate).Mul(pair.Reserve0), true
}

// ToJSON returns a one-way snapshot of the cached pairs for export tooling.
func (d *Dex) ToJSON() models.DexJSON {
	pairs := d.GetPairs()
	out := models.DexJSON{
		Chain: d.chain.Name(),
		Pairs: make([]models.PairJSON, 0, len(pairs)),
	}

	for _, pair := range pairs {
		entry := models.PairJSON{
			Token0:   pair.Token0.Symbol,
			Token0ID: pair.Token0.ID,
			Reserve0: pair.Reserve0.InexactFloat64(),
			Token1:   pair.Token1.Symbol,
			Token1ID: pair.Token1.ID,
			Reserve1: pair.Reserve1.InexactFloat64(),
			Dex:      d.name,
		}
		if rate, ok := pair.Rate0(); ok {
			entry.Rate = rate.InexactFloat64()
		}
		if capacity, ok := d.GetCapacity(pair); ok {
			c := capacity.InexactFloat64()
			entry.Cap = &c
		}
		out.Pairs = append(out.Pairs, entry)
	}
	return out
}
