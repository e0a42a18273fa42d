package models

// PairJSON is one pair in a dex export
type PairJSON struct {
	// token0 symbol
	Token0   string  `json:"token0"`
	Token0ID string  `json:"token0Id"`
	Reserve0 float64 `json:"reserve0"`
	// token1 symbol
	Token1   string  `json:"token1"`
	Token1ID string  `json:"token1Id"`
	Reserve1 float64 `json:"reserve1"`
	// USD capacity of the pair, nil when it cannot be priced
	Cap *float64 `json:"cap"`
	// reserve1/reserve0
	Rate float64 `json:"rate"`
	// Name of the dex holding the pair
	Dex string `json:"dex"`
}

// DexJSON is the export of a single dex
type DexJSON struct {
	Chain string     `json:"chain"`
	Pairs []PairJSON `json:"pairs"`
}

// BridgePairJSON is one binding in a bridge export
type BridgePairJSON struct {
	ID       string `json:"id"`
	Token0   string `json:"token0"`
	Token0ID string `json:"token0Id"`
	Token1   string `json:"token1"`
	Token1ID string `json:"token1Id"`
}

// BridgeJSON is the export of a single bridge
type BridgeJSON struct {
	Chain0 string `json:"chain0"`
	Chain1 string `json:"chain1"`
	// Ids of the chain0 tokens that can cross the bridge
	Tokens []string         `json:"tokens"`
	Pairs  []BridgePairJSON `json:"pairs"`
}

// ChainPairsJSON groups the pairs of every dex deployed on one chain
type ChainPairsJSON struct {
	Name  string     `json:"name"`
	Pairs []PairJSON `json:"pairs"`
}

// GraphJSON is the full snapshot written by the export command
type GraphJSON struct {
	Chains  []ChainPairsJSON `json:"chains"`
	Bridges []BridgeJSON     `json:"bridges"`
}
