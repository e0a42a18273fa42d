package models

// BridgePair binds a token on a bridge's chain0 to its representation on chain1
type BridgePair struct {
	Token0 Token `json:"token0" toml:"token0"`
	Token1 Token `json:"token1" toml:"token1"`
}

// NewBridgePair creates a bridge pair.
func NewBridgePair(token0, token1 Token) BridgePair {
	return BridgePair{Token0: token0, Token1: token1}
}

// ID is stable when the two tokens are swapped.
func (bp BridgePair) ID() string {
	return OrderIndependentKey(bp.Token0.ID, bp.Token1.ID, SHA256)
}
