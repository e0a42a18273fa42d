package dex

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PairAddress derives a Uniswap V2 style pair address without touching the network:
// create2(factory, keccak256(token0 ++ token1), initCodeHash) with the tokens sorted.
func PairAddress(factory, tokenA, tokenB common.Address, initCodeHash common.Hash) common.Address {
	token0, token1 := tokenA, tokenB
	if bytes.Compare(token1.Bytes(), token0.Bytes()) < 0 {
		token0, token1 = token1, token0
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// ParseInitCodeHash parses a 32 byte hex encoded init code hash.
func ParseInitCodeHash(s string) (common.Hash, error) {
	raw := common.FromHex(s)
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("init code hash must be %d bytes, got %d", common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// predictPairID returns the lower-cased CREATE2 address of the pair when every
// input is an EVM address.
func predictPairID(factory, idA, idB string, initCodeHash common.Hash) (string, bool) {
	if !common.IsHexAddress(factory) || !common.IsHexAddress(idA) || !common.IsHexAddress(idB) {
		return "", false
	}
	addr := PairAddress(common.HexToAddress(factory), common.HexToAddress(idA), common.HexToAddress(idB), initCodeHash)
	return normalizeID(addr.Hex()), true
}
