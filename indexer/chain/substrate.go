package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// substrateHeader is the part of the chain_getHeader answer we need
type substrateHeader struct {
	ParentHash string         `json:"parentHash"`
	Number     hexutil.Uint64 `json:"number"`
}

// SubstrateChain reaches a Substrate node through its JSON-RPC endpoint (ws or http)
type SubstrateChain struct {
	descriptor

	mu     sync.Mutex
	client *rpc.Client
}

// NewSubstrateChain creates a Substrate chain. The node is dialed lazily.
func NewSubstrateChain(name, rpcURL string, anchors Anchors) *SubstrateChain {
	return &SubstrateChain{
		descriptor: descriptor{name: name, rpcURL: rpcURL, anchors: anchors},
	}
}

func (c *SubstrateChain) Kind() Kind {
	return KindSubstrate
}

func (c *SubstrateChain) dial(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := rpc.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s node: %w", c.name, err)
	}
	c.client = client
	return client, nil
}

// LatestBlock returns the number of the best block header.
func (c *SubstrateChain) LatestBlock(ctx context.Context) (uint64, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}

	var header substrateHeader
	if err := client.CallContext(ctx, &header, "chain_getHeader"); err != nil {
		log.Debug().Err(err).Str("chain", c.name).Msg("Header query failed")
		return 0, fmt.Errorf("failed to get latest header of %s: %w", c.name, err)
	}
	return uint64(header.Number), nil
}

// Close releases the node connection.
func (c *SubstrateChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
