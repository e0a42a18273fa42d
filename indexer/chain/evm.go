package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EvmChain reaches an EVM node through its JSON-RPC endpoint
type EvmChain struct {
	descriptor

	mu     sync.Mutex
	client *ethclient.Client
}

// NewEvmChain creates an EVM chain. The node is dialed lazily on the first block query.
func NewEvmChain(name, rpcURL string, anchors Anchors) *EvmChain {
	return &EvmChain{
		descriptor: descriptor{name: name, rpcURL: rpcURL, anchors: anchors},
	}
}

func (c *EvmChain) Kind() Kind {
	return KindEVM
}

func (c *EvmChain) dial(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s node: %w", c.name, err)
	}
	c.client = client
	return client, nil
}

// LatestBlock returns the current block number reported by the node.
func (c *EvmChain) LatestBlock(ctx context.Context) (uint64, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}

	block, err := client.BlockNumber(ctx)
	if err != nil {
		log.Debug().Err(err).Str("chain", c.name).Msg("Block number query failed")
		return 0, fmt.Errorf("failed to get latest block of %s: %w", c.name, err)
	}
	return block, nil
}

// Close releases the node connection.
func (c *EvmChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
