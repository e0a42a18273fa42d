// Package chain describes the blockchains the dexes and bridges live on.
// A chain carries the two tokens used as pricing anchors and can report its
// latest block height through the node's JSON-RPC endpoint.
package chain

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "chain").Logger()
}

// Kind of backend a chain is reached through
type Kind string

const (
	KindEVM       Kind = "evm"
	KindSubstrate Kind = "substrate"
)

// Chain is the contract consumed by the dex and bridge packages.
// NativeWrap and StableCoin may be nil, pricing then reports unknown capacities.
type Chain interface {
	Name() string
	Kind() Kind
	NativeWrap() *models.Token
	StableCoin() *models.Token
	// LatestBlock is advisory, it is never needed for pricing
	LatestBlock(ctx context.Context) (uint64, error)
}

// Anchors holds the reference tokens of a chain
type Anchors struct {
	NativeWrap *models.Token
	// Stable coins ordered by preference, the first one is the pricing anchor
	StableCoins []models.Token
}

// descriptor is embedded by every chain implementation
type descriptor struct {
	name    string
	rpcURL  string
	anchors Anchors
}

func (d *descriptor) Name() string {
	return d.name
}

func (d *descriptor) RPC() string {
	return d.rpcURL
}

func (d *descriptor) NativeWrap() *models.Token {
	if d.anchors.NativeWrap == nil {
		return nil
	}
	token := *d.anchors.NativeWrap
	return &token
}

func (d *descriptor) StableCoin() *models.Token {
	if len(d.anchors.StableCoins) == 0 {
		return nil
	}
	token := d.anchors.StableCoins[0]
	return &token
}

// StableCoins returns every configured stable coin.
func (d *descriptor) StableCoins() []models.Token {
	out := make([]models.Token, len(d.anchors.StableCoins))
	copy(out, d.anchors.StableCoins)
	return out
}

// Static is a chain without a node connection. It is used for chains that only
// take part in bridges and in tests.
type Static struct {
	descriptor
	kind  Kind
	block uint64
}

// NewStatic creates a chain that always reports the given block height.
func NewStatic(name string, kind Kind, anchors Anchors, block uint64) *Static {
	return &Static{
		descriptor: descriptor{name: name, anchors: anchors},
		kind:       kind,
		block:      block,
	}
}

func (s *Static) Kind() Kind {
	return s.kind
}

func (s *Static) LatestBlock(ctx context.Context) (uint64, error) {
	return s.block, nil
}
