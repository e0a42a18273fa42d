// Package bridge binds assets across two chains so a token on one side can be
// resolved to its counterpart on the other.
package bridge

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "bridge").Logger()
}

var (
	ErrBridgePairExists  = errors.New("pair already exists")
	ErrTokenAlreadyBound = errors.New("token already bound to another asset")
)

// BridgedAsset is the counterpart of a token on the other side of a bridge
type BridgedAsset struct {
	Chain chain.Chain
	Token models.Token
}

// Bridge holds the token bindings between chain0 and chain1.
// Token0 of every pair lives on chain0, Token1 on chain1.
type Bridge struct {
	chain0 chain.Chain
	chain1 chain.Chain

	mu    sync.RWMutex
	pairs []models.BridgePair
	// bridge pair ids already registered
	bound map[string]struct{}
	// lower-cased token ids of both sides
	tokens map[string]struct{}
}

func New(chain0, chain1 chain.Chain) *Bridge {
	return &Bridge{
		chain0: chain0,
		chain1: chain1,
		bound:  make(map[string]struct{}),
		tokens: make(map[string]struct{}),
	}
}

// Chains returns both ends of the bridge
func (b *Bridge) Chains() (chain.Chain, chain.Chain) {
	return b.chain0, b.chain1
}

// AddBridgePair registers a binding. A pair already registered in either orientation
// yields ErrBridgePairExists, a token already bound in another pair yields ErrTokenAlreadyBound.
// The bridge is left unchanged on error.
func (b *Bridge) AddBridgePair(pair models.BridgePair) error {
	id := pair.ID()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.bound[id]; exists {
		return fmt.Errorf("%w: %s/%s", ErrBridgePairExists, pair.Token0.Symbol, pair.Token1.Symbol)
	}
	for _, token := range []models.Token{pair.Token0, pair.Token1} {
		if _, exists := b.tokens[token.Key()]; exists {
			return fmt.Errorf("%w: %s (%s)", ErrTokenAlreadyBound, token.Symbol, token.ID)
		}
	}

	b.pairs = append(b.pairs, pair)
	b.bound[id] = struct{}{}
	b.tokens[pair.Token0.Key()] = struct{}{}
	b.tokens[pair.Token1.Key()] = struct{}{}

	log.Debug().
		Str("chain0", b.chain0.Name()).
		Str("chain1", b.chain1.Name()).
		Str("token0", pair.Token0.Symbol).
		Str("token1", pair.Token1.Symbol).
		Msg("Bridge pair added")
	return nil
}

// GetBridgedAsset returns the counterpart of token, nil when the token is not bridged.
// A chain0 token resolves to chain1 and the other way round.
func (b *Bridge) GetBridgedAsset(token models.Token) *BridgedAsset {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, pair := range b.pairs {
		if pair.Token0.Equal(token) {
			return &BridgedAsset{Chain: b.chain1, Token: pair.Token1}
		}
		if pair.Token1.Equal(token) {
			return &BridgedAsset{Chain: b.chain0, Token: pair.Token0}
		}
	}
	return nil
}

// Pairs returns the bindings in registration order
func (b *Bridge) Pairs() []models.BridgePair {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pairs := make([]models.BridgePair, len(b.pairs))
	copy(pairs, b.pairs)
	return pairs
}

func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pairs)
}

// ToJSON returns a one-way snapshot of the bridge for export tooling
func (b *Bridge) ToJSON() models.BridgeJSON {
	pairs := b.Pairs()
	out := models.BridgeJSON{
		Chain0: b.chain0.Name(),
		Chain1: b.chain1.Name(),
		Tokens: make([]string, 0, len(pairs)),
		Pairs:  make([]models.BridgePairJSON, 0, len(pairs)),
	}
	for _, pair := range pairs {
		out.Tokens = append(out.Tokens, pair.Token0.ID)
		out.Pairs = append(out.Pairs, models.BridgePairJSON{
			ID:       pair.ID(),
			Token0:   pair.Token0.Symbol,
			Token0ID: pair.Token0.ID,
			Token1:   pair.Token1.Symbol,
			Token1ID: pair.Token1.ID,
		})
	}
	return out
}
