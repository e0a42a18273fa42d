// Package dex keeps an in-memory index of the trading pairs of one decentralized
// exchange and prices them in USD from the cached data alone.
package dex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "dex").Logger()
}

// DefaultInitLimit is the number of pairs fetched by Initialize when no limit is given
const DefaultInitLimit = 200

var (
	ErrPairNotExist         = errors.New("pair does not exist")
	ErrPairNotFoundOnRemote = errors.New("pair not found on remote")
	ErrPairIDUnavailable    = errors.New("pair id cannot be derived locally")
)

// Dex owns the pair cache of one exchange deployment
type Dex struct {
	name  string
	chain chain.Chain
	// Factory contract address or a location (e.g. a pallet on Polkadot chains),
	// the only identification of the dex
	factory string
	ext     Extension
	// Optional CREATE2 init code hash enabling local pair id derivation
	initCodeHash *common.Hash

	mu        sync.RWMutex
	pairs     map[string]models.Pair // pair id -> pair
	ids       map[string]string      // lookup key -> pair id
	order     []string               // pair ids in fetch order
	pairCount int                    // pair count reported by the source
}

// Option configures a Dex.
type Option func(*Dex)

// WithInitCodeHash enables local pair id derivation for LoadPair.
func WithInitCodeHash(hash common.Hash) Option {
	return func(d *Dex) {
		d.initCodeHash = &hash
	}
}

// New creates an empty Dex bound to one chain and one data source.
func New(name string, c chain.Chain, factory string, ext Extension, opts ...Option) *Dex {
	d := &Dex{
		name:    name,
		chain:   c,
		factory: factory,
		ext:     ext,
		pairs:   make(map[string]models.Pair),
		ids:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dex) Name() string {
	return d.name
}

func (d *Dex) Chain() chain.Chain {
	return d.chain
}

func (d *Dex) Factory() string {
	return d.factory
}

func normalizeID(id string) string {
	return strings.ToLower(id)
}

// Initialize fetches up to limit pairs from the extension and rebuilds both indices.
// It returns the number of cached pairs. When a fetch fails the caches are left empty.
func (d *Dex) Initialize(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultInitLimit
	}

	count, err := d.ext.FetchPairCount(ctx)
	if err != nil {
		d.reset()
		return 0, fmt.Errorf("failed to fetch pair count of %s: %w", d.name, err)
	}
	log.Info().
		Str("dex", d.name).
		Int("count", count).
		Int("limit", limit).
		Msg("Got trading pairs, start fetching them")

	fetched, err := d.ext.FetchLimitedPairs(ctx, limit)
	if err != nil {
		d.reset()
		return 0, fmt.Errorf("failed to fetch pairs of %s: %w", d.name, err)
	}

	pairs := make(map[string]models.Pair, len(fetched))
	ids := make(map[string]string, len(fetched))
	order := make([]string, 0, len(fetched))
	for _, pair := range fetched {
		id := normalizeID(pair.ID)
		if _, exists := pairs[id]; !exists {
			order = append(order, id)
		}
		pairs[id] = pair
		ids[pair.LookupKey()] = id
	}

	d.mu.Lock()
	d.pairs = pairs
	d.ids = ids
	d.order = order
	d.pairCount = count
	d.mu.Unlock()

	log.Info().
		Str("dex", d.name).
		Str("chain", d.chain.Name()).
		Int("cached", len(order)).
		Msg("Dex initialized")
	return len(order), nil
}

func (d *Dex) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pairs = make(map[string]models.Pair)
	d.ids = make(map[string]string)
	d.order = nil
	d.pairCount = 0
}

// GetTokenPairs returns every cached pair holding token, oriented so that token0 is token.
func (d *Dex) GetTokenPairs(token models.Token) []models.Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pairs := make([]models.Pair, 0)
	for _, id := range d.order {
		pair := d.pairs[id]
		if pair.Token0.Equal(token) {
			pairs = append(pairs, pair)
			continue
		}
		if pair.Token1.Equal(token) {
			pairs = append(pairs, pair.Flip())
		}
	}
	return pairs
}

// GetPair returns the pair of the two tokens oriented as requested, nil when it is not cached.
func (d *Dex) GetPair(token0, token1 models.Token) *models.Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.getPair(token0, token1)
}

// getPair expects the read lock to be held
func (d *Dex) getPair(token0, token1 models.Token) *models.Pair {
	id, ok := d.ids[models.PairKey(token0, token1)]
	if !ok {
		return nil
	}

	pair, ok := d.pairs[id]
	if !ok {
		return nil
	}
	if !pair.Token0.Equal(token0) {
		pair = pair.Flip()
	}
	return &pair
}

// PredictPairID derives the pair id locally through CREATE2. ok is false when the dex
// has no init code hash or an id is not an EVM address.
func (d *Dex) PredictPairID(token0, token1 models.Token) (string, bool) {
	if d.initCodeHash == nil {
		return "", false
	}
	return predictPairID(d.factory, token0.ID, token1.ID, *d.initCodeHash)
}

// LoadPair returns the pair of the two tokens, fetching it from the source when it is not cached.
// The pair id of an uncached pair is derived locally, without it ErrPairIDUnavailable is returned
// and the pair has to come from Initialize. A pair unknown to the source yields nil without an error.
func (d *Dex) LoadPair(ctx context.Context, token0, token1 models.Token) (*models.Pair, error) {
	if pair := d.GetPair(token0, token1); pair != nil {
		return pair, nil
	}

	id, ok := d.PredictPairID(token0, token1)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s on %s", ErrPairIDUnavailable, token0.Symbol, token1.Symbol, d.name)
	}

	fetched, err := d.ext.FetchSinglePair(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pair %s from %s: %w", id, d.name, err)
	}
	if fetched == nil {
		return nil, nil
	}

	d.mu.Lock()
	if _, exists := d.pairs[id]; !exists {
		d.order = append(d.order, id)
	}
	d.pairs[id] = *fetched
	d.ids[fetched.LookupKey()] = id
	d.mu.Unlock()

	log.Debug().Str("dex", d.name).Str("pair", id).Msg("Loaded pair from derived address")

	pair := *fetched
	if !pair.Token0.Equal(token0) {
		pair = pair.Flip()
	}
	return &pair, nil
}

// GetPairByID returns the cached pair with the given id, nil when absent.
func (d *Dex) GetPairByID(id string) *models.Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pair, ok := d.pairs[normalizeID(id)]
	if !ok {
		return nil
	}
	return &pair
}

// GetPairs returns every cached pair in fetch order.
func (d *Dex) GetPairs() []models.Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pairs := make([]models.Pair, 0, len(d.order))
	for _, id := range d.order {
		pairs = append(pairs, d.pairs[id])
	}
	return pairs
}

// Len is the number of cached pairs.
func (d *Dex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// PairCount is the number of pairs the source reported during the last initialization.
func (d *Dex) PairCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pairCount
}

// UpdatePair re-fetches one cached pair and replaces it.
// When the source no longer knows the pair the stale value is kept and ErrPairNotFoundOnRemote is returned.
func (d *Dex) UpdatePair(ctx context.Context, id string) (*models.Pair, error) {
	key := normalizeID(id)

	d.mu.RLock()
	old, exists := d.pairs[key]
	d.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPairNotExist, id)
	}

	fresh, err := d.ext.FetchSinglePair(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pair %s from %s: %w", id, d.name, err)
	}
	if fresh == nil {
		log.Warn().Str("dex", d.name).Str("pair", id).Msg("Pair not found on remote, keeping cached value")
		return nil, fmt.Errorf("%w: %s", ErrPairNotFoundOnRemote, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, stillCached := d.pairs[key]; !stillCached {
		// Initialize replaced the caches while we were fetching
		return nil, fmt.Errorf("%w: %s", ErrPairNotExist, id)
	}
	if oldKey := old.LookupKey(); oldKey != fresh.LookupKey() && d.ids[oldKey] == key {
		delete(d.ids, oldKey)
	}
	d.pairs[key] = *fresh
	d.ids[fresh.LookupKey()] = key

	updated := *fresh
	return &updated, nil
}
