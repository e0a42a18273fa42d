// Package engine ties dexes and bridges together into one graph of liquidity
// spanning several chains.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/bridge"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var log zerolog.Logger

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "engine").Logger()
}

var ErrDexExists = errors.New("dex already registered")

// Engine owns every dex and bridge of the graph.
// Each dex is initialized by exactly one goroutine, readers can query while it happens.
type Engine struct {
	mu      sync.RWMutex
	dexes   []*dex.Dex
	bridges []*bridge.Bridge

	tracer  trace.Tracer
	metrics *metrics
	ready   atomic.Bool
}

func New() *Engine {
	return &Engine{
		tracer:  otel.Tracer(instrumentationName),
		metrics: newMetrics(),
	}
}

// AddDex registers a dex, names must be unique (case-sensitive)
func (e *Engine) AddDex(d *dex.Dex) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.dexes {
		if existing.Name() == d.Name() {
			return fmt.Errorf("%w: %s", ErrDexExists, d.Name())
		}
	}
	e.dexes = append(e.dexes, d)
	return nil
}

func (e *Engine) AddBridge(b *bridge.Bridge) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bridges = append(e.bridges, b)
}

// Dexes returns the dexes in registration order
func (e *Engine) Dexes() []*dex.Dex {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*dex.Dex, len(e.dexes))
	copy(out, e.dexes)
	return out
}

// Dex returns the dex with the given name, nil when unknown
func (e *Engine) Dex(name string) *dex.Dex {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, d := range e.dexes {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (e *Engine) Bridges() []*bridge.Bridge {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*bridge.Bridge, len(e.bridges))
	copy(out, e.bridges)
	return out
}

// Chain returns a chain known to any dex or bridge by its name, nil when unknown
func (e *Engine) Chain(name string) chain.Chain {
	for _, d := range e.Dexes() {
		if d.Chain().Name() == name {
			return d.Chain()
		}
	}
	for _, b := range e.Bridges() {
		chain0, chain1 := b.Chains()
		if chain0.Name() == name {
			return chain0
		}
		if chain1.Name() == name {
			return chain1
		}
	}
	return nil
}

// Initialize initializes every dex concurrently. The first failure cancels the
// others and is returned.
func (e *Engine) Initialize(ctx context.Context, limit int) error {
	dexes := e.Dexes()
	log.Info().Int("dexes", len(dexes)).Int("limit", limit).Msg("Start initializing dexes")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dexes {
		g.Go(func() error {
			return e.initializeDex(gctx, d, limit)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.ready.Store(true)

	log.Info().
		Int("dexes", len(dexes)).
		Dur("took", time.Since(start)).
		Msg("All dexes initialized")
	return nil
}

func (e *Engine) initializeDex(ctx context.Context, d *dex.Dex, limit int) error {
	ctx, span := e.tracer.Start(ctx, "dex.Initialize", trace.WithAttributes(
		attribute.String("dex", d.Name()),
		attribute.String("chain", d.Chain().Name()),
	))
	defer span.End()

	start := time.Now()
	cached, err := d.Initialize(ctx, limit)
	e.metrics.recordInit(ctx, d.Name(), d.Chain().Name(), cached, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("dex", d.Name()).Msg("Failed to initialize dex")
		return fmt.Errorf("failed to initialize %s: %w", d.Name(), err)
	}

	span.SetAttributes(attribute.Int("pairs.cached", cached))
	return nil
}

// Ready reports whether an Initialize call has succeeded
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Graph returns the pairs of all dexes grouped by chain, in dex registration order,
// together with every bridge.
func (e *Engine) Graph() models.GraphJSON {
	graph := models.GraphJSON{
		Chains:  make([]models.ChainPairsJSON, 0),
		Bridges: make([]models.BridgeJSON, 0),
	}

	index := make(map[string]int)
	for _, d := range e.Dexes() {
		name := d.Chain().Name()
		i, ok := index[name]
		if !ok {
			i = len(graph.Chains)
			index[name] = i
			graph.Chains = append(graph.Chains, models.ChainPairsJSON{
				Name:  name,
				Pairs: make([]models.PairJSON, 0),
			})
		}
		graph.Chains[i].Pairs = append(graph.Chains[i].Pairs, d.ToJSON().Pairs...)
	}

	for _, b := range e.Bridges() {
		graph.Bridges = append(graph.Bridges, b.ToJSON())
	}
	return graph
}

// WriteGraph dumps Graph to path as indented JSON
func (e *Engine) WriteGraph(path string) error {
	data, err := json.MarshalIndent(e.Graph(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph to %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("bytes", len(data)).Msg("Graph written")
	return nil
}

// BridgedAssets returns the counterparts of token across all bridges
func (e *Engine) BridgedAssets(token models.Token) []bridge.BridgedAsset {
	assets := make([]bridge.BridgedAsset, 0)
	for _, b := range e.Bridges() {
		if asset := b.GetBridgedAsset(token); asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets
}
