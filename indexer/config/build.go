package config

import (
	"fmt"
	"time"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/bridge"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/engine"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/subgraph"
)

// BuildEngine validates the registry and wires its chains, dexes and bridges into a new engine.
// Nothing is fetched yet, call Initialize on the engine for that. The returned closer releases
// the node connections and the subgraph health checkers.
func BuildEngine(registry *Registry) (*engine.Engine, func(), error) {
	result := Validate(registry)
	if !result.IsValid {
		return nil, nil, fmt.Errorf("invalid registry: %w", result.Err())
	}

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	chains := make(map[string]chain.Chain, len(registry.Chains))
	for _, c := range registry.Chains {
		built, closer := buildChain(c)
		chains[c.Name] = built
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	e := engine.New()
	for _, d := range registry.Dexes {
		built, client, err := buildDex(d, chains[d.Chain])
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		if err := e.AddDex(built); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	for i, b := range registry.Bridges {
		built := bridge.New(chains[b.Chain0], chains[b.Chain1])
		for _, pair := range b.Pairs {
			if err := built.AddBridgePair(pair); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("bridges[%d]: %w", i, err)
			}
		}
		e.AddBridge(built)
	}

	log.Info().
		Int("chains", len(chains)).
		Int("dexes", len(registry.Dexes)).
		Int("bridges", len(registry.Bridges)).
		Msg("Engine built from registry")
	return e, closeAll, nil
}

func buildChain(c ChainConfig) (chain.Chain, func()) {
	anchors := chain.Anchors{NativeWrap: c.NativeWrap, StableCoins: c.StableCoins}
	kind := chain.Kind(c.Kind)

	if c.RPC == "" {
		return chain.NewStatic(c.Name, kind, anchors, 0), nil
	}
	if kind == chain.KindSubstrate {
		built := chain.NewSubstrateChain(c.Name, c.RPC, anchors)
		return built, built.Close
	}
	built := chain.NewEvmChain(c.Name, c.RPC, anchors)
	return built, built.Close
}

func buildDex(d DexConfig, c chain.Chain) (*dex.Dex, *subgraph.Client, error) {
	failover := subgraph.DefaultFailoverConfig()
	if d.TimeoutSeconds > 0 {
		failover.Timeout = time.Duration(d.TimeoutSeconds) * time.Second
	}
	client, err := subgraph.NewClientWithFailover(d.Subgraph, d.BackupSubgraphs, failover)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create subgraph client of %s: %w", d.Name, err)
	}
	ext := subgraph.NewUniswapV2Extension(client, subgraph.WithOrderBy(d.OrderBy))

	var opts []dex.Option
	if d.InitCodeHash != "" {
		hash, err := dex.ParseInitCodeHash(d.InitCodeHash)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("invalid init code hash of %s: %w", d.Name, err)
		}
		opts = append(opts, dex.WithInitCodeHash(hash))
	}
	return dex.New(d.Name, c, d.Factory, ext, opts...), client, nil
}
