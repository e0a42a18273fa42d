// Package config loads the server settings and the registry describing which
// chains, dexes and bridges the engine indexes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var log zerolog.Logger

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "config").Logger()
}

// Registry lists everything the engine is built from
type Registry struct {
	Chains  []ChainConfig  `toml:"chains" json:"chains"`
	Dexes   []DexConfig    `toml:"dexes" json:"dexes"`
	Bridges []BridgeConfig `toml:"bridges" json:"bridges"`
}

type ChainConfig struct {
	Name string `toml:"name" json:"name"`
	// evm or substrate
	Kind string `toml:"kind" json:"kind"`
	// JSON-RPC endpoint, chains without one never report a block height
	RPC         string         `toml:"rpc" json:"rpc"`
	NativeWrap  *models.Token  `toml:"native_wrap" json:"native_wrap"`
	StableCoins []models.Token `toml:"stable_coins" json:"stable_coins"`
}

type DexConfig struct {
	Name    string `toml:"name" json:"name"`
	Chain   string `toml:"chain" json:"chain"`
	Factory string `toml:"factory" json:"factory"`
	// Optional CREATE2 init code hash of the pair contract
	InitCodeHash string `toml:"init_code_hash" json:"init_code_hash"`

	Subgraph        string   `toml:"subgraph" json:"subgraph"`
	BackupSubgraphs []string `toml:"backup_subgraphs" json:"backup_subgraphs"`
	// Pair field the initial fetch ranks by, descending
	OrderBy string `toml:"order_by" json:"order_by"`
	// Subgraph request timeout in seconds, 0 uses the client default
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
}

type BridgeConfig struct {
	Chain0 string             `toml:"chain0" json:"chain0"`
	Chain1 string             `toml:"chain1" json:"chain1"`
	Pairs  []models.BridgePair `toml:"pairs" json:"pairs"`
}

// LoadRegistry reads a registry from a .toml or .json file
func LoadRegistry(filePath string) (*Registry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", filePath, err)
	}

	var registry Registry
	switch {
	case strings.HasSuffix(filePath, ".toml"):
		if err := toml.Unmarshal(data, &registry); err != nil {
			return nil, fmt.Errorf("failed to parse registry file %s: %w", filePath, err)
		}
	case strings.HasSuffix(filePath, ".json"):
		if err := json.Unmarshal(data, &registry); err != nil {
			return nil, fmt.Errorf("failed to parse registry file %s: %w", filePath, err)
		}
	default:
		return nil, fmt.Errorf("registry file must be a .toml or .json file: %s", filePath)
	}

	log.Debug().
		Str("path", filePath).
		Int("chains", len(registry.Chains)).
		Int("dexes", len(registry.Dexes)).
		Int("bridges", len(registry.Bridges)).
		Msg("Registry loaded")
	return &registry, nil
}

// Chain returns the chain config with the given name, nil when absent
func (r *Registry) Chain(name string) *ChainConfig {
	for i := range r.Chains {
		if r.Chains[i].Name == name {
			return &r.Chains[i]
		}
	}
	return nil
}
