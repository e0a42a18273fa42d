package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

// ValidationError contains details about a validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains the results of validating a registry.
type ValidationResult struct {
	IsValid  bool
	Errors   []error
	Warnings []string
}

// Err joins every validation error, nil when the registry is valid
func (r *ValidationResult) Err() error {
	return errors.Join(r.Errors...)
}

func (r *ValidationResult) fail(field, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SupportedChainKinds lists the chain kinds the engine can connect to
var SupportedChainKinds = []string{string(chain.KindEVM), string(chain.KindSubstrate)}

// Validate checks the registry without touching the network
func Validate(registry *Registry) *ValidationResult {
	result := &ValidationResult{}

	validateChains(registry, result)
	validateDexes(registry, result)
	validateBridges(registry, result)

	result.IsValid = len(result.Errors) == 0
	for _, warning := range result.Warnings {
		log.Warn().Msg(warning)
	}
	return result
}

func validateChains(registry *Registry, result *ValidationResult) {
	if len(registry.Chains) == 0 {
		result.fail("chains", "at least one chain is required")
	}

	seen := make(map[string]bool)
	for i, c := range registry.Chains {
		field := fmt.Sprintf("chains[%d]", i)
		if c.Name == "" {
			result.fail(field+".name", "is required")
		} else if seen[c.Name] {
			result.fail(field+".name", "duplicate chain %s", c.Name)
		}
		seen[c.Name] = true

		if !slices.Contains(SupportedChainKinds, c.Kind) {
			result.fail(field+".kind", "unsupported chain kind %q, expected one of %v", c.Kind, SupportedChainKinds)
		}

		if c.RPC == "" {
			result.warn("chain %s has no rpc, its block height is always 0", c.Name)
		} else if err := validateEndpoint(c.RPC, "http", "https", "ws", "wss"); err != nil {
			result.fail(field+".rpc", "%v", err)
		}

		if c.NativeWrap != nil && c.NativeWrap.IsZero() {
			result.fail(field+".native_wrap.id", "is required")
		}
		for j, stable := range c.StableCoins {
			if stable.IsZero() {
				result.fail(fmt.Sprintf("%s.stable_coins[%d].id", field, j), "is required")
			}
		}
		if c.NativeWrap == nil || len(c.StableCoins) == 0 {
			result.warn("chain %s has no pricing anchors, capacities of its pairs are unknown", c.Name)
		}
	}
}

func validateDexes(registry *Registry, result *ValidationResult) {
	seen := make(map[string]bool)
	for i, d := range registry.Dexes {
		field := fmt.Sprintf("dexes[%d]", i)
		if d.Name == "" {
			result.fail(field+".name", "is required")
		} else if seen[d.Name] {
			result.fail(field+".name", "duplicate dex %s", d.Name)
		}
		seen[d.Name] = true

		chainConfig := registry.Chain(d.Chain)
		if chainConfig == nil {
			result.fail(field+".chain", "unknown chain %q", d.Chain)
		}
		if d.Factory == "" {
			result.fail(field+".factory", "is required")
		}

		if d.Subgraph == "" {
			result.fail(field+".subgraph", "is required")
		} else if err := validateEndpoint(d.Subgraph, "http", "https"); err != nil {
			result.fail(field+".subgraph", "%v", err)
		}
		for j, backup := range d.BackupSubgraphs {
			if err := validateEndpoint(backup, "http", "https"); err != nil {
				result.fail(fmt.Sprintf("%s.backup_subgraphs[%d]", field, j), "%v", err)
			}
		}

		if d.InitCodeHash != "" {
			if _, err := dex.ParseInitCodeHash(d.InitCodeHash); err != nil {
				result.fail(field+".init_code_hash", "%v", err)
			}
			if chainConfig != nil && chainConfig.Kind != string(chain.KindEVM) {
				result.fail(field+".init_code_hash", "only evm chains derive pair addresses")
			}
		}
		if d.TimeoutSeconds < 0 {
			result.fail(field+".timeout_seconds", "must not be negative")
		}
	}
}

func validateBridges(registry *Registry, result *ValidationResult) {
	for i, b := range registry.Bridges {
		field := fmt.Sprintf("bridges[%d]", i)
		if registry.Chain(b.Chain0) == nil {
			result.fail(field+".chain0", "unknown chain %q", b.Chain0)
		}
		if registry.Chain(b.Chain1) == nil {
			result.fail(field+".chain1", "unknown chain %q", b.Chain1)
		}
		if b.Chain0 == b.Chain1 {
			result.fail(field, "chain0 and chain1 must differ")
		}

		ids := make(map[string]bool)
		tokens := make(map[string]bool)
		for j, pair := range b.Pairs {
			pairField := fmt.Sprintf("%s.pairs[%d]", field, j)
			if pair.Token0.IsZero() || pair.Token1.IsZero() {
				result.fail(pairField, "both token ids are required")
				continue
			}
			if ids[pair.ID()] {
				result.fail(pairField, "duplicate pair %s/%s", pair.Token0.Symbol, pair.Token1.Symbol)
				continue
			}
			ids[pair.ID()] = true
			for _, token := range []models.Token{pair.Token0, pair.Token1} {
				if tokens[token.Key()] {
					result.fail(pairField, "token %s is bound twice", token.ID)
				}
				tokens[token.Key()] = true
			}
		}
	}
}

func validateEndpoint(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("invalid url %q: scheme must be one of %v", raw, schemes)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
