package dex

import (
	"context"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

// Extension is implemented by the data sources a Dex populates itself from.
// Each protocol (Uniswap V2 subgraphs, pallet based dexes, etc.) implements it with their specific API.
type Extension interface {
	// FetchPairCount returns the number of pairs known to the source
	FetchPairCount(ctx context.Context) (int, error)

	// FetchSinglePair returns the pair with the given id, nil without an error when it does not exist
	FetchSinglePair(ctx context.Context, id string) (*models.Pair, error)

	// FetchLimitedPairs returns up to limit pairs ranked by the source's relevance order
	FetchLimitedPairs(ctx context.Context, limit int) ([]models.Pair, error)

	// FetchRangePairs returns the pairs created within the block range, ascending
	FetchRangePairs(ctx context.Context, from, to uint64) ([]models.Pair, error)
}
