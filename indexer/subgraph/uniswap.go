package subgraph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

// pageSize is the largest `first` argument graph-node accepts
const pageSize = 1000

// DefaultOrderBy ranks pairs newest first
const DefaultOrderBy = "createdAtTimestamp"

var ErrNoFactory = errors.New("no uniswap factory found on subgraph")

const pairFields = `
	id
	token0 { id name symbol decimals }
	token1 { id name symbol decimals }
	reserve0
	reserve1
	token0Price
	token1Price
	volumeUSD
`

const pairCountQuery = `
query {
	uniswapFactories(first: 1) {
		pairCount
	}
}`

var singlePairQuery = `
query ($id: ID!) {
	pair(id: $id) {` + pairFields + `}
}`

var limitedPairsQuery = `
query ($first: Int!, $skip: Int!, $orderBy: Pair_orderBy!) {
	pairs(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: desc) {` + pairFields + `}
}`

var rangePairsQuery = `
query ($from: BigInt!, $to: BigInt!, $first: Int!, $skip: Int!) {
	pairs(
		first: $first,
		skip: $skip,
		where: { createdAtBlockNumber_gte: $from, createdAtBlockNumber_lte: $to },
		orderBy: createdAtBlockNumber,
		orderDirection: asc
	) {` + pairFields + `}
}`

// rawToken mirrors the subgraph Token entity, BigInt fields arrive as strings
type rawToken struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

type rawPair struct {
	ID          string          `json:"id"`
	Token0      rawToken        `json:"token0"`
	Token1      rawToken        `json:"token1"`
	Reserve0    decimal.Decimal `json:"reserve0"`
	Reserve1    decimal.Decimal `json:"reserve1"`
	Token0Price decimal.Decimal `json:"token0Price"`
	Token1Price decimal.Decimal `json:"token1Price"`
	VolumeUSD   *string         `json:"volumeUSD"`
}

type pairCountResponse struct {
	UniswapFactories []struct {
		PairCount int `json:"pairCount"`
	} `json:"uniswapFactories"`
}

type singlePairResponse struct {
	Pair *rawPair `json:"pair"`
}

type pairsResponse struct {
	Pairs []rawPair `json:"pairs"`
}

func (t rawToken) toToken() (models.Token, error) {
	token := models.Token{ID: t.ID, Name: t.Name, Symbol: t.Symbol}
	if t.Decimals == "" {
		return token, nil
	}
	decimals, err := strconv.Atoi(t.Decimals)
	if err != nil {
		return models.Token{}, fmt.Errorf("invalid decimals %q of token %s: %w", t.Decimals, t.ID, err)
	}
	token.Decimals = decimals
	return token, nil
}

func (p rawPair) toPair() (models.Pair, error) {
	token0, err := p.Token0.toToken()
	if err != nil {
		return models.Pair{}, err
	}
	token1, err := p.Token1.toToken()
	if err != nil {
		return models.Pair{}, err
	}

	pair := models.Pair{
		ID:       strings.ToLower(p.ID),
		Token0:   token0,
		Token1:   token1,
		Reserve0: p.Reserve0,
		Reserve1: p.Reserve1,
		Price0:   p.Token0Price,
		Price1:   p.Token1Price,
	}
	if p.VolumeUSD != nil {
		volume, err := decimal.NewFromString(*p.VolumeUSD)
		if err != nil {
			return models.Pair{}, fmt.Errorf("invalid volumeUSD %q of pair %s: %w", *p.VolumeUSD, p.ID, err)
		}
		pair.VolumeUSD = decimal.NewNullDecimal(volume)
	}
	return pair, nil
}

func toPairs(raw []rawPair) ([]models.Pair, error) {
	pairs := make([]models.Pair, 0, len(raw))
	for _, r := range raw {
		pair, err := r.toPair()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// UniswapV2Extension feeds a Dex from a Uniswap V2 subgraph
type UniswapV2Extension struct {
	client  *Client
	orderBy string
}

// ExtensionOption configures an UniswapV2Extension
type ExtensionOption func(*UniswapV2Extension)

// WithOrderBy sets the Pair field FetchLimitedPairs ranks by, descending
func WithOrderBy(field string) ExtensionOption {
	return func(e *UniswapV2Extension) {
		if field != "" {
			e.orderBy = field
		}
	}
}

func NewUniswapV2Extension(client *Client, opts ...ExtensionOption) *UniswapV2Extension {
	e := &UniswapV2Extension{
		client:  client,
		orderBy: DefaultOrderBy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchPairCount returns the pair count of the first factory of the subgraph
func (e *UniswapV2Extension) FetchPairCount(ctx context.Context) (int, error) {
	var resp pairCountResponse
	if err := e.client.Run(ctx, pairCountQuery, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to fetch uniswap factories: %w", err)
	}
	if len(resp.UniswapFactories) == 0 {
		return 0, ErrNoFactory
	}
	return resp.UniswapFactories[0].PairCount, nil
}

// FetchSinglePair returns nil without an error when the subgraph does not know the pair
func (e *UniswapV2Extension) FetchSinglePair(ctx context.Context, id string) (*models.Pair, error) {
	var resp singlePairResponse
	vars := map[string]any{"id": strings.ToLower(id)}
	if err := e.client.Run(ctx, singlePairQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch pair %s: %w", id, err)
	}
	if resp.Pair == nil {
		return nil, nil
	}

	pair, err := resp.Pair.toPair()
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// FetchLimitedPairs pages through the subgraph until limit pairs are fetched or the pairs run out
func (e *UniswapV2Extension) FetchLimitedPairs(ctx context.Context, limit int) ([]models.Pair, error) {
	pairs := make([]models.Pair, 0, min(limit, pageSize))
	for skip := 0; skip < limit; skip += pageSize {
		first := min(pageSize, limit-skip)
		vars := map[string]any{
			"first":   first,
			"skip":    skip,
			"orderBy": e.orderBy,
		}

		var resp pairsResponse
		if err := e.client.Run(ctx, limitedPairsQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch pairs: %w", err)
		}
		page, err := toPairs(resp.Pairs)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, page...)

		if len(resp.Pairs) < first {
			break
		}
	}

	log.Debug().Int("limit", limit).Int("fetched", len(pairs)).Msg("Fetched limited pairs")
	return pairs, nil
}

// FetchRangePairs returns every pair created between the two blocks, both inclusive, oldest first
func (e *UniswapV2Extension) FetchRangePairs(ctx context.Context, from, to uint64) ([]models.Pair, error) {
	if from > to {
		return nil, fmt.Errorf("invalid block range %d..%d", from, to)
	}

	pairs := make([]models.Pair, 0)
	for skip := 0; ; skip += pageSize {
		vars := map[string]any{
			"from":  strconv.FormatUint(from, 10),
			"to":    strconv.FormatUint(to, 10),
			"first": pageSize,
			"skip":  skip,
		}

		var resp pairsResponse
		if err := e.client.Run(ctx, rangePairsQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch pairs of blocks %d..%d: %w", from, to, err)
		}
		page, err := toPairs(resp.Pairs)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, page...)

		if len(resp.Pairs) < pageSize {
			return pairs, nil
		}
	}
}
