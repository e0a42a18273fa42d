package dex_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

const (
	uniswapFactory      = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	uniswapInitCodeHash = "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
)

var (
	weth = models.Token{ID: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18}
	usdt = models.Token{ID: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Name: "Tether USD", Symbol: "USDT", Decimals: 6}
	usdc = models.Token{ID: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Name: "USD Coin", Symbol: "USDC", Decimals: 6}
	pha  = models.Token{ID: "0x6c5bA91642F10282b576d91922Ae6448C9d52f4E", Name: "Phala", Symbol: "PHA", Decimals: 18}
	link = models.Token{ID: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Name: "ChainLink Token", Symbol: "LINK", Decimals: 18}
)

func newPair(id string, token0, token1 models.Token, reserve0, reserve1 string) models.Pair {
	return models.Pair{
		ID:       id,
		Token0:   token0,
		Token1:   token1,
		Reserve0: decimal.RequireFromString(reserve0),
		Reserve1: decimal.RequireFromString(reserve1),
	}
}

// fakeExtension serves pairs from memory and records the requests made to it
type fakeExtension struct {
	mu       sync.Mutex
	count    int
	pairs    []models.Pair
	single   map[string]*models.Pair
	countErr error
	pairsErr error
	limits   []int
	singles  []string
}

func (f *fakeExtension) FetchPairCount(ctx context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

func (f *fakeExtension) FetchSinglePair(ctx context.Context, id string) (*models.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, id)
	return f.single[strings.ToLower(id)], nil
}

func (f *fakeExtension) FetchLimitedPairs(ctx context.Context, limit int) ([]models.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.pairsErr != nil {
		return nil, f.pairsErr
	}
	if limit < len(f.pairs) {
		return f.pairs[:limit], nil
	}
	return f.pairs, nil
}

func (f *fakeExtension) FetchRangePairs(ctx context.Context, from, to uint64) ([]models.Pair, error) {
	return nil, nil
}

func ethereum() chain.Chain {
	return chain.NewStatic("Ethereum", chain.KindEVM, chain.Anchors{
		NativeWrap:  &weth,
		StableCoins: []models.Token{usdt},
	}, 1)
}

func newDex(t *testing.T, c chain.Chain, pairs ...models.Pair) (*dex.Dex, *fakeExtension) {
	t.Helper()
	ext := &fakeExtension{count: len(pairs), pairs: pairs}
	d := dex.New("UniswapV2", c, uniswapFactory, ext)
	n, err := d.Initialize(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, n, len(pairs))
	return d, ext
}

func TestInitializeUsesDefaultLimit(t *testing.T) {
	d, ext := newDex(t, ethereum(),
		newPair("0xpair1", weth, usdt, "100", "200000"),
		newPair("0xpair2", pha, weth, "5000", "10"),
	)

	assert.Equal(t, len(ext.limits), 1)
	assert.Equal(t, ext.limits[0], dex.DefaultInitLimit)
	assert.Equal(t, d.Len(), 2)
	assert.Equal(t, d.PairCount(), 2)

	pairs := d.GetPairs()
	assert.Equal(t, pairs[0].ID, "0xpair1")
	assert.Equal(t, pairs[1].ID, "0xpair2")
}

func TestInitializeHonorsLimit(t *testing.T) {
	ext := &fakeExtension{
		count: 300,
		pairs: []models.Pair{
			newPair("0xpair1", weth, usdt, "100", "200000"),
			newPair("0xpair2", pha, weth, "5000", "10"),
			newPair("0xpair3", link, weth, "40", "1"),
		},
	}
	d := dex.New("UniswapV2", ethereum(), uniswapFactory, ext)

	n, err := d.Initialize(context.Background(), 2)
	assert.NoError(t, err)
	assert.Equal(t, n, 2)
	assert.Equal(t, d.PairCount(), 300)
	assert.Nil(t, d.GetPair(link, weth))
}

func TestInitializeRebuildsCaches(t *testing.T) {
	ext := &fakeExtension{
		count: 1,
		pairs: []models.Pair{newPair("0xpair1", weth, usdt, "100", "200000")},
	}
	d := dex.New("UniswapV2", ethereum(), uniswapFactory, ext)
	_, err := d.Initialize(context.Background(), 10)
	assert.NoError(t, err)

	ext.pairs = []models.Pair{newPair("0xpair2", pha, weth, "5000", "10")}
	_, err = d.Initialize(context.Background(), 10)
	assert.NoError(t, err)

	assert.Nil(t, d.GetPair(weth, usdt))
	assert.Nil(t, d.GetPairByID("0xpair1"))
	assert.NotNil(t, d.GetPair(pha, weth))
	assert.Equal(t, d.Len(), 1)
}

func TestInitializeFailureEmptiesCaches(t *testing.T) {
	d, ext := newDex(t, ethereum(), newPair("0xpair1", weth, usdt, "100", "200000"))

	ext.pairsErr = errors.New("subgraph unavailable")
	_, err := d.Initialize(context.Background(), 10)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ext.pairsErr))

	assert.Equal(t, d.Len(), 0)
	assert.Nil(t, d.GetPair(weth, usdt))
	assert.Equal(t, len(d.GetTokenPairs(weth)), 0)

	ext.pairsErr = nil
	ext.countErr = errors.New("count failed")
	_, err = d.Initialize(context.Background(), 10)
	assert.Error(t, err)
	assert.Equal(t, d.PairCount(), 0)
}

func TestGetPairOrientation(t *testing.T) {
	d, _ := newDex(t, ethereum(), newPair("0xpair1", weth, usdt, "100", "200000"))

	forward := d.GetPair(weth, usdt)
	assert.NotNil(t, forward)
	assert.True(t, forward.Token0.Equal(weth))
	assert.Equal(t, forward.Reserve0.String(), "100")

	reverse := d.GetPair(usdt, weth)
	assert.NotNil(t, reverse)
	assert.True(t, reverse.Token0.Equal(usdt))
	assert.Equal(t, reverse.Reserve0.String(), "200000")
	assert.Equal(t, reverse.ID, forward.ID)
	assert.True(t, reverse.Flip().Equal(*forward))

	// ids are case-insensitive
	upper := models.Token{ID: strings.ToUpper(weth.ID), Symbol: "WETH"}
	assert.NotNil(t, d.GetPair(upper, usdt))

	assert.Nil(t, d.GetPair(weth, pha))
}

func TestGetTokenPairs(t *testing.T) {
	d, _ := newDex(t, ethereum(),
		newPair("0xpair1", weth, usdt, "100", "200000"),
		newPair("0xpair2", pha, weth, "5000", "10"),
		newPair("0xpair3", link, usdc, "10", "150"),
	)

	pairs := d.GetTokenPairs(weth)
	assert.Equal(t, len(pairs), 2)
	for _, pair := range pairs {
		assert.True(t, pair.Token0.Equal(weth))
	}
	assert.Equal(t, pairs[1].ID, "0xpair2")
	assert.Equal(t, pairs[1].Reserve0.String(), "10")
	assert.Equal(t, pairs[1].Reserve1.String(), "5000")

	none := d.GetTokenPairs(models.Token{ID: "0xunknown"})
	assert.NotNil(t, none)
	assert.Equal(t, len(none), 0)
}

func TestGetCapacity(t *testing.T) {
	anchor := newPair("0xpair1", weth, usdt, "100", "200000")
	phaWeth := newPair("0xpair2", pha, weth, "5000", "10")
	wethUsdc := newPair("0xpair3", weth, usdc, "5", "10000")
	usdcWeth := newPair("0xpair4", usdc, weth, "10000", "5")
	linkPha := newPair("0xpair5", link, pha, "100", "1000")
	phaLink := newPair("0xpair6", pha, link, "1000", "100")

	d, _ := newDex(t, ethereum(), anchor, phaWeth, wethUsdc, usdcWeth, linkPha, phaLink)

	tests := []struct {
		name     string
		pair     models.Pair
		expected string
		ok       bool
	}{
		{"anchor pair prices its stable side", anchor, "200000", true},
		{"stable coin as token1", newPair("0xpair7", pha, usdt, "42", "84"), "84", true},
		{"stable coin as token0", newPair("0xpair8", usdt, pha, "84", "42"), "84", true},
		{"wrap token as token0", wethUsdc, "10000", true},
		{"wrap token as token1", usdcWeth, "10000", true},
		{"one hop through the wrap pair", phaWeth, "20000", true},
		{"token0 without a wrap pair", linkPha, "0", false},
		{"hop through token0", phaLink, "4000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capacity, ok := d.GetCapacity(tt.pair)
			assert.Equal(t, ok, tt.ok)
			if tt.ok {
				assert.Equal(t, capacity.Round(6).String(), tt.expected)
			}
		})
	}
}

func TestGetCapacityWithoutAnchors(t *testing.T) {
	phaWeth := newPair("0xpair2", pha, weth, "5000", "10")

	noAnchors := chain.NewStatic("Ethereum", chain.KindEVM, chain.Anchors{}, 1)
	d, _ := newDex(t, noAnchors, newPair("0xpair1", weth, usdt, "100", "200000"), phaWeth)
	_, ok := d.GetCapacity(phaWeth)
	assert.False(t, ok)

	// anchors configured but the wrap/stable pair is not cached
	d, _ = newDex(t, ethereum(), phaWeth)
	_, ok = d.GetCapacity(phaWeth)
	assert.False(t, ok)
}

func TestGetCapacityZeroReserves(t *testing.T) {
	phaWeth := newPair("0xpair2", pha, weth, "5000", "10")
	d, _ := newDex(t, ethereum(), newPair("0xpair1", weth, usdt, "0", "200000"), phaWeth)

	_, ok := d.GetCapacity(phaWeth)
	assert.False(t, ok)

	// the stable side needs no rate
	capacity, ok := d.GetCapacity(newPair("0xpair3", pha, usdt, "1", "7"))
	assert.True(t, ok)
	assert.Equal(t, capacity.String(), "7")
}

func TestUpdatePair(t *testing.T) {
	d, ext := newDex(t, ethereum(),
		newPair("0xpair1", weth, usdt, "100", "200000"),
		newPair("0xpair2", pha, weth, "5000", "10"),
	)

	fresh := newPair("0xpair2", pha, weth, "6000", "12")
	ext.single = map[string]*models.Pair{"0xpair2": &fresh}

	updated, err := d.UpdatePair(context.Background(), "0xPAIR2")
	assert.NoError(t, err)
	assert.True(t, updated.Equal(fresh))
	assert.True(t, d.GetPairByID("0xpair2").Equal(fresh))
	assert.Equal(t, d.GetPair(weth, pha).Reserve0.String(), "12")
	assert.Equal(t, d.Len(), 2)
}

func TestUpdatePairNotCached(t *testing.T) {
	d, ext := newDex(t, ethereum(), newPair("0xpair1", weth, usdt, "100", "200000"))

	_, err := d.UpdatePair(context.Background(), "0xmissing")
	assert.True(t, errors.Is(err, dex.ErrPairNotExist))
	assert.Equal(t, len(ext.singles), 0)
	assert.Equal(t, d.Len(), 1)
}

func TestUpdatePairGoneFromRemote(t *testing.T) {
	stale := newPair("0xpair1", weth, usdt, "100", "200000")
	d, ext := newDex(t, ethereum(), stale)
	ext.single = map[string]*models.Pair{}

	_, err := d.UpdatePair(context.Background(), "0xpair1")
	assert.True(t, errors.Is(err, dex.ErrPairNotFoundOnRemote))
	assert.True(t, d.GetPairByID("0xpair1").Equal(stale))
}

func TestPairAddress(t *testing.T) {
	hash, err := dex.ParseInitCodeHash(uniswapInitCodeHash)
	assert.NoError(t, err)

	factory := common.HexToAddress(uniswapFactory)
	tests := []struct {
		a, b     models.Token
		expected string
	}{
		{weth, usdt, "0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"},
		{usdc, weth, "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"},
	}
	for _, tt := range tests {
		forward := dex.PairAddress(factory, common.HexToAddress(tt.a.ID), common.HexToAddress(tt.b.ID), hash)
		reverse := dex.PairAddress(factory, common.HexToAddress(tt.b.ID), common.HexToAddress(tt.a.ID), hash)
		assert.Equal(t, forward, common.HexToAddress(tt.expected))
		assert.Equal(t, forward, reverse)
	}

	_, err = dex.ParseInitCodeHash("0x1234")
	assert.Error(t, err)
}

func TestLoadPair(t *testing.T) {
	hash, err := dex.ParseInitCodeHash(uniswapInitCodeHash)
	assert.NoError(t, err)

	remote := newPair("0x0d4a11d5eeaac28ec3f61d100daf4d40471f1852", weth, usdt, "100", "200000")
	ext := &fakeExtension{single: map[string]*models.Pair{remote.ID: &remote}}
	d := dex.New("UniswapV2", ethereum(), uniswapFactory, ext, dex.WithInitCodeHash(hash))

	id, ok := d.PredictPairID(usdt, weth)
	assert.True(t, ok)
	assert.Equal(t, id, remote.ID)

	pair, err := d.LoadPair(context.Background(), usdt, weth)
	assert.NoError(t, err)
	assert.NotNil(t, pair)
	assert.True(t, pair.Token0.Equal(usdt))
	assert.Equal(t, d.Len(), 1)

	// served from the cache the second time
	_, err = d.LoadPair(context.Background(), weth, usdt)
	assert.NoError(t, err)
	assert.Equal(t, len(ext.singles), 1)

	missing, err := d.LoadPair(context.Background(), pha, weth)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadPairWithoutInitCodeHash(t *testing.T) {
	d, _ := newDex(t, ethereum())

	_, ok := d.PredictPairID(weth, usdt)
	assert.False(t, ok)

	_, err := d.LoadPair(context.Background(), weth, usdt)
	assert.True(t, errors.Is(err, dex.ErrPairIDUnavailable))
}

func TestToJSON(t *testing.T) {
	d, _ := newDex(t, ethereum(),
		newPair("0xpair1", weth, usdt, "100", "200000"),
		newPair("0xpair2", link, pha, "100", "1000"),
	)

	out := d.ToJSON()
	assert.Equal(t, out.Chain, "Ethereum")
	assert.Equal(t, len(out.Pairs), 2)

	anchor := out.Pairs[0]
	assert.Equal(t, anchor.Token0, "WETH")
	assert.Equal(t, anchor.Token1ID, usdt.ID)
	assert.Equal(t, anchor.Reserve1, 200000.0)
	assert.Equal(t, anchor.Rate, 2000.0)
	assert.Equal(t, anchor.Dex, "UniswapV2")
	assert.NotNil(t, anchor.Cap)
	assert.Equal(t, *anchor.Cap, 200000.0)

	assert.Nil(t, out.Pairs[1].Cap)
}
