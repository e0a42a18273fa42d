package rpc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/bridge"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/chain"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/engine"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/rpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	weth = models.Token{ID: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18}
	usdt = models.Token{ID: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Decimals: 6}
	phaE = models.Token{ID: "0xe887376a93bda91ed66d814528d7aeefe59990a5", Symbol: "PHA", Decimals: 18}
	link = models.Token{ID: "0x514910771af9ca656af840dff83e8264ecf986ca", Symbol: "LINK", Decimals: 18}
	phaK = models.Token{ID: "MultiLocation {parents: 1, interiors: X1(Parachain(2035))}", Symbol: "PHA", Decimals: 12}

	ethereum = chain.NewStatic("Ethereum", chain.KindEVM, chain.Anchors{NativeWrap: &weth, StableCoins: []models.Token{usdt}}, 100)
	phala    = chain.NewStatic("Phala", chain.KindSubstrate, chain.Anchors{}, 300)
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

type staticExtension struct {
	pairs  []models.Pair
	remote map[string]*models.Pair
	err    error
}

func (s *staticExtension) FetchPairCount(ctx context.Context) (int, error) {
	return len(s.pairs), nil
}

func (s *staticExtension) FetchSinglePair(ctx context.Context, id string) (*models.Pair, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.remote[id], nil
}

func (s *staticExtension) FetchLimitedPairs(ctx context.Context, limit int) ([]models.Pair, error) {
	return s.pairs, nil
}

func (s *staticExtension) FetchRangePairs(ctx context.Context, from, to uint64) ([]models.Pair, error) {
	return nil, nil
}

func newServer(t *testing.T, initialize bool) (http.Handler, *staticExtension) {
	t.Helper()

	refreshed := newPair("0xpair1", weth, usdt, "110", "210000")
	ext := &staticExtension{
		pairs: []models.Pair{
			newPair("0xpair1", weth, usdt, "100", "200000"),
			newPair("0xpair2", phaE, weth, "5000", "10"),
			newPair("0xpair3", link, phaE, "10", "30"),
		},
		remote: map[string]*models.Pair{"0xpair1": &refreshed},
	}

	e := engine.New()
	assert.NoError(t, e.AddDex(dex.New("UniSwapV2", ethereum, "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", ext)))
	b := bridge.New(ethereum, phala)
	assert.NoError(t, b.AddBridgePair(models.NewBridgePair(phaE, phaK)))
	e.AddBridge(b)

	if initialize {
		assert.NoError(t, e.Initialize(context.Background(), 0))
	}

	server, err := rpc.NewServer(context.Background(), &rpc.ServerConfig{
		Address:       "localhost:0",
		EnableMetrics: true,
	}, e)
	assert.NoError(t, err)
	return server.Handler(), ext
}

func do(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

type errorBody struct {
	Error string `json:"error"`
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newServer(t, false)

	assert.Equal(t, do(t, h, http.MethodGet, "/server/health", nil), http.StatusOK)

	var status map[string]string
	assert.Equal(t, do(t, h, http.MethodGet, "/server/ready", &status), http.StatusServiceUnavailable)
	assert.Equal(t, status["status"], "initializing")

	h, _ = newServer(t, true)
	assert.Equal(t, do(t, h, http.MethodGet, "/server/ready", &status), http.StatusOK)
	assert.Equal(t, status["status"], "ready")
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newServer(t, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/server/metrics", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestListDexes(t *testing.T) {
	h, _ := newServer(t, true)

	var dexes []struct {
		Name      string `json:"name"`
		Chain     string `json:"chain"`
		Cached    int    `json:"cached"`
		PairCount int    `json:"pairCount"`
	}
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes", &dexes), http.StatusOK)
	assert.Equal(t, len(dexes), 1)
	assert.Equal(t, dexes[0].Name, "UniSwapV2")
	assert.Equal(t, dexes[0].Chain, "Ethereum")
	assert.Equal(t, dexes[0].Cached, 3)
	assert.Equal(t, dexes[0].PairCount, 3)
}

func TestListPairs(t *testing.T) {
	h, _ := newServer(t, true)

	var pairs []models.Pair
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs", &pairs), http.StatusOK)
	assert.Equal(t, len(pairs), 3)
	assert.Equal(t, pairs[0].ID, "0xpair1")

	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs?token="+usdt.ID, &pairs), http.StatusOK)
	assert.Equal(t, len(pairs), 1)
	assert.Equal(t, pairs[0].Token0.Symbol, "USDT")

	var body errorBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/SushiSwap/pairs", &body), http.StatusNotFound)
	assert.Equal(t, body.Error, "unknown dex SushiSwap")
}

func TestGetPair(t *testing.T) {
	h, _ := newServer(t, true)

	var pair models.Pair
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pair?token0="+usdt.ID+"&token1="+weth.ID, &pair), http.StatusOK)
	assert.Equal(t, pair.ID, "0xpair1")
	assert.Equal(t, pair.Token0.Symbol, "USDT")
	assert.Equal(t, pair.Reserve0.String(), "200000")

	var body errorBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pair?token0="+usdt.ID+"&token1="+link.ID, &body), http.StatusNotFound)
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pair?token0="+usdt.ID, &body), http.StatusBadRequest)

	// the dex has no init code hash, so an uncached pair cannot be derived
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pair?load=true&token0="+usdt.ID+"&token1="+link.ID, &body), http.StatusBadRequest)
	assert.True(t, strings.Contains(body.Error, "UniSwapV2"))
}

func TestGetCapacity(t *testing.T) {
	h, _ := newServer(t, true)

	type capacityBody struct {
		PairID   string              `json:"pairId"`
		Known    bool                `json:"known"`
		Capacity decimal.NullDecimal `json:"capacity"`
	}

	var body capacityBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs/0xpair2/capacity", &body), http.StatusOK)
	assert.Equal(t, body.PairID, "0xpair2")
	assert.True(t, body.Known)
	assert.True(t, body.Capacity.Valid)
	assert.True(t, body.Capacity.Decimal.Equal(decimal.NewFromInt(20000)))

	body = capacityBody{}
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs/0xpair3/capacity", &body), http.StatusOK)
	assert.False(t, body.Known)
	assert.False(t, body.Capacity.Valid)

	var missing errorBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs/0xnope/capacity", &missing), http.StatusNotFound)
}

func TestRefreshPair(t *testing.T) {
	h, ext := newServer(t, true)

	var pair models.Pair
	assert.Equal(t, do(t, h, http.MethodPost, "/v1/dexes/UniSwapV2/pairs/0xpair1/refresh", &pair), http.StatusOK)
	assert.Equal(t, pair.Reserve0.String(), "110")

	var body errorBody
	assert.Equal(t, do(t, h, http.MethodPost, "/v1/dexes/UniSwapV2/pairs/0xpair2/refresh", &body), http.StatusGone)
	assert.Equal(t, do(t, h, http.MethodPost, "/v1/dexes/UniSwapV2/pairs/0xnope/refresh", &body), http.StatusNotFound)

	ext.err = errors.New("indexer down")
	assert.Equal(t, do(t, h, http.MethodPost, "/v1/dexes/UniSwapV2/pairs/0xpair1/refresh", &body), http.StatusBadGateway)
	assert.True(t, strings.Contains(body.Error, "indexer down"))

	assert.Equal(t, do(t, h, http.MethodGet, "/v1/dexes/UniSwapV2/pairs/0xpair1/refresh", nil), http.StatusMethodNotAllowed)
}

func TestBridgedAssets(t *testing.T) {
	h, _ := newServer(t, true)

	var assets []struct {
		Chain string       `json:"chain"`
		Token models.Token `json:"token"`
	}
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/bridges/asset?token="+strings.ToUpper(phaE.ID), &assets), http.StatusOK)
	assert.Equal(t, len(assets), 1)
	assert.Equal(t, assets[0].Chain, "Phala")
	assert.Equal(t, assets[0].Token.ID, phaK.ID)

	assert.Equal(t, do(t, h, http.MethodGet, "/v1/bridges/asset?token="+usdt.ID, &assets), http.StatusOK)
	assert.Equal(t, len(assets), 0)

	var body errorBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/bridges/asset", &body), http.StatusBadRequest)
}

func TestLatestBlock(t *testing.T) {
	h, _ := newServer(t, false)

	var block struct {
		Chain string `json:"chain"`
		Block uint64 `json:"block"`
	}
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/chains/Phala/block", &block), http.StatusOK)
	assert.Equal(t, block.Chain, "Phala")
	assert.Equal(t, block.Block, uint64(300))

	var body errorBody
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/chains/Kusama/block", &body), http.StatusNotFound)
}

func TestGraph(t *testing.T) {
	h, _ := newServer(t, true)

	var graph models.GraphJSON
	assert.Equal(t, do(t, h, http.MethodGet, "/v1/graph", &graph), http.StatusOK)
	assert.Equal(t, len(graph.Chains), 1)
	assert.Equal(t, graph.Chains[0].Name, "Ethereum")
	assert.Equal(t, len(graph.Chains[0].Pairs), 3)
	assert.Equal(t, len(graph.Bridges), 1)
}

func TestNoCacheHeader(t *testing.T) {
	h, _ := newServer(t, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dexes", nil))
	assert.Equal(t, rec.Header().Get("Cache-Control"), "no-store, no-cache, must-revalidate")
}
