package rpc

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/dex"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/engine"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorResponse struct {
	Error string `json:"error"`
}

type dexResponse struct {
	Name      string `json:"name"`
	Chain     string `json:"chain"`
	Factory   string `json:"factory"`
	Cached    int    `json:"cached"`
	PairCount int    `json:"pairCount"`
}

type capacityResponse struct {
	PairID string `json:"pairId"`
	// Known is false when the pair cannot be priced from the cached pairs
	Known    bool                `json:"known"`
	Capacity decimal.NullDecimal `json:"capacity"`
}

type bridgedAssetResponse struct {
	Chain string       `json:"chain"`
	Token models.Token `json:"token"`
}

type blockResponse struct {
	Chain string `json:"chain"`
	Block uint64 `json:"block"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type handlers struct {
	engine *engine.Engine
}

func newHandlers(e *engine.Engine) *handlers {
	return &handlers{engine: e}
}

// dex resolves the {dex} url param, writing a 404 when it is unknown
func (h *handlers) dex(w http.ResponseWriter, r *http.Request) *dex.Dex {
	name := chi.URLParam(r, "dex")
	d := h.engine.Dex(name)
	if d == nil {
		writeError(w, http.StatusNotFound, "unknown dex "+name)
	}
	return d
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) listDexes(w http.ResponseWriter, r *http.Request) {
	dexes := h.engine.Dexes()
	out := make([]dexResponse, 0, len(dexes))
	for _, d := range dexes {
		out = append(out, dexResponse{
			Name:      d.Name(),
			Chain:     d.Chain().Name(),
			Factory:   d.Factory(),
			Cached:    d.Len(),
			PairCount: d.PairCount(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// listPairs returns every cached pair, or the pairs of ?token= oriented towards it
func (h *handlers) listPairs(w http.ResponseWriter, r *http.Request) {
	d := h.dex(w, r)
	if d == nil {
		return
	}

	if token := r.URL.Query().Get("token"); token != "" {
		writeJSON(w, http.StatusOK, d.GetTokenPairs(models.Token{ID: token}))
		return
	}
	writeJSON(w, http.StatusOK, d.GetPairs())
}

// getPair looks a pair up by its tokens, ?load=true fetches an uncached pair through its derived address
func (h *handlers) getPair(w http.ResponseWriter, r *http.Request) {
	d := h.dex(w, r)
	if d == nil {
		return
	}

	query := r.URL.Query()
	token0, token1 := query.Get("token0"), query.Get("token1")
	if token0 == "" || token1 == "" {
		writeError(w, http.StatusBadRequest, "token0 and token1 are required")
		return
	}

	var pair *models.Pair
	if query.Get("load") == "true" {
		var err error
		pair, err = d.LoadPair(r.Context(), models.Token{ID: token0}, models.Token{ID: token1})
		if errors.Is(err, dex.ErrPairIDUnavailable) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else {
		pair = d.GetPair(models.Token{ID: token0}, models.Token{ID: token1})
	}

	if pair == nil {
		writeError(w, http.StatusNotFound, "pair not found")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) getCapacity(w http.ResponseWriter, r *http.Request) {
	d := h.dex(w, r)
	if d == nil {
		return
	}

	pairID := chi.URLParam(r, "pairID")
	pair := d.GetPairByID(pairID)
	if pair == nil {
		writeError(w, http.StatusNotFound, "pair not found")
		return
	}

	resp := capacityResponse{PairID: pair.ID}
	if capacity, ok := d.GetCapacity(*pair); ok {
		resp.Known = true
		resp.Capacity = decimal.NewNullDecimal(capacity)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) refreshPair(w http.ResponseWriter, r *http.Request) {
	d := h.dex(w, r)
	if d == nil {
		return
	}

	pair, err := d.UpdatePair(r.Context(), chi.URLParam(r, "pairID"))
	switch {
	case errors.Is(err, dex.ErrPairNotExist):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dex.ErrPairNotFoundOnRemote):
		writeError(w, http.StatusGone, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, pair)
	}
}

func (h *handlers) bridgedAssets(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	assets := h.engine.BridgedAssets(models.Token{ID: token})
	out := make([]bridgedAssetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, bridgedAssetResponse{Chain: asset.Chain.Name(), Token: asset.Token})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) latestBlock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "chain")
	c := h.engine.Chain(name)
	if c == nil {
		writeError(w, http.StatusNotFound, "unknown chain "+name)
		return
	}

	block, err := c.LatestBlock(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, blockResponse{Chain: c.Name(), Block: block})
}

func (h *handlers) graph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Graph())
}
