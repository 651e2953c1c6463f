package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/poolcore/config"
	"github.com/paw-chain/poolcore/internal/database"
	"github.com/paw-chain/poolcore/internal/engine"
	"github.com/paw-chain/poolcore/internal/types"
	"github.com/paw-chain/poolcore/pkg/logger"
)

const (
	testPair  = "upaw-uatom"
	testAlice = "addr1alice"
	testBob   = "addr1bob"
)

type stubCustody struct{}

func (stubCustody) LiquidityHolding(context.Context, string, string) (math.Int, error) {
	return math.NewInt(1 << 40), nil
}

func (stubCustody) VerifyRelease(context.Context, types.AuthorizationRequest, types.PairConfig) error {
	return nil
}

// memJournal is an in-memory Journal for handler tests.
type memJournal struct {
	pools       map[string]types.Pool
	pending     map[string][]types.PendingBalance
	receipts    []database.ReceiptRecord
	settlements map[string]types.SettlementReceipt
}

func newMemJournal() *memJournal {
	return &memJournal{
		pools:       make(map[string]types.Pool),
		pending:     make(map[string][]types.PendingBalance),
		settlements: make(map[string]types.SettlementReceipt),
	}
}

func (j *memJournal) SavePool(_ context.Context, pool types.Pool) error {
	j.pools[pool.PairID] = pool
	return nil
}

func (j *memJournal) SyncPending(_ context.Context, account string, balances []types.PendingBalance) error {
	j.pending[account] = balances
	return nil
}

func (j *memJournal) InsertReceipt(_ context.Context, kind, account, pairID string, payload []byte) error {
	j.receipts = append(j.receipts, database.ReceiptRecord{
		ID:      int64(len(j.receipts) + 1),
		Kind:    kind,
		Account: account,
		PairID:  pairID,
		Payload: payload,
	})
	return nil
}

func (j *memJournal) InsertSettlement(_ context.Context, key string, receipt types.SettlementReceipt) error {
	j.settlements[key] = receipt
	return nil
}

func (j *memJournal) AccountReceipts(_ context.Context, account string, limit int) ([]database.ReceiptRecord, error) {
	var out []database.ReceiptRecord
	for i := len(j.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		if j.receipts[i].Account == account {
			out = append(out, j.receipts[i])
		}
	}
	return out, nil
}

func (j *memJournal) Ping() error { return nil }

func testPairConfig() types.PairConfig {
	return types.PairConfig{
		PairID:           testPair,
		AssetA:           "upaw",
		AssetB:           "uatom",
		AssetLiquidity:   "ulp-paw-atom",
		DecimalsA:        6,
		DecimalsB:        6,
		FeePercent:       3,
		EscrowAddress:    "escrow1pool",
		CustodyProgramID: "AiAHAgQDBg==",
	}
}

func newTestServer(t *testing.T, auth *AuthManager) (*Server, *engine.Engine, *memJournal) {
	t.Helper()
	eng := engine.New(log.NewNopLogger(), []types.PairConfig{testPairConfig()}, stubCustody{}, nil)
	journal := newMemJournal()
	srv := NewServer(
		config.ServerConfig{
			Host:      "127.0.0.1",
			Port:      0,
			RateLimit: 1000,
			RateBurst: 2000,
			Timeout:   5 * time.Second,
		},
		eng, journal, nil, nil, auth,
		10*time.Second,
		logger.New("api-test", "error"),
	)
	return srv, eng, journal
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func bootstrapPool(t *testing.T, srv *Server) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/bootstrap", types.BootstrapRequest{
		Account: testAlice,
		AmountA: math.NewInt(1_000_000),
		AmountB: math.NewInt(2_000_000),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandleSwap(t *testing.T) {
	srv, eng, journal := newTestServer(t, nil)
	bootstrapPool(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/swap", types.SwapRequest{
		Account:  testBob,
		AssetIn:  "upaw",
		AmountIn: math.NewInt(10_000),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Receipt types.SwapReceipt `json:"receipt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, math.NewInt(19_213), resp.Receipt.AmountOut)
	require.Equal(t, "uatom", resp.Receipt.AssetOut)

	// The committed state is journaled.
	pool, err := eng.PoolSnapshot(testPair)
	require.NoError(t, err)
	require.Equal(t, pool, journal.pools[testPair])
	require.Len(t, journal.pending[testBob], 1)
	require.Equal(t, "swap", journal.receipts[len(journal.receipts)-1].Kind)
}

func TestHandleSwap_ErrorMapping(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	bootstrapPool(t, srv)

	// Unknown pair: 404.
	rec := doJSON(t, srv, http.MethodPost, "/v1/pairs/nope/swap", types.SwapRequest{
		Account: testBob, AssetIn: "upaw", AmountIn: math.NewInt(10),
	}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_pair")

	// Slippage: 400.
	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/swap", types.SwapRequest{
		Account: testBob, AssetIn: "upaw", AmountIn: math.NewInt(10_000),
		MinAmountOut: math.NewInt(1 << 40),
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "slippage_exceeded")

	// Second bootstrap: 409.
	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/bootstrap", types.BootstrapRequest{
		Account: testAlice, AmountA: math.NewInt(5), AmountB: math.NewInt(5),
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already_bootstrapped")
}

func TestHandleSettle_Replay(t *testing.T) {
	srv, _, journal := newTestServer(t, nil)
	bootstrapPool(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/swap", types.SwapRequest{
		Account: testBob, AssetIn: "upaw", AmountIn: math.NewInt(10_000),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	settle := types.AuthorizationRequest{
		SettlementID: "s-1",
		Account:      testBob,
		Asset:        "uatom",
		Amount:       math.NewInt(19_213),
	}
	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/settle", settle, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	key := engine.SettlementKey(testBob, testPair, "s-1")
	require.Contains(t, journal.settlements, key)

	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/settle", settle, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already_settled")
}

func TestHandleGetPairAndPending(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	bootstrapPool(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/v1/pairs/"+testPair, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pairResp struct {
		Pair pairView `json:"pair"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairResp))
	require.Equal(t, math.NewInt(1_000_000), pairResp.Pair.Pool.ReserveA)
	require.Equal(t, uint32(3), pairResp.Pair.Config.FeePercent)

	rec = doJSON(t, srv, http.MethodGet, "/v1/pairs/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The bootstrap credited alice's liquidity shares to the pending ledger.
	rec = doJSON(t, srv, http.MethodGet, "/v1/accounts/"+testAlice+"/pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pendingResp struct {
		Balances []types.PendingBalance `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pendingResp))
	require.Len(t, pendingResp.Balances, 1)
	require.Equal(t, "ulp-paw-atom", pendingResp.Balances[0].Asset)
	require.Equal(t, math.NewInt(1_414_213), pendingResp.Balances[0].Amount)
}

func TestHandleGetReceipts(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	bootstrapPool(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/v1/accounts/"+testAlice+"/receipts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Receipts []database.ReceiptRecord `json:"receipts"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "bootstrap", resp.Receipts[0].Kind)
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)
	srv, _, _ := newTestServer(t, auth)

	body := types.BootstrapRequest{
		Account: testAlice,
		AmountA: math.NewInt(100),
		AmountB: math.NewInt(100),
	}

	// No token: 401.
	rec := doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/bootstrap", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token: 401.
	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/bootstrap", body, map[string]string{
		"Authorization": "Bearer garbage",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token: accepted.
	token, err := auth.GenerateToken(testAlice)
	require.NoError(t, err)
	rec = doJSON(t, srv, http.MethodPost, "/v1/pairs/"+testPair+"/bootstrap", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Reads stay open.
	rec = doJSON(t, srv, http.MethodGet, "/v1/pairs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/healthz/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}
