package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	sdkerrors "cosmossdk.io/errors"
	"github.com/gin-gonic/gin"

	"github.com/paw-chain/poolcore/internal/engine"
	"github.com/paw-chain/poolcore/internal/types"
)

// pairView is the read model for one pair: its immutable config plus the
// current pool snapshot.
type pairView struct {
	Config types.PairConfig `json:"config"`
	Pool   types.Pool       `json:"pool"`
}

func poolCacheKey(pairID string) string {
	return "pool:" + pairID
}

// statusFor maps engine sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case sdkerrors.IsOf(err, types.ErrInvalidPair):
		return http.StatusNotFound
	case sdkerrors.IsOf(err, types.ErrAlreadySettled, types.ErrAlreadyBootstrapped):
		return http.StatusConflict
	case sdkerrors.IsOf(err, types.ErrCustodyRejected):
		return http.StatusForbidden
	case sdkerrors.IsOf(err,
		types.ErrInvalidAsset,
		types.ErrInvalidAmount,
		types.ErrInsufficientLiquidity,
		types.ErrSlippageExceeded,
		types.ErrInsufficientShares,
		types.ErrInsufficientPendingBalance,
		types.ErrNoPendingEntitlement,
		types.ErrArithmeticOverflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorCode labels a sentinel for machine consumption.
func errorCode(err error) string {
	switch {
	case sdkerrors.IsOf(err, types.ErrInvalidPair):
		return "invalid_pair"
	case sdkerrors.IsOf(err, types.ErrInvalidAsset):
		return "invalid_asset"
	case sdkerrors.IsOf(err, types.ErrInvalidAmount):
		return "invalid_amount"
	case sdkerrors.IsOf(err, types.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case sdkerrors.IsOf(err, types.ErrSlippageExceeded):
		return "slippage_exceeded"
	case sdkerrors.IsOf(err, types.ErrAlreadyBootstrapped):
		return "already_bootstrapped"
	case sdkerrors.IsOf(err, types.ErrInsufficientShares):
		return "insufficient_shares"
	case sdkerrors.IsOf(err, types.ErrInsufficientPendingBalance):
		return "insufficient_pending_balance"
	case sdkerrors.IsOf(err, types.ErrNoPendingEntitlement):
		return "no_pending_entitlement"
	case sdkerrors.IsOf(err, types.ErrAlreadySettled):
		return "already_settled"
	case sdkerrors.IsOf(err, types.ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case sdkerrors.IsOf(err, types.ErrCustodyRejected):
		return "custody_rejected"
	default:
		return "internal_error"
	}
}

func (s *Server) rejectError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":   errorCode(err),
		"message": err.Error(),
	})
}

// commit journals a committed operation, refreshes persistence, drops the
// stale cache entry and publishes the receipt. Persistence failures are
// logged, not returned: the engine state is authoritative and already
// committed.
func (s *Server) commit(c *gin.Context, kind, account, pairID string, receipt interface{}) {
	ctx := c.Request.Context()

	if s.journal != nil {
		payload, err := json.Marshal(receipt)
		if err == nil {
			if err := s.journal.InsertReceipt(ctx, kind, account, pairID, payload); err != nil {
				s.log.Error("failed to journal receipt", "kind", kind, "error", err)
			}
		}
		if pool, err := s.engine.PoolSnapshot(pairID); err == nil {
			if err := s.journal.SavePool(ctx, pool); err != nil {
				s.log.Error("failed to persist pool", "pair_id", pairID, "error", err)
			}
		}
		if err := s.journal.SyncPending(ctx, account, s.engine.PendingBalances(account)); err != nil {
			s.log.Error("failed to persist pending balances", "account", account, "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, poolCacheKey(pairID)); err != nil {
			s.log.Warn("failed to invalidate pool cache", "pair_id", pairID, "error", err)
		}
	}

	if s.hub != nil {
		s.hub.Publish(kind, receipt)
	}
}

func (s *Server) handleGetPairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": s.engine.Pairs()})
}

func (s *Server) handleGetPair(c *gin.Context) {
	pairID := c.Param("id")
	ctx := c.Request.Context()

	if s.cache != nil {
		var view pairView
		if err := s.cache.GetJSON(ctx, poolCacheKey(pairID), &view); err == nil {
			c.JSON(http.StatusOK, gin.H{"pair": view, "cached": true})
			return
		}
	}

	cfg, err := s.engine.PairConfig(pairID)
	if err != nil {
		s.rejectError(c, err)
		return
	}
	pool, err := s.engine.PoolSnapshot(pairID)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	view := pairView{Config: cfg, Pool: pool}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, poolCacheKey(pairID), view, s.snapshotTTL); err != nil {
			s.log.Warn("failed to cache pool snapshot", "pair_id", pairID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"pair": view})
}

func (s *Server) handleGetPending(c *gin.Context) {
	account := c.Param("account")
	balances := s.engine.PendingBalances(account)
	c.JSON(http.StatusOK, gin.H{
		"account":  account,
		"balances": balances,
		"count":    len(balances),
	})
}

func (s *Server) handleGetReceipts(c *gin.Context) {
	account := c.Param("account")
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "journal_disabled",
			"message": "receipt history requires the database journal",
		})
		return
	}

	records, err := s.journal.AccountReceipts(c.Request.Context(), account, limit)
	if err != nil {
		s.log.Error("failed to load receipts", "account", account, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to fetch receipts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":  account,
		"receipts": records,
		"count":    len(records),
	})
}

func (s *Server) handleBootstrap(c *gin.Context) {
	var req types.BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.PairID = c.Param("id")

	receipt, err := s.engine.Bootstrap(c.Request.Context(), req)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	s.commit(c, "bootstrap", req.Account, req.PairID, receipt)
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (s *Server) handleSwap(c *gin.Context) {
	var req types.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.PairID = c.Param("id")

	receipt, err := s.engine.Swap(c.Request.Context(), req)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	s.commit(c, "swap", req.Account, req.PairID, receipt)
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req types.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.PairID = c.Param("id")

	receipt, err := s.engine.Deposit(c.Request.Context(), req)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	s.commit(c, "deposit", req.Account, req.PairID, receipt)
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (s *Server) handleWithdraw(c *gin.Context) {
	var req types.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.PairID = c.Param("id")

	receipt, err := s.engine.Withdraw(c.Request.Context(), req)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	s.commit(c, "withdraw", req.Account, req.PairID, receipt)
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (s *Server) handleSettle(c *gin.Context) {
	var req types.AuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.PairID = c.Param("id")

	receipt, err := s.engine.AuthorizeSettlement(c.Request.Context(), req)
	if err != nil {
		s.rejectError(c, err)
		return
	}

	if s.journal != nil {
		key := engine.SettlementKey(receipt.Account, receipt.PairID, receipt.SettlementID)
		if err := s.journal.InsertSettlement(c.Request.Context(), key, *receipt); err != nil {
			s.log.Error("failed to persist settlement", "settlement_id", receipt.SettlementID, "error", err)
		}
	}

	s.commit(c, "settlement", req.Account, req.PairID, receipt)
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}
