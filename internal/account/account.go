// Package account is the read-only façade over the ledger: current balance
// and paginated trade history. It holds no invariants of its own.
package account

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finvault/ledger-api/internal/ledger"
	"github.com/finvault/ledger-api/internal/types"
	"github.com/finvault/ledger-api/pkg/response"
)

const defaultPageSize = 50

type Service struct {
	db    *ledger.Database
	cache *Cache
}

func NewService(gormDB *gorm.DB, cache *Cache) *Service {
	return &Service{
		db:    ledger.NewDatabase(gormDB),
		cache: cache,
	}
}

// GetBalance returns the wallet's current balance, serving from the cache
// when possible. Cache failures degrade to a store read.
func (s *Service) GetBalance(ctx context.Context, walletID string) (float64, error) {
	if balance, hit, err := s.cache.GetBalance(ctx, walletID); err == nil && hit {
		return balance, nil
	} else if err != nil {
		log.Warn().Err(err).Str("wallet_id", walletID).Msg("balance cache read failed")
	}

	wallet, err := s.db.GetWallet(walletID)
	if err != nil {
		return 0, err
	}

	if err := s.cache.SetBalance(ctx, walletID, wallet.Balance); err != nil {
		log.Warn().Err(err).Str("wallet_id", walletID).Msg("balance cache write failed")
	}
	return wallet.Balance, nil
}

// ListTrades returns a page of the wallet's trade history, newest first.
// Pages are 1-based.
func (s *Service) ListTrades(walletID string, page, pageSize int) ([]types.Trade, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = defaultPageSize
	}
	return s.db.GetTradesByWallet(walletID, (page-1)*pageSize, pageSize)
}

// AdjustBalance applies an administrative adjustment and invalidates the
// cached balance.
func (s *Service) AdjustBalance(ctx context.Context, walletID string, delta float64) (*types.Wallet, error) {
	wallet, err := s.db.AdjustBalance(walletID, delta)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, walletID); err != nil {
		log.Warn().Err(err).Str("wallet_id", walletID).Msg("balance cache invalidation failed")
	}

	log.Info().
		Str("wallet_id", walletID).
		Float64("delta", delta).
		Float64("balance", wallet.Balance).
		Msg("administrative balance adjustment applied")
	return wallet, nil
}

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// walletForUser resolves the authenticated user's wallet id.
func (h *GinHandlers) walletForUser(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		response.Unauthorized(c, "missing authenticated user")
		return "", false
	}

	user, err := h.service.db.GetUser(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			response.NotFound(c, "user not found")
		} else {
			response.InternalError(c, "failed to resolve user")
		}
		return "", false
	}
	return user.WalletID, true
}

// GetBalanceHandler handles GET requests for the caller's wallet balance
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID, ok := h.walletForUser(c)
		if !ok {
			return
		}

		balance, err := h.service.GetBalance(c.Request.Context(), walletID)
		if errors.Is(err, ledger.ErrNotFound) {
			response.NotFound(c, "wallet not found")
			return
		}
		response.Handle(c, gin.H{"wallet_id": walletID, "balance": balance}, err)
	}
}

// ListTradesHandler handles GET requests for the caller's trade history
// Query parameters: page, page_size
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID, ok := h.walletForUser(c)
		if !ok {
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

		trades, err := h.service.ListTrades(walletID, page, pageSize)
		response.Handle(c, trades, err)
	}
}

// AdjustBalanceHandler handles POST requests for administrative balance
// adjustments (funding and corrections). Intended for the internal route
// group only.
func (h *GinHandlers) AdjustBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID := c.Param("wallet_id")
		var req struct {
			Delta float64 `json:"delta" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		wallet, err := h.service.AdjustBalance(c.Request.Context(), walletID, req.Delta)
		if errors.Is(err, ledger.ErrNotFound) {
			response.NotFound(c, "wallet not found")
			return
		}
		response.Handle(c, wallet, err)
	}
}
