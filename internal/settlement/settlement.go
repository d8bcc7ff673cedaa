// Package settlement implements the trade settlement engine: it validates a
// proposed trade, computes its financial effect from live prices and the fee
// schedule, and commits the balance change and audit record atomically.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finvault/ledger-api/internal/ledger"
	"github.com/finvault/ledger-api/internal/types"
	"github.com/finvault/ledger-api/pkg/response"
)

// Rejection reasons. Each maps to a stable reason code at the API boundary.
var (
	ErrInvalidRequest      = errors.New("invalid trade request")
	ErrNotFound            = errors.New("user or wallet not found")
	ErrOwnershipMismatch   = errors.New("wallet does not belong to user")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrContention          = errors.New("settlement retries exhausted")
	ErrUpstreamUnavailable = errors.New("price feed unavailable")
)

// PriceFeed supplies market prices. Lookups must respect the context
// deadline.
type PriceFeed interface {
	CurrentPrice(ctx context.Context, asset, chain string) (float64, error)
}

// FeeSchedule computes the two fee components for a trade notional.
type FeeSchedule interface {
	FeesFor(tradeType, asset string, notional float64) (executionFee, transactionFee float64)
}

// BalanceCache is notified after a commit so stale cached balances are not
// served. A nil cache is valid.
type BalanceCache interface {
	Invalidate(ctx context.Context, walletID string) error
}

// Config carries the settlement domain parameters fixed by deployment
// configuration rather than by this package.
type Config struct {
	MaxCommitRetries int
	PriceFeedTimeout time.Duration
	CapBuyToBalance  bool
}

type Service struct {
	db    *ledger.Database
	feed  PriceFeed
	fees  FeeSchedule
	cache BalanceCache
	cfg   Config
}

func NewService(gormDB *gorm.DB, feed PriceFeed, fees FeeSchedule, cache BalanceCache, cfg Config) *Service {
	if cfg.MaxCommitRetries < 1 {
		cfg.MaxCommitRetries = 3
	}
	if cfg.PriceFeedTimeout <= 0 {
		cfg.PriceFeedTimeout = 2 * time.Second
	}
	return &Service{
		db:    ledger.NewDatabase(gormDB),
		feed:  feed,
		fees:  fees,
		cache: cache,
		cfg:   cfg,
	}
}

// Settle validates the trade request, computes its financial effect, and
// commits it. On an optimistic conflict the whole computation is re-run
// against fresh state, up to the configured attempt bound. A caller observes
// either a fully settled trade with the updated balance or no record at all.
func (s *Service) Settle(ctx context.Context, req types.TradeRequest) (*types.SettledTrade, error) {
	logger := log.With().
		Str("user_id", req.UserID).
		Str("wallet_id", req.WalletID).
		Str("asset", req.Asset).
		Str("trade_type", req.TradeType).
		Str("service", "settlement").
		Logger()

	if err := validateRequest(req); err != nil {
		logger.Warn().Err(err).Msg("rejected malformed trade request")
		return nil, err
	}

	for attempt := 1; attempt <= s.cfg.MaxCommitRetries; attempt++ {
		settled, err := s.settleOnce(ctx, req)
		if errors.Is(err, ledger.ErrConflict) {
			logger.Info().Int("attempt", attempt).Msg("commit conflict, recomputing settlement")
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			if cerr := s.cache.Invalidate(ctx, req.WalletID); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to invalidate balance cache")
			}
		}

		logger.Info().
			Str("trade_id", settled.Trade.ID).
			Float64("traded_amount", settled.Trade.TradedAmount).
			Float64("execution_price", settled.Trade.ExecutionPrice).
			Float64("new_balance", settled.NewBalance).
			Msg("trade settled")
		return settled, nil
	}

	logger.Warn().Int("attempts", s.cfg.MaxCommitRetries).Msg("settlement contention, retries exhausted")
	return nil, ErrContention
}

// settleOnce performs one full read-compute-commit pass. The wallet version
// captured at the read conditions the commit; ledger.ErrConflict means the
// balance moved underneath us and the caller should recompute.
func (s *Service) settleOnce(ctx context.Context, req types.TradeRequest) (*types.SettledTrade, error) {
	user, err := s.db.GetUser(req.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, req.UserID)
		}
		return nil, err
	}

	// Cross-field invariant the store's foreign keys cannot express: the
	// trade's wallet must be the wallet the user owns. Checked before any
	// store mutation.
	if user.WalletID != req.WalletID {
		return nil, ErrOwnershipMismatch
	}

	wallet, err := s.db.GetWallet(req.WalletID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, req.WalletID)
		}
		return nil, err
	}

	beforePrice, executionPrice, err := s.observePrices(ctx, req.Asset, req.Chain)
	if err != nil {
		return nil, err
	}

	side, _ := types.Side(req.TradeType)

	tradedAmount := req.Amount
	executionFee, transactionFee := s.fees.FeesFor(req.TradeType, req.Asset, tradedAmount*executionPrice)

	if side == types.SideBuy && s.cfg.CapBuyToBalance {
		debit := tradedAmount*executionPrice + executionFee + transactionFee
		if debit > wallet.Balance && debit > 0 {
			// Fees scale with notional, so the affordable fill shrinks
			// proportionally with the full-fill debit.
			tradedAmount *= wallet.Balance / debit
			executionFee, transactionFee = s.fees.FeesFor(req.TradeType, req.Asset, tradedAmount*executionPrice)
		}
	}

	notional := tradedAmount * executionPrice

	var delta, finalPrice float64
	switch side {
	case types.SideBuy:
		delta = -(notional + executionFee + transactionFee)
		finalPrice = (notional + executionFee + transactionFee) / tradedAmount
	case types.SideSell:
		delta = notional - executionFee - transactionFee
		finalPrice = (notional - executionFee - transactionFee) / tradedAmount
	}

	newBalance := wallet.Balance + delta
	if side == types.SideBuy && newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	now := time.Now()
	trade := &types.Trade{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		WalletID:       wallet.ID,
		Amount:         req.Amount,
		Chain:          req.Chain,
		TradeType:      req.TradeType,
		Asset:          req.Asset,
		BeforePrice:    beforePrice,
		ExecutionPrice: executionPrice,
		FinalPrice:     finalPrice,
		TradedAmount:   tradedAmount,
		ExecutionFee:   executionFee,
		TransactionFee: transactionFee,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.CommitTradeAndBalance(trade, newBalance, wallet.ID, wallet.Version); err != nil {
		return nil, err
	}

	return &types.SettledTrade{Trade: *trade, NewBalance: newBalance}, nil
}

// observePrices takes the pre-trade observation followed by the execution
// observation, both bounded by the configured feed timeout. Feed failures
// are not retried here; amplifying upstream latency is the caller's call.
func (s *Service) observePrices(ctx context.Context, asset, chain string) (beforePrice, executionPrice float64, err error) {
	feedCtx, cancel := context.WithTimeout(ctx, s.cfg.PriceFeedTimeout)
	defer cancel()

	beforePrice, err = s.feed.CurrentPrice(feedCtx, asset, chain)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	executionPrice, err = s.feed.CurrentPrice(feedCtx, asset, chain)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return beforePrice, executionPrice, nil
}

func validateRequest(req types.TradeRequest) error {
	if req.UserID == "" || req.WalletID == "" {
		return fmt.Errorf("%w: user and wallet are required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if _, ok := types.Side(req.TradeType); !ok {
		return fmt.Errorf("%w: unrecognized trade type %q", ErrInvalidRequest, req.TradeType)
	}
	if !types.ValidChain(req.Chain) {
		return fmt.Errorf("%w: unrecognized chain %q", ErrInvalidRequest, req.Chain)
	}
	if !types.ValidAsset(req.Asset) {
		return fmt.Errorf("%w: unrecognized asset %q", ErrInvalidRequest, req.Asset)
	}
	return nil
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleTradeHandler handles POST requests to settle trades. The user
// identity comes from the verified token, never from the request body.
func (h *GinHandlers) SettleTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "missing authenticated user")
			return
		}

		var req types.TradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.UserID = userID

		settled, err := h.service.Settle(c.Request.Context(), req)
		if err != nil {
			handleRejection(c, err)
			return
		}

		response.Success(c, settled)
	}
}

// handleRejection maps rejection reasons to their stable reason codes.
func handleRejection(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrOwnershipMismatch):
		response.Rejection(c, http.StatusForbidden, response.ErrCodeOwnershipMismatch, err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		response.Rejection(c, http.StatusUnprocessableEntity, response.ErrCodeInsufficientBalance, err.Error())
	case errors.Is(err, ErrContention):
		response.Rejection(c, http.StatusConflict, response.ErrCodeContention, err.Error())
	case errors.Is(err, ErrUpstreamUnavailable):
		response.Rejection(c, http.StatusServiceUnavailable, response.ErrCodeUpstreamUnavailable, err.Error())
	default:
		response.InternalError(c, "settlement failed")
	}
}
