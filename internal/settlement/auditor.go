package settlement

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finvault/ledger-api/internal/types"
)

// Auditor periodically verifies the ledger invariant: every wallet's balance
// equals the net signed effect of its committed trades plus any recorded
// administrative adjustments. A drift that moves between scans without a
// matching trade means balance changed outside settlement.
type Auditor struct {
	db           *gorm.DB
	scanInterval time.Duration
	lastDrift    map[string]float64
}

func NewAuditor(db *gorm.DB) *Auditor {
	return &Auditor{
		db:           db,
		scanInterval: 5 * time.Minute,
		lastDrift:    make(map[string]float64),
	}
}

// Start begins the audit loop
func (a *Auditor) Start(ctx context.Context) {
	logger := log.With().Str("component", "ledger_auditor").Logger()
	logger.Info().Msg("starting ledger auditor")

	ticker := time.NewTicker(a.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down ledger auditor")
			return
		case <-ticker.C:
			if err := a.Scan(); err != nil {
				logger.Error().Err(err).Msg("audit scan failed")
			}
		}
	}
}

// Scan runs one pass over all wallets.
func (a *Auditor) Scan() error {
	logger := log.With().Str("component", "ledger_auditor").Logger()

	var wallets []types.Wallet
	if err := a.db.Find(&wallets).Error; err != nil {
		return err
	}

	var orphans int64
	if err := a.db.Model(&types.Trade{}).
		Where("wallet_id NOT IN (?)", a.db.Model(&types.Wallet{}).Select("id")).
		Count(&orphans).Error; err != nil {
		return err
	}
	if orphans > 0 {
		logger.Error().Int64("orphan_trades", orphans).Msg("trades reference missing wallets")
	}

	for _, wallet := range wallets {
		netEffect, err := a.netTradeEffect(wallet.ID)
		if err != nil {
			logger.Error().Err(err).Str("wallet_id", wallet.ID).Msg("failed to compute net trade effect")
			continue
		}

		// Drift is the balance portion not explained by trades. It is
		// expected to stay constant at the sum of administrative
		// adjustments; movement between scans is silent drift.
		drift := wallet.Balance - netEffect
		if prev, seen := a.lastDrift[wallet.ID]; seen && math.Abs(drift-prev) > 1e-9 {
			logger.Warn().
				Str("wallet_id", wallet.ID).
				Float64("previous_drift", prev).
				Float64("current_drift", drift).
				Msg("wallet balance moved outside settlement")
		}
		a.lastDrift[wallet.ID] = drift
	}

	logger.Debug().Int("wallets_scanned", len(wallets)).Msg("audit scan completed")
	return nil
}

// netTradeEffect sums each committed trade's signed balance effect: buys
// debited notional plus fees, sells credited notional minus fees.
func (a *Auditor) netTradeEffect(walletID string) (float64, error) {
	var trades []types.Trade
	if err := a.db.Where("wallet_id = ?", walletID).Find(&trades).Error; err != nil {
		return 0, err
	}

	var net float64
	for _, trade := range trades {
		notional := trade.TradedAmount * trade.ExecutionPrice
		side, _ := types.Side(trade.TradeType)
		if side == types.SideBuy {
			net -= notional + trade.ExecutionFee + trade.TransactionFee
		} else {
			net += notional - trade.ExecutionFee - trade.TransactionFee
		}
	}
	return net, nil
}
