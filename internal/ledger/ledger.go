// Package ledger is the storage boundary for wallets, users, and trades.
// All balance mutation funnels through CommitTradeAndBalance, which applies
// the trade insert and the wallet update as one transaction guarded by an
// optimistic version check.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/finvault/ledger-api/internal/types"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced wallet or user does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when the wallet version changed between read
	// and commit. Safe to retry with a fresh read.
	ErrConflict = errors.New("wallet version conflict")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetWallet(walletID string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}
	return &wallet, nil
}

func (d *Database) GetWalletByHash(hash string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("hash = ?", hash).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}
	return &wallet, nil
}

func (d *Database) GetUser(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (d *Database) GetUserByEmail(email string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// CreateWallet inserts a new wallet row. Used by account provisioning only.
func (d *Database) CreateWallet(wallet *types.Wallet) error {
	return d.db.Create(wallet).Error
}

// CreateUserWithWallet provisions a wallet and its owning user in a single
// transaction so a user row never exists without a valid wallet reference.
func (d *Database) CreateUserWithWallet(user *types.User, wallet *types.Wallet) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(wallet).Error; err != nil {
		tx.Rollback()
		return err
	}

	user.WalletID = wallet.ID
	if err := tx.Create(user).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// CommitTradeAndBalance is the single mutation entry point for settlement.
// It updates the wallet balance conditioned on the version observed at read
// time and inserts the trade record in the same transaction. A stale version
// rolls everything back and reports ErrConflict, so a trade row can never
// exist without its balance effect or vice versa.
func (d *Database) CommitTradeAndBalance(trade *types.Trade, newBalance float64, walletID string, version uint) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	result := tx.Model(&types.Wallet{}).
		Where("id = ? AND version = ?", walletID, version).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    version + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update wallet balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return ErrConflict
	}

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record trade: %w", err)
	}

	return tx.Commit().Error
}

// AdjustBalance applies an administrative balance adjustment (funding,
// correction) under the same optimistic version discipline as settlement
// commits. It is the only balance mutation that does not produce a trade.
func (d *Database) AdjustBalance(walletID string, delta float64) (*types.Wallet, error) {
	for attempt := 0; attempt < 3; attempt++ {
		wallet, err := d.GetWallet(walletID)
		if err != nil {
			return nil, err
		}

		result := d.db.Model(&types.Wallet{}).
			Where("id = ? AND version = ?", walletID, wallet.Version).
			Updates(map[string]interface{}{
				"balance":    wallet.Balance + delta,
				"version":    wallet.Version + 1,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to adjust balance: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return d.GetWallet(walletID)
		}
	}
	return nil, ErrConflict
}

// GetTradesByWallet returns a wallet's trades newest first, paginated.
func (d *Database) GetTradesByWallet(walletID string, offset, limit int) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// GetTradesByUserAndDateRange returns a user's trades within the inclusive
// date window, with optional asset and trade type filters.
func (d *Database) GetTradesByUserAndDateRange(userID string, start, end time.Time, asset, tradeType string) ([]types.Trade, error) {
	query := d.db.Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, start, end)
	if asset != "" {
		query = query.Where("asset = ?", asset)
	}
	if tradeType != "" {
		query = query.Where("trade_type = ?", tradeType)
	}

	var trades []types.Trade
	if err := query.Order("created_at ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
