package migrations

import (
	"gorm.io/gorm"
)

// AddTradeIndexes creates the indexes backing history and report queries
func AddTradeIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for report windows over a user's trades
		`CREATE INDEX IF NOT EXISTS idx_trades_user_created
		 ON trades(user_id, created_at)`,

		// Index for asset filtering in profit/loss reports
		`CREATE INDEX IF NOT EXISTS idx_trades_asset
		 ON trades(asset)`,

		// Index for trade type filtering in profit/loss reports
		`CREATE INDEX IF NOT EXISTS idx_trades_trade_type
		 ON trades(trade_type)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
