package types

import (
	"time"
)

// Wallet is a user's cash balance record. Balance is only ever mutated by the
// settlement engine through a committed trade; Version is the optimistic
// concurrency marker checked at commit time.
type Wallet struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Hash      string    `gorm:"type:varchar(255);uniqueIndex" json:"hash"`
	Balance   float64   `json:"balance"`
	Version   uint      `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User owns exactly one wallet. Credentials are verified by the auth layer;
// the settlement engine only reads users to authorize trade ownership.
type User struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Password  string    `json:"-"`
	WalletID  string    `gorm:"type:char(36)" json:"wallet_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trade is an append-only audit record of one settled buy or sell. It is
// never updated or deleted after the commit that created it.
type Trade struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         string    `gorm:"type:char(36);index" json:"user_id"`
	WalletID       string    `gorm:"type:char(36);index:idx_trades_wallet_created" json:"wallet_id"`
	Amount         float64   `json:"amount"`
	Chain          string    `gorm:"type:varchar(20)" json:"chain"`
	TradeType      string    `gorm:"type:varchar(20)" json:"trade_type"`
	Asset          string    `gorm:"type:varchar(5)" json:"asset"`
	BeforePrice    float64   `json:"before_price"`
	ExecutionPrice float64   `json:"execution_price"`
	FinalPrice     float64   `json:"final_price"`
	TradedAmount   float64   `json:"traded_amount"`
	ExecutionFee   float64   `json:"execution_fee"`
	TransactionFee float64   `json:"transaction_fee"`
	CreatedAt      time.Time `gorm:"index:idx_trades_wallet_created" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TradeRequest is a proposed trade prior to settlement.
type TradeRequest struct {
	UserID    string  `json:"user_id"`
	WalletID  string  `json:"wallet_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Chain     string  `json:"chain" binding:"required"`
	TradeType string  `json:"trade_type" binding:"required"`
	Asset     string  `json:"asset" binding:"required"`
}

// SettledTrade is the outcome of a successful settlement: the persisted
// trade record plus the wallet balance after the commit.
type SettledTrade struct {
	Trade      Trade   `json:"trade"`
	NewBalance float64 `json:"new_balance"`
}

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Recognized trade types. Buys debit the wallet, sells credit it.
var tradeSides = map[string]string{
	"LimitBuy":   SideBuy,
	"MarketBuy":  SideBuy,
	"LimitSell":  SideSell,
	"MarketSell": SideSell,
}

var validChains = map[string]bool{
	"Ethereum": true,
	"Arbitrum": true,
	"Optimism": true,
	"Polygon":  true,
}

var validAssets = map[string]bool{
	"BTC":  true,
	"ETH":  true,
	"XRP":  true,
	"XLM":  true,
	"DOGE": true,
}

// Side maps a trade type to its buy/sell discriminator. The second return
// is false for unrecognized types.
func Side(tradeType string) (string, bool) {
	side, ok := tradeSides[tradeType]
	return side, ok
}

func ValidChain(chain string) bool { return validChains[chain] }

func ValidAsset(asset string) bool { return validAssets[asset] }
