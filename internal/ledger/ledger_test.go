package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finvault/ledger-api/internal/database"
	"github.com/finvault/ledger-api/internal/types"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return NewDatabase(db)
}

func seedAccount(t *testing.T, d *Database, balance float64) (*types.User, *types.Wallet) {
	t.Helper()
	now := time.Now()
	wallet := &types.Wallet{
		ID:        uuid.New().String(),
		Hash:      uuid.New().String(),
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user := &types.User{
		ID:        uuid.New().String(),
		Name:      "Test Trader",
		Email:     uuid.New().String() + "@example.com",
		Password:  "hashed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.CreateUserWithWallet(user, wallet); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return user, wallet
}

func testTrade(user *types.User, wallet *types.Wallet) *types.Trade {
	now := time.Now()
	return &types.Trade{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		WalletID:       wallet.ID,
		Amount:         10,
		Chain:          "Ethereum",
		TradeType:      "MarketBuy",
		Asset:          "ETH",
		BeforePrice:    4.9,
		ExecutionPrice: 5.0,
		FinalPrice:     5.075,
		TradedAmount:   10,
		ExecutionFee:   0.5,
		TransactionFee: 0.25,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateUserWithWallet(t *testing.T) {
	d := newTestDatabase(t)
	user, wallet := seedAccount(t, d, 0)

	if user.WalletID != wallet.ID {
		t.Fatalf("user wallet reference = %q, want %q", user.WalletID, wallet.ID)
	}

	got, err := d.GetUser(user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.WalletID != wallet.ID {
		t.Fatalf("stored wallet reference = %q, want %q", got.WalletID, wallet.ID)
	}
}

func TestGetWalletNotFound(t *testing.T) {
	d := newTestDatabase(t)

	if _, err := d.GetWallet(uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.GetUser(uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitTradeAndBalance(t *testing.T) {
	d := newTestDatabase(t)
	user, wallet := seedAccount(t, d, 100)

	trade := testTrade(user, wallet)
	if err := d.CommitTradeAndBalance(trade, 49.25, wallet.ID, wallet.Version); err != nil {
		t.Fatalf("commit: %v", err)
	}

	updated, err := d.GetWallet(wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if updated.Balance != 49.25 {
		t.Fatalf("balance = %v, want 49.25", updated.Balance)
	}
	if updated.Version != wallet.Version+1 {
		t.Fatalf("version = %d, want %d", updated.Version, wallet.Version+1)
	}

	trades, err := d.GetTradesByWallet(wallet.ID, 0, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != trade.ID {
		t.Fatalf("expected the committed trade in history, got %+v", trades)
	}
}

func TestCommitStaleVersionRollsBack(t *testing.T) {
	d := newTestDatabase(t)
	user, wallet := seedAccount(t, d, 100)

	trade := testTrade(user, wallet)
	err := d.CommitTradeAndBalance(trade, 49.25, wallet.ID, wallet.Version+7)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Neither side of the commit may be visible: no trade row, no balance
	// change.
	updated, err := d.GetWallet(wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if updated.Balance != 100 {
		t.Fatalf("balance = %v, want 100", updated.Balance)
	}
	if updated.Version != wallet.Version {
		t.Fatalf("version = %d, want %d", updated.Version, wallet.Version)
	}

	trades, err := d.GetTradesByWallet(wallet.ID, 0, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades after rollback, got %d", len(trades))
	}
}

func TestCommitBumpsUpdatedAt(t *testing.T) {
	d := newTestDatabase(t)
	user, wallet := seedAccount(t, d, 100)

	before, _ := d.GetWallet(wallet.ID)
	time.Sleep(5 * time.Millisecond)

	if err := d.CommitTradeAndBalance(testTrade(user, wallet), 50, wallet.ID, wallet.Version); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after, _ := d.GetWallet(wallet.ID)
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updated_at not refreshed: before %v, after %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestAdjustBalance(t *testing.T) {
	d := newTestDatabase(t)
	_, wallet := seedAccount(t, d, 0)

	updated, err := d.AdjustBalance(wallet.ID, 250)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if updated.Balance != 250 {
		t.Fatalf("balance = %v, want 250", updated.Balance)
	}
	if updated.Version != wallet.Version+1 {
		t.Fatalf("version = %d, want %d", updated.Version, wallet.Version+1)
	}

	if _, err := d.AdjustBalance(uuid.New().String(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTradesByWalletPagination(t *testing.T) {
	d := newTestDatabase(t)
	user, wallet := seedAccount(t, d, 1000)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		trade := testTrade(user, wallet)
		trade.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		wallet, _ = d.GetWallet(wallet.ID)
		if err := d.CommitTradeAndBalance(trade, wallet.Balance-1, wallet.ID, wallet.Version); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	page1, err := d.GetTradesByWallet(wallet.ID, 0, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 size = %d, want 2", len(page1))
	}
	if !page1[0].CreatedAt.After(page1[1].CreatedAt) {
		t.Fatalf("expected newest-first ordering, got %v then %v", page1[0].CreatedAt, page1[1].CreatedAt)
	}

	page3, err := d.GetTradesByWallet(wallet.ID, 4, 2)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 {
		t.Fatalf("page 3 size = %d, want 1", len(page3))
	}
}
