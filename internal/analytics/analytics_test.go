package analytics

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finvault/ledger-api/internal/database"
	"github.com/finvault/ledger-api/internal/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return NewService(db), db
}

type tradeSpec struct {
	day            string
	asset          string
	tradeType      string
	beforePrice    float64
	executionPrice float64
	finalPrice     float64
}

func seedTrades(t *testing.T, db *gorm.DB, userID string, specs []tradeSpec) {
	t.Helper()
	for _, spec := range specs {
		created, err := time.Parse("2006-01-02", spec.day)
		if err != nil {
			t.Fatalf("parse day: %v", err)
		}
		created = created.Add(12 * time.Hour)
		trade := types.Trade{
			ID:             uuid.New().String(),
			UserID:         userID,
			WalletID:       uuid.New().String(),
			Amount:         10,
			Chain:          "Ethereum",
			TradeType:      spec.tradeType,
			Asset:          spec.asset,
			BeforePrice:    spec.beforePrice,
			ExecutionPrice: spec.executionPrice,
			FinalPrice:     spec.finalPrice,
			TradedAmount:   10,
			ExecutionFee:   0.5,
			TransactionFee: 0.25,
			CreatedAt:      created,
			UpdatedAt:      created,
		}
		if err := db.Create(&trade).Error; err != nil {
			t.Fatalf("seed trade: %v", err)
		}
	}
}

func window(t *testing.T, startDay, endDay string) (time.Time, time.Time) {
	t.Helper()
	start, err := time.Parse("2006-01-02", startDay)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	end, err := time.Parse("2006-01-02", endDay)
	if err != nil {
		t.Fatalf("parse end: %v", err)
	}
	return start, end.Add(24*time.Hour - time.Nanosecond)
}

func TestProfitLossDailyBuckets(t *testing.T) {
	svc, db := newTestService(t)
	userID := uuid.New().String()

	seedTrades(t, db, userID, []tradeSpec{
		// Sell filled well above the pre-trade price: +11.75
		{"2026-03-01", "ETH", "MarketSell", 4.0, 5.0, 5.25},
		// Buy where fees ate the whole edge: -0.75
		{"2026-03-01", "ETH", "MarketBuy", 5.0, 5.0, 5.0},
		// Profitable buy on the next day: +1.75
		{"2026-03-02", "BTC", "LimitBuy", 5.0, 5.0, 5.25},
	})
	// Outside the window, must not appear
	seedTrades(t, db, userID, []tradeSpec{
		{"2026-04-01", "ETH", "MarketBuy", 5.0, 5.0, 9.0},
	})

	start, end := window(t, "2026-03-01", "2026-03-02")
	report, err := svc.ProfitLoss(userID, start, end, "", "")
	if err != nil {
		t.Fatalf("profit loss: %v", err)
	}

	if len(report) != 2 {
		t.Fatalf("got %d daily buckets, want 2: %+v", len(report), report)
	}
	day1, day2 := report[0], report[1]
	if day1.Date != "2026-03-01" || day2.Date != "2026-03-02" {
		t.Fatalf("buckets out of order: %+v", report)
	}
	if day1.Profit != 11.75 || day1.Loss != -0.75 {
		t.Fatalf("day 1 = %+v, want profit 11.75 loss -0.75", day1)
	}
	if day2.Profit != 1.75 || day2.Loss != 0 {
		t.Fatalf("day 2 = %+v, want profit 1.75 loss 0", day2)
	}
}

func TestProfitLossFilters(t *testing.T) {
	svc, db := newTestService(t)
	userID := uuid.New().String()

	seedTrades(t, db, userID, []tradeSpec{
		{"2026-03-01", "ETH", "MarketSell", 4.0, 5.0, 5.25},
		{"2026-03-01", "BTC", "MarketBuy", 5.0, 5.0, 5.25},
	})

	start, end := window(t, "2026-03-01", "2026-03-01")

	byAsset, err := svc.ProfitLoss(userID, start, end, "BTC", "")
	if err != nil {
		t.Fatalf("asset filter: %v", err)
	}
	if len(byAsset) != 1 || byAsset[0].Profit != 1.75 {
		t.Fatalf("asset filter result = %+v, want only the BTC buy", byAsset)
	}

	byType, err := svc.ProfitLoss(userID, start, end, "", "MarketSell")
	if err != nil {
		t.Fatalf("trade type filter: %v", err)
	}
	if len(byType) != 1 || byType[0].Profit != 11.75 {
		t.Fatalf("trade type filter result = %+v, want only the sell", byType)
	}
}

func TestProfitLossIsolatedPerUser(t *testing.T) {
	svc, db := newTestService(t)
	userID := uuid.New().String()
	otherID := uuid.New().String()

	seedTrades(t, db, otherID, []tradeSpec{
		{"2026-03-01", "ETH", "MarketSell", 4.0, 5.0, 5.25},
	})

	start, end := window(t, "2026-03-01", "2026-03-01")
	report, err := svc.ProfitLoss(userID, start, end, "", "")
	if err != nil {
		t.Fatalf("profit loss: %v", err)
	}
	if len(report) != 0 {
		t.Fatalf("report leaked another user's trades: %+v", report)
	}
}

func TestCumulativeFees(t *testing.T) {
	svc, db := newTestService(t)
	userID := uuid.New().String()

	seedTrades(t, db, userID, []tradeSpec{
		{"2026-03-01", "ETH", "MarketSell", 4.0, 5.0, 5.25},
		{"2026-03-01", "ETH", "MarketBuy", 5.0, 5.0, 5.0},
		{"2026-03-02", "BTC", "LimitBuy", 5.0, 5.0, 5.25},
	})

	start, end := window(t, "2026-03-01", "2026-03-02")
	summary, err := svc.CumulativeFees(userID, start, end)
	if err != nil {
		t.Fatalf("cumulative fees: %v", err)
	}
	if summary.ExecutionFees != 1.5 || summary.TransactionFees != 0.75 {
		t.Fatalf("fee components = %+v, want 1.5 and 0.75", summary)
	}
	if summary.TotalFees != 2.25 {
		t.Fatalf("total fees = %v, want 2.25", summary.TotalFees)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSlippage(t *testing.T) {
	svc, db := newTestService(t)
	userID := uuid.New().String()

	// Both trades fill 10 units at 5.0 with 0.75 total fees, so the
	// fee-effective price is (10*5.0 + 0.75)/10 = 5.075.
	seedTrades(t, db, userID, []tradeSpec{
		{"2026-03-01", "ETH", "MarketBuy", 5.0, 5.0, 5.075},
		{"2026-03-02", "ETH", "MarketSell", 5.5, 5.0, 4.925},
	})

	start, end := window(t, "2026-03-01", "2026-03-02")
	report, err := svc.Slippage(userID, start, end)
	if err != nil {
		t.Fatalf("slippage: %v", err)
	}
	if len(report.Trades) != 2 {
		t.Fatalf("got %d entries, want 2", len(report.Trades))
	}

	buy, sell := report.Trades[0], report.Trades[1]
	if !approxEqual(buy.EffectivePrice, 5.075) {
		t.Fatalf("buy effective price = %v, want 5.075", buy.EffectivePrice)
	}
	// Execution matched the pre-trade price, so the entire slippage is fees
	if !approxEqual(buy.Slippage, 0.075) {
		t.Fatalf("buy slippage = %v, want 0.075", buy.Slippage)
	}
	if !approxEqual(buy.SlippageCostPercent, 1.5) {
		t.Fatalf("buy slippage cost percent = %v, want 1.5", buy.SlippageCostPercent)
	}

	// Sell filled below the pre-trade price: 5.075 - 5.5
	if !approxEqual(sell.Slippage, -0.425) {
		t.Fatalf("sell slippage = %v, want -0.425", sell.Slippage)
	}
	wantSellPercent := -0.425 / 5.5 * 100
	if !approxEqual(sell.SlippageCostPercent, wantSellPercent) {
		t.Fatalf("sell slippage cost percent = %v, want %v", sell.SlippageCostPercent, wantSellPercent)
	}

	if !approxEqual(report.TotalSlippage, -0.35) {
		t.Fatalf("total slippage = %v, want -0.35", report.TotalSlippage)
	}
	if !approxEqual(report.AverageSlippage, -0.175) {
		t.Fatalf("average slippage = %v, want -0.175", report.AverageSlippage)
	}
	wantTotalPercent := 1.5 + wantSellPercent
	if !approxEqual(report.TotalSlippageCostPercent, wantTotalPercent) {
		t.Fatalf("total cost percent = %v, want %v", report.TotalSlippageCostPercent, wantTotalPercent)
	}
	if !approxEqual(report.AverageSlippageCostPercent, wantTotalPercent/2) {
		t.Fatalf("average cost percent = %v, want %v", report.AverageSlippageCostPercent, wantTotalPercent/2)
	}
}

func TestSlippageEmptyWindow(t *testing.T) {
	svc, _ := newTestService(t)

	report, err := svc.Slippage(uuid.New().String(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("slippage: %v", err)
	}
	if len(report.Trades) != 0 || report.AverageSlippage != 0 || report.AverageSlippageCostPercent != 0 {
		t.Fatalf("expected zeroed report for empty window, got %+v", report)
	}
}
