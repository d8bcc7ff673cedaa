package pricing

import (
	"context"
	"testing"
	"time"
)

func TestCurrentPriceWalksWithinBounds(t *testing.T) {
	feed := NewFeed()

	base := basePrices["ETH"]
	price, err := feed.CurrentPrice(context.Background(), "ETH", "Ethereum")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if price < base*0.995 || price > base*1.005 {
		t.Fatalf("price %v outside the walk bounds around %v", price, base)
	}

	// Successive observations stay strictly positive
	for i := 0; i < 50; i++ {
		price, err = feed.CurrentPrice(context.Background(), "ETH", "Ethereum")
		if err != nil {
			t.Fatalf("observation %d: %v", i, err)
		}
		if price <= 0 {
			t.Fatalf("observation %d produced non-positive price %v", i, price)
		}
	}
}

func TestCurrentPriceUnknownAsset(t *testing.T) {
	feed := NewFeed()
	if _, err := feed.CurrentPrice(context.Background(), "SHIB", "Ethereum"); err == nil {
		t.Fatal("expected error for unquoted asset")
	}
}

func TestCurrentPriceHonorsDeadline(t *testing.T) {
	feed := NewFeed()
	feed.minLatency = 50 * time.Millisecond
	feed.maxLatency = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	if _, err := feed.CurrentPrice(ctx, "ETH", "Ethereum"); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestFeesFor(t *testing.T) {
	fees := NewFeeRates(0.003, 0.005)

	execution, transaction := fees.FeesFor("MarketBuy", "ETH", 1000)
	if execution != 3.0 {
		t.Fatalf("execution fee = %v, want 3.0", execution)
	}
	if transaction != 5.0 {
		t.Fatalf("transaction fee = %v, want 5.0", transaction)
	}

	execution, transaction = fees.FeesFor("MarketSell", "BTC", 0)
	if execution != 0 || transaction != 0 {
		t.Fatalf("zero notional charged fees: %v, %v", execution, transaction)
	}
}
