// Package pricing provides the external collaborators the settlement engine
// consumes: a market price feed and a fee schedule.
package pricing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Feed simulates a market price source. Each asset starts from a base price
// and performs a bounded random walk on every observation.
type Feed struct {
	mu         sync.Mutex
	prices     map[string]float64
	minLatency time.Duration
	maxLatency time.Duration
}

var basePrices = map[string]float64{
	"BTC":  43000.0,
	"ETH":  2300.0,
	"XRP":  0.52,
	"XLM":  0.11,
	"DOGE": 0.08,
}

func NewFeed() *Feed {
	prices := make(map[string]float64, len(basePrices))
	for asset, price := range basePrices {
		prices[asset] = price
	}
	return &Feed{
		prices:     prices,
		minLatency: 2 * time.Millisecond,
		maxLatency: 20 * time.Millisecond,
	}
}

// CurrentPrice returns the market price for an asset on a chain. The lookup
// honors the context deadline; callers bound it with the configured timeout.
func (f *Feed) CurrentPrice(ctx context.Context, asset, chain string) (float64, error) {
	latency := f.minLatency + time.Duration(rand.Int63n(int64(f.maxLatency-f.minLatency)))

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("price feed unavailable: %w", ctx.Err())
	case <-time.After(latency):
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[asset]
	if !ok {
		return 0, fmt.Errorf("price feed has no quote for asset %s", asset)
	}

	// Random walk within ±0.5% per observation
	next := price * (1 + (rand.Float64()*0.01 - 0.005))
	f.prices[asset] = next

	log.Debug().
		Str("asset", asset).
		Str("chain", chain).
		Float64("price", next).
		Msg("price observation")

	return next, nil
}
