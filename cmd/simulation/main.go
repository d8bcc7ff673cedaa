package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finvault/ledger-api/internal/types"
)

const (
	minTrades     = 15
	maxTrades     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	initialFunds  = 1_000_000.0
)

var (
	assets     = []string{"BTC", "ETH", "XRP", "XLM", "DOGE"}
	chains     = []string{"Ethereum", "Arbitrum", "Optimism", "Polygon"}
	tradeTypes = []string{"LimitBuy", "LimitSell", "MarketBuy", "MarketSell"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the ledger API
type simulationClient struct {
	baseURL     string
	authToken   string
	internalKey string
	walletID    string
	client      *http.Client
	stats       map[string]*routeStats
}

// newSimulationClient registers a fresh account, logs in, and funds the
// wallet so buys have something to debit.
func newSimulationClient() (*simulationClient, error) {
	internalKey := os.Getenv("INTERNAL_API_KEY")
	if internalKey == "" {
		internalKey = "ledger-internal-key"
	}

	sc := &simulationClient{
		baseURL:     serverAddress,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register": {name: "Register"},
			"login":    {name: "Login"},
			"settle":   {name: "Settle Trade"},
			"balance":  {name: "Get Balance"},
			"history":  {name: "Trade History"},
			"reports":  {name: "Reports"},
		},
	}

	email := fmt.Sprintf("sim-%s@example.com", uuid.New().String()[:8])
	if err := sc.register(email); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	if err := sc.login(email); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	if err := sc.fundWallet(initialFunds); err != nil {
		return nil, fmt.Errorf("failed to fund wallet: %w", err)
	}

	return sc, nil
}

func (sc *simulationClient) register(email string) error {
	start := time.Now()
	defer func() {
		sc.stats["register"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool       `json:"success"`
		Data    types.User `json:"data"`
	}
	if err := sc.postJSON("/api/v1/auth/register", map[string]string{
		"name":     "Simulation Trader",
		"email":    email,
		"password": "simulation-pass",
	}, &result); err != nil {
		return err
	}
	if result.Data.WalletID == "" {
		return fmt.Errorf("no wallet ID in registration response")
	}

	sc.walletID = result.Data.WalletID
	return nil
}

func (sc *simulationClient) login(email string) error {
	start := time.Now()
	defer func() {
		sc.stats["login"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := sc.postJSON("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "simulation-pass",
	}, &result); err != nil {
		return err
	}
	if result.Data.Token == "" {
		return fmt.Errorf("no token in login response")
	}

	sc.authToken = result.Data.Token
	return nil
}

func (sc *simulationClient) fundWallet(amount float64) error {
	path := fmt.Sprintf("/api/v1/internal/adjustment/%s", sc.walletID)
	var result struct {
		Success bool         `json:"success"`
		Data    types.Wallet `json:"data"`
	}
	return sc.postJSON(path, map[string]float64{"delta": amount}, &result)
}

// settleTrade submits a trade for settlement and reports whether it was
// accepted. Business rejections (insufficient balance, contention) count as
// failures in the stats but not as transport errors.
func (sc *simulationClient) settleTrade(req types.TradeRequest) error {
	start := time.Now()
	defer func() {
		sc.stats["settle"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool               `json:"success"`
		Data    types.SettledTrade `json:"data"`
	}
	if err := sc.postJSON("/api/v1/trades", req, &result); err != nil {
		sc.stats["settle"].addFailure()
		return err
	}
	if result.Data.Trade.ID == "" {
		sc.stats["settle"].addFailure()
		return fmt.Errorf("no trade ID in settlement response")
	}

	log.Debug().
		Str("trade_id", result.Data.Trade.ID).
		Float64("new_balance", result.Data.NewBalance).
		Msg("trade settled")
	return nil
}

func (sc *simulationClient) getBalance() (float64, error) {
	start := time.Now()
	defer func() {
		sc.stats["balance"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Balance float64 `json:"balance"`
		} `json:"data"`
	}
	if err := sc.getJSON("/api/v1/wallet/balance", &result); err != nil {
		sc.stats["balance"].addFailure()
		return 0, err
	}
	return result.Data.Balance, nil
}

func (sc *simulationClient) getHistory(page int) (int, error) {
	start := time.Now()
	defer func() {
		sc.stats["history"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool          `json:"success"`
		Data    []types.Trade `json:"data"`
	}
	if err := sc.getJSON(fmt.Sprintf("/api/v1/trades?page=%d&page_size=100", page), &result); err != nil {
		sc.stats["history"].addFailure()
		return 0, err
	}
	return len(result.Data), nil
}

func (sc *simulationClient) getReports() error {
	start := time.Now()
	defer func() {
		sc.stats["reports"].addDuration(time.Since(start))
	}()

	today := time.Now().Format("2006-01-02")
	window := fmt.Sprintf("start_date=%s&end_date=%s", today, today)

	for _, path := range []string{
		"/api/v1/reports/profit-loss?" + window,
		"/api/v1/reports/cumulative-fees?" + window,
		"/api/v1/reports/slippage?" + window,
	} {
		var result struct {
			Success bool `json:"success"`
		}
		if err := sc.getJSON(path, &result); err != nil {
			sc.stats["reports"].addFailure()
			return err
		}
	}
	return nil
}

func (sc *simulationClient) postJSON(path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", sc.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	if strings.HasPrefix(path, "/api/v1/internal/") {
		req.Header.Set("X-Internal-Api-Key", sc.internalKey)
	}

	return sc.do(req, out)
}

func (sc *simulationClient) getJSON(path string, out interface{}) error {
	req, err := http.NewRequest("GET", sc.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	return sc.do(req, out)
}

func (sc *simulationClient) do(req *http.Request, out interface{}) error {
	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

func randomTrade(walletID string) types.TradeRequest {
	asset := assets[rand.Intn(len(assets))]

	// Keep notionals small relative to the funded balance so most trades
	// settle; a slice of rejections is expected and interesting.
	amount := rand.Float64() * 2
	if asset == "BTC" || asset == "ETH" {
		amount = rand.Float64() * 0.2
	}

	return types.TradeRequest{
		WalletID:  walletID,
		Amount:    amount + 0.001,
		Chain:     chains[rand.Intn(len(chains))],
		TradeType: tradeTypes[rand.Intn(len(tradeTypes))],
		Asset:     asset,
	}
}

// main runs the trading simulation against a locally running server,
// hammering one wallet from several workers to exercise the optimistic
// commit path, then verifies the history and reports read side.
func main() {
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Str("wallet_id", simClient.walletID).Msg("Starting simulation")

	var settled, rejected int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	startTime := time.Now()
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < targetTrades/numWorkers; j++ {
				err := simClient.settleTrade(randomTrade(simClient.walletID))
				mu.Lock()
				if err != nil {
					rejected++
				} else {
					settled++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, err := simClient.getBalance()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch final balance")
	}

	historyCount, err := simClient.getHistory(1)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch trade history")
	}

	if err := simClient.getReports(); err != nil {
		log.Error().Err(err).Msg("Failed to fetch reports")
	}

	log.Info().
		Int64("settled", settled).
		Int64("rejected", rejected).
		Float64("final_balance", balance).
		Int("history_page_size", historyCount).
		Dur("elapsed", time.Since(startTime)).
		Msg("Simulation complete")

	simClient.printPerformanceStats()
}
