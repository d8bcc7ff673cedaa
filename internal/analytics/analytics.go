// Package analytics provides read-only reports over committed trades:
// daily profit and loss, cumulative fees, and per-trade slippage.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/finvault/ledger-api/internal/ledger"
	"github.com/finvault/ledger-api/internal/types"
	"github.com/finvault/ledger-api/pkg/response"
)

const dateLayout = "2006-01-02"

// DailyProfitLoss aggregates one day's winning and losing trade outcomes.
// Loss accumulates the losing trades' negative P&L, so it is zero or
// negative; it is not an absolute value.
type DailyProfitLoss struct {
	Date   string  `json:"date"`
	Profit float64 `json:"profit"`
	Loss   float64 `json:"loss"`
}

// FeeSummary is the cumulative fee breakdown over a date range.
type FeeSummary struct {
	ExecutionFees   float64 `json:"execution_fees"`
	TransactionFees float64 `json:"transaction_fees"`
	TotalFees       float64 `json:"total_fees"`
}

// SlippageEntry reports one trade's slippage cost: the fee-effective price
// actually paid per unit against the pre-trade observation, and that
// difference as a percentage of the pre-trade price.
type SlippageEntry struct {
	TradeID             string    `json:"trade_id"`
	Asset               string    `json:"asset"`
	TradeType           string    `json:"trade_type"`
	BeforePrice         float64   `json:"before_price"`
	EffectivePrice      float64   `json:"effective_price"`
	Slippage            float64   `json:"slippage"`
	SlippageCostPercent float64   `json:"slippage_cost_percent"`
	CreatedAt           time.Time `json:"created_at"`
}

// SlippageReport carries the per-trade entries plus the user's totals and
// averages over the window.
type SlippageReport struct {
	Trades                     []SlippageEntry `json:"trades"`
	TotalSlippage              float64         `json:"total_slippage"`
	AverageSlippage            float64         `json:"average_slippage"`
	TotalSlippageCostPercent   float64         `json:"total_slippage_cost_percent"`
	AverageSlippageCostPercent float64         `json:"average_slippage_cost_percent"`
}

type Service struct {
	db *ledger.Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: ledger.NewDatabase(gormDB),
	}
}

// ProfitLoss computes daily P&L for a user's trades in the window, optionally
// filtered by asset or trade type.
func (s *Service) ProfitLoss(userID string, start, end time.Time, asset, tradeType string) ([]DailyProfitLoss, error) {
	trades, err := s.db.GetTradesByUserAndDateRange(userID, start, end, asset, tradeType)
	if err != nil {
		return nil, err
	}

	daily := make(map[string]*DailyProfitLoss)
	for _, trade := range trades {
		date := trade.CreatedAt.Format(dateLayout)
		entry, ok := daily[date]
		if !ok {
			entry = &DailyProfitLoss{Date: date}
			daily[date] = entry
		}

		pnl := tradePnL(trade)
		if pnl > 0 {
			entry.Profit += pnl
		} else {
			entry.Loss += pnl
		}
	}

	result := make([]DailyProfitLoss, 0, len(daily))
	for _, entry := range daily {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// CumulativeFees sums both fee components over the window.
func (s *Service) CumulativeFees(userID string, start, end time.Time) (*FeeSummary, error) {
	trades, err := s.db.GetTradesByUserAndDateRange(userID, start, end, "", "")
	if err != nil {
		return nil, err
	}

	var summary FeeSummary
	for _, trade := range trades {
		summary.ExecutionFees += trade.ExecutionFee
		summary.TransactionFees += trade.TransactionFee
	}
	summary.TotalFees = summary.ExecutionFees + summary.TransactionFees
	return &summary, nil
}

// Slippage reports per-trade slippage over the window together with the
// user's totals and averages.
func (s *Service) Slippage(userID string, start, end time.Time) (*SlippageReport, error) {
	trades, err := s.db.GetTradesByUserAndDateRange(userID, start, end, "", "")
	if err != nil {
		return nil, err
	}

	report := &SlippageReport{Trades: make([]SlippageEntry, 0, len(trades))}
	for _, trade := range trades {
		effective, slippage, costPercent := tradeSlippage(trade)
		report.Trades = append(report.Trades, SlippageEntry{
			TradeID:             trade.ID,
			Asset:               trade.Asset,
			TradeType:           trade.TradeType,
			BeforePrice:         trade.BeforePrice,
			EffectivePrice:      effective,
			Slippage:            slippage,
			SlippageCostPercent: costPercent,
			CreatedAt:           trade.CreatedAt,
		})
		report.TotalSlippage += slippage
		report.TotalSlippageCostPercent += costPercent
	}

	if len(trades) > 0 {
		report.AverageSlippage = report.TotalSlippage / float64(len(trades))
		report.AverageSlippageCostPercent = report.TotalSlippageCostPercent / float64(len(trades))
	}
	return report, nil
}

// tradeSlippage folds both fee components into the per-unit price actually
// paid and measures it against the pre-trade observation. A raw execution
// minus before difference would show price drift but hide the fee cost.
func tradeSlippage(trade types.Trade) (effectivePrice, slippage, costPercent float64) {
	effectivePrice = (trade.ExecutionPrice*trade.TradedAmount + trade.ExecutionFee + trade.TransactionFee) / trade.TradedAmount
	slippage = effectivePrice - trade.BeforePrice
	costPercent = slippage / trade.BeforePrice * 100
	return effectivePrice, slippage, costPercent
}

// tradePnL is the realized outcome of one trade. Buys measure the fee-settled
// price against execution, sells against the pre-trade price, both net of
// fees.
func tradePnL(trade types.Trade) float64 {
	side, _ := types.Side(trade.TradeType)

	var perUnit float64
	switch side {
	case types.SideBuy:
		perUnit = trade.FinalPrice - trade.ExecutionPrice
	case types.SideSell:
		perUnit = trade.FinalPrice - trade.BeforePrice
	}

	return perUnit*trade.TradedAmount - trade.ExecutionFee - trade.TransactionFee
}

// GinHandlers contains HTTP handlers for report endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// parseWindow extracts the required start_date and end_date query parameters.
// The end date is inclusive of the whole day.
func parseWindow(c *gin.Context) (userID string, start, end time.Time, ok bool) {
	userID = c.GetString("userID")
	if userID == "" {
		response.Unauthorized(c, "missing authenticated user")
		return "", time.Time{}, time.Time{}, false
	}

	startStr := c.Query("start_date")
	endStr := c.Query("end_date")
	if startStr == "" || endStr == "" {
		response.BadRequest(c, "start_date and end_date are required")
		return "", time.Time{}, time.Time{}, false
	}

	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid start_date: %v", err))
		return "", time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(dateLayout, endStr)
	if err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid end_date: %v", err))
		return "", time.Time{}, time.Time{}, false
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	return userID, start, end, true
}

// ProfitLossHandler handles GET requests for daily profit and loss
// Query parameters: start_date, end_date, optional asset or trade_type
func (h *GinHandlers) ProfitLossHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, start, end, ok := parseWindow(c)
		if !ok {
			return
		}

		report, err := h.service.ProfitLoss(userID, start, end, c.Query("asset"), c.Query("trade_type"))
		response.Handle(c, report, err)
	}
}

// CumulativeFeesHandler handles GET requests for the cumulative fee summary
func (h *GinHandlers) CumulativeFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, start, end, ok := parseWindow(c)
		if !ok {
			return
		}

		summary, err := h.service.CumulativeFees(userID, start, end)
		response.Handle(c, summary, err)
	}
}

// SlippageHandler handles GET requests for per-trade slippage
func (h *GinHandlers) SlippageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, start, end, ok := parseWindow(c)
		if !ok {
			return
		}

		entries, err := h.service.Slippage(userID, start, end)
		response.Handle(c, entries, err)
	}
}
