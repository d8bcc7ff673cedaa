package pricing

// FeeRates is a configuration-backed fee schedule. Both components are
// charged as a fraction of the traded notional.
type FeeRates struct {
	ExecutionRate   float64
	TransactionRate float64
}

func NewFeeRates(executionRate, transactionRate float64) *FeeRates {
	return &FeeRates{
		ExecutionRate:   executionRate,
		TransactionRate: transactionRate,
	}
}

// FeesFor returns the execution and transaction fee for a trade of the given
// notional. Rates do not currently vary by trade type or asset; the
// parameters exist so a tiered schedule can slot in without an interface
// change.
func (f *FeeRates) FeesFor(tradeType, asset string, notional float64) (executionFee, transactionFee float64) {
	return notional * f.ExecutionRate, notional * f.TransactionRate
}
