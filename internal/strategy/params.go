package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params are the fixed trading constants shared by the strategies.
type Params struct {
	OrderLimit            int
	TransportLimit        int
	ArbitrageThreshold    decimal.Decimal
	CrackSpreadThreshold  decimal.Decimal
	PipelineCost          decimal.Decimal
	RefineryCostPerBarrel decimal.Decimal
	Elasticity            decimal.Decimal
	LeaseLookupAttempts   int
	LeaseLookupBackoff    time.Duration
}

// DefaultParams returns the constants the bot was tuned with.
func DefaultParams() Params {
	return Params{
		OrderLimit:            30,
		TransportLimit:        10,
		ArbitrageThreshold:    decimal.NewFromInt(1000),
		CrackSpreadThreshold:  decimal.NewFromInt(500),
		PipelineCost:          decimal.NewFromInt(30000),
		RefineryCostPerBarrel: decimal.NewFromInt(20),
		Elasticity:            decimal.NewFromInt(1),
		LeaseLookupAttempts:   3,
		LeaseLookupBackoff:    250 * time.Millisecond,
	}
}

// transportQty is TransportLimit as a decimal.
func (p Params) transportQty() decimal.Decimal {
	return decimal.NewFromInt(int64(p.TransportLimit))
}

// CarryCost is the no-arbitrage band for spot against futures: the pipeline
// lease spread over one transport lot.
func (p Params) CarryCost() decimal.Decimal {
	return p.PipelineCost.Div(p.transportQty())
}
