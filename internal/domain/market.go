package domain

import "github.com/shopspring/decimal"

// Tickers traded by the strategies.
const (
	TickerCrude        = "CL"    // spot crude, pipeline destination
	TickerCrudeAlaska  = "CL-AK" // crude at the pipeline origin
	TickerCrudeFutures = "CL-2F" // near-term crude futures
	TickerGasoline     = "RB"
	TickerHeatingOil   = "HO"
)

// Lease tickers.
const (
	LeaseAlaskaStorage = "AK-STORAGE"
	LeaseCrudeStorage  = "CL-STORAGE"
	LeasePipeline      = "AK-CS-PIPE"
	LeaseRefinery      = "CL-REFINERY"
)

// Security is a top-of-book quote. It is refetched on every evaluation.
type Security struct {
	Ticker string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

// NewsItem is a headline published by the exchange.
type NewsItem struct {
	ID       int64
	Headline string
	Read     bool
}

// Lease is a leased storage, pipeline or refinery asset.
type Lease struct {
	ID     int64
	Ticker string
}

// ProcessRequest converts a quantity of one ticker through a conversion
// lease, e.g. crude through a refinery slot.
type ProcessRequest struct {
	LeaseID  int64
	From     string
	Quantity int
}

// FindSecurity returns the first security with the given ticker.
func FindSecurity(secs []Security, ticker string) (Security, bool) {
	for _, s := range secs {
		if s.Ticker == ticker {
			return s, true
		}
	}
	return Security{}, false
}

// FindLease returns the first lease with the given ticker.
func FindLease(leases []Lease, ticker string) (Lease, bool) {
	for _, l := range leases {
		if l.Ticker == ticker {
			return l, true
		}
	}
	return Lease{}, false
}
