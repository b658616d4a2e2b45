package domain

import "fmt"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the hedge side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the execution style. The exchange client only submits market
// orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

// Order is a fire-and-forget market order. No order id is tracked after
// submission.
type Order struct {
	Ticker   string
	Quantity int
	Action   OrderSide
	Type     OrderType
}

// MarketOrder builds a MARKET order for the given ticker.
func MarketOrder(ticker string, quantity int, side OrderSide) Order {
	return Order{Ticker: ticker, Quantity: quantity, Action: side, Type: OrderTypeMarket}
}

// Validate rejects orders the exchange would refuse outright.
func (o Order) Validate() error {
	switch {
	case o.Ticker == "":
		return fmt.Errorf("%w: empty ticker", ErrInvalidOrder)
	case o.Quantity <= 0:
		return fmt.Errorf("%w: quantity %d", ErrInvalidOrder, o.Quantity)
	case o.Action != OrderSideBuy && o.Action != OrderSideSell:
		return fmt.Errorf("%w: action %q", ErrInvalidOrder, o.Action)
	case o.Type != OrderTypeMarket:
		return fmt.Errorf("%w: type %q", ErrInvalidOrder, o.Type)
	}
	return nil
}
