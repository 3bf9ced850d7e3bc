package domain

import "errors"

// ErrNotReady is returned when a value is read before it has been set.
var ErrNotReady = errors.New("value is not yet available")

// OrderSide represents the side of an order or trade (buy or sell).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Valid reports whether s is one of the known sides.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderState is a step in the order lifecycle.
type OrderState string

const (
	OrderNew          OrderState = "new"
	OrderCreating     OrderState = "creating"
	OrderCreated      OrderState = "created"
	OrderCreateFailed OrderState = "createFailed"
	OrderFilled       OrderState = "filled"
	OrderCanceling    OrderState = "canceling"
	OrderCanceled     OrderState = "canceled"
)

// OrderSource records where the bot first learned about an order.
type OrderSource string

const (
	OrderSourceEve      OrderSource = "eve"      // Placed by this process (manual or strategy)
	OrderSourceAPI      OrderSource = "api"      // Listed as open by the exchange at startup
	OrderSourceBackfill OrderSource = "backfill" // Reconstructed from historical fills
	OrderSourceFeed     OrderSource = "feed"     // Observed on the user feed, placed elsewhere
)

// FillSource records where a fill was observed.
type FillSource string

const (
	FillSourceAPI  FillSource = "api"
	FillSourceFeed FillSource = "feed"
)

// LotState is a step in the lot lifecycle.
type LotState string

const (
	LotNew    LotState = "new"
	LotOpen   LotState = "open"
	LotClosed LotState = "closed"
)

// DoneReason is the reason an order left the book.
type DoneReason string

const (
	DoneFilled   DoneReason = "filled"
	DoneCanceled DoneReason = "canceled"
)
