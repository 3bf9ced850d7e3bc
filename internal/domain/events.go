package domain

// Tick is a single public trade observed on the market feed.
type Tick struct {
	ID    int64     // Exchange trade id, 0 when unknown
	Price float64   `validate:"gt=0"`
	Size  float64   `validate:"gt=0"`
	Side  OrderSide `validate:"oneof=buy sell"`
	Time  int64     `validate:"gt=0"` // Unix seconds
}

// OrderReceived is emitted when the exchange accepts an order into the book.
type OrderReceived struct {
	CreatedAt     int64     `validate:"gt=0"`
	Price         float64   `validate:"gte=0"`
	Size          float64   `validate:"gt=0"`
	OrderID       string    `validate:"required"`
	ClientOrderID string
	Side          OrderSide `validate:"oneof=buy sell"`
}

// OrderOpened is emitted once a received order is resting on the book.
type OrderOpened struct {
	CreatedAt     int64
	Price         float64
	RemainingSize float64
	OrderID       string    `validate:"required"`
	Side          OrderSide `validate:"oneof=buy sell"`
}

// OrderMatch is one execution against one of our orders.
type OrderMatch struct {
	TradeID    int64 // Exchange trade id, used to drop redelivered matches
	Side       OrderSide `validate:"oneof=buy sell"`
	Size       float64   `validate:"gt=0"`
	Price      float64   `validate:"gt=0"`
	TotalPrice float64   `validate:"gte=0"`
	OrderID    string    `validate:"required"`
	Fee        float64   `validate:"gte=0"`
	CreatedAt  int64     `validate:"gt=0"`
}

// OrderDone is emitted when an order leaves the book.
type OrderDone struct {
	Side    OrderSide `validate:"oneof=buy sell"`
	Size    float64
	Price   float64
	OrderID string     `validate:"required"`
	Reason  DoneReason `validate:"required"`
}

// HistoricalTrade is a public trade fetched from the exchange history.
type HistoricalTrade struct {
	ID    int64
	Price float64
	Size  float64
	Side  OrderSide
	Time  int64 // Unix seconds
}

// HistoricalFill is one of our own executions fetched from the exchange history.
type HistoricalFill struct {
	ID         int64
	OrderID    string
	Side       OrderSide
	Price      float64
	Size       float64
	TotalPrice float64
	Fee        float64
	CreatedAt  int64 // Unix seconds
}

// ListedOrder is an order the exchange reports as open.
type ListedOrder struct {
	OrderID       string
	ClientOrderID string
	Side          OrderSide
	Price         float64
	Size          float64
	CreatedAt     int64
}

// PlaceOrderRequest is a post-only limit order submission.
type PlaceOrderRequest struct {
	Side          OrderSide
	Price         string
	Size          string
	ClientOrderID string
	PostOnly      bool
}

// Balances holds the account's base and quote asset balances.
type Balances struct {
	Base  float64
	Quote float64
}

// OrderEvent is any event on the user order feed. The order feed is a single
// topic so received, match and done events keep their relative order.
type OrderEvent interface {
	orderEvent()
}

func (OrderReceived) orderEvent() {}
func (OrderOpened) orderEvent()   {}
func (OrderMatch) orderEvent()    {}
func (OrderDone) orderEvent()     {}
