package ports

import (
	"context"

	"eveBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string // Exchange's order ID
	ClientOrderID string // Our order ID
	Price         float64
	Size          float64
	Status        string // NEW, FILLED, CANCELED...
}

// TradePage is one page of public trade history. Trades are ascending by id;
// Next is the cursor for the next older page.
type TradePage struct {
	Trades  []domain.HistoricalTrade
	Next    int64
	HasMore bool
}

// FillPage is one page of our own execution history, ascending by id.
type FillPage struct {
	Fills   []domain.HistoricalFill
	Next    int64
	HasMore bool
}

// UserDataHandlers receives the normalized user order events.
type UserDataHandlers struct {
	OnReceived func(domain.OrderReceived)
	OnOpened   func(domain.OrderOpened)
	OnMatch    func(domain.OrderMatch)
	OnDone     func(domain.OrderDone)
}

// ExchangeClient defines the interface for interacting with the exchange for a
// single configured market.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// PlaceOrder submits a limit order. A post-only order that would take
	// liquidity fails with ErrWouldCrossBook.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an open order by its exchange order id.
	CancelOrder(ctx context.Context, exchangeOrderID string) error

	// GetOpenOrders lists the orders currently resting on the book.
	GetOpenOrders(ctx context.Context) ([]domain.ListedOrder, error)

	// GetBalances returns the free base and quote balances.
	GetBalances(ctx context.Context) (*domain.Balances, error)

	// GetTradesPage returns public trades older than cursor (0 means most recent).
	GetTradesPage(ctx context.Context, cursor int64) (*TradePage, error)

	// GetFillsPage returns our executions older than cursor (0 means most recent).
	GetFillsPage(ctx context.Context, cursor int64) (*FillPage, error)

	// StreamTicks starts the public trade stream.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamTicks(ctx context.Context, handler func(domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// StreamUserData starts the private order stream.
	StreamUserData(ctx context.Context, handlers UserDataHandlers, errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
