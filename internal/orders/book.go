package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

var (
	// ErrUnknownOrder is returned for a match on an order that was never seen.
	ErrUnknownOrder = errors.New("order not found")
	// ErrUnexpectedReason is returned for a done event with an unknown reason.
	ErrUnexpectedReason = errors.New("unexpected done reason")
	// ErrDuplicateEvent marks a redelivered feed event that was ignored.
	ErrDuplicateEvent = errors.New("duplicate feed event")
)

// Config holds the configuration for the Book.
type Config struct {
	Logger   ports.Logger
	Exchange ports.ExchangeClient
	Pricer   Pricer
	Rules    Rules
	Sink     ports.SnapshotSink
}

// Book is the registry of every known order. It routes the user order feed to
// the matching Order.
type Book struct {
	mu         sync.Mutex
	logger     ports.Logger
	exchange   ports.ExchangeClient
	pricer     Pricer
	rules      Rules
	sink       ports.SnapshotSink
	orders     map[string]*Order
	ordered    []*Order
	byExchange map[string]*Order
	trades     map[int64]struct{}
}

// NewBook creates an empty Book.
func NewBook(cfg Config) *Book {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.Rules == (Rules{}) {
		cfg.Rules = DefaultRules
	}
	return &Book{
		logger:     cfg.Logger,
		exchange:   cfg.Exchange,
		pricer:     cfg.Pricer,
		rules:      cfg.Rules,
		sink:       cfg.Sink,
		orders:     make(map[string]*Order),
		byExchange: make(map[string]*Order),
		trades:     make(map[int64]struct{}),
	}
}

func (b *Book) newOrder(p Params) *Order {
	return newOrder(b.logger, b.exchange, b.pricer, b.rules, p)
}

// add registers o and forwards its notifications to the sink. Caller holds b.mu.
func (b *Book) add(o *Order) {
	b.orders[o.ID()] = o
	b.ordered = append(b.ordered, o)
	if id, err := o.exchangeOrderID.Get(); err == nil {
		b.byExchange[id] = o
	}
	if b.sink != nil {
		sink := b.sink
		o.On(entity.TopicUpdated, func(domain.OrderState) { sink.Send(o.Snapshot()) })
		sink.Send(o.Snapshot())
	}
}

func (b *Book) remove(o *Order) {
	delete(b.orders, o.ID())
	for i, x := range b.ordered {
		if x == o {
			b.ordered = append(b.ordered[:i:i], b.ordered[i+1:]...)
			break
		}
	}
}

// Place creates an order for this process and submits it. An order that fails
// validation is not kept.
func (b *Book) Place(ctx context.Context, side domain.OrderSide, price, size float64, owner *Owner) (*Order, error) {
	o := b.newOrder(Params{Side: side, Price: price, Size: size, Source: domain.OrderSourceEve, Owner: owner})

	// Registered before submission so the received event can find it.
	b.mu.Lock()
	b.add(o)
	b.mu.Unlock()

	if err := o.Place(ctx); err != nil {
		b.mu.Lock()
		b.remove(o)
		b.mu.Unlock()
		return nil, err
	}
	return o, nil
}

// Cancel cancels the order with the given id.
func (b *Book) Cancel(ctx context.Context, id string) (*Order, error) {
	o, ok := b.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if err := o.Cancel(ctx); err != nil {
		return o, err
	}
	return o, nil
}

// Get returns the order with our id.
func (b *Book) Get(id string) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	return o, ok
}

// ByExchangeID returns the order with the exchange id.
func (b *Book) ByExchangeID(id string) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byExchange[id]
	return o, ok
}

// Orders returns every order in registration order.
func (b *Book) Orders() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Order, len(b.ordered))
	copy(out, b.ordered)
	return out
}

// AddListedOrder registers an order the exchange reports as open.
func (b *Book) AddListedOrder(lo domain.ListedOrder) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.byExchange[lo.OrderID]; ok {
		return o
	}
	o := b.newOrder(Params{
		Side:            lo.Side,
		Price:           lo.Price,
		Size:            lo.Size,
		Source:          domain.OrderSourceAPI,
		ExchangeOrderID: lo.OrderID,
		CreatedAt:       lo.CreatedAt,
	})
	b.add(o)
	return o
}

// BackfillFill attaches a historical execution to its order, creating a
// filled backfill order on first sight.
func (b *Book) BackfillFill(f domain.HistoricalFill) (*Order, error) {
	b.mu.Lock()
	if f.ID != 0 {
		if _, seen := b.trades[f.ID]; seen {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: trade %d", ErrDuplicateEvent, f.ID)
		}
		b.trades[f.ID] = struct{}{}
	}
	o, ok := b.byExchange[f.OrderID]
	if !ok {
		// The first price is taken as the order price; size grows with each fill.
		o = b.newOrder(Params{
			Side:            f.Side,
			Price:           f.Price,
			Source:          domain.OrderSourceBackfill,
			ExchangeOrderID: f.OrderID,
			CreatedAt:       f.CreatedAt,
		})
		b.add(o)
	}
	b.mu.Unlock()

	o.AddFill(Fill{
		Size:       f.Size,
		Price:      f.Price,
		TotalPrice: f.TotalPrice,
		Fee:        f.Fee,
		CreatedAt:  f.CreatedAt,
		Source:     domain.FillSourceAPI,
	})
	return o, nil
}

// HandleReceived marks the order as created on the exchange. Orders placed
// elsewhere are registered from the event.
func (b *Book) HandleReceived(ctx context.Context, e domain.OrderReceived) (*Order, error) {
	b.mu.Lock()
	if o, ok := b.byExchange[e.OrderID]; ok {
		b.mu.Unlock()
		return o, fmt.Errorf("%w: received %s", ErrDuplicateEvent, e.OrderID)
	}
	o, ok := b.orders[e.ClientOrderID]
	if !ok || e.ClientOrderID == "" {
		o = b.newOrder(Params{Side: e.Side, Price: e.Price, Size: e.Size, Source: domain.OrderSourceFeed, CreatedAt: e.CreatedAt})
		b.add(o)
	}
	b.byExchange[e.OrderID] = o
	b.mu.Unlock()

	if err := o.SetCreated(e.OrderID); err != nil {
		b.mu.Lock()
		delete(b.byExchange, e.OrderID)
		b.mu.Unlock()
		return o, err
	}
	b.logger.Info(ctx, "Order created", map[string]interface{}{"id": o.ID(), "source": o.Source(), "exchangeOrderId": e.OrderID})
	return o, nil
}

// HandleMatch adds the execution to its order. apply runs after the order is
// resolved and before it is mutated; if it fails the order is left untouched.
func (b *Book) HandleMatch(e domain.OrderMatch, apply func() error) (*Order, error) {
	b.mu.Lock()
	o, ok := b.byExchange[e.OrderID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: exchange id %s", ErrUnknownOrder, e.OrderID)
	}
	if e.TradeID != 0 {
		if _, seen := b.trades[e.TradeID]; seen {
			b.mu.Unlock()
			return o, fmt.Errorf("%w: trade %d", ErrDuplicateEvent, e.TradeID)
		}
	}
	b.mu.Unlock()

	if apply != nil {
		if err := apply(); err != nil {
			return o, err
		}
	}

	if e.TradeID != 0 {
		b.mu.Lock()
		b.trades[e.TradeID] = struct{}{}
		b.mu.Unlock()
	}
	o.AddFill(Fill{
		Size:       e.Size,
		Price:      e.Price,
		TotalPrice: e.TotalPrice,
		Fee:        e.Fee,
		CreatedAt:  e.CreatedAt,
		Source:     domain.FillSourceFeed,
	})
	return o, nil
}

// HandleDone moves the order to filled or canceled. Done events for orders
// that were never seen are ignored.
func (b *Book) HandleDone(ctx context.Context, e domain.OrderDone) (*Order, error) {
	o, ok := b.ByExchangeID(e.OrderID)
	if !ok {
		b.logger.Debug(ctx, "Ignoring done event for unknown order", map[string]interface{}{"exchangeOrderId": e.OrderID})
		return nil, nil
	}

	var target domain.OrderState
	switch e.Reason {
	case domain.DoneCanceled:
		target = domain.OrderCanceled
	case domain.DoneFilled:
		target = domain.OrderFilled
	default:
		return o, fmt.Errorf("%w: %q", ErrUnexpectedReason, e.Reason)
	}

	if o.IsState(target) {
		return o, fmt.Errorf("%w: %s already %s", ErrDuplicateEvent, e.OrderID, target)
	}
	return o, o.SetState(target)
}
