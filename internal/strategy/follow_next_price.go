package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"eveBot/internal/candles"
	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/events"
	"eveBot/internal/orders"
)

const (
	// MaxPriceDrift is how far the market may move from the first order before
	// replacements stop.
	MaxPriceDrift = 1.00
	// ReplaceOrderDrift is how far the market may move from the open order
	// before it is replaced.
	ReplaceOrderDrift = 0.04
)

// FollowNextPrice keeps a post-only order at the best price, replacing it as
// the market moves, until one of its orders fills.
type FollowNextPrice struct {
	*entity.Base[State]
	r         *Registry
	mu        sync.Mutex
	side      domain.OrderSide
	createdAt int64
	state     State

	firstOrder *orders.Order
	orders     []*orders.Order
	replacing  bool

	priceDrift      float64
	totalPriceDrift float64
	sub             events.Subscription
}

func newFollowNextPrice(ctx context.Context, r *Registry, side domain.OrderSide) (*FollowNextPrice, error) {
	s := &FollowNextPrice{
		Base:      entity.NewBase[State](string(KindFollowNextPrice), r.cfg.Logger),
		r:         r,
		side:      side,
		createdAt: time.Now().Unix(),
		state:     StateActive,
	}

	price, size, err := s.quote(func() (float64, error) { return r.cfg.Funds.BaseAmount() })
	if err != nil {
		return nil, err
	}
	order, err := s.place(ctx, price, size)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.firstOrder = order
	s.mu.Unlock()
	s.sub = r.follow(s)
	if s.State() == StateEnded {
		// Filled before the subscription existed.
		_ = r.cfg.Market.Off(candles.TopicPriceUpdated, s.sub)
	}
	return s, nil
}

// quote returns the next price and the size to trade. held supplies the
// inventory for sells.
func (s *FollowNextPrice) quote(held func() (float64, error)) (float64, float64, error) {
	price, err := s.r.cfg.Market.NextPrice(s.side)
	if err != nil {
		return 0, 0, err
	}
	if s.side == domain.Buy {
		size, err := s.r.buySize(price)
		return price, size, err
	}
	h, err := held()
	if err != nil {
		return 0, 0, err
	}
	return price, s.r.sellSize(h), nil
}

func (s *FollowNextPrice) place(ctx context.Context, price, size float64) (*orders.Order, error) {
	o, err := s.r.cfg.Trader.Place(ctx, s.side, price, size, &orders.Owner{ID: s.ID(), Name: s.Name()})
	if err != nil {
		return nil, err
	}
	o.On(string(domain.OrderFilled), func(domain.OrderState) {
		if err := s.Stop(); err != nil && !errors.Is(err, ErrNotActive) {
			s.LogError(context.Background(), err, "Failed to stop strategy", nil)
		}
	})

	s.mu.Lock()
	s.orders = append(s.orders, o)
	s.mu.Unlock()
	s.changed()
	return o, nil
}

func (s *FollowNextPrice) Side() domain.OrderSide { return s.side }

func (s *FollowNextPrice) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// openOrder returns the first order resting on the book. Caller holds s.mu.
func (s *FollowNextPrice) openOrder() *orders.Order {
	for _, o := range s.orders {
		if o.IsState(domain.OrderCreated) {
			return o
		}
	}
	return nil
}

// OnPriceUpdated cancels the open order once the market has drifted away from
// it, and places a replacement when the cancel is confirmed.
func (s *FollowNextPrice) OnPriceUpdated(ctx context.Context, _ float64) error {
	s.mu.Lock()
	if s.state != StateActive || s.firstOrder == nil {
		s.mu.Unlock()
		return nil
	}
	open := s.openOrder()
	if open == nil {
		s.mu.Unlock()
		return nil
	}

	next, err := s.r.cfg.Market.NextPrice(open.Side())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.priceDrift = math.Abs(open.Price() - next)
	s.totalPriceDrift = math.Abs(s.firstOrder.Price() - next)
	replace := s.priceDrift > ReplaceOrderDrift && s.totalPriceDrift < MaxPriceDrift && !s.replacing
	if replace {
		s.replacing = true
	}
	drift, total := s.priceDrift, s.totalPriceDrift
	s.mu.Unlock()
	s.changed()

	if drift > ReplaceOrderDrift {
		s.LogInfo(ctx, "Order has drifted", map[string]interface{}{"order": open.ID(), "drift": drift, "totalDrift": total})
	}
	if !replace {
		return nil
	}

	open.On(string(domain.OrderCanceled), func(domain.OrderState) { s.replace(context.Background()) })
	if err := open.Cancel(ctx); err != nil {
		s.mu.Lock()
		s.replacing = false
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *FollowNextPrice) replace(ctx context.Context) {
	s.mu.Lock()
	s.replacing = false
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}

	price, size, err := s.quote(func() (float64, error) { return s.r.cfg.Inventory.TotalUnsoldSize(), nil })
	if err == nil {
		_, err = s.place(ctx, price, size)
	}
	if err != nil {
		s.LogError(ctx, err, "Failed to place replacement order", nil)
	}
}

// Stop ends the strategy and stops following the price.
func (s *FollowNextPrice) Stop() error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.state = StateEnded
	s.mu.Unlock()

	_ = s.r.cfg.Market.Off(candles.TopicPriceUpdated, s.sub)
	s.changed()
	return nil
}

func (s *FollowNextPrice) changed() {
	s.Publish(entity.TopicUpdated, s.State())
	s.r.send(s)
}

// FollowNextPriceSummary is the outbound notification.
type FollowNextPriceSummary struct {
	Name            string           `json:"name"`
	State           State            `json:"state"`
	Side            domain.OrderSide `json:"side"`
	CreatedAt       int64            `json:"createdAt"`
	Description     string           `json:"description"`
	OriginalPrice   float64          `json:"originalPrice"`
	CurrentPrice    *float64         `json:"currentPrice"`
	PriceDrift      float64          `json:"priceDrift"`
	TotalPriceDrift float64          `json:"totalPriceDrift"`
	Orders          []string         `json:"orders"`
}

// Snapshot returns the strategy notification.
func (s *FollowNextPrice) Snapshot() domain.Snapshot {
	s.mu.Lock()
	sum := FollowNextPriceSummary{
		Name:            s.Name(),
		State:           s.state,
		Side:            s.side,
		CreatedAt:       s.createdAt,
		PriceDrift:      s.priceDrift,
		TotalPriceDrift: s.totalPriceDrift,
	}
	if s.firstOrder != nil {
		sum.OriginalPrice = s.firstOrder.Price()
	}
	open := s.openOrder()
	for _, o := range s.orders {
		sum.Orders = append(sum.Orders, o.ID())
	}
	s.mu.Unlock()

	switch {
	case sum.State == StateEnded:
		sum.Description = "Done"
	case open != nil:
		price := open.Price()
		sum.CurrentPrice = &price
		sum.Description = "Order placed and watching price"
	default:
		sum.Description = fmt.Sprintf("Waiting for price to be within %.2f of %.2f", MaxPriceDrift, sum.OriginalPrice)
	}
	return s.NewSnapshot(sum)
}
