package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"eveBot/internal/candles"
	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/events"
)

// TrailingStop tracks the best price seen and starts a FollowNextPrice on the
// same side once the market reverses by the trigger delta.
type TrailingStop struct {
	*entity.Base[State]
	r            *Registry
	mu           sync.Mutex
	side         domain.OrderSide
	triggerDelta float64
	createdAt    int64
	state        State
	startPrice   float64
	extremePrice float64
	lastPrice    float64
	sub          events.Subscription
}

func newTrailingStop(r *Registry, side domain.OrderSide, triggerDelta float64) (*TrailingStop, error) {
	price, err := r.cfg.Market.CurrentPrice()
	if err != nil {
		return nil, err
	}
	s := &TrailingStop{
		Base:         entity.NewBase[State]("trailingStop", r.cfg.Logger),
		r:            r,
		side:         side,
		triggerDelta: triggerDelta,
		createdAt:    time.Now().Unix(),
		state:        StateActive,
		startPrice:   price,
		extremePrice: price,
		lastPrice:    price,
	}
	s.sub = r.follow(s)
	return s, nil
}

func (s *TrailingStop) Side() domain.OrderSide { return s.side }

func (s *TrailingStop) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExtremePrice is the lowest price seen for a buy, the highest for a sell.
func (s *TrailingStop) ExtremePrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extremePrice
}

// OnPriceUpdated moves the extreme and triggers on a reversal.
func (s *TrailingStop) OnPriceUpdated(ctx context.Context, price float64) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	s.lastPrice = price
	var triggered bool
	switch s.side {
	case domain.Buy:
		if price < s.extremePrice {
			s.extremePrice = price
		}
		triggered = price > s.extremePrice+s.triggerDelta
	case domain.Sell:
		if price > s.extremePrice {
			s.extremePrice = price
		}
		triggered = price < s.extremePrice-s.triggerDelta
	}
	s.mu.Unlock()

	if !triggered {
		s.changed()
		return nil
	}

	s.LogInfo(ctx, "Reached delta, triggering order", map[string]interface{}{"price": price, "extreme": s.ExtremePrice()})
	if err := s.Stop(); err != nil {
		return err
	}
	_, err := s.r.start(ctx, s.side, KindFollowNextPrice)
	return err
}

// Stop ends the strategy and stops following the price.
func (s *TrailingStop) Stop() error {
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

func (s *TrailingStop) changed() {
	s.Publish(entity.TopicUpdated, s.State())
	s.r.send(s)
}

// TrailingStopSummary is the outbound notification.
type TrailingStopSummary struct {
	Name         string           `json:"name"`
	State        State            `json:"state"`
	Side         domain.OrderSide `json:"side"`
	CreatedAt    int64            `json:"createdAt"`
	Description  string           `json:"description"`
	TriggerDelta float64          `json:"triggerDelta"`
	CurrentDelta float64          `json:"currentDelta"`
	ExtremePrice float64          `json:"extremePrice"`
	StartPrice   float64          `json:"startPrice"`
}

// Snapshot returns the strategy notification.
func (s *TrailingStop) Snapshot() domain.Snapshot {
	s.mu.Lock()
	sum := TrailingStopSummary{
		Name:         s.Name(),
		State:        s.state,
		Side:         s.side,
		CreatedAt:    s.createdAt,
		TriggerDelta: s.triggerDelta,
		CurrentDelta: math.Abs(s.extremePrice - s.lastPrice),
		ExtremePrice: s.extremePrice,
		StartPrice:   s.startPrice,
	}
	s.mu.Unlock()

	switch {
	case sum.State == StateEnded:
		sum.Description = "Ended"
	case sum.Side == domain.Buy:
		sum.Description = fmt.Sprintf("Will trigger buy order if price rises above %.2f", sum.ExtremePrice+sum.TriggerDelta)
	default:
		sum.Description = fmt.Sprintf("Will trigger sell order if price drops below %.2f", sum.ExtremePrice-sum.TriggerDelta)
	}
	return s.NewSnapshot(sum)
}
