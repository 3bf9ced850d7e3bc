// Package strategy holds the closed set of order placement strategies and the
// registry that starts them.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"eveBot/internal/candles"
	"eveBot/internal/domain"
	"eveBot/internal/events"
	"eveBot/internal/orders"
	"eveBot/internal/ports"
)

var (
	// ErrUnknownKind is returned for a strategy name outside the known set.
	ErrUnknownKind = errors.New("unexpected strategy name")
	// ErrNotActive is returned when stopping a strategy that already ended.
	ErrNotActive = errors.New("can only stop active strategies")
)

// Kind names a strategy variant that can be started.
type Kind string

const (
	KindFollowNextPrice         Kind = "followNextPrice"
	KindThreeDollarTrailingStop Kind = "threeDollarTrailingStop"
	KindFiveDollarTrailingStop  Kind = "fiveDollarTrailingStop"
)

// ParseKind validates a strategy name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindFollowNextPrice, KindThreeDollarTrailingStop, KindFiveDollarTrailingStop:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, s)
	}
}

// State is the strategy lifecycle.
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Strategy is the capability every variant implements.
type Strategy interface {
	ID() string
	Name() string
	Side() domain.OrderSide
	State() State
	// OnPriceUpdated reacts to a new market price.
	OnPriceUpdated(ctx context.Context, price float64) error
	Stop() error
	Snapshot() domain.Snapshot
}

// Market is the price source strategies follow.
type Market interface {
	CurrentPrice() (float64, error)
	NextPrice(side domain.OrderSide) (float64, error)
	On(topic string, h events.Handler[float64]) events.Subscription
	Off(topic string, id events.Subscription) error
}

// Trader places orders on behalf of a strategy.
type Trader interface {
	Place(ctx context.Context, side domain.OrderSide, price, size float64, owner *orders.Owner) (*orders.Order, error)
}

// Funds reports the account balances.
type Funds interface {
	BaseAmount() (float64, error)
	QuoteAmount() (float64, error)
}

// Inventory reports the size held in open lots.
type Inventory interface {
	TotalUnsoldSize() float64
}

// Config holds the configuration for the Registry.
type Config struct {
	Logger    ports.Logger
	Market    Market
	Trader    Trader
	Funds     Funds
	Inventory Inventory
	Sink      ports.SnapshotSink
	// FixedSize replaces balance based sizing when positive.
	FixedSize     float64
	SizeIncrement float64
}

// Registry creates strategies and keeps every one it started.
type Registry struct {
	cfg        Config
	mu         sync.Mutex
	strategies map[string]Strategy
	ordered    []Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.SizeIncrement <= 0 {
		cfg.SizeIncrement = orders.DefaultRules.SizeIncrement
	}
	return &Registry{cfg: cfg, strategies: make(map[string]Strategy)}
}

// Buy starts a buying strategy of the given kind.
func (r *Registry) Buy(ctx context.Context, kind Kind) (Strategy, error) {
	return r.start(ctx, domain.Buy, kind)
}

// Sell starts a selling strategy of the given kind.
func (r *Registry) Sell(ctx context.Context, kind Kind) (Strategy, error) {
	return r.start(ctx, domain.Sell, kind)
}

func (r *Registry) start(ctx context.Context, side domain.OrderSide, kind Kind) (Strategy, error) {
	var (
		s   Strategy
		err error
	)
	switch kind {
	case KindFollowNextPrice:
		s, err = newFollowNextPrice(ctx, r, side)
	case KindThreeDollarTrailingStop:
		s, err = newTrailingStop(r, side, 3)
	case KindFiveDollarTrailingStop:
		s, err = newTrailingStop(r, side, 5)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.strategies[s.ID()] = s
	r.ordered = append(r.ordered, s)
	r.mu.Unlock()

	r.send(s)
	r.cfg.Logger.Info(ctx, "Created new strategy", map[string]interface{}{"name": s.Name(), "id": s.ID(), "side": side})
	return s, nil
}

func (r *Registry) send(s Strategy) {
	if r.cfg.Sink != nil {
		r.cfg.Sink.Send(s.Snapshot())
	}
}

// Get returns the strategy with the given id.
func (r *Registry) Get(id string) (Strategy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	return s, ok
}

// List returns every strategy in creation order.
func (r *Registry) List() []Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Strategy, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// StopAll stops every active strategy.
func (r *Registry) StopAll() {
	for _, s := range r.List() {
		if s.State() == StateActive {
			_ = s.Stop()
		}
	}
}

// follow subscribes s to market price updates.
func (r *Registry) follow(s Strategy) events.Subscription {
	return r.cfg.Market.On(candles.TopicPriceUpdated, func(price float64) {
		if s.State() != StateActive {
			return
		}
		if err := s.OnPriceUpdated(context.Background(), price); err != nil {
			r.cfg.Logger.Error(context.Background(), err, "Strategy failed to handle price update", map[string]interface{}{"id": s.ID(), "name": s.Name()})
		}
	})
}

// buySize spends half of the quote balance at price.
func (r *Registry) buySize(price float64) (float64, error) {
	if r.cfg.FixedSize > 0 {
		return r.cfg.FixedSize, nil
	}
	quote, err := r.cfg.Funds.QuoteAmount()
	if err != nil {
		return 0, err
	}
	return r.floorSize(quote/price) * .5, nil
}

// sellSize sells half of held.
func (r *Registry) sellSize(held float64) float64 {
	if r.cfg.FixedSize > 0 {
		return r.cfg.FixedSize
	}
	return r.floorSize(held) * .5
}

func (r *Registry) floorSize(size float64) float64 {
	inc := r.cfg.SizeIncrement
	return math.Floor(size/inc+1e-9) * inc
}
