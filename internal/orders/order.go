// Package orders tracks the lifecycle of every order on the market and routes
// the user order feed to them.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

var (
	// ErrIllegalTransition is wrapped by every TransitionError.
	ErrIllegalTransition = errors.New("illegal order state transition")
	// ErrSizeTooSmall is returned when placing an order below the minimum size.
	ErrSizeTooSmall = errors.New("order size is below the minimum")
	// ErrNoExchangeOrderID is returned when an exchange operation needs an id that is not known yet.
	ErrNoExchangeOrderID = errors.New("order has no exchange order id")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	OrderID string
	From    domain.OrderState
	To      domain.OrderState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("can not move order %s from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

var transitions = map[domain.OrderState][]domain.OrderState{
	domain.OrderNew:       {domain.OrderCreating, domain.OrderCreated},
	domain.OrderCreating:  {domain.OrderNew, domain.OrderCreated, domain.OrderCreateFailed},
	domain.OrderCreated:   {domain.OrderFilled, domain.OrderCanceling, domain.OrderCanceled},
	domain.OrderCanceling: {domain.OrderCanceled, domain.OrderFilled},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to domain.OrderState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Pricer supplies the re-quote price after a post-only rejection.
type Pricer interface {
	NextPrice(side domain.OrderSide) (float64, error)
}

// Rules are the instrument's trading constraints.
type Rules struct {
	MinSize        float64
	PriceIncrement float64
	SizeIncrement  float64
}

// DefaultRules match the ETH quote market.
var DefaultRules = Rules{MinSize: 0.001, PriceIncrement: 0.01, SizeIncrement: 0.001}

// Owner identifies the strategy that created an order.
type Owner struct {
	ID   string
	Name string
}

// Params describe a new order.
type Params struct {
	Side            domain.OrderSide
	Price           float64
	Size            float64
	Source          domain.OrderSource
	Owner           *Owner
	ExchangeOrderID string
	CreatedAt       int64
}

// Order is one order on the market. State changes are serialized by mu and
// published after the lock is released.
type Order struct {
	*entity.Base[domain.OrderState]
	mu       sync.Mutex
	exchange ports.ExchangeClient
	pricer   Pricer
	rules    Rules

	side                domain.OrderSide
	price               float64
	size                float64
	createdAt           int64
	source              domain.OrderSource
	owner               *Owner
	exchangeOrderID     domain.Optional[string]
	createFailedMessage domain.Optional[string]
	state               domain.OrderState
	fills               []Fill
}

func newOrder(logger ports.Logger, exchange ports.ExchangeClient, pricer Pricer, rules Rules, p Params) *Order {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}
	o := &Order{
		Base:      entity.NewBase[domain.OrderState]("order", logger),
		exchange:  exchange,
		pricer:    pricer,
		rules:     rules,
		side:      p.Side,
		price:     p.Price,
		size:      p.Size,
		createdAt: p.CreatedAt,
		source:    p.Source,
		owner:     p.Owner,
		state:     domain.OrderNew,
	}
	if p.ExchangeOrderID != "" {
		o.exchangeOrderID = domain.Some(p.ExchangeOrderID)
	}
	switch p.Source {
	case domain.OrderSourceBackfill:
		o.state = domain.OrderFilled
	case domain.OrderSourceAPI:
		o.state = domain.OrderCreated
	}
	return o
}

func (o *Order) Side() domain.OrderSide     { return o.side }
func (o *Order) Source() domain.OrderSource { return o.source }
func (o *Order) Owner() *Owner              { return o.owner }

// Price returns the current limit price.
func (o *Order) Price() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price
}

// Size returns the nominal size.
func (o *Order) Size() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

// State returns the lifecycle state.
func (o *Order) State() domain.OrderState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsState reports whether the order is in state s.
func (o *Order) IsState(s domain.OrderState) bool { return o.State() == s }

// ExchangeOrderID returns the exchange id once the order has been received.
func (o *Order) ExchangeOrderID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exchangeOrderID.Get()
}

// CreateFailedMessage returns the rejection reason of a createFailed order.
func (o *Order) CreateFailedMessage() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.createFailedMessage.Get()
}

// SetState moves the order to state s.
func (o *Order) SetState(s domain.OrderState) error {
	o.mu.Lock()
	from, err := o.setStateLocked(s)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.published(from, s)
	return nil
}

func (o *Order) setStateLocked(s domain.OrderState) (domain.OrderState, error) {
	from := o.state
	if !CanTransition(from, s) {
		return from, &TransitionError{OrderID: o.ID(), From: from, To: s}
	}
	o.state = s
	return from, nil
}

func (o *Order) published(from, to domain.OrderState) {
	o.LogInfo(context.Background(), "Order state changed", map[string]interface{}{"from": from, "to": to})
	o.Publish(string(to), to)
	o.Publish(entity.TopicUpdated, to)
}

// SetCreated records the exchange id and moves the order to created.
func (o *Order) SetCreated(exchangeOrderID string) error {
	o.mu.Lock()
	from, err := o.setStateLocked(domain.OrderCreated)
	if err == nil {
		o.exchangeOrderID = domain.Some(exchangeOrderID)
	}
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.published(from, domain.OrderCreated)
	return nil
}

// Place submits the order as post-only. A rejection because the order would
// take liquidity re-quotes at the next price and resubmits without limit. Any
// other rejection moves the order to createFailed and is not returned.
func (o *Order) Place(ctx context.Context) error {
	o.mu.Lock()
	if o.state != domain.OrderNew {
		err := &TransitionError{OrderID: o.ID(), From: o.state, To: domain.OrderCreating}
		o.mu.Unlock()
		return err
	}
	if o.size < o.rules.MinSize {
		size := o.size
		o.mu.Unlock()
		return fmt.Errorf("%w: %v < %v", ErrSizeTooSmall, size, o.rules.MinSize)
	}
	from, _ := o.setStateLocked(domain.OrderCreating)
	req := o.requestLocked()
	o.mu.Unlock()
	o.published(from, domain.OrderCreating)

	for attempt := 1; ; attempt++ {
		o.LogInfo(ctx, "Placing order", map[string]interface{}{"price": req.Price, "size": req.Size, "attempt": attempt})
		resp, err := o.exchange.PlaceOrder(ctx, req)
		if err == nil {
			o.Logger().Debug(ctx, "Order accepted", o.Fields(map[string]interface{}{"exchangeOrderId": resp.OrderID}))
			return nil
		}

		if !errors.Is(err, ports.ErrWouldCrossBook) {
			o.fail(ctx, err)
			return nil
		}

		next, perr := o.pricer.NextPrice(o.side)
		if perr != nil {
			o.fail(ctx, fmt.Errorf("re-quote failed: %w", perr))
			return nil
		}
		if req, err = o.requote(next); err != nil {
			return err
		}
		o.LogInfo(ctx, "Blocked by post-only, trying again", map[string]interface{}{"price": next})
	}
}

func (o *Order) requote(price float64) (domain.PlaceOrderRequest, error) {
	o.mu.Lock()
	if _, err := o.setStateLocked(domain.OrderNew); err != nil {
		o.mu.Unlock()
		return domain.PlaceOrderRequest{}, err
	}
	o.price = price
	if _, err := o.setStateLocked(domain.OrderCreating); err != nil {
		o.mu.Unlock()
		return domain.PlaceOrderRequest{}, err
	}
	req := o.requestLocked()
	o.mu.Unlock()

	o.published(domain.OrderCreating, domain.OrderNew)
	o.published(domain.OrderNew, domain.OrderCreating)
	return req, nil
}

func (o *Order) fail(ctx context.Context, err error) {
	o.mu.Lock()
	o.createFailedMessage = domain.Some(err.Error())
	from, terr := o.setStateLocked(domain.OrderCreateFailed)
	o.mu.Unlock()
	o.LogError(ctx, err, "Order could not be placed", nil)
	if terr == nil {
		o.published(from, domain.OrderCreateFailed)
	}
}

// requestLocked rounds price toward the book and size down.
func (o *Order) requestLocked() domain.PlaceOrderRequest {
	return domain.PlaceOrderRequest{
		Side:          o.side,
		Price:         RoundPrice(o.side, o.price, o.rules.PriceIncrement),
		Size:          RoundSize(o.size, o.rules.SizeIncrement),
		ClientOrderID: o.ID(),
		PostOnly:      true,
	}
}

// stepPlaces bounds the step count before Floor or Ceil so float noise such
// as 300008.99999999997 counts as a whole step.
const stepPlaces = 8

// RoundPrice rounds a buy down and a sell up to the increment.
func RoundPrice(side domain.OrderSide, price, increment float64) string {
	inc := decimal.NewFromFloat(increment)
	steps := decimal.NewFromFloat(price).Div(inc).Round(stepPlaces)
	if side == domain.Buy {
		steps = steps.Floor()
	} else {
		steps = steps.Ceil()
	}
	return steps.Mul(inc).StringFixed(places(inc))
}

// RoundSize rounds size down to the increment.
func RoundSize(size, increment float64) string {
	inc := decimal.NewFromFloat(increment)
	return decimal.NewFromFloat(size).Div(inc).Round(stepPlaces).Floor().Mul(inc).StringFixed(places(inc))
}

func places(inc decimal.Decimal) int32 {
	if exp := inc.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// Cancel requests cancellation. The order moves to canceling; canceled
// arrives through the feed. A failed request is logged only.
func (o *Order) Cancel(ctx context.Context) error {
	o.mu.Lock()
	if o.state != domain.OrderCreated {
		err := &TransitionError{OrderID: o.ID(), From: o.state, To: domain.OrderCanceling}
		o.mu.Unlock()
		return err
	}
	exchangeID, err := o.exchangeOrderID.Get()
	if err != nil {
		o.mu.Unlock()
		return ErrNoExchangeOrderID
	}
	from, _ := o.setStateLocked(domain.OrderCanceling)
	o.mu.Unlock()
	o.published(from, domain.OrderCanceling)

	if err := o.exchange.CancelOrder(ctx, exchangeID); err != nil {
		if o.IsState(domain.OrderFilled) {
			o.LogError(ctx, err, "Order was filled before it could be canceled", nil)
		} else {
			o.LogError(ctx, err, "Order could not be canceled", nil)
		}
	}
	return nil
}

// AddFill appends an execution. Backfilled orders grow by the fill size since
// their original size is unknown.
func (o *Order) AddFill(f Fill) {
	o.mu.Lock()
	o.fills = append(o.fills, f)
	if o.source == domain.OrderSourceBackfill {
		o.size += f.Size
	}
	state := o.state
	o.mu.Unlock()
	o.Publish(entity.TopicUpdated, state)
}

// Fills returns a copy of the executions.
func (o *Order) Fills() []Fill {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Fill, len(o.fills))
	copy(out, o.fills)
	return out
}

// FilledSize sums the executions.
func (o *Order) FilledSize() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filledSizeLocked()
}

func (o *Order) filledSizeLocked() float64 {
	var total float64
	for _, f := range o.fills {
		total += f.Size
	}
	return total
}

// FilledPercent is zero for an order with no size.
func (o *Order) FilledPercent() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filledPercentLocked()
}

func (o *Order) filledPercentLocked() float64 {
	if o.size == 0 {
		return 0
	}
	return o.filledSizeLocked() / o.size * 100
}

// Summary is the outbound order notification.
type Summary struct {
	Side                domain.OrderSide   `json:"side"`
	Price               float64            `json:"price"`
	Size                float64            `json:"size"`
	Source              domain.OrderSource `json:"source"`
	FilledSize          float64            `json:"filledSize"`
	ExchangeOrderID     *string            `json:"exchangeOrderId"`
	FilledPercent       float64            `json:"filledPercent"`
	State               domain.OrderState  `json:"state"`
	CreatedAt           int64              `json:"createdAt"`
	CreateFailedMessage *string            `json:"createFailedMessage"`
	StrategyName        string             `json:"strategyName,omitempty"`
	StrategyID          string             `json:"strategyId,omitempty"`
	Fills               []Fill             `json:"fills"`
}

// Snapshot returns the order notification.
func (o *Order) Snapshot() domain.Snapshot {
	o.mu.Lock()
	sum := Summary{
		Side:                o.side,
		Price:               o.price,
		Size:                o.size,
		Source:              o.source,
		FilledSize:          o.filledSizeLocked(),
		ExchangeOrderID:     o.exchangeOrderID.Ptr(),
		FilledPercent:       o.filledPercentLocked(),
		State:               o.state,
		CreatedAt:           o.createdAt,
		CreateFailedMessage: o.createFailedMessage.Ptr(),
		Fills:               make([]Fill, len(o.fills)),
	}
	copy(sum.Fills, o.fills)
	if o.owner != nil {
		sum.StrategyName = o.owner.Name
		sum.StrategyID = o.owner.ID
	}
	o.mu.Unlock()
	return o.NewSnapshot(sum)
}
