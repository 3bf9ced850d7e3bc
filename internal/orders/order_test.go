package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
	"eveBot/internal/ports/mocks"
)

var allStates = []domain.OrderState{
	domain.OrderNew,
	domain.OrderCreating,
	domain.OrderCreated,
	domain.OrderCreateFailed,
	domain.OrderFilled,
	domain.OrderCanceling,
	domain.OrderCanceled,
}

type stepPricer struct {
	prices []float64
	calls  int
}

func (p *stepPricer) NextPrice(domain.OrderSide) (float64, error) {
	if len(p.prices) == 0 {
		return 0, errors.New("no price")
	}
	price := p.prices[0]
	p.prices = p.prices[1:]
	p.calls++
	return price, nil
}

func orderIn(state domain.OrderState) *Order {
	o := newOrder(nil, nil, nil, DefaultRules, Params{Side: domain.Buy, Price: 100, Size: 1, Source: domain.OrderSourceFeed})
	o.state = state
	return o
}

func TestOrder_TransitionTable(t *testing.T) {
	legal := map[[2]domain.OrderState]bool{
		{domain.OrderNew, domain.OrderCreating}:          true,
		{domain.OrderNew, domain.OrderCreated}:           true,
		{domain.OrderCreating, domain.OrderNew}:          true,
		{domain.OrderCreating, domain.OrderCreated}:      true,
		{domain.OrderCreating, domain.OrderCreateFailed}: true,
		{domain.OrderCreated, domain.OrderCanceling}:     true,
		{domain.OrderCreated, domain.OrderFilled}:        true,
		{domain.OrderCreated, domain.OrderCanceled}:      true,
		{domain.OrderCanceling, domain.OrderCanceled}:    true,
		{domain.OrderCanceling, domain.OrderFilled}:      true,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				o := orderIn(from)
				var published []domain.OrderState
				o.On(string(to), func(s domain.OrderState) { published = append(published, s) })

				err := o.SetState(to)
				if legal[[2]domain.OrderState{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, o.State())
					assert.Equal(t, []domain.OrderState{to}, published)
					return
				}

				require.Error(t, err)
				assert.ErrorIs(t, err, ErrIllegalTransition)
				var te *TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)
				assert.Equal(t, from, o.State(), "state must be unchanged")
				assert.Empty(t, published)
			})
		}
	}
}

func TestOrder_InitialStateBySource(t *testing.T) {
	tests := []struct {
		source domain.OrderSource
		want   domain.OrderState
	}{
		{domain.OrderSourceEve, domain.OrderNew},
		{domain.OrderSourceFeed, domain.OrderNew},
		{domain.OrderSourceAPI, domain.OrderCreated},
		{domain.OrderSourceBackfill, domain.OrderFilled},
	}
	for _, tt := range tests {
		o := newOrder(nil, nil, nil, DefaultRules, Params{Side: domain.Sell, Price: 1, Size: 1, Source: tt.source})
		assert.Equal(t, tt.want, o.State(), tt.source)
	}
}

func TestOrder_PlaceAccepted(t *testing.T) {
	ex := &mocks.Exchange{}
	o := newOrder(nil, ex, &stepPricer{}, DefaultRules, Params{Side: domain.Buy, Price: 1234.5678, Size: 0.12345, Source: domain.OrderSourceEve})

	ex.On("PlaceOrder", mock.Anything, domain.PlaceOrderRequest{
		Side:          domain.Buy,
		Price:         "1234.56",
		Size:          "0.123",
		ClientOrderID: o.ID(),
		PostOnly:      true,
	}).Return(&ports.OrderResponse{OrderID: "42"}, nil).Once()

	require.NoError(t, o.Place(context.Background()))
	assert.Equal(t, domain.OrderCreating, o.State())
	ex.AssertExpectations(t)

	require.NoError(t, o.SetCreated("42"))
	id, err := o.ExchangeOrderID()
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestOrder_PlaceRetriesWhenCrossingBook(t *testing.T) {
	ex := &mocks.Exchange{}
	pricer := &stepPricer{prices: []float64{101.011, 101.02}}
	o := newOrder(nil, ex, pricer, DefaultRules, Params{Side: domain.Sell, Price: 100.999, Size: 1, Source: domain.OrderSourceEve})

	var states []domain.OrderState
	o.On("updated", func(s domain.OrderState) { states = append(states, s) })

	ex.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(r domain.PlaceOrderRequest) bool { return r.Price == "101.00" })).
		Return(nil, ports.ErrWouldCrossBook).Once()
	ex.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(r domain.PlaceOrderRequest) bool { return r.Price == "101.02" })).
		Return(nil, ports.ErrWouldCrossBook).Once()
	ex.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(r domain.PlaceOrderRequest) bool { return r.Price == "101.02" && r.Size == "1.000" })).
		Return(&ports.OrderResponse{OrderID: "7"}, nil).Once()

	require.NoError(t, o.Place(context.Background()))

	assert.Equal(t, domain.OrderCreating, o.State())
	assert.Equal(t, 101.02, o.Price())
	assert.Equal(t, 2, pricer.calls)
	assert.Equal(t, []domain.OrderState{
		domain.OrderCreating,
		domain.OrderNew, domain.OrderCreating,
		domain.OrderNew, domain.OrderCreating,
	}, states)
	ex.AssertNumberOfCalls(t, "PlaceOrder", 3)
}

func TestOrder_PlaceRejected(t *testing.T) {
	ex := &mocks.Exchange{}
	o := newOrder(nil, ex, &stepPricer{}, DefaultRules, Params{Side: domain.Buy, Price: 100, Size: 1, Source: domain.OrderSourceEve})
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, errors.New("insufficient balance")).Once()

	require.NoError(t, o.Place(context.Background()))

	assert.Equal(t, domain.OrderCreateFailed, o.State())
	msg, err := o.CreateFailedMessage()
	require.NoError(t, err)
	assert.Equal(t, "insufficient balance", msg)
	assert.Error(t, o.Place(context.Background()), "createFailed is terminal")
}

func TestOrder_PlaceValidation(t *testing.T) {
	o := newOrder(nil, &mocks.Exchange{}, &stepPricer{}, DefaultRules, Params{Side: domain.Buy, Price: 100, Size: 0.0009, Source: domain.OrderSourceEve})
	assert.ErrorIs(t, o.Place(context.Background()), ErrSizeTooSmall)
	assert.Equal(t, domain.OrderNew, o.State())

	created := orderIn(domain.OrderCreated)
	assert.ErrorIs(t, created.Place(context.Background()), ErrIllegalTransition)
}

// floatSum adds at run time; Go folds constant expressions exactly.
func floatSum(a, b float64) float64 { return a + b }

func TestRounding(t *testing.T) {
	tests := []struct {
		name  string
		side  domain.OrderSide
		price float64
		incr  float64
		want  string
	}{
		{"buy rounds down", domain.Buy, 2500.129, 0.01, "2500.12"},
		{"sell rounds up", domain.Sell, 2500.121, 0.01, "2500.13"},
		{"exact price kept", domain.Sell, 2500.12, 0.01, "2500.12"},
		{"tenth increment", domain.Buy, 2500.19, 0.1, "2500.1"},
		{"whole increment", domain.Sell, 10.2, 1, "11"},
		{"buy keeps a step lost to float subtraction", domain.Buy, floatSum(3000.1, -0.01), 0.01, "3000.09"},
		{"sell keeps a step gained by float addition", domain.Sell, floatSum(0.1, 0.2), 0.1, "0.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundPrice(tt.side, tt.price, tt.incr))
		})
	}

	assert.Equal(t, "0.123", RoundSize(0.12399, 0.001))
	assert.Equal(t, "1.000", RoundSize(1, 0.001))
	assert.Equal(t, "0.3", RoundSize(floatSum(0.1, 0.2), 0.1))
	assert.Equal(t, "0.2", RoundSize(floatSum(0.3, -0.1), 0.1))
}

func TestOrder_Cancel(t *testing.T) {
	ex := &mocks.Exchange{}
	o := newOrder(nil, ex, nil, DefaultRules, Params{Side: domain.Buy, Price: 100, Size: 1, Source: domain.OrderSourceAPI, ExchangeOrderID: "99"})

	ex.On("CancelOrder", mock.Anything, "99").Return(errors.New("network down")).Once()
	require.NoError(t, o.Cancel(context.Background()))
	assert.Equal(t, domain.OrderCanceling, o.State(), "a failed cancel request does not change state")

	assert.ErrorIs(t, o.Cancel(context.Background()), ErrIllegalTransition)
	require.NoError(t, o.SetState(domain.OrderCanceled))
	ex.AssertExpectations(t)
}

func TestOrder_CancelWithoutExchangeID(t *testing.T) {
	o := orderIn(domain.OrderCreated)
	assert.ErrorIs(t, o.Cancel(context.Background()), ErrNoExchangeOrderID)
	assert.Equal(t, domain.OrderCreated, o.State())
}

func TestOrder_AddFill(t *testing.T) {
	backfill := newOrder(nil, nil, nil, DefaultRules, Params{Side: domain.Buy, Price: 100, Source: domain.OrderSourceBackfill})
	updates := 0
	backfill.On("updated", func(domain.OrderState) { updates++ })

	backfill.AddFill(Fill{Size: 0.4, Price: 100, TotalPrice: 40})
	backfill.AddFill(Fill{Size: 0.6, Price: 100, TotalPrice: 60})

	assert.InDelta(t, 1.0, backfill.Size(), 1e-9)
	assert.InDelta(t, 1.0, backfill.FilledSize(), 1e-9)
	assert.InDelta(t, 100, backfill.FilledPercent(), 1e-9)
	assert.Equal(t, 2, updates)

	live := orderIn(domain.OrderCreated)
	live.AddFill(Fill{Size: 0.25, Price: 100})
	assert.Equal(t, 1.0, live.Size())
	assert.InDelta(t, 25, live.FilledPercent(), 1e-9)
	assert.Len(t, live.Fills(), 1)
}

func TestOrder_Snapshot(t *testing.T) {
	o := newOrder(nil, nil, nil, DefaultRules, Params{
		Side: domain.Sell, Price: 10, Size: 2, Source: domain.OrderSourceEve,
		Owner: &Owner{ID: "s1", Name: "followNextPrice"}, CreatedAt: 1000,
	})
	o.AddFill(Fill{Size: 1, Price: 10, TotalPrice: 10, CreatedAt: 1001, Source: domain.FillSourceFeed})

	snap := o.Snapshot()
	assert.Equal(t, "order", snap.Name)
	assert.Equal(t, o.ID(), snap.ID)
	sum := snap.Data.(Summary)
	assert.Equal(t, "followNextPrice", sum.StrategyName)
	assert.Equal(t, "s1", sum.StrategyID)
	assert.Nil(t, sum.ExchangeOrderID)
	assert.Equal(t, 50.0, sum.FilledPercent)
	assert.Len(t, sum.Fills, 1)

	assert.Equal(t, uint64(2), o.Snapshot().Type)
}
