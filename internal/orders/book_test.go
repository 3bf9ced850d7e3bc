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

func newTestBook(ex *mocks.Exchange, sink *mocks.Sink) *Book {
	return NewBook(Config{Exchange: ex, Pricer: &stepPricer{}, Sink: sink})
}

func TestBook_PlaceThenReceived(t *testing.T) {
	ex := &mocks.Exchange{}
	sink := &mocks.Sink{}
	book := newTestBook(ex, sink)
	ex.On("PlaceOrder", mock.Anything, mock.Anything).Return(&ports.OrderResponse{OrderID: "1001"}, nil).Once()

	o, err := book.Place(context.Background(), domain.Buy, 100, 0.5, &Owner{ID: "s", Name: "followNextPrice"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCreating, o.State())

	got, err := book.HandleReceived(context.Background(), domain.OrderReceived{
		CreatedAt: 1, Price: 100, Size: 0.5, OrderID: "1001", ClientOrderID: o.ID(), Side: domain.Buy,
	})
	require.NoError(t, err)
	assert.Same(t, o, got)
	assert.Equal(t, domain.OrderCreated, o.State())

	byEx, ok := book.ByExchangeID("1001")
	require.True(t, ok)
	assert.Same(t, o, byEx)

	// registration, creating, created
	orderSnaps := sink.Named("order")
	require.Len(t, orderSnaps, 3)
	assert.Equal(t, domain.OrderCreated, orderSnaps[2].Data.(Summary).State)
}

func TestBook_PlaceTooSmallIsNotKept(t *testing.T) {
	book := newTestBook(&mocks.Exchange{}, nil)
	_, err := book.Place(context.Background(), domain.Buy, 100, 0.0001, nil)
	assert.ErrorIs(t, err, ErrSizeTooSmall)
	assert.Empty(t, book.Orders())
}

func TestBook_ReceivedFromElsewhere(t *testing.T) {
	book := newTestBook(&mocks.Exchange{}, nil)

	o, err := book.HandleReceived(context.Background(), domain.OrderReceived{
		CreatedAt: 5, Price: 99, Size: 2, OrderID: "77", ClientOrderID: "web_abc", Side: domain.Sell,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSourceFeed, o.Source())
	assert.Equal(t, domain.OrderCreated, o.State())
	assert.Equal(t, 2.0, o.Size())

	_, err = book.HandleReceived(context.Background(), domain.OrderReceived{OrderID: "77", Side: domain.Sell})
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Len(t, book.Orders(), 1)
}

func TestBook_Match(t *testing.T) {
	book := newTestBook(&mocks.Exchange{}, nil)
	o := book.AddListedOrder(domain.ListedOrder{OrderID: "5", Side: domain.Buy, Price: 100, Size: 1, CreatedAt: 1})
	assert.Equal(t, domain.OrderSourceAPI, o.Source())
	assert.Equal(t, domain.OrderCreated, o.State())
	assert.Same(t, o, book.AddListedOrder(domain.ListedOrder{OrderID: "5"}))

	match := domain.OrderMatch{TradeID: 11, Side: domain.Buy, Size: 0.4, Price: 100, TotalPrice: 40, OrderID: "5", Fee: 0.04, CreatedAt: 2}

	applied := 0
	_, err := book.HandleMatch(match, func() error { applied++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.InDelta(t, 0.4, o.FilledSize(), 1e-9)
	assert.Equal(t, domain.FillSourceFeed, o.Fills()[0].Source)

	_, err = book.HandleMatch(match, func() error { applied++; return nil })
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 1, applied, "redelivered trade is not applied again")

	rejected := errors.New("ledger refused")
	match.TradeID = 12
	_, err = book.HandleMatch(match, func() error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.Len(t, o.Fills(), 1, "order untouched when apply fails")

	_, err = book.HandleMatch(domain.OrderMatch{OrderID: "missing", Size: 1, Price: 1}, nil)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestBook_Done(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(&mocks.Exchange{}, nil)
	a := book.AddListedOrder(domain.ListedOrder{OrderID: "a", Side: domain.Buy, Price: 1, Size: 1})
	b := book.AddListedOrder(domain.ListedOrder{OrderID: "b", Side: domain.Buy, Price: 1, Size: 1})

	_, err := book.HandleDone(ctx, domain.OrderDone{OrderID: "a", Reason: domain.DoneCanceled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, a.State())

	_, err = book.HandleDone(ctx, domain.OrderDone{OrderID: "a", Reason: domain.DoneCanceled})
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	_, err = book.HandleDone(ctx, domain.OrderDone{OrderID: "b", Reason: domain.DoneFilled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, b.State())

	_, err = book.HandleDone(ctx, domain.OrderDone{OrderID: "a", Reason: domain.DoneFilled})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = book.HandleDone(ctx, domain.OrderDone{OrderID: "b", Reason: "expired"})
	assert.ErrorIs(t, err, ErrUnexpectedReason)

	o, err := book.HandleDone(ctx, domain.OrderDone{OrderID: "nobody", Reason: domain.DoneFilled})
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestBook_BackfillFill(t *testing.T) {
	book := newTestBook(&mocks.Exchange{}, nil)
	listed := book.AddListedOrder(domain.ListedOrder{OrderID: "open", Side: domain.Sell, Price: 120, Size: 2})

	fills := []domain.HistoricalFill{
		{ID: 1, OrderID: "x", Side: domain.Buy, Price: 100, Size: 0.3, TotalPrice: 30, Fee: 0.03, CreatedAt: 10},
		{ID: 2, OrderID: "x", Side: domain.Buy, Price: 100.5, Size: 0.2, TotalPrice: 20.1, Fee: 0.02, CreatedAt: 11},
		{ID: 3, OrderID: "open", Side: domain.Sell, Price: 120, Size: 0.5, TotalPrice: 60, CreatedAt: 12},
	}
	for _, f := range fills {
		_, err := book.BackfillFill(f)
		require.NoError(t, err)
	}

	x, ok := book.ByExchangeID("x")
	require.True(t, ok)
	assert.Equal(t, domain.OrderSourceBackfill, x.Source())
	assert.Equal(t, domain.OrderFilled, x.State())
	assert.InDelta(t, 0.5, x.Size(), 1e-9)
	assert.Equal(t, 100.0, x.Price())
	assert.Equal(t, domain.FillSourceAPI, x.Fills()[1].Source)

	assert.Equal(t, 2.0, listed.Size(), "listed orders keep their size")
	assert.InDelta(t, 25, listed.FilledPercent(), 1e-9)

	_, err := book.BackfillFill(fills[0])
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	// a live redelivery of a backfilled trade is dropped
	_, err = book.HandleMatch(domain.OrderMatch{TradeID: 3, OrderID: "open", Side: domain.Sell, Size: 0.5, Price: 120}, nil)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Len(t, book.Orders(), 2)
}

func TestBook_Cancel(t *testing.T) {
	ex := &mocks.Exchange{}
	book := newTestBook(ex, nil)
	o := book.AddListedOrder(domain.ListedOrder{OrderID: "c1", Side: domain.Buy, Price: 1, Size: 1})
	ex.On("CancelOrder", mock.Anything, "c1").Return(nil).Once()

	got, err := book.Cancel(context.Background(), o.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceling, got.State())

	_, err = book.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownOrder)
	ex.AssertExpectations(t)
}
