package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eveBot/internal/domain"
	"eveBot/internal/ports/mocks"
)

func TestBalance_NotReadyBeforeSync(t *testing.T) {
	b := New(nil, nil)
	assert.False(t, b.IsReady())

	_, err := b.BaseAmount()
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = b.QuoteAmount()
	assert.ErrorIs(t, err, domain.ErrNotReady)

	// matches before the first sync do not invent balances
	b.ApplyMatch(domain.OrderMatch{Side: domain.Buy, Size: 1, TotalPrice: 100})
	assert.False(t, b.IsReady())
}

func TestBalance_UpdateAndMatches(t *testing.T) {
	ex := &mocks.Exchange{}
	sink := &mocks.Sink{}
	b := New(nil, sink)
	ex.On("GetBalances", mock.Anything).Return(&domain.Balances{Base: 2, Quote: 1000}, nil).Twice()

	require.NoError(t, b.Update(context.Background(), ex))
	require.True(t, b.IsReady())

	b.ApplyMatch(domain.OrderMatch{Side: domain.Buy, Size: 0.5, TotalPrice: 50, Fee: 0.1})
	base, _ := b.BaseAmount()
	quote, _ := b.QuoteAmount()
	assert.InDelta(t, 2.5, base, 1e-9)
	assert.InDelta(t, 949.9, quote, 1e-9)

	b.ApplyMatch(domain.OrderMatch{Side: domain.Sell, Size: 1, TotalPrice: 110, Fee: 0.2})
	base, _ = b.BaseAmount()
	quote, _ = b.QuoteAmount()
	assert.InDelta(t, 1.5, base, 1e-9)
	assert.InDelta(t, 1059.7, quote, 1e-9)

	// resync back to the exchange values is a change
	require.NoError(t, b.Update(context.Background(), ex))
	base, _ = b.BaseAmount()
	assert.Equal(t, 2.0, base)

	snaps := sink.Named("balance")
	require.Len(t, snaps, 4)
	sum := snaps[3].Data.(Summary)
	assert.Equal(t, 1000.0, *sum.Quote)
	assert.Equal(t, uint64(4), snaps[3].Type)
}

func TestBalance_UpdateUnchangedIsQuiet(t *testing.T) {
	ex := &mocks.Exchange{}
	sink := &mocks.Sink{}
	b := New(nil, sink)
	ex.On("GetBalances", mock.Anything).Return(&domain.Balances{Base: 0, Quote: 0}, nil)

	require.NoError(t, b.Update(context.Background(), ex))
	require.NoError(t, b.Update(context.Background(), ex))
	assert.Len(t, sink.Snapshots(), 1)
}

func TestBalance_UpdateError(t *testing.T) {
	ex := &mocks.Exchange{}
	fetchErr := errors.New("down")
	ex.On("GetBalances", mock.Anything).Return(nil, fetchErr)

	b := New(nil, nil)
	assert.ErrorIs(t, b.Update(context.Background(), ex), fetchErr)
	assert.False(t, b.IsReady())
}
