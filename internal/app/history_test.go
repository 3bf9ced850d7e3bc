package app

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

func TestFetchTrades_StopsAtSince(t *testing.T) {
	ex := &mocks.Exchange{}
	ex.On("GetTradesPage", mock.Anything, int64(0)).Return(&ports.TradePage{
		Trades:  []domain.HistoricalTrade{{ID: 11, Time: 500}, {ID: 12, Time: 510}},
		Next:    10,
		HasMore: true,
	}, nil)
	ex.On("GetTradesPage", mock.Anything, int64(10)).Return(&ports.TradePage{
		Trades:  []domain.HistoricalTrade{{ID: 9, Time: 390}, {ID: 10, Time: 450}},
		Next:    8,
		HasMore: true,
	}, nil)

	trades, err := FetchTrades(context.Background(), ex, 400)
	require.NoError(t, err)
	ids := make([]int64, len(trades))
	for i, tr := range trades {
		ids[i] = tr.ID
	}
	assert.Equal(t, []int64{10, 11, 12}, ids)
	ex.AssertNotCalled(t, "GetTradesPage", mock.Anything, int64(8))
}

func TestFetchFills_Error(t *testing.T) {
	ex := &mocks.Exchange{}
	boom := errors.New("boom")
	ex.On("GetFillsPage", mock.Anything, int64(0)).Return(&ports.FillPage{HasMore: true, Next: 5}, nil)
	ex.On("GetFillsPage", mock.Anything, int64(5)).Return(nil, boom)

	_, err := FetchFills(context.Background(), ex)
	assert.ErrorIs(t, err, boom)
}
