package lots

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eveBot/internal/domain"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (s *recordingSink) Send(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func buy(size, price, fee float64, at int64) Fill {
	return Fill{Side: domain.Buy, Size: size, Price: price, Fee: fee, CreatedAt: at}
}

func sell(size, price, fee float64, at int64) Fill {
	return Fill{Side: domain.Sell, Size: size, Price: price, Fee: fee, CreatedAt: at}
}

func TestLedger_ProfitExample(t *testing.T) {
	sink := &recordingSink{}
	g := NewLedger(Config{Sink: sink})

	require.NoError(t, g.AddFill(buy(1.0, 100, 1, 10)))
	require.NoError(t, g.AddFill(sell(1.0, 110, 1, 70)))

	lots := g.Lots()
	require.Len(t, lots, 1)
	lot := lots[0]
	assert.Equal(t, domain.LotClosed, lot.State)
	assert.InDelta(t, 101, lot.TotalPriceIncludingFees, 1e-9)
	assert.InDelta(t, 109, lot.TotalEarningsIncludingFees, 1e-9)
	assert.InDelta(t, 8, lot.Profit, 1e-9)
	require.NotNil(t, lot.CumulativeProfit)
	assert.InDelta(t, 8, *lot.CumulativeProfit, 1e-9)
	require.NotNil(t, lot.ClosedAt)
	assert.Equal(t, int64(70), *lot.ClosedAt)
	assert.Equal(t, int64(60), *lot.Duration)
	assert.InDelta(t, 110, lot.AverageSellPrice, 1e-9)
	assert.InDelta(t, 2, lot.TotalFees, 1e-9)
	assert.InDelta(t, 8, g.CumulativeProfit(), 1e-9)

	// buy notification then close notification
	require.Len(t, sink.snaps, 2)
	assert.Equal(t, "lot", sink.snaps[0].Name)
	assert.Equal(t, uint64(1), sink.snaps[0].Type)
	assert.Equal(t, uint64(2), sink.snaps[1].Type)
	assert.Equal(t, domain.LotClosed, sink.snaps[1].Data.(LotSummary).State)

	// the next lot opens with the new baseline and adds to it
	require.NoError(t, g.AddFill(buy(2, 50, 0, 80)))
	require.NoError(t, g.AddFill(sell(2, 51, 0, 90)))
	assert.InDelta(t, 10, g.CumulativeProfit(), 1e-9)
	lots = g.Lots()
	assert.InDelta(t, 10, *lots[1].CumulativeProfit, 1e-9)
}

func TestLedger_FIFOAllocation(t *testing.T) {
	g := NewLedger(Config{})
	require.NoError(t, g.AddFill(buy(1.0, 100, 0.1, 1)))
	require.NoError(t, g.AddFill(buy(0.5, 101, 0.05, 2)))
	require.NoError(t, g.AddFill(buy(0.7, 102, 0.07, 3)))

	sells := []Fill{
		sell(0.3, 110, 0.03, 4),
		sell(1.0, 111, 0.1, 5),
		sell(0.6, 112, 0.06, 6),
	}
	for _, s := range sells {
		require.NoError(t, g.AddFill(s))
	}

	lots := g.Lots()
	require.Len(t, lots, 3)
	assert.Equal(t, domain.LotClosed, lots[0].State)
	assert.Equal(t, domain.LotClosed, lots[1].State)
	assert.Equal(t, domain.LotOpen, lots[2].State)

	var allocated float64
	for _, l := range lots {
		allocated += l.SoldSize
	}
	assert.InDelta(t, 1.9, allocated, 2*RoundingError)
	assert.InDelta(t, 1.0, lots[0].SoldSize, 2*RoundingError)
	assert.InDelta(t, 0.5, lots[1].SoldSize, 2*RoundingError)
	assert.InDelta(t, 0.4, lots[2].SoldSize, 2*RoundingError)

	// the 1.0 sell was split 0.7 / 0.3 across lots 1 and 2 with a proportional fee
	g.mu.Lock()
	first, second := g.lots[0].Sells(), g.lots[1].Sells()
	g.mu.Unlock()
	require.Len(t, first, 2)
	assert.InDelta(t, 0.7, first[1].Size, 1e-9)
	assert.InDelta(t, 0.07, first[1].Fee, 1e-9)
	require.Len(t, second, 2)
	assert.InDelta(t, 0.3, second[0].Size, 1e-9)
	assert.InDelta(t, 0.03, second[0].Fee, 1e-9)

	assert.InDelta(t, 0.3, g.TotalUnsoldSize(), 1e-9)
	assert.InDelta(t, (0.7*102+0.07)*0.3/0.7, g.TotalPaidForOpenLots(), 1e-9)
	assert.InDelta(t, (0.7*102+0.07)/0.7, g.AveragePricePaidForOpenLots(), 1e-9)
}

func TestLedger_Merge(t *testing.T) {
	g := NewLedger(Config{})
	require.NoError(t, g.AddFill(buy(1, 100, 0.1, 1)))
	// second lot is new because the first is open
	require.NoError(t, g.AddFill(buy(0.2, 99, 0.02, 2)))
	require.NoError(t, g.AddFill(buy(0.3, 99, 0.03, 3)))

	lots := g.Lots()
	require.Len(t, lots, 2)
	merged := lots[1]
	assert.Equal(t, domain.LotNew, merged.State)
	assert.InDelta(t, 0.5, merged.Size, 1e-9)
	assert.InDelta(t, 0.05, merged.Fee, 1e-9)
	assert.InDelta(t, 0.5*99+0.05, merged.TotalPriceIncludingFees, 1e-9)
	assert.Equal(t, int64(2), merged.CreatedAt)

	// a different price starts a new lot
	require.NoError(t, g.AddFill(buy(0.1, 98, 0, 4)))
	assert.Len(t, g.Lots(), 3)
}

func TestLedger_OpenLotIsNeverMerged(t *testing.T) {
	g := NewLedger(Config{})
	require.NoError(t, g.AddFill(buy(1, 100, 0, 1)))
	require.NoError(t, g.AddFill(buy(1, 100, 0, 2)))
	assert.Len(t, g.Lots(), 2)
}

func TestLedger_OversellLeavesLotsUnmutated(t *testing.T) {
	g := NewLedger(Config{})
	require.NoError(t, g.AddFill(buy(1, 100, 0.1, 1)))
	require.NoError(t, g.AddFill(buy(0.5, 101, 0.05, 2)))
	require.NoError(t, g.AddFill(sell(0.2, 105, 0.02, 3)))
	before := g.Lots()

	err := g.AddFill(sell(1.31, 106, 0.1, 4))
	require.ErrorIs(t, err, ErrOversell)

	assert.Equal(t, before, g.Lots())
	assert.InDelta(t, 1.3, g.TotalUnsoldSize(), 1e-9)
	assert.Zero(t, g.CumulativeProfit())
}

func TestLedger_SellWithoutLots(t *testing.T) {
	g := NewLedger(Config{})
	assert.ErrorIs(t, g.AddFill(sell(1, 100, 0, 1)), ErrNoOpenLot)

	require.NoError(t, g.AddFill(buy(1, 100, 0, 2)))
	require.NoError(t, g.AddFill(sell(1, 100, 0, 3)))
	assert.ErrorIs(t, g.AddFill(sell(0.1, 100, 0, 4)), ErrNoOpenLot)
}

func TestLedger_InvalidFill(t *testing.T) {
	g := NewLedger(Config{})
	assert.ErrorIs(t, g.AddFill(buy(0, 100, 0, 1)), ErrInvalidFill)
	assert.ErrorIs(t, g.AddFill(Fill{Side: "hold", Size: 1, Price: 1}), ErrInvalidFill)
	assert.Empty(t, g.Lots())
}

func TestLedger_SellWithinRoundingClosesLot(t *testing.T) {
	g := NewLedger(Config{})
	require.NoError(t, g.AddFill(buy(0.3, 100, 0, 1)))
	require.NoError(t, g.AddFill(sell(0.1, 101, 0, 2)))
	require.NoError(t, g.AddFill(sell(0.2, 101, 0, 3)))
	assert.Equal(t, domain.LotClosed, g.Lots()[0].State)
}

func TestLedger_ReplayEquivalence(t *testing.T) {
	fills := []Fill{
		buy(1.0, 100, 0.1, 100),
		buy(0.4, 100, 0.04, 101),
		buy(0.6, 99, 0.06, 102),
		sell(0.8, 104, 0.08, 103),
		buy(0.2, 97, 0.02, 104),
		sell(1.1, 103, 0.11, 105),
		sell(0.25, 105, 0.02, 106),
	}

	live := NewLedger(Config{})
	for _, f := range fills {
		require.NoError(t, live.AddFill(f))
	}

	// out of order input is sorted by execution time
	shuffled := []Fill{fills[3], fills[0], fills[6], fills[1], fills[2], fills[5], fills[4]}
	batch := NewLedger(Config{})
	n, err := batch.Replay(shuffled, 0)
	require.NoError(t, err)
	assert.Equal(t, len(fills), n)

	assert.Equal(t, live.Lots(), batch.Lots())
	assert.Equal(t, live.CumulativeProfit(), batch.CumulativeProfit())
}

func TestLedger_ReplayCutoff(t *testing.T) {
	g := NewLedger(Config{})
	n, err := g.Replay([]Fill{
		sell(1, 100, 0, 5),
		buy(1, 100, 0, 10),
		sell(0.5, 101, 0, 11),
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.5, g.TotalUnsoldSize(), 1e-9)
}

func TestLedger_ReplayStopsOnInvariantViolation(t *testing.T) {
	g := NewLedger(Config{})
	n, err := g.Replay([]Fill{buy(1, 100, 0, 1), sell(2, 100, 0, 2)}, 0)
	assert.ErrorIs(t, err, ErrOversell)
	assert.Equal(t, 1, n)
}

func TestLedger_FillAppliedTopic(t *testing.T) {
	g := NewLedger(Config{})
	var got []Fill
	g.On(TopicFillApplied, func(f Fill) { got = append(got, f) })

	require.NoError(t, g.AddFill(buy(1, 100, 0, 1)))
	require.Error(t, g.AddFill(sell(2, 100, 0, 2)))

	assert.Equal(t, []Fill{buy(1, 100, 0, 1)}, got)
}

func TestLot_Transitions(t *testing.T) {
	l := newLot(nil, 1, 100, 0, 1)
	assert.ErrorIs(t, l.addSell(0.1, 100, 0, 2), ErrLotNotOpen)
	assert.ErrorIs(t, l.setState(domain.LotClosed), ErrLotTransition)
	require.NoError(t, l.open(5))
	assert.ErrorIs(t, l.open(5), ErrLotTransition)
	assert.ErrorIs(t, l.addSize(1, 100, 0), ErrLotNotNew)
	assert.ErrorIs(t, l.addSell(1.5, 100, 0, 2), ErrLotOversell)

	_, err := l.CumulativeProfit()
	assert.ErrorIs(t, err, domain.ErrNotReady)

	require.NoError(t, l.addSell(1, 103, 0, 3))
	cp, err := l.CumulativeProfit()
	require.NoError(t, err)
	assert.InDelta(t, 8, cp, 1e-9)

	n := newLot(nil, 1, 100, 0, 1)
	assert.ErrorIs(t, n.addSize(1, 101, 0), ErrPriceMismatch)
}
