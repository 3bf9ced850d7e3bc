// Package lots implements FIFO cost-basis accounting of realized profit.
package lots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

var (
	// ErrNoOpenLot is returned for a sell when nothing is held.
	ErrNoOpenLot = errors.New("there is no open lot, this sell should not be possible")
	// ErrOversell is returned for a sell larger than the total unsold size.
	ErrOversell = errors.New("sell exceeds total unsold size")
	// ErrInvalidFill is returned for fills with a non-positive size or unknown side.
	ErrInvalidFill = errors.New("invalid fill")
)

// Fill is the subset of an execution the ledger needs.
type Fill struct {
	Side      domain.OrderSide
	Size      float64
	Price     float64
	Fee       float64
	CreatedAt int64
}

// Config holds the configuration for the Ledger.
type Config struct {
	Logger ports.Logger
	Sink   ports.SnapshotSink
}

// Ledger holds the lots in creation order. Fills must be applied one at a time
// in execution order.
type Ledger struct {
	*entity.Base[Fill]
	mu     sync.Mutex
	logger ports.Logger
	sink   ports.SnapshotSink

	lots             []*Lot
	openLot          *Lot
	cumulativeProfit float64
}

// TopicFillApplied is published after a fill has been folded into the lots.
const TopicFillApplied = "fillApplied"

// NewLedger creates an empty ledger.
func NewLedger(cfg Config) *Ledger {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	return &Ledger{
		Base:   entity.NewBase[Fill]("lots", cfg.Logger),
		logger: cfg.Logger,
		sink:   cfg.Sink,
	}
}

// AddFill folds one fill. A sell that cannot be fully allocated fails before
// any lot is touched.
func (g *Ledger) AddFill(f Fill) error {
	g.mu.Lock()
	touched, err := g.addFill(f)
	g.mu.Unlock()
	if err != nil {
		g.logger.Error(context.Background(), err, "Rejected fill", map[string]interface{}{
			"side": f.Side, "size": f.Size, "price": f.Price, "createdAt": f.CreatedAt,
		})
		return err
	}

	for _, lot := range touched {
		lot.Publish(entity.TopicUpdated, lot.State())
		if g.sink != nil {
			g.sink.Send(lot.NewSnapshot(lot.Summary()))
		}
	}
	g.Publish(TopicFillApplied, f)
	return nil
}

// Replay folds a batch of historical fills in execution order, skipping those
// created before cutoff. It uses the same path as live fills.
func (g *Ledger) Replay(fills []Fill, cutoff int64) (int, error) {
	ordered := make([]Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt < ordered[j].CreatedAt })

	applied := 0
	for i, f := range ordered {
		if f.CreatedAt < cutoff {
			continue
		}
		if err := g.AddFill(f); err != nil {
			return applied, fmt.Errorf("Replay failed at fill %d: %w", i, err)
		}
		applied++
	}
	return applied, nil
}

func (g *Ledger) addFill(f Fill) ([]*Lot, error) {
	if f.Size <= 0 {
		return nil, fmt.Errorf("%w: size %v", ErrInvalidFill, f.Size)
	}
	switch f.Side {
	case domain.Buy:
		return g.addBuy(f)
	case domain.Sell:
		return g.addSell(f)
	default:
		return nil, fmt.Errorf("%w: side %q", ErrInvalidFill, f.Side)
	}
}

func (g *Ledger) addBuy(f Fill) ([]*Lot, error) {
	// Rapid partial fills of one order collapse into a single lot.
	if n := len(g.lots); n > 0 {
		last := g.lots[n-1]
		if last.IsNew() && last.Price() == f.Price {
			if err := last.addSize(f.Size, f.Price, f.Fee); err != nil {
				return nil, err
			}
			return []*Lot{last}, nil
		}
	}

	lot := newLot(g.logger, f.Size, f.Price, f.Fee, f.CreatedAt)
	g.lots = append(g.lots, lot)
	if g.openLot == nil {
		if err := lot.open(g.cumulativeProfit); err != nil {
			return nil, err
		}
		g.openLot = lot
	}
	return []*Lot{lot}, nil
}

func (g *Ledger) addSell(f Fill) ([]*Lot, error) {
	if g.openLot == nil {
		return nil, ErrNoOpenLot
	}
	if unsold := g.totalUnsoldSize(); f.Size-unsold > RoundingError {
		return nil, fmt.Errorf("%w: size %v, unsold %v", ErrOversell, f.Size, unsold)
	}

	var touched []*Lot
	unallocated := f.Size
	for unallocated > RoundingError {
		lot := g.openLot
		if lot == nil {
			// Only reachable through float drift past the check above.
			return touched, ErrNoOpenLot
		}

		toAllocate := unallocated
		if unsold := lot.UnsoldSize(); unsold < toAllocate {
			toAllocate = unsold
		}
		fee := f.Fee / f.Size * toAllocate
		if err := lot.addSell(toAllocate, f.Price, fee, f.CreatedAt); err != nil {
			return touched, err
		}
		unallocated -= toAllocate
		touched = append(touched, lot)

		if !lot.IsClosed() {
			continue
		}
		cumulative, err := lot.CumulativeProfit()
		if err != nil {
			return touched, err
		}
		g.cumulativeProfit = cumulative
		g.openLot = g.nextNewLot()
		if g.openLot != nil {
			if err := g.openLot.open(g.cumulativeProfit); err != nil {
				return touched, err
			}
			touched = append(touched, g.openLot)
		}
	}
	return touched, nil
}

func (g *Ledger) nextNewLot() *Lot {
	for _, l := range g.lots {
		if l.IsNew() {
			return l
		}
	}
	return nil
}

func (g *Ledger) totalUnsoldSize() float64 {
	var total float64
	for _, l := range g.lots {
		if !l.IsClosed() {
			total += l.UnsoldSize()
		}
	}
	return total
}

// TotalUnsoldSize is the inventory held across lots that are not closed.
func (g *Ledger) TotalUnsoldSize() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalUnsoldSize()
}

// TotalPaidForOpenLots is the cost including fees of the inventory still held.
func (g *Ledger) TotalPaidForOpenLots() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalPaidForOpenLots()
}

func (g *Ledger) totalPaidForOpenLots() float64 {
	var total float64
	for _, l := range g.lots {
		if !l.IsClosed() {
			total += l.TotalPriceOfUnsoldPortionIncludingFees()
		}
	}
	return total
}

// AveragePricePaidForOpenLots is zero when nothing is held.
func (g *Ledger) AveragePricePaidForOpenLots() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	unsold := g.totalUnsoldSize()
	if unsold <= RoundingError {
		return 0
	}
	return g.totalPaidForOpenLots() / unsold
}

// CumulativeProfit is the realized profit of every closed lot.
func (g *Ledger) CumulativeProfit() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cumulativeProfit
}

// Lots returns the summaries of every lot in creation order.
func (g *Ledger) Lots() []LotSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]LotSummary, len(g.lots))
	for i, l := range g.lots {
		out[i] = l.Summary()
	}
	return out
}

// Snapshots returns a notification for every lot, used to resync the
// presentation side after startup.
func (g *Ledger) Snapshots() []domain.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Snapshot, len(g.lots))
	for i, l := range g.lots {
		out[i] = l.NewSnapshot(l.Summary())
	}
	return out
}
