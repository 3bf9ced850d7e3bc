// Package candles folds the public trade stream into per-second buckets and
// rolls them up into OHLCV periods of any length.
package candles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

var (
	// ErrNoSeconds is returned when seconds or periods are requested before any tick.
	ErrNoSeconds = errors.New("no seconds observed yet")
	// ErrPriceNotSet is returned when the price is read before any tick.
	ErrPriceNotSet = errors.New("price not set")
	// ErrStaleTick is returned for a tick older than the current second.
	ErrStaleTick = errors.New("tick is older than the current second")
	// ErrInvalidPeriodLength is returned for a non-positive period length.
	ErrInvalidPeriodLength = errors.New("period length must be positive")
)

// TopicPriceUpdated is published with the new price after live ticks and
// once at the end of backfill.
const TopicPriceUpdated = "priceUpdated"

const (
	DefaultMaxAge         = 3 * time.Hour
	DefaultPriceIncrement = 0.01
	// DefaultFlushLag is how long a second stays open for late trades before
	// the clock alone may close it.
	DefaultFlushLag = 3 * time.Second
)

// TradePager fetches public trade history one page at a time, newest first.
type TradePager interface {
	GetTradesPage(ctx context.Context, cursor int64) (*ports.TradePage, error)
}

// Holdings exposes the open lot totals included in product snapshots.
type Holdings interface {
	TotalUnsoldSize() float64
	TotalPaidForOpenLots() float64
	AveragePricePaidForOpenLots() float64
}

// Config holds the configuration for the Product.
type Config struct {
	Logger         ports.Logger
	MaxAge         time.Duration
	PriceIncrement float64
	FlushLag       time.Duration
	Now            func() time.Time
	Holdings       Holdings
}

// Product aggregates the trades of the configured market.
type Product struct {
	*entity.Base[float64]
	mu     sync.Mutex
	logger ports.Logger
	maxAge time.Duration
	incr   float64
	lag    int64
	now    func() time.Time

	holdings Holdings

	currentPrice     domain.Optional[float64]
	backfillComplete bool
	queued           []domain.Tick

	firstSecond   *Second
	currentSecond *Second
	seconds       map[int64]*Second

	// periods[length][i] is the i-th period of that length.
	periods map[int64][]Period
}

// NewProduct creates a Product. Live ticks are queued until Backfill completes.
func NewProduct(cfg Config) *Product {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.PriceIncrement <= 0 {
		cfg.PriceIncrement = DefaultPriceIncrement
	}
	if cfg.FlushLag <= 0 {
		cfg.FlushLag = DefaultFlushLag
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Product{
		Base:     entity.NewBase[float64]("product", cfg.Logger),
		logger:   cfg.Logger,
		maxAge:   cfg.MaxAge,
		incr:     cfg.PriceIncrement,
		lag:      int64(cfg.FlushLag / time.Second),
		now:      cfg.Now,
		holdings: cfg.Holdings,
		seconds:  make(map[int64]*Second),
		periods:  make(map[int64][]Period),
	}
}

// SetHoldings attaches the lot totals reported in snapshots.
func (p *Product) SetHoldings(h Holdings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdings = h
}

// AddTick queues the tick while backfill is in progress, otherwise folds it.
func (p *Product) AddTick(tick domain.Tick) error {
	p.mu.Lock()
	if !p.backfillComplete {
		p.queued = append(p.queued, tick)
		p.mu.Unlock()
		return nil
	}
	err := p.updateSecond(tick)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.Publish(TopicPriceUpdated, tick.Price)
	return nil
}

// BackfillComplete reports whether live ticks are folded directly.
func (p *Product) BackfillComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backfillComplete
}

// Backfill loads trade history up to the configured max age, merges it with
// the ticks queued meanwhile and folds everything in time order. A failed page
// aborts the phase and leaves the product untouched.
func (p *Product) Backfill(ctx context.Context, pager TradePager) (int, error) {
	op := "Backfill"
	nowSec := p.now().Unix()
	maxAge := int64(p.maxAge / time.Second)

	var fetched []domain.Tick
	var cursor int64
	for {
		page, err := pager.GetTradesPage(ctx, cursor)
		if err != nil {
			p.logger.Error(ctx, err, "Failed to fetch trade page", map[string]interface{}{"cursor": cursor, "loaded": len(fetched)})
			return 0, fmt.Errorf("%s failed: %w", op, err)
		}

		done := !page.HasMore
		// Pages are ascending; walk newest to oldest so the age cut stops at the right trade.
		for i := len(page.Trades) - 1; i >= 0; i-- {
			t := page.Trades[i]
			fetched = append(fetched, domain.Tick{ID: t.ID, Price: t.Price, Size: t.Size, Side: t.Side, Time: t.Time})
			if nowSec-t.Time > maxAge {
				done = true
				break
			}
		}
		if len(page.Trades) > 0 {
			p.logger.Debug(ctx, "Loaded trade page", map[string]interface{}{
				"from": page.Trades[0].Time,
				"to":   page.Trades[len(page.Trades)-1].Time,
			})
		}
		if done || len(page.Trades) == 0 {
			break
		}
		cursor = page.Next
	}

	p.mu.Lock()
	all := mergeTicks(fetched, p.queued)
	for _, tick := range all {
		if err := p.updateSecond(tick); err != nil {
			p.mu.Unlock()
			return 0, fmt.Errorf("%s failed: %w", op, err)
		}
	}
	p.queued = nil
	p.backfillComplete = true
	price, priceErr := p.currentPrice.Get()
	p.mu.Unlock()

	p.logger.Info(ctx, "Loaded product data", map[string]interface{}{"trades": len(fetched), "folded": len(all)})
	if priceErr == nil {
		p.Publish(TopicPriceUpdated, price)
	}
	return len(all), nil
}

// mergeTicks sorts history and queued live ticks by time and drops trades
// that appear in both.
func mergeTicks(history, live []domain.Tick) []domain.Tick {
	all := make([]domain.Tick, 0, len(history)+len(live))
	seen := make(map[int64]struct{}, len(history))
	// history is newest first; reverse so equal timestamps keep trade order.
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.ID != 0 {
			seen[t.ID] = struct{}{}
		}
		all = append(all, t)
	}
	for _, t := range live {
		if t.ID != 0 {
			if _, dup := seen[t.ID]; dup {
				continue
			}
		}
		all = append(all, t)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time < all[j].Time })
	return all
}

// updateSecond folds one tick. Caller holds p.mu.
func (p *Product) updateSecond(tick domain.Tick) error {
	cur := p.currentSecond
	if cur != nil && tick.Time < cur.Time() {
		return fmt.Errorf("%w: tick %d, current %d", ErrStaleTick, tick.Time, cur.Time())
	}

	if cur == nil || tick.Time != cur.Time() {
		openPrice := tick.Price
		if cur != nil {
			if !cur.Finalized() {
				if err := cur.Finalize(); err != nil {
					return err
				}
			}
			sum, _ := cur.Summary()
			openPrice = sum.ClosePrice
		}
		next := newSecond(tick.Time, openPrice)
		p.seconds[tick.Time] = next
		p.currentSecond = next
		if p.firstSecond == nil {
			p.firstSecond = next
		}
	}

	if err := p.currentSecond.AddTick(tick); err != nil {
		return fmt.Errorf("%w: tick %d", err, tick.Time)
	}
	p.currentPrice = domain.Some(tick.Price)
	return nil
}

// FirstSecond returns the earliest observed second.
func (p *Product) FirstSecond() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstSecond == nil {
		return 0, ErrNoSeconds
	}
	return p.firstSecond.Time(), nil
}

// Second returns the finalized summary of the given second.
func (p *Product) Second(second int64) (SecondSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.seconds[second]
	if !ok {
		return SecondSummary{}, false
	}
	sum, err := s.Summary()
	return sum, err == nil
}

// Flush finalizes the current second once it is older than the flush lag.
// A newer tick closes it earlier.
func (p *Product) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(p.settled())
}

// settled is the first second that may still receive trades. Caller holds p.mu.
func (p *Product) settled() int64 {
	return p.now().Unix() - p.lag
}

func (p *Product) flush(settled int64) error {
	cur := p.currentSecond
	if cur == nil || cur.Finalized() || cur.Time() >= settled {
		return nil
	}
	return cur.Finalize()
}

// Periods returns every period of the given length from the first boundary at
// or after the first observed second up to the last boundary that is older
// than the flush lag. Computed periods are cached and never recomputed.
func (p *Product) Periods(length int64) ([]Period, error) {
	if length <= 0 {
		return nil, ErrInvalidPeriodLength
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.firstSecond == nil {
		return nil, ErrNoSeconds
	}

	settled := p.settled()
	firstBoundary := ceilDiv(p.firstSecond.Time(), length) * length
	var maxPeriod int64
	if settled >= firstBoundary {
		maxPeriod = (settled - firstBoundary) / length
	}

	cached := p.periods[length]
	if int64(len(cached)) < maxPeriod {
		// The open second may belong to an elapsed period.
		if err := p.flush(settled); err != nil {
			return nil, err
		}

		openPrice := p.firstSecond.OpenPrice()
		if len(cached) > 0 {
			openPrice = cached[len(cached)-1].Close
		}
		for i := int64(len(cached)); i < maxPeriod; i++ {
			start := firstBoundary + i*length
			var seconds []SecondSummary
			for s := start; s < start+length; s++ {
				if sec, ok := p.seconds[s]; ok {
					if sum, err := sec.Summary(); err == nil {
						seconds = append(seconds, sum)
					}
				}
			}
			period := newPeriod(start, length, openPrice, seconds)
			cached = append(cached, period)
			openPrice = period.Close
		}
		p.periods[length] = cached
	}

	out := make([]Period, len(cached))
	copy(out, cached)
	return out, nil
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

// IsReady reports whether a price has been observed.
func (p *Product) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPrice.IsSet()
}

// CurrentPrice returns the last traded price.
func (p *Product) CurrentPrice() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, err := p.currentPrice.Get()
	if err != nil {
		return 0, ErrPriceNotSet
	}
	return price, nil
}

// NextPrice returns the best post-only price for side.
func (p *Product) NextPrice(side domain.OrderSide) (float64, error) {
	if side == domain.Buy {
		return p.NextBuyPrice()
	}
	return p.NextSellPrice()
}

// NextBuyPrice is one price increment below the current price.
func (p *Product) NextBuyPrice() (float64, error) {
	return p.stepPrice(-1)
}

// NextSellPrice is one price increment above the current price.
func (p *Product) NextSellPrice() (float64, error) {
	return p.stepPrice(1)
}

func (p *Product) stepPrice(steps int64) (float64, error) {
	price, err := p.CurrentPrice()
	if err != nil {
		return 0, err
	}
	incr := decimal.NewFromFloat(p.incr).Mul(decimal.NewFromInt(steps))
	return decimal.NewFromFloat(price).Add(incr).InexactFloat64(), nil
}

// ProductSummary is the outbound product notification.
type ProductSummary struct {
	CurrentPrice                float64 `json:"currentPrice"`
	AveragePricePaidForOpenLots float64 `json:"averagePricePaidForOpenLots"`
	TotalPaidForOpenLots        float64 `json:"totalPaidForOpenLots"`
	TotalUnsoldSize             float64 `json:"totalUnsoldSize"`
}

// Snapshot returns the product notification. It fails before the first tick.
func (p *Product) Snapshot() (domain.Snapshot, error) {
	p.mu.Lock()
	price, err := p.currentPrice.Get()
	holdings := p.holdings
	p.mu.Unlock()
	if err != nil {
		return domain.Snapshot{}, ErrPriceNotSet
	}

	sum := ProductSummary{CurrentPrice: price}
	if holdings != nil {
		sum.AveragePricePaidForOpenLots = holdings.AveragePricePaidForOpenLots()
		sum.TotalPaidForOpenLots = holdings.TotalPaidForOpenLots()
		sum.TotalUnsoldSize = holdings.TotalUnsoldSize()
	}
	return p.NewSnapshot(sum), nil
}
