// Package balance tracks the account's base and quote balances between
// account syncs.
package balance

import (
	"context"
	"fmt"
	"sync"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

// Fetcher reads balances from the exchange.
type Fetcher interface {
	GetBalances(ctx context.Context) (*domain.Balances, error)
}

// Balance holds the base and quote balances. Both are unset until the first
// successful Update.
type Balance struct {
	*entity.Base[domain.Balances]
	mu    sync.Mutex
	base  domain.Optional[float64]
	quote domain.Optional[float64]
	sink  ports.SnapshotSink
}

// New creates a Balance with no known values.
func New(logger ports.Logger, sink ports.SnapshotSink) *Balance {
	return &Balance{
		Base: entity.NewBase[domain.Balances]("balance", logger),
		sink: sink,
	}
}

// IsReady reports whether both balances are known.
func (b *Balance) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base.IsSet() && b.quote.IsSet()
}

// BaseAmount returns the base asset balance.
func (b *Balance) BaseAmount() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base.Get()
}

// QuoteAmount returns the quote asset balance.
func (b *Balance) QuoteAmount() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quote.Get()
}

// Update syncs both balances from the exchange and notifies on change.
func (b *Balance) Update(ctx context.Context, f Fetcher) error {
	op := "Update"
	bal, err := f.GetBalances(ctx)
	if err != nil {
		b.LogError(ctx, err, "Failed to fetch balances", nil)
		return fmt.Errorf("%s failed: %w", op, err)
	}

	b.mu.Lock()
	base, baseErr := b.base.Get()
	quote, quoteErr := b.quote.Get()
	changed := baseErr != nil || quoteErr != nil || base != bal.Base || quote != bal.Quote
	b.base = domain.Some(bal.Base)
	b.quote = domain.Some(bal.Quote)
	b.mu.Unlock()

	if changed {
		b.notify(*bal)
	}
	return nil
}

// ApplyMatch adjusts the balances for one of our executions. Before the first
// sync it only notifies.
func (b *Balance) ApplyMatch(e domain.OrderMatch) {
	b.mu.Lock()
	base, baseErr := b.base.Get()
	quote, quoteErr := b.quote.Get()
	if baseErr == nil && quoteErr == nil {
		switch e.Side {
		case domain.Buy:
			base += e.Size
			quote -= e.TotalPrice + e.Fee
		case domain.Sell:
			base -= e.Size
			quote += e.TotalPrice - e.Fee
		}
		b.base = domain.Some(base)
		b.quote = domain.Some(quote)
	}
	b.mu.Unlock()

	b.notify(domain.Balances{Base: base, Quote: quote})
}

func (b *Balance) notify(bal domain.Balances) {
	b.Publish(entity.TopicUpdated, bal)
	if b.sink != nil {
		b.sink.Send(b.Snapshot())
	}
}

// Summary is the outbound balance notification.
type Summary struct {
	Base  *float64 `json:"base"`
	Quote *float64 `json:"quote"`
}

// Snapshot returns the balance notification.
func (b *Balance) Snapshot() domain.Snapshot {
	b.mu.Lock()
	sum := Summary{Base: b.base.Ptr(), Quote: b.quote.Ptr()}
	b.mu.Unlock()
	return b.NewSnapshot(sum)
}
