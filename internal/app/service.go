// Package app is the composition root: it wires the market, ledger, orders,
// balance and strategies to one exchange and drives them from the feeds.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"eveBot/config"
	"eveBot/internal/balance"
	"eveBot/internal/candles"
	"eveBot/internal/domain"
	"eveBot/internal/feed"
	"eveBot/internal/lots"
	"eveBot/internal/orders"
	"eveBot/internal/ports"
	"eveBot/internal/strategy"
)

const (
	flushInterval   = time.Second
	streamStopGrace = 5 * time.Second
)

// Service owns every entity of the process. State is rebuilt from the
// exchange on each start.
type Service struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient

	sink       *journalSink
	feed       *feed.Feed
	product    *candles.Product
	ledger     *lots.Ledger
	book       *orders.Book
	balance    *balance.Balance
	strategies *strategy.Registry

	flushEvery time.Duration
	lastPrice  float64
}

// NewService creates the service. journal may be nil, in which case
// notifications are only logged.
func NewService(cfg *config.Config, logger ports.Logger, exchange ports.ExchangeClient, journal ports.SnapshotJournal) (*Service, error) {
	if cfg == nil || logger == nil || exchange == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if cfg.MinOrderSize <= 0 || cfg.PriceIncrement <= 0 || cfg.SizeIncrement <= 0 {
		return nil, fmt.Errorf("%w: increments and minimum order size must be positive", ports.ErrConfigurationError)
	}
	bufferSize := cfg.EventBufferSize
	if bufferSize <= 0 {
		bufferSize = feed.DefaultBufferSize
	}

	s := &Service{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		sink:       newJournalSink(logger, journal, bufferSize),
		feed:       feed.New(feed.Config{Logger: logger, BufferSize: bufferSize}),
		flushEvery: flushInterval,
	}
	s.ledger = lots.NewLedger(lots.Config{Logger: logger, Sink: s.sink})
	s.product = candles.NewProduct(candles.Config{
		Logger:         logger,
		MaxAge:         cfg.TradeBackfillMaxAge,
		PriceIncrement: cfg.PriceIncrement,
		FlushLag:       cfg.CandleFlushLag,
		Holdings:       s.ledger,
	})
	s.balance = balance.New(logger, s.sink)
	s.book = orders.NewBook(orders.Config{
		Logger:   logger,
		Exchange: exchange,
		Pricer:   s.product,
		Rules: orders.Rules{
			MinSize:        cfg.MinOrderSize,
			PriceIncrement: cfg.PriceIncrement,
			SizeIncrement:  cfg.SizeIncrement,
		},
		Sink: s.sink,
	})
	s.strategies = strategy.NewRegistry(strategy.Config{
		Logger:        logger,
		Market:        s.product,
		Trader:        s.book,
		Funds:         s.balance,
		Inventory:     s.ledger,
		Sink:          s.sink,
		FixedSize:     cfg.FixedSize,
		SizeIncrement: cfg.SizeIncrement,
	})
	return s, nil
}

func (s *Service) Product() *candles.Product      { return s.product }
func (s *Service) Ledger() *lots.Ledger           { return s.ledger }
func (s *Service) Book() *orders.Book             { return s.book }
func (s *Service) Balance() *balance.Balance      { return s.balance }
func (s *Service) Strategies() *strategy.Registry { return s.strategies }

// Start runs until ctx is cancelled, a signal arrives, a stream gives up or
// a consumer hits an invariant violation.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Eve...", map[string]interface{}{"symbol": s.cfg.Symbol})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	var wg sync.WaitGroup
	sinkCtx, stopSink := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sink.run(sinkCtx)
	}()

	var consumers sync.WaitGroup
	var tickStop, userStop chan struct{}
	shutdown := func() {
		cancel()
		s.strategies.StopAll()
		stopStream(tickStop)
		stopStream(userStop)
		s.feed.Close()
		consumers.Wait()
		stopSink()
		wg.Wait()
		s.logger.Info(context.Background(), "Eve stopped.", map[string]interface{}{"droppedNotifications": s.sink.Dropped(), "droppedEvents": s.feed.Dropped()})
	}

	// Streams start before backfill; events queue in the feed meanwhile.
	tickDone, tickStopCh, err := s.exchange.StreamTicks(ctx, s.feed.TickHandler(), s.handleWsError)
	if err != nil {
		shutdown()
		return fmt.Errorf("failed to start trade stream: %w", err)
	}
	tickStop = tickStopCh
	userDone, userStopCh, err := s.exchange.StreamUserData(ctx, s.feed.UserDataHandlers(), s.handleWsError)
	if err != nil {
		shutdown()
		return fmt.Errorf("failed to start user data stream: %w", err)
	}
	userStop = userStopCh

	errCh := make(chan error, 2)
	consumers.Add(1)
	go func() {
		defer consumers.Done()
		if err := s.consumeTicks(ctx); err != nil {
			errCh <- err
		}
	}()

	if err := s.Backfill(ctx); err != nil {
		s.logger.Error(ctx, err, "Backfill failed")
		shutdown()
		return err
	}
	s.publishAll()

	consumers.Add(1)
	go func() {
		defer consumers.Done()
		if err := s.consumeOrders(ctx); err != nil {
			errCh <- err
		}
	}()
	s.logger.Info(ctx, "Eve is live")

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
	case runErr = <-errCh:
		s.logger.Error(ctx, runErr, "Event consumer stopped")
	case <-tickDone:
		runErr = fmt.Errorf("trade stream: %w", ports.ErrStreamClosed)
	case <-userDone:
		runErr = fmt.Errorf("user data stream: %w", ports.ErrStreamClosed)
	}
	shutdown()
	waitStream(tickDone)
	waitStream(userDone)
	return runErr
}

func stopStream(stop chan struct{}) {
	if stop == nil {
		return
	}
	defer func() { _ = recover() }() // already closed
	close(stop)
}

func waitStream(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(streamStopGrace):
	}
}

// handleWsError handles errors reported by the WebSocket streams.
func (s *Service) handleWsError(err error) {
	s.logger.Warn(context.Background(), "WebSocket stream error", map[string]interface{}{"error": err.Error()})
}

// Backfill rebuilds state from the exchange: open orders, our fill history
// replayed through the ledger, recent public trades and balances. Any failed
// fetch aborts the phase.
func (s *Service) Backfill(ctx context.Context) error {
	op := "Backfill"

	open, err := s.exchange.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: open orders: %w", op, err)
	}
	for _, lo := range open {
		s.book.AddListedOrder(lo)
	}

	fills, err := FetchFills(ctx, s.exchange)
	if err != nil {
		return fmt.Errorf("%s failed: fills: %w", op, err)
	}
	ledgerFills := make([]lots.Fill, 0, len(fills))
	for _, f := range fills {
		if _, err := s.book.BackfillFill(f); err != nil {
			if errors.Is(err, orders.ErrDuplicateEvent) {
				continue
			}
			return fmt.Errorf("%s failed: %w", op, err)
		}
		ledgerFills = append(ledgerFills, lots.Fill{Side: f.Side, Size: f.Size, Price: f.Price, Fee: f.Fee, CreatedAt: f.CreatedAt})
	}
	var cutoff int64
	if !s.cfg.FirstLotAt.IsZero() {
		cutoff = s.cfg.FirstLotAt.Unix()
	}
	applied, err := s.ledger.Replay(ledgerFills, cutoff)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	ticks, err := s.product.Backfill(ctx, s.exchange)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	if err := s.balance.Update(ctx, s.exchange); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	s.logger.Info(ctx, "Backfill complete", map[string]interface{}{
		"openOrders":       len(open),
		"fills":            len(fills),
		"fillsApplied":     applied,
		"ticks":            ticks,
		"cumulativeProfit": s.ledger.CumulativeProfit(),
	})
	return nil
}

func (s *Service) consumeTicks(ctx context.Context) error {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.feed.Done():
			return nil
		case <-ticker.C:
			if err := s.flush(ctx); err != nil {
				return err
			}
		case t := <-s.feed.Ticks():
			if err := s.handleTick(ctx, t); err != nil {
				return err
			}
		}
	}
}

func (s *Service) handleTick(ctx context.Context, t domain.Tick) error {
	err := s.product.AddTick(t)
	if errors.Is(err, candles.ErrStaleTick) || errors.Is(err, candles.ErrSecondFinalized) {
		s.logger.Debug(ctx, "Skipping late tick", map[string]interface{}{"id": t.ID, "time": t.Time, "error": err.Error()})
		return nil
	}
	if err != nil {
		return fmt.Errorf("tick %d: %w", t.ID, err)
	}
	return nil
}

// flush closes the elapsed second and reports the product once per interval
// when the price moved.
func (s *Service) flush(ctx context.Context) error {
	if err := s.product.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	price, err := s.product.CurrentPrice()
	if err != nil || price == s.lastPrice {
		return nil
	}
	s.lastPrice = price
	if snap, err := s.product.Snapshot(); err == nil {
		s.sink.Send(snap)
	}
	return nil
}

func (s *Service) consumeOrders(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.feed.Done():
			return nil
		case ev := <-s.feed.OrderEvents():
			if err := s.handleOrderEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Service) handleOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	switch e := ev.(type) {
	case domain.OrderReceived:
		_, err := s.book.HandleReceived(ctx, e)
		return s.tolerate(ctx, "received", e.OrderID, err)
	case domain.OrderOpened:
		s.logger.Debug(ctx, "Order open", map[string]interface{}{"exchangeOrderId": e.OrderID, "remaining": e.RemainingSize})
		return nil
	case domain.OrderMatch:
		_, err := s.book.HandleMatch(e, func() error {
			return s.ledger.AddFill(lots.Fill{Side: e.Side, Size: e.Size, Price: e.Price, Fee: e.Fee, CreatedAt: e.CreatedAt})
		})
		if err == nil {
			s.balance.ApplyMatch(e)
		}
		return s.tolerate(ctx, "match", e.OrderID, err)
	case domain.OrderDone:
		_, err := s.book.HandleDone(ctx, e)
		return s.tolerate(ctx, "done", e.OrderID, err)
	default:
		return fmt.Errorf("unexpected order event %T", ev)
	}
}

// tolerate drops redelivered events and events for orders never seen.
// Everything else is an invariant violation.
func (s *Service) tolerate(ctx context.Context, topic, orderID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orders.ErrDuplicateEvent):
		s.logger.Debug(ctx, "Ignoring duplicate event", map[string]interface{}{"topic": topic, "exchangeOrderId": orderID})
		return nil
	case errors.Is(err, orders.ErrUnknownOrder):
		s.logger.Warn(ctx, "Ignoring event for unknown order", map[string]interface{}{"topic": topic, "exchangeOrderId": orderID})
		return nil
	default:
		return fmt.Errorf("%s event for order %s: %w", topic, orderID, err)
	}
}

// Buy starts a buying strategy by name.
func (s *Service) Buy(ctx context.Context, name string) (strategy.Strategy, error) {
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return nil, err
	}
	return s.strategies.Buy(ctx, kind)
}

// Sell starts a selling strategy by name.
func (s *Service) Sell(ctx context.Context, name string) (strategy.Strategy, error) {
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return nil, err
	}
	return s.strategies.Sell(ctx, kind)
}

// Cancel cancels one of the known orders by its id.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	_, err := s.book.Cancel(ctx, orderID)
	return err
}

// Snapshots returns the current notification of every entity.
func (s *Service) Snapshots() []domain.Snapshot {
	var out []domain.Snapshot
	if snap, err := s.product.Snapshot(); err == nil {
		out = append(out, snap)
	}
	out = append(out, s.balance.Snapshot())
	out = append(out, s.ledger.Snapshots()...)
	for _, o := range s.book.Orders() {
		out = append(out, o.Snapshot())
	}
	for _, st := range s.strategies.List() {
		out = append(out, st.Snapshot())
	}
	return out
}

func (s *Service) publishAll() {
	for _, snap := range s.Snapshots() {
		s.sink.Send(snap)
	}
}
