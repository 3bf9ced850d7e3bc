// Package binanceclient implements ports.ExchangeClient for one Binance spot market.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eveBot/internal/domain"
	"eveBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// tradePageLimit is the aggTrades page size.
	tradePageLimit = 1000
	// fillPageLimit is the myTrades page size.
	fillPageLimit = 1000
	// fillWindow is the widest time range myTrades accepts.
	fillWindow = 24 * time.Hour
	// defaultFillHistory applies when no FillsSince is configured.
	defaultFillHistory = 30 * 24 * time.Hour
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	client               *binance.Client
	logger               ports.Logger
	symbol               string
	baseAsset            string
	quoteAsset           string
	fillsSince           time.Time
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	keepaliveInterval    time.Duration
	now                  func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
	Symbol     string // e.g. ETHUSDT
	BaseAsset  string // e.g. ETH
	QuoteAsset string // e.g. USDT
	// FillsSince bounds how far back GetFillsPage walks.
	FillsSince           time.Time
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Symbol == "" || cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("%w: symbol, base and quote asset are required", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	// The spot package reads the testnet switch when building clients and streams.
	binance.UseTestnet = cfg.UseTestnet
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	env := "Production"
	if cfg.UseTestnet {
		env = "Testnet"
	}
	cfg.Logger.Info(context.Background(), "Binance client configured for "+env, map[string]interface{}{"baseURL": client.BaseURL, "symbol": cfg.Symbol})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	if cfg.FillsSince.IsZero() {
		cfg.FillsSince = time.Now().Add(-defaultFillHistory)
		cfg.Logger.Warn(context.Background(), "No fill history start configured", map[string]interface{}{"since": cfg.FillsSince})
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		client:               client,
		logger:               cfg.Logger,
		symbol:               strings.ToUpper(cfg.Symbol),
		baseAsset:            strings.ToUpper(cfg.BaseAsset),
		quoteAsset:           strings.ToUpper(cfg.QuoteAsset),
		fillsSince:           cfg.FillsSince,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		keepaliveInterval:    30 * time.Minute,
		now:                  time.Now,
	}, nil
}

// mapAPIError maps a Binance API error code to the standard ports errors.
func mapAPIError(apiErr *common.APIError) error {
	switch apiErr.Code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130, -1013:
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "immediately match"):
			return ports.ErrWouldCrossBook
		case strings.Contains(msg, "insufficient balance"):
			return ports.ErrInsufficientFunds
		default:
			return ports.ErrOrderPlacementFailed
		}
	case -2011: // Cancel order rejected
		if strings.Contains(strings.ToLower(apiErr.Message), "unknown order") {
			return ports.ErrOrderNotFound
		}
		return ports.ErrOrderCancelFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid; invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	default:
		return ports.ErrUnknown
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		mappedErr := mapAPIError(apiErr)
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		if errors.Is(mappedErr, ports.ErrWouldCrossBook) {
			// Expected while chasing the book; the caller re-quotes.
			c.logger.Debug(ctx, operation+" rejected by post-only", fields)
		} else {
			c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		}
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	offset, err := c.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"offsetMs": offset})
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// PlaceOrder submits a limit order. Post-only orders go out as LIMIT_MAKER.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceOrder"
	svc := c.client.NewCreateOrderService().
		Symbol(c.symbol).
		Side(toSideType(req.Side)).
		Price(req.Price).
		Quantity(req.Size).
		NewClientOrderID(req.ClientOrderID)
	if req.PostOnly {
		svc = svc.Type(binance.OrderTypeLimitMaker)
	} else {
		svc = svc.Type(binance.OrderTypeLimit).TimeInForce(binance.TimeInForceTypeGTC)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"side": req.Side, "price": req.Price, "size": req.Size, "orderID": resp.OrderID, "status": resp.Status})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	op := "CancelOrder"
	id, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s failed: %w: order id %q", op, ports.ErrInvalidRequest, exchangeOrderID)
	}
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"orderID": id})

	res, err := c.client.NewCancelOrderService().Symbol(c.symbol).OrderID(id).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": id, "status": res.Status})
	return nil
}

// GetOpenOrders lists the orders resting on the book for the configured symbol.
func (c *Client) GetOpenOrders(ctx context.Context) ([]domain.ListedOrder, error) {
	op := "GetOpenOrders"
	open, err := c.client.NewListOpenOrdersService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]domain.ListedOrder, 0, len(open))
	for _, o := range open {
		lo, err := translateOpenOrder(o)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate open order: %w", err), op)
		}
		out = append(out, lo)
	}
	return out, nil
}

// GetBalances returns the free base and quote balances.
func (c *Client) GetBalances(ctx context.Context) (*domain.Balances, error) {
	op := "GetBalances"
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var bal domain.Balances
	var found int
	for _, b := range account.Balances {
		var dst *float64
		switch b.Asset {
		case c.baseAsset:
			dst = &bal.Base
		case c.quoteAsset:
			dst = &bal.Quote
		default:
			continue
		}
		v, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", b.Free, b.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		*dst = v
		found++
	}
	if found < 2 {
		c.logger.Warn(ctx, op+": asset missing from account, assuming zero", map[string]interface{}{"base": c.baseAsset, "quote": c.quoteAsset})
	}
	return &bal, nil
}

// GetTradesPage returns up to tradePageLimit aggregated trades. cursor 0 means
// the most recent page; otherwise it is the first aggregate id of the page.
func (c *Client) GetTradesPage(ctx context.Context, cursor int64) (*ports.TradePage, error) {
	op := "GetTradesPage"
	svc := c.client.NewAggTradesService().Symbol(c.symbol).Limit(tradePageLimit)
	if cursor > 0 {
		svc = svc.FromID(cursor)
	}
	trades, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	page := &ports.TradePage{Trades: make([]domain.HistoricalTrade, 0, len(trades))}
	for _, t := range trades {
		ht, err := translateAggTrade(t)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate trade: %w", err), op)
		}
		page.Trades = append(page.Trades, ht)
	}
	if len(page.Trades) > 0 {
		first := page.Trades[0].ID
		// Trade ids below one page are the start of the market's history.
		if first > tradePageLimit {
			page.Next = first - tradePageLimit
			page.HasMore = true
		}
	}
	return page, nil
}

// GetFillsPage returns our executions in one window of at most fillWindow.
// cursor 0 means the window ending now; otherwise it is the exclusive window
// end in Unix milliseconds. Walking stops at FillsSince.
func (c *Client) GetFillsPage(ctx context.Context, cursor int64) (*ports.FillPage, error) {
	op := "GetFillsPage"
	end := cursor
	if end <= 0 {
		end = c.now().UnixMilli()
	}
	start := end - fillWindow.Milliseconds()
	since := c.fillsSince.UnixMilli()
	if start < since {
		start = since
	}

	page := &ports.FillPage{}
	var fromID int64
	for {
		svc := c.client.NewListTradesService().Symbol(c.symbol).Limit(fillPageLimit)
		if fromID > 0 {
			svc = svc.FromID(fromID)
		} else {
			svc = svc.StartTime(start).EndTime(end - 1)
		}
		trades, err := svc.Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, t := range trades {
			if t.Time >= end {
				break
			}
			f, err := c.translateTrade(ctx, t)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate fill: %w", err), op)
			}
			page.Fills = append(page.Fills, f)
		}
		if len(trades) < fillPageLimit || trades[len(trades)-1].Time >= end {
			break
		}
		fromID = trades[len(trades)-1].ID + 1
	}

	if start > since {
		page.Next = start
		page.HasMore = true
	}
	return page, nil
}
