package binanceclient

import (
	"context"
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

type mockLogger struct {
	debugMsgs []string
	errorMsgs []string
	warnMsgs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  *common.APIError
		want error
	}{
		{"post-only cross", &common.APIError{Code: -2010, Message: "Order would immediately match and take."}, ports.ErrWouldCrossBook},
		{"insufficient balance", &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."}, ports.ErrInsufficientFunds},
		{"other rejection", &common.APIError{Code: -2010, Message: "Market is closed."}, ports.ErrOrderPlacementFailed},
		{"unknown order on cancel", &common.APIError{Code: -2011, Message: "Unknown order sent."}, ports.ErrOrderNotFound},
		{"rate limit", &common.APIError{Code: -1003}, ports.ErrRateLimited},
		{"bad filter", &common.APIError{Code: -1013, Message: "Filter failure: PRICE_FILTER"}, ports.ErrInvalidRequest},
		{"keys", &common.APIError{Code: -2015}, ports.ErrInvalidAPIKeys},
		{"unmapped", &common.APIError{Code: -9999}, ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapAPIError(tt.err), tt.want)
		})
	}
}

func TestHandleError(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{logger: logger}
	ctx := context.Background()

	err := c.handleError(ctx, &common.APIError{Code: -2010, Message: "Order would immediately match and take."}, "PlaceOrder")
	assert.ErrorIs(t, err, ports.ErrWouldCrossBook)
	assert.Empty(t, logger.errorMsgs, "post-only rejections are not errors")
	assert.Len(t, logger.debugMsgs, 1)

	err = c.handleError(ctx, context.DeadlineExceeded, "GetBalances")
	assert.ErrorIs(t, err, ports.ErrTimeout)

	err = c.handleError(ctx, errors.New("dial tcp: connection refused"), "Ping")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.Len(t, logger.errorMsgs, 2)

	assert.NoError(t, c.handleError(ctx, nil, "Ping"))
}

func TestTranslateAggTrade(t *testing.T) {
	ht, err := translateAggTrade(&binance.AggTrade{AggTradeID: 42, Price: "1850.12", Quantity: "0.5", Timestamp: 1_700_000_000_999, IsBuyerMaker: true})
	require.NoError(t, err)
	assert.Equal(t, domain.HistoricalTrade{ID: 42, Price: 1850.12, Size: 0.5, Side: domain.Sell, Time: 1_700_000_000}, ht)

	_, err = translateAggTrade(&binance.AggTrade{Price: "x", Quantity: "1"})
	assert.Error(t, err)

	_, err = translateAggTrade(nil)
	assert.Error(t, err)
}

func TestTranslateWsAggTrade(t *testing.T) {
	tick, err := translateWsAggTrade(&binance.WsAggTradeEvent{AggTradeID: 7, Price: "10.5", Quantity: "2", TradeTime: 5_000})
	require.NoError(t, err)
	assert.Equal(t, domain.Tick{ID: 7, Price: 10.5, Size: 2, Side: domain.Buy, Time: 5}, tick)
}

func TestTranslateTradeV3(t *testing.T) {
	tests := []struct {
		name    string
		trade   binance.TradeV3
		wantFee float64
		wantOK  bool
	}{
		{"fee in quote", binance.TradeV3{ID: 1, OrderID: 9, Price: "100", Quantity: "2", QuoteQuantity: "200", Commission: "0.2", CommissionAsset: "USDT", Time: 3_000, IsBuyer: true}, 0.2, true},
		{"fee in base", binance.TradeV3{ID: 2, OrderID: 9, Price: "100", Quantity: "2", QuoteQuantity: "200", Commission: "0.002", CommissionAsset: "ETH", Time: 3_000, IsBuyer: true}, 0.2, true},
		{"fee in BNB", binance.TradeV3{ID: 3, OrderID: 9, Price: "100", Quantity: "2", QuoteQuantity: "200", Commission: "0.001", CommissionAsset: "BNB", Time: 3_000}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok, err := translateTradeV3(&tt.trade, "ETH", "USDT")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantFee, f.Fee, 1e-9)
			assert.Equal(t, "9", f.OrderID)
			assert.Equal(t, int64(3), f.CreatedAt)
			assert.Equal(t, 200.0, f.TotalPrice)
			if tt.trade.IsBuyer {
				assert.Equal(t, domain.Buy, f.Side)
			} else {
				assert.Equal(t, domain.Sell, f.Side)
			}
		})
	}
}

func TestTranslateOrderUpdate(t *testing.T) {
	base := orderUpdate{OrderID: 77, ClientOrderID: "c-1", Side: "BUY", Price: "100.00", Size: "1.000", CreateTime: 10_000, TransactTime: 12_000}

	t.Run("new is received then open", func(t *testing.T) {
		u := base
		u.ExecutionType, u.Status = "NEW", "NEW"
		evs, _, err := translateOrderUpdate(u, "ETH", "USDT")
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, domain.OrderReceived{CreatedAt: 10, Price: 100, Size: 1, OrderID: "77", ClientOrderID: "c-1", Side: domain.Buy}, evs[0])
		assert.IsType(t, domain.OrderOpened{}, evs[1])
	})

	t.Run("partial trade is a match", func(t *testing.T) {
		u := base
		u.ExecutionType, u.Status = "TRADE", "PARTIALLY_FILLED"
		u.LastSize, u.LastPrice, u.LastQuote, u.FeeCost, u.FeeAsset, u.TradeID = "0.4", "100", "40", "0.04", "USDT", 501
		evs, unsupported, err := translateOrderUpdate(u, "ETH", "USDT")
		require.NoError(t, err)
		assert.False(t, unsupported)
		require.Len(t, evs, 1)
		assert.Equal(t, domain.OrderMatch{TradeID: 501, Side: domain.Buy, Size: 0.4, Price: 100, TotalPrice: 40, OrderID: "77", Fee: 0.04, CreatedAt: 12}, evs[0])
	})

	t.Run("final trade is a match then done", func(t *testing.T) {
		u := base
		u.ExecutionType, u.Status = "TRADE", "FILLED"
		u.LastSize, u.LastPrice, u.FeeCost, u.FeeAsset = "0.6", "100", "0.0006", "ETH"
		evs, _, err := translateOrderUpdate(u, "ETH", "USDT")
		require.NoError(t, err)
		require.Len(t, evs, 2)
		m := evs[0].(domain.OrderMatch)
		assert.InDelta(t, 60, m.TotalPrice, 1e-9)
		assert.InDelta(t, 0.06, m.Fee, 1e-9)
		assert.Equal(t, domain.DoneFilled, evs[1].(domain.OrderDone).Reason)
	})

	t.Run("fee in other asset", func(t *testing.T) {
		u := base
		u.ExecutionType, u.Status = "TRADE", "PARTIALLY_FILLED"
		u.LastSize, u.LastPrice, u.FeeCost, u.FeeAsset = "0.1", "100", "0.0001", "BNB"
		evs, unsupported, err := translateOrderUpdate(u, "ETH", "USDT")
		require.NoError(t, err)
		assert.True(t, unsupported)
		assert.Zero(t, evs[0].(domain.OrderMatch).Fee)
	})

	for _, exec := range []string{"CANCELED", "EXPIRED", "REJECTED"} {
		t.Run(exec+" is done canceled", func(t *testing.T) {
			u := base
			u.ExecutionType, u.Status = exec, exec
			evs, _, err := translateOrderUpdate(u, "ETH", "USDT")
			require.NoError(t, err)
			require.Len(t, evs, 1)
			assert.Equal(t, domain.DoneCanceled, evs[0].(domain.OrderDone).Reason)
		})
	}

	t.Run("replaced is ignored", func(t *testing.T) {
		u := base
		u.ExecutionType = "REPLACED"
		evs, _, err := translateOrderUpdate(u, "ETH", "USDT")
		require.NoError(t, err)
		assert.Empty(t, evs)
	})

	t.Run("bad side", func(t *testing.T) {
		u := base
		u.Side = "HOLD"
		_, _, err := translateOrderUpdate(u, "ETH", "USDT")
		assert.Error(t, err)
	})
}

func TestDispatchOrderUpdate(t *testing.T) {
	c := &Client{logger: &mockLogger{}, symbol: "ETHUSDT", baseAsset: "ETH", quoteAsset: "USDT"}
	var got []string
	h := ports.UserDataHandlers{
		OnReceived: func(domain.OrderReceived) { got = append(got, "received") },
		OnMatch:    func(domain.OrderMatch) { got = append(got, "match") },
		OnDone:     func(domain.OrderDone) { got = append(got, "done") },
	}

	u := orderUpdate{Symbol: "ETHUSDT", OrderID: 1, Side: "SELL", Price: "1", Size: "1", ExecutionType: "NEW", CreateTime: 1000}
	c.dispatchOrderUpdate(context.Background(), u, h)
	u.ExecutionType, u.Status, u.LastSize, u.LastPrice = "TRADE", "FILLED", "1", "1"
	c.dispatchOrderUpdate(context.Background(), u, h)
	u.Symbol = "BTCUSDT"
	c.dispatchOrderUpdate(context.Background(), u, h)

	assert.Equal(t, []string{"received", "match", "done"}, got)
}

func TestTranslateOrderResponse(t *testing.T) {
	resp := translateOrderResponse(&binance.CreateOrderResponse{OrderID: 12, ClientOrderID: "abc", Price: "99.5", OrigQuantity: "0.1", Status: binance.OrderStatusTypeNew})
	assert.Equal(t, &ports.OrderResponse{OrderID: "12", ClientOrderID: "abc", Price: 99.5, Size: 0.1, Status: "NEW"}, resp)
	assert.Nil(t, translateOrderResponse(nil))
}
