package binanceclient

import (
	"context"
	"fmt"
	"time"

	"eveBot/internal/domain"
	"eveBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
)

// connectFunc opens one websocket connection. cleanup runs after it closes.
type connectFunc func(ctx context.Context) (innerDone, innerStop chan struct{}, cleanup func(), err error)

// StreamTicks starts the aggregated trade stream. Aggregate ids match the
// ones returned by GetTradesPage.
func (c *Client) StreamTicks(ctx context.Context, handler func(domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTicks"
	return c.serve(ctx, op, errHandler, func(wsCtx context.Context) (chan struct{}, chan struct{}, func(), error) {
		done, stop, err := binance.WsAggTradeServe(c.symbol, func(event *binance.WsAggTradeEvent) {
			tick, err := translateWsAggTrade(event)
			if err != nil {
				c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket trade event")
				return
			}
			handler(tick)
		}, c.wsErrHandler(ctx, op, errHandler))
		return done, stop, nil, err
	})
}

// StreamUserData starts the user data stream and keeps its listen key alive.
// Each reconnect requests a fresh listen key.
func (c *Client) StreamUserData(ctx context.Context, handlers ports.UserDataHandlers, errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamUserData"
	return c.serve(ctx, op, errHandler, func(wsCtx context.Context) (chan struct{}, chan struct{}, func(), error) {
		listenKey, err := c.client.NewStartUserStreamService().Do(wsCtx)
		if err != nil {
			return nil, nil, nil, c.handleError(wsCtx, err, op+" listen key")
		}

		done, stop, err := binance.WsUserDataServe(listenKey, func(event *binance.WsUserDataEvent) {
			if event == nil || event.Event != binance.UserDataEventTypeExecutionReport {
				return
			}
			c.dispatchOrderUpdate(wsCtx, fromWsOrderUpdate(&event.OrderUpdate), handlers)
		}, c.wsErrHandler(ctx, op, errHandler))
		if err != nil {
			return nil, nil, nil, err
		}

		keepaliveCtx, stopKeepalive := context.WithCancel(wsCtx)
		go c.keepalive(keepaliveCtx, listenKey)
		cleanup := func() {
			stopKeepalive()
			if err := c.client.NewCloseUserStreamService().ListenKey(listenKey).Do(context.Background()); err != nil {
				c.logger.Debug(ctx, op+": Failed to close listen key", map[string]interface{}{"error": err.Error()})
			}
		}
		return done, stop, cleanup, nil
	})
}

func (c *Client) keepalive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(c.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				c.handleError(ctx, err, "KeepaliveUserStream")
			}
		}
	}
}

func (c *Client) dispatchOrderUpdate(ctx context.Context, u orderUpdate, h ports.UserDataHandlers) {
	if u.Symbol != "" && u.Symbol != c.symbol {
		return
	}
	evs, unsupportedFee, err := translateOrderUpdate(u, c.baseAsset, c.quoteAsset)
	if err != nil {
		c.logger.Error(ctx, err, "StreamUserData: Failed to translate execution report", map[string]interface{}{"orderID": u.OrderID})
		return
	}
	if unsupportedFee {
		c.logger.Warn(ctx, "Fee paid in unsupported asset, recording zero fee", map[string]interface{}{"orderID": u.OrderID, "asset": u.FeeAsset})
	}
	for _, ev := range evs {
		switch e := ev.(type) {
		case domain.OrderReceived:
			if h.OnReceived != nil {
				h.OnReceived(e)
			}
		case domain.OrderOpened:
			if h.OnOpened != nil {
				h.OnOpened(e)
			}
		case domain.OrderMatch:
			if h.OnMatch != nil {
				h.OnMatch(e)
			}
		case domain.OrderDone:
			if h.OnDone != nil {
				h.OnDone(e)
			}
		}
	}
}

func (c *Client) wsErrHandler(ctx context.Context, op string, errHandler func(error)) func(error) {
	return func(err error) {
		translatedErr := c.handleError(ctx, err, op+" WebSocket")
		c.logger.Warn(ctx, op+": WebSocket error reported", map[string]interface{}{"error": translatedErr})
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}
}

// serve keeps a websocket connected until ctx ends, stopCh is closed or the
// reconnect attempts are exhausted. doneCh closes when it gives up.
func (c *Client) serve(ctx context.Context, op string, errHandler func(error), connect connectFunc) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	wsCtx, cancelWs := context.WithCancel(ctx)
	b := &backoff.Backoff{Min: c.reconnectDelay, Max: 64 * c.reconnectDelay, Factor: 2, Jitter: true}

	go func() {
		defer cancelWs()

		for {
			if wsCtx.Err() != nil {
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.")
				return
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"attempt": int(b.Attempt()) + 1})
			innerDone, innerStop, cleanup, connectErr := connect(wsCtx)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				if int(b.Attempt())+1 >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
					if errHandler != nil {
						errHandler(fmt.Errorf("%s: %w: %w", op, ports.ErrStreamClosed, connectErr))
					}
					return
				}
				delay := b.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"attempt": int(b.Attempt()) + 1, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					c.logger.Info(wsCtx, op+": Context cancelled during backoff.")
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.")
			b.Reset()

			select {
			case <-innerDone:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...")
				if cleanup != nil {
					cleanup()
				}
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.")
				close(innerStop)
				if cleanup != nil {
					cleanup()
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.")
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		c.logger.Info(ctx, op+": WebSocket context done, closing external done channel.")
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}
