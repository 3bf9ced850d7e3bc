package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"eveBot/internal/domain"
	"eveBot/internal/ports"

	"github.com/adshao/go-binance/v2"
)

var errNilEvent = errors.New("received nil event")

func toSideType(side domain.OrderSide) binance.SideType {
	if side == domain.Sell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func fromSide(side string) (domain.OrderSide, error) {
	switch side {
	case string(binance.SideTypeBuy):
		return domain.Buy, nil
	case string(binance.SideTypeSell):
		return domain.Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q", side)
	}
}

// takerSide is the side of the aggressing order.
func takerSide(isBuyerMaker bool) domain.OrderSide {
	if isBuyerMaker {
		return domain.Sell
	}
	return domain.Buy
}

type floatField struct {
	name string
	in   string
	out  *float64
}

func parseFloats(fields ...floatField) error {
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.in, 64)
		if err != nil {
			return fmt.Errorf("parsing %s '%s': %w", f.name, f.in, err)
		}
		*f.out = v
	}
	return nil
}

func translateOrderResponse(order *binance.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		Size:          origQty,
		Status:        string(order.Status),
	}
}

func translateOpenOrder(o *binance.Order) (domain.ListedOrder, error) {
	if o == nil {
		return domain.ListedOrder{}, errNilEvent
	}
	side, err := fromSide(string(o.Side))
	if err != nil {
		return domain.ListedOrder{}, err
	}
	lo := domain.ListedOrder{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Side:          side,
		CreatedAt:     o.Time / 1000,
	}
	if err := parseFloats(floatField{"price", o.Price, &lo.Price}, floatField{"size", o.OrigQuantity, &lo.Size}); err != nil {
		return domain.ListedOrder{}, err
	}
	return lo, nil
}

func translateAggTrade(t *binance.AggTrade) (domain.HistoricalTrade, error) {
	if t == nil {
		return domain.HistoricalTrade{}, errNilEvent
	}
	ht := domain.HistoricalTrade{
		ID:   t.AggTradeID,
		Side: takerSide(t.IsBuyerMaker),
		Time: t.Timestamp / 1000,
	}
	if err := parseFloats(floatField{"price", t.Price, &ht.Price}, floatField{"quantity", t.Quantity, &ht.Size}); err != nil {
		return domain.HistoricalTrade{}, err
	}
	return ht, nil
}

func translateWsAggTrade(e *binance.WsAggTradeEvent) (domain.Tick, error) {
	if e == nil {
		return domain.Tick{}, errNilEvent
	}
	tick := domain.Tick{
		ID:   e.AggTradeID,
		Side: takerSide(e.IsBuyerMaker),
		Time: e.TradeTime / 1000,
	}
	if err := parseFloats(floatField{"price", e.Price, &tick.Price}, floatField{"quantity", e.Quantity, &tick.Size}); err != nil {
		return domain.Tick{}, err
	}
	return tick, nil
}

// quoteFee converts a commission to the quote asset. Commissions in any
// other asset (e.g. BNB) are reported as zero.
func quoteFee(commission float64, asset, baseAsset, quoteAsset string, price float64) (float64, bool) {
	switch asset {
	case quoteAsset:
		return commission, true
	case baseAsset:
		return commission * price, true
	case "":
		return 0, commission == 0
	default:
		return 0, false
	}
}

// translateTrade converts one of our historical executions.
func (c *Client) translateTrade(ctx context.Context, t *binance.TradeV3) (domain.HistoricalFill, error) {
	f, ok, err := translateTradeV3(t, c.baseAsset, c.quoteAsset)
	if err != nil {
		return domain.HistoricalFill{}, err
	}
	if !ok {
		c.logger.Warn(ctx, "Fee paid in unsupported asset, recording zero fee", map[string]interface{}{"tradeID": t.ID, "asset": t.CommissionAsset})
	}
	return f, nil
}

func translateTradeV3(t *binance.TradeV3, baseAsset, quoteAsset string) (domain.HistoricalFill, bool, error) {
	if t == nil {
		return domain.HistoricalFill{}, false, errNilEvent
	}
	f := domain.HistoricalFill{
		ID:        t.ID,
		OrderID:   strconv.FormatInt(t.OrderID, 10),
		Side:      domain.Sell,
		CreatedAt: t.Time / 1000,
	}
	if t.IsBuyer {
		f.Side = domain.Buy
	}
	var commission float64
	err := parseFloats(
		floatField{"price", t.Price, &f.Price},
		floatField{"quantity", t.Quantity, &f.Size},
		floatField{"quote quantity", t.QuoteQuantity, &f.TotalPrice},
		floatField{"commission", t.Commission, &commission},
	)
	if err != nil {
		return domain.HistoricalFill{}, false, err
	}
	fee, ok := quoteFee(commission, t.CommissionAsset, baseAsset, quoteAsset, f.Price)
	f.Fee = fee
	return f, ok, nil
}

// orderUpdate is the subset of an executionReport used for translation.
type orderUpdate struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	OrigClientID  string
	Side          string
	ExecutionType string
	Status        string
	Price         string
	Size          string
	LastSize      string
	LastPrice     string
	LastQuote     string
	FilledSize    string
	FeeAsset      string
	FeeCost       string
	TradeID       int64
	CreateTime    int64
	TransactTime  int64
	IsInOrderBook bool
}

func fromWsOrderUpdate(u *binance.WsOrderUpdate) orderUpdate {
	return orderUpdate{
		Symbol:        u.Symbol,
		OrderID:       u.Id,
		ClientOrderID: u.ClientOrderId,
		OrigClientID:  u.OrigCustomOrderId,
		Side:          string(u.Side),
		ExecutionType: string(u.ExecutionType),
		Status:        string(u.Status),
		Price:         u.Price,
		Size:          u.Volume,
		LastSize:      u.LatestVolume,
		LastPrice:     u.LatestPrice,
		LastQuote:     u.LatestQuoteVolume,
		FilledSize:    u.FilledVolume,
		FeeAsset:      u.FeeAsset,
		FeeCost:       u.FeeCost,
		TradeID:       u.TradeId,
		CreateTime:    u.CreateTime,
		TransactTime:  u.TransactionTime,
		IsInOrderBook: u.IsInOrderBook,
	}
}

// translateOrderUpdate maps one executionReport to order events:
// NEW is received and open, TRADE is a match followed by done when the order
// is fully filled, CANCELED, EXPIRED and REJECTED are done(canceled).
// unsupportedFee reports a commission that could not be converted to quote.
func translateOrderUpdate(u orderUpdate, baseAsset, quoteAsset string) (out []domain.OrderEvent, unsupportedFee bool, err error) {
	side, err := fromSide(u.Side)
	if err != nil {
		return nil, false, err
	}
	id := strconv.FormatInt(u.OrderID, 10)

	var price, size float64
	if err := parseFloats(floatField{"price", u.Price, &price}, floatField{"quantity", u.Size, &size}); err != nil {
		return nil, false, err
	}

	switch u.ExecutionType {
	case "NEW":
		created := u.CreateTime
		if created == 0 {
			created = u.TransactTime
		}
		out = append(out,
			domain.OrderReceived{CreatedAt: created / 1000, Price: price, Size: size, OrderID: id, ClientOrderID: u.ClientOrderID, Side: side},
			domain.OrderOpened{CreatedAt: created / 1000, Price: price, RemainingSize: size, OrderID: id, Side: side},
		)
	case "TRADE":
		m := domain.OrderMatch{TradeID: u.TradeID, Side: side, OrderID: id, CreatedAt: u.TransactTime / 1000}
		var commission float64
		err := parseFloats(
			floatField{"last quantity", u.LastSize, &m.Size},
			floatField{"last price", u.LastPrice, &m.Price},
			floatField{"commission", nonEmpty(u.FeeCost), &commission},
		)
		if err != nil {
			return nil, false, err
		}
		if u.LastQuote != "" {
			if err := parseFloats(floatField{"last quote", u.LastQuote, &m.TotalPrice}); err != nil {
				return nil, false, err
			}
		} else {
			m.TotalPrice = m.Price * m.Size
		}
		fee, ok := quoteFee(commission, u.FeeAsset, baseAsset, quoteAsset, m.Price)
		m.Fee = fee
		unsupportedFee = !ok
		out = append(out, m)
		if u.Status == string(binance.OrderStatusTypeFilled) {
			out = append(out, domain.OrderDone{Side: side, Size: size, Price: price, OrderID: id, Reason: domain.DoneFilled})
		}
	case "CANCELED", "EXPIRED", "REJECTED":
		out = append(out, domain.OrderDone{Side: side, Size: size, Price: price, OrderID: id, Reason: domain.DoneCanceled})
	}
	return out, unsupportedFee, nil
}

func nonEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
