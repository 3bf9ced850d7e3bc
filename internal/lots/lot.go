package lots

import (
	"errors"
	"fmt"

	"eveBot/internal/domain"
	"eveBot/internal/entity"
	"eveBot/internal/ports"
)

// RoundingError is the size tolerance used when deciding a lot is fully sold.
const RoundingError = 0.00000002

var (
	// ErrLotTransition is returned for an illegal lot state change.
	ErrLotTransition = errors.New("illegal lot state transition")
	// ErrLotNotOpen is returned when selling from a lot that is not open.
	ErrLotNotOpen = errors.New("can only add sells to open lots")
	// ErrLotOversell is returned when a sell exceeds the lot's unsold size.
	ErrLotOversell = errors.New("can not oversell this lot")
	// ErrLotNotNew is returned when merging size into a lot that is no longer new.
	ErrLotNotNew = errors.New("can only add size to new lots")
	// ErrPriceMismatch is returned when merging a buy at a different price.
	ErrPriceMismatch = errors.New("can only add size to lots of the same price")
)

// Sell is one allocation of a sell fill against a lot.
type Sell struct {
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	CreatedAt int64   `json:"createdAt"`
}

// Lot is one batch of purchased inventory tracked until it is fully sold.
// The Ledger serializes every access.
type Lot struct {
	*entity.Base[domain.LotState]

	size      float64
	price     float64
	fee       float64
	createdAt int64
	state     domain.LotState
	sells     []Sell

	totalPriceExcludingFees float64
	totalPriceIncludingFees float64

	cumulativeProfitBefore domain.Optional[float64]

	// frozen on close
	closedAt                   domain.Optional[int64]
	duration                   domain.Optional[int64]
	soldSize                   domain.Optional[float64]
	totalSellFees              domain.Optional[float64]
	totalEarningsExcludingFees domain.Optional[float64]
	totalEarningsIncludingFees domain.Optional[float64]
	profit                     domain.Optional[float64]
	averageSellPrice           domain.Optional[float64]
	cumulativeProfit           domain.Optional[float64]
}

func newLot(logger ports.Logger, size, price, fee float64, createdAt int64) *Lot {
	l := &Lot{
		Base:      entity.NewBase[domain.LotState]("lot", logger),
		size:      size,
		price:     price,
		fee:       fee,
		createdAt: createdAt,
		state:     domain.LotNew,
	}
	l.totalPriceExcludingFees = size * price
	l.totalPriceIncludingFees = l.totalPriceExcludingFees + fee
	return l
}

func (l *Lot) setState(to domain.LotState) error {
	switch {
	case l.state == domain.LotNew && to == domain.LotOpen,
		l.state == domain.LotOpen && to == domain.LotClosed:
		l.state = to
		return nil
	default:
		return fmt.Errorf("%w: %s to %s", ErrLotTransition, l.state, to)
	}
}

func (l *Lot) open(cumulativeProfitBefore float64) error {
	if err := l.setState(domain.LotOpen); err != nil {
		return err
	}
	l.cumulativeProfitBefore = domain.Some(cumulativeProfitBefore)
	return nil
}

func (l *Lot) addSize(size, price, fee float64) error {
	if l.state != domain.LotNew {
		return ErrLotNotNew
	}
	if l.price != price {
		return ErrPriceMismatch
	}
	l.size += size
	l.fee += fee
	l.totalPriceExcludingFees += size * price
	l.totalPriceIncludingFees = l.totalPriceExcludingFees + l.fee
	return nil
}

func (l *Lot) addSell(size, price, fee float64, createdAt int64) error {
	if l.state != domain.LotOpen {
		return ErrLotNotOpen
	}
	if size > l.UnsoldSize() {
		return fmt.Errorf("%w: size %v, unsold %v", ErrLotOversell, size, l.UnsoldSize())
	}
	l.sells = append(l.sells, Sell{Size: size, Price: price, Fee: fee, CreatedAt: createdAt})

	if l.UnsoldSize() > RoundingError {
		return nil
	}

	before, err := l.cumulativeProfitBefore.Get()
	if err != nil {
		return err
	}
	profit := l.Profit()
	l.profit = domain.Some(profit)
	l.soldSize = domain.Some(l.SoldSize())
	l.averageSellPrice = domain.Some(l.AverageSellPrice())
	l.totalSellFees = domain.Some(l.TotalSellFees())
	l.totalEarningsExcludingFees = domain.Some(l.TotalEarningsExcludingFees())
	l.totalEarningsIncludingFees = domain.Some(l.TotalEarningsIncludingFees())
	l.closedAt = domain.Some(createdAt)
	l.duration = domain.Some(createdAt - l.createdAt)
	l.cumulativeProfit = domain.Some(before + profit)
	return l.setState(domain.LotClosed)
}

// State returns the lot state.
func (l *Lot) State() domain.LotState { return l.state }

// Size returns the purchased size.
func (l *Lot) Size() float64 { return l.size }

// Price returns the purchase price.
func (l *Lot) Price() float64 { return l.price }

// Fee returns the purchase fee.
func (l *Lot) Fee() float64 { return l.fee }

// Sells returns a copy of the allocated sells.
func (l *Lot) Sells() []Sell {
	out := make([]Sell, len(l.sells))
	copy(out, l.sells)
	return out
}

func (l *Lot) IsNew() bool    { return l.state == domain.LotNew }
func (l *Lot) IsOpen() bool   { return l.state == domain.LotOpen }
func (l *Lot) IsClosed() bool { return l.state == domain.LotClosed }

// TotalPriceIncludingFees is the purchase cost including the buy fee.
func (l *Lot) TotalPriceIncludingFees() float64 { return l.totalPriceIncludingFees }

// TotalPriceOfUnsoldPortionIncludingFees is the cost of the inventory still held.
func (l *Lot) TotalPriceOfUnsoldPortionIncludingFees() float64 {
	return l.totalPriceIncludingFees - l.totalPriceIncludingFees/l.size*l.SoldSize()
}

// SoldSize sums the allocated sells.
func (l *Lot) SoldSize() float64 {
	return sumOr(l.soldSize, l.sells, func(s Sell) float64 { return s.Size })
}

// UnsoldSize is the size still held.
func (l *Lot) UnsoldSize() float64 {
	return l.size - l.SoldSize()
}

// TotalSellFees sums the fees apportioned to this lot's sells.
func (l *Lot) TotalSellFees() float64 {
	return sumOr(l.totalSellFees, l.sells, func(s Sell) float64 { return s.Fee })
}

// TotalEarningsExcludingFees sums sell proceeds before fees.
func (l *Lot) TotalEarningsExcludingFees() float64 {
	return sumOr(l.totalEarningsExcludingFees, l.sells, func(s Sell) float64 { return s.Size * s.Price })
}

// TotalEarningsIncludingFees sums sell proceeds net of fees.
func (l *Lot) TotalEarningsIncludingFees() float64 {
	return sumOr(l.totalEarningsIncludingFees, l.sells, func(s Sell) float64 { return s.Size*s.Price - s.Fee })
}

// AverageSellPrice is zero until something is sold.
func (l *Lot) AverageSellPrice() float64 {
	if v, err := l.averageSellPrice.Get(); err == nil {
		return v
	}
	sold := l.SoldSize()
	if sold == 0 {
		return 0
	}
	return l.TotalEarningsExcludingFees() / sold
}

// Profit is proceeds including fees minus cost including fees.
func (l *Lot) Profit() float64 {
	if v, err := l.profit.Get(); err == nil {
		return v
	}
	return l.TotalEarningsIncludingFees() - l.totalPriceIncludingFees
}

// CumulativeProfit is only available once the lot is closed.
func (l *Lot) CumulativeProfit() (float64, error) {
	return l.cumulativeProfit.Get()
}

func sumOr(frozen domain.Optional[float64], sells []Sell, f func(Sell) float64) float64 {
	if v, err := frozen.Get(); err == nil {
		return v
	}
	var total float64
	for _, s := range sells {
		total += f(s)
	}
	return total
}

// LotSummary is the outbound lot notification.
type LotSummary struct {
	State                      domain.LotState `json:"state"`
	CreatedAt                  int64           `json:"createdAt"`
	ClosedAt                   *int64          `json:"closedAt"`
	Duration                   *int64          `json:"duration"`
	Size                       float64         `json:"size"`
	Price                      float64         `json:"price"`
	Fee                        float64         `json:"fee"`
	TotalPriceExcludingFees    float64         `json:"totalPriceExcludingFees"`
	TotalPriceIncludingFees    float64         `json:"totalPriceIncludingFees"`
	SoldSize                   float64         `json:"soldSize"`
	TotalSellFees              float64         `json:"totalSellFees"`
	TotalEarningsExcludingFees float64         `json:"totalEarningsExcludingFees"`
	TotalEarningsIncludingFees float64         `json:"totalEarningsIncludingFees"`
	Profit                     float64         `json:"profit"`
	CumulativeProfit           *float64        `json:"cumulativeProfit"`
	TotalFees                  float64         `json:"totalFees"`
	AverageSellPrice           float64         `json:"averageSellPrice"`
}

// Summary returns the lot's current values.
func (l *Lot) Summary() LotSummary {
	return LotSummary{
		State:                      l.state,
		CreatedAt:                  l.createdAt,
		ClosedAt:                   l.closedAt.Ptr(),
		Duration:                   l.duration.Ptr(),
		Size:                       l.size,
		Price:                      l.price,
		Fee:                        l.fee,
		TotalPriceExcludingFees:    l.totalPriceExcludingFees,
		TotalPriceIncludingFees:    l.totalPriceIncludingFees,
		SoldSize:                   l.SoldSize(),
		TotalSellFees:              l.TotalSellFees(),
		TotalEarningsExcludingFees: l.TotalEarningsExcludingFees(),
		TotalEarningsIncludingFees: l.TotalEarningsIncludingFees(),
		Profit:                     l.Profit(),
		CumulativeProfit:           l.cumulativeProfit.Ptr(),
		TotalFees:                  l.fee + l.TotalSellFees(),
		AverageSellPrice:           l.AverageSellPrice(),
	}
}
