// Package mocks provides testify mocks of the ports interfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// Exchange is a mock ports.ExchangeClient.
type Exchange struct {
	mock.Mock
}

var _ ports.ExchangeClient = (*Exchange)(nil)

func (m *Exchange) SetServerTime(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Exchange) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Exchange) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*ports.OrderResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.OrderResponse)
	return resp, args.Error(1)
}

func (m *Exchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	return m.Called(ctx, exchangeOrderID).Error(0)
}

func (m *Exchange) GetOpenOrders(ctx context.Context) ([]domain.ListedOrder, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]domain.ListedOrder)
	return orders, args.Error(1)
}

func (m *Exchange) GetBalances(ctx context.Context) (*domain.Balances, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).(*domain.Balances)
	return b, args.Error(1)
}

func (m *Exchange) GetTradesPage(ctx context.Context, cursor int64) (*ports.TradePage, error) {
	args := m.Called(ctx, cursor)
	p, _ := args.Get(0).(*ports.TradePage)
	return p, args.Error(1)
}

func (m *Exchange) GetFillsPage(ctx context.Context, cursor int64) (*ports.FillPage, error) {
	args := m.Called(ctx, cursor)
	p, _ := args.Get(0).(*ports.FillPage)
	return p, args.Error(1)
}

func (m *Exchange) StreamTicks(ctx context.Context, handler func(domain.Tick), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	args := m.Called(ctx, handler, errHandler)
	done, _ := args.Get(0).(chan struct{})
	stop, _ := args.Get(1).(chan struct{})
	return done, stop, args.Error(2)
}

func (m *Exchange) StreamUserData(ctx context.Context, handlers ports.UserDataHandlers, errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	args := m.Called(ctx, handlers, errHandler)
	done, _ := args.Get(0).(chan struct{})
	stop, _ := args.Get(1).(chan struct{})
	return done, stop, args.Error(2)
}

// Sink records every snapshot it is sent.
type Sink struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

var _ ports.SnapshotSink = (*Sink)(nil)

func (s *Sink) Send(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

// Snapshots returns the recorded snapshots.
func (s *Sink) Snapshots() []domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Snapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}

// Named returns the recorded snapshots of one entity kind.
func (s *Sink) Named(name string) []domain.Snapshot {
	var out []domain.Snapshot
	for _, snap := range s.Snapshots() {
		if snap.Name == name {
			out = append(out, snap)
		}
	}
	return out
}
