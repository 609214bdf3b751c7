package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeledger/internal/domain"
)

type fakeExchange struct {
	mu sync.Mutex

	price      float64
	tickerErr  error
	closeErr   error
	closeDelay time.Duration
	cancelErrs map[string]error
	cancelHang bool // block each cancellation until ctx is done
	trades     []domain.ExchangeTrade
	fetchErr   error

	tickerCalls int
	closeCalls  int
	closeSides  []string
	cancelled   []string
	windows     []domain.TimeWindow
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	if f.tickerErr != nil {
		return 0, f.tickerErr
	}
	return f.price, nil
}

func (f *fakeExchange) ClosePosition(ctx context.Context, symbol string, size float64, side string) (*domain.CloseOrderAck, error) {
	if f.closeDelay > 0 {
		time.Sleep(f.closeDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeSides = append(f.closeSides, side)
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	return &domain.CloseOrderAck{OrderID: "close-1"}, nil
}

func (f *fakeExchange) CancelConditionalOrder(ctx context.Context, symbol, orderID string) error {
	if f.cancelHang {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = append(f.cancelled, orderID)
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErrs[orderID]
}

func (f *fakeExchange) FetchClosedPnL(ctx context.Context, window domain.TimeWindow) ([]domain.ExchangeTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, window)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.trades, nil
}

func (f *fakeExchange) calls() (ticker, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickerCalls, f.closeCalls
}

type fakeNotifier struct {
	mu          sync.Mutex
	err         error
	settlements []*domain.Position
	summaries   [][3]int
}

func (n *fakeNotifier) SendSettlement(ctx context.Context, p *domain.Position) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settlements = append(n.settlements, p)
	return n.err
}

func (n *fakeNotifier) SendImportSummary(ctx context.Context, imported, skipped, total int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, [3]int{imported, skipped, total})
	return n.err
}

type fakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

// ctxTransactor refuses to begin on a done context, like pgxpool.Begin
type ctxTransactor struct {
	inner domain.Transactor
}

func (t ctxTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return t.inner.WithinTx(ctx, fn)
}
