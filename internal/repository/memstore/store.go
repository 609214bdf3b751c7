// Package memstore is an in-memory implementation of the repository interfaces.
// Transactions are serialised and rolled back row by row, which is enough for
// tests and local dry runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeledger/internal/domain"
)

type txKey struct{}

type metricsKey struct {
	date   string
	symbol string
}

// Store holds positions, metrics and settings in memory
type Store struct {
	txMu sync.Mutex

	mu        sync.Mutex
	positions map[uuid.UUID]*domain.Position
	metrics   map[metricsKey]*domain.PerformanceMetrics
	settings  map[string]string

	// FailFinalize makes FinalizeClose fail, for rollback tests
	FailFinalize error
}

// New creates an empty Store
func New() *Store {
	return &Store{
		positions: make(map[uuid.UUID]*domain.Position),
		metrics:   make(map[metricsKey]*domain.PerformanceMetrics),
		settings:  make(map[string]string),
	}
}

// WithinTx runs fn serialised against other transactions. If fn fails, the rows
// it wrote are put back; writes made outside the transaction are kept.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{
		positions: make(map[uuid.UUID]*domain.Position),
		metrics:   make(map[metricsKey]*domain.PerformanceMetrics),
	}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		j.restore(s)
		s.mu.Unlock()
		return err
	}
	return nil
}

// journal keeps the pre-transaction value of every row a transaction writes.
// A nil value means the row did not exist.
type journal struct {
	positions map[uuid.UUID]*domain.Position
	metrics   map[metricsKey]*domain.PerformanceMetrics
}

func (j *journal) restore(s *Store) {
	for id, p := range j.positions {
		if p == nil {
			delete(s.positions, id)
			continue
		}
		s.positions[id] = p
	}
	for k, m := range j.metrics {
		if m == nil {
			delete(s.metrics, k)
			continue
		}
		s.metrics[k] = m
	}
}

// notePosition records the row before its first write in the transaction. s.mu must be held.
func (s *Store) notePosition(ctx context.Context, id uuid.UUID) {
	j, ok := ctx.Value(txKey{}).(*journal)
	if !ok {
		return
	}
	if _, seen := j.positions[id]; seen {
		return
	}
	var orig *domain.Position
	if p, ok := s.positions[id]; ok {
		cp := *p
		orig = &cp
	}
	j.positions[id] = orig
}

// noteMetrics is notePosition for metrics rows. s.mu must be held.
func (s *Store) noteMetrics(ctx context.Context, key metricsKey) {
	j, ok := ctx.Value(txKey{}).(*journal)
	if !ok {
		return
	}
	if _, seen := j.metrics[key]; seen {
		return
	}
	var orig *domain.PerformanceMetrics
	if m, ok := s.metrics[key]; ok {
		cp := *m
		orig = &cp
	}
	j.metrics[key] = orig
}

// Positions returns the store as a domain.PositionRepository
func (s *Store) Positions() *PositionRepository { return &PositionRepository{s: s} }

// Metrics returns the store as a domain.MetricsRepository
func (s *Store) Metrics() *MetricsRepository { return &MetricsRepository{s: s} }

// Settings returns the store as a domain.SettingsRepository
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

// PositionRepository implements domain.PositionRepository
type PositionRepository struct{ s *Store }

func (r *PositionRepository) Save(ctx context.Context, position *domain.Position) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.positions[position.ID]; ok {
		return domain.ErrInvalidState
	}
	r.s.notePosition(ctx, position.ID)
	cp := *position
	r.s.positions[position.ID] = &cp
	return nil
}

func (r *PositionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PositionRepository) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Position
	for _, p := range r.s.positions {
		if p.Status == domain.StatusOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (r *PositionRepository) ClaimForClose(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch p.Status {
	case domain.StatusOpen:
		r.s.notePosition(ctx, id)
		p.Status = domain.StatusClosing
		cp := *p
		return &cp, nil
	case domain.StatusClosing:
		return nil, domain.ErrAlreadyClosing
	default:
		return nil, domain.ErrInvalidState
	}
}

func (r *PositionRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == domain.StatusClosing {
		r.s.notePosition(ctx, id)
		p.Status = domain.StatusOpen
	}
	return nil
}

func (r *PositionRepository) FinalizeClose(ctx context.Context, position *domain.Position) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailFinalize != nil {
		return r.s.FailFinalize
	}
	p, ok := r.s.positions[position.ID]
	if !ok || p.Status != domain.StatusClosing {
		return domain.ErrAlreadyClosing
	}
	r.s.notePosition(ctx, position.ID)
	cp := *position
	r.s.positions[position.ID] = &cp
	return nil
}

func (r *PositionRepository) GetClosedTradeKeys(ctx context.Context) ([]domain.ClosedTradeKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []domain.ClosedTradeKey
	for _, p := range r.s.positions {
		if p.Status == domain.StatusClosed && p.ClosePrice != nil && p.ClosedAt != nil {
			keys = append(keys, domain.ClosedTradeKey{EntryPrice: p.EntryPrice, ClosePrice: *p.ClosePrice, ClosedAt: *p.ClosedAt})
		}
	}
	return keys, nil
}

func (r *PositionRepository) InsertClosedBatch(ctx context.Context, positions []*domain.Position) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range positions {
		r.s.notePosition(ctx, p.ID)
		cp := *p
		r.s.positions[p.ID] = &cp
	}
	return nil
}

// LockImports is a no-op, transactions are already serialised
func (r *PositionRepository) LockImports(ctx context.Context) error { return nil }

// All returns every stored position
func (r *PositionRepository) All() []*domain.Position {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Position, 0, len(r.s.positions))
	for _, p := range r.s.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// MetricsRepository implements domain.MetricsRepository
type MetricsRepository struct{ s *Store }

func (r *MetricsRepository) Increment(ctx context.Context, date time.Time, symbol string, pnl float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := metricsKey{date: date.Format(time.DateOnly), symbol: symbol}
	r.s.noteMetrics(ctx, key)
	m, ok := r.s.metrics[key]
	if !ok {
		m = &domain.PerformanceMetrics{Date: date, Symbol: symbol}
		r.s.metrics[key] = m
	}
	m.TotalTrades++
	if domain.IsWinningPnL(pnl) {
		m.WinningTrades++
	} else {
		m.LosingTrades++
	}
	m.TotalPnL += pnl
	m.UpdatedAt = time.Now()
	return nil
}

func (r *MetricsRepository) Get(ctx context.Context, date time.Time, symbol string) (*domain.PerformanceMetrics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.metrics[metricsKey{date: date.Format(time.DateOnly), symbol: symbol}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MetricsRepository) List(ctx context.Context, from, to time.Time, symbol string) ([]*domain.PerformanceMetrics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lo, hi := from.Format(time.DateOnly), to.Format(time.DateOnly)
	var out []*domain.PerformanceMetrics
	for k, m := range r.s.metrics {
		if k.date < lo || k.date > hi {
			continue
		}
		if symbol != "" && !strings.EqualFold(symbol, k.symbol) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// SettingsRepository implements domain.SettingsRepository
type SettingsRepository struct{ s *Store }

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.settings[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings[key] = value
	return nil
}

var (
	_ domain.Transactor         = (*Store)(nil)
	_ domain.PositionRepository = (*PositionRepository)(nil)
	_ domain.MetricsRepository  = (*MetricsRepository)(nil)
	_ domain.SettingsRepository = (*SettingsRepository)(nil)
)
