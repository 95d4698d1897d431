// Package lifecycle owns item status transitions. An item starts active and
// moves at most once, to resolved or archived; neither is ever left.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/metrics"
)

const (
	DefaultRetention     = 14 * 24 * time.Hour
	DefaultSweepInterval = 6 * time.Hour
)

// ItemTransitioner is the part of the item store the manager writes through.
type ItemTransitioner interface {
	TransitionFromActive(ctx context.Context, id int64, to domain.Status, now time.Time) (*domain.Item, error)
	ArchiveExpired(ctx context.Context, cutoff, now time.Time) ([]domain.ArchivedRef, error)
	Delete(ctx context.Context, id int64) (*domain.Item, error)
}

type Manager struct {
	store     ItemTransitioner
	retention time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager builds a manager; a retention of zero or less uses DefaultRetention.
func NewManager(store ItemTransitioner, retention time.Duration, opts ...Option) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	m := &Manager{
		store:     store,
		retention: retention,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve marks an active item as claimed.
func (m *Manager) Resolve(ctx context.Context, id int64) (*domain.Item, error) {
	return m.transition(ctx, id, domain.StatusResolved)
}

// Archive retires an active item by hand.
func (m *Manager) Archive(ctx context.Context, id int64) (*domain.Item, error) {
	return m.transition(ctx, id, domain.StatusArchived)
}

func (m *Manager) transition(ctx context.Context, id int64, to domain.Status) (*domain.Item, error) {
	item, err := m.store.TransitionFromActive(ctx, id, to, m.now())
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	m.metrics.Transition(string(to), item != nil)
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFoundOrAlreadyFinal)
	}
	m.logger.Info("item transitioned", "item_id", id, "status", to)
	return item, nil
}

// Retention is the age after which an active item is swept.
func (m *Manager) Retention() time.Duration {
	return m.retention
}

// SweepExpired archives every active item older than retention in one
// conditional update. Running it again archives nothing new.
func (m *Manager) SweepExpired(ctx context.Context, retention time.Duration) ([]domain.ArchivedRef, error) {
	if retention <= 0 {
		retention = m.retention
	}
	now := m.now()
	refs, err := m.store.ArchiveExpired(ctx, now.Add(-retention), now)
	m.metrics.Sweep(len(refs), err)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	for _, ref := range refs {
		m.logger.Info("auto-archived item", "item_id", ref.ID, "title", ref.Title)
	}
	return refs, nil
}

// Delete removes an item regardless of status and returns what was removed.
func (m *Manager) Delete(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := m.store.Delete(ctx, id)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	m.logger.Info("item deleted", "item_id", id)
	return item, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// Sweep failures are logged and retried on the next tick.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	m.sweepAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepAndLog(ctx)
		}
	}
}

func (m *Manager) sweepAndLog(ctx context.Context) {
	refs, err := m.SweepExpired(ctx, m.retention)
	if err != nil {
		m.logger.Error("expiry sweep failed", "error", err)
		return
	}
	m.logger.Info("expiry sweep complete", "archived", len(refs), "retention", m.retention)
}
