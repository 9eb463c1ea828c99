package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager maintains the registry of per-character quest engines. Engines
// are created lazily, restore their snapshot once from the durable store,
// and are evicted after a period without operations; eviction only tears
// down the in-process ticker, never state.
type Manager struct {
	mu      sync.Mutex
	engines map[int64]*Engine
	opts    Options
	idleTTL time.Duration
	logger  *zap.Logger
}

// NewManager creates a Manager handing the given Options to every engine.
func NewManager(opts Options, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Manager{
		engines: make(map[int64]*Engine),
		opts:    opts,
		idleTTL: idleTTL,
		logger:  opts.Logger,
	}
}

// Engine returns the engine for the character, creating and restoring it on
// first use.
func (m *Manager) Engine(ctx context.Context, charID int64) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[charID]; ok {
		return e, nil
	}
	e, err := New(ctx, charID, m.opts)
	if err != nil {
		return nil, err
	}
	m.engines[charID] = e
	m.logger.Info("quest engine restored",
		zap.Int64("char_id", charID),
		zap.String("phase", string(e.Status().Phase)))
	return e, nil
}

// DeliverBatch replays a backlog of queued lock-state signals, in order,
// through the character's engine. Phones buffer signals while offline and
// flush them on reconnect; the inbox buffer bounds how much of the backlog
// sits in memory at once. Returns the slot status after the whole batch.
func (m *Manager) DeliverBatch(ctx context.Context, charID int64, sigs []Signal) (Status, error) {
	e, err := m.Engine(ctx, charID)
	if err != nil {
		return Status{}, err
	}
	buf := m.opts.SignalBuf
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Signal, buf)
	go func() {
		defer close(ch)
		for _, s := range sigs {
			select {
			case ch <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	e.Signals(ctx, ch)
	return e.Status(), nil
}

// Peek returns the engine for the character if one is loaded, without
// creating it.
func (m *Manager) Peek(charID int64) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engines[charID]
}

// Count returns the number of loaded engines.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Snapshot returns the status of every loaded engine, for admin views.
func (m *Manager) Snapshot() map[int64]Status {
	m.mu.Lock()
	engines := make(map[int64]*Engine, len(m.engines))
	for id, e := range m.engines {
		engines[id] = e
	}
	m.mu.Unlock()

	out := make(map[int64]Status, len(engines))
	for id, e := range engines {
		out[id] = e.Status()
	}
	return out
}

// SweepIdle evicts engines idle longer than the TTL. Engines with an active
// quest are kept loaded so their ticker keeps observing.
func (m *Manager) SweepIdle() {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.engines {
		if e.Status().Phase == PhaseActive {
			continue
		}
		if e.LastTouch().Before(cutoff) {
			e.Close()
			delete(m.engines, id)
			m.logger.Debug("idle quest engine evicted", zap.Int64("char_id", id))
		}
	}
}

// Close tears down every loaded engine.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.engines {
		e.Close()
		delete(m.engines, id)
	}
}
