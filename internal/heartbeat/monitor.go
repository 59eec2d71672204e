// Package heartbeat proves on a fixed interval that an ACTIVE
// session's transport is still alive. One goroutine per watched
// session; a watch's only externally visible effects are its hook
// invocations.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/session"
)

// Hooks receive liveness signals for one watched session. Alive fires
// on every acknowledged probe with the acknowledgment time. Lost fires
// exactly once, after the miss threshold is reached or the transport
// reports closure, and the watch exits.
type Hooks struct {
	Alive func(at time.Time)
	Lost  func()
}

// Monitor probes watched transports on a fixed interval. Probing never
// blocks callers of application-level operations.
type Monitor struct {
	interval  time.Duration
	maxMissed int
	clock     clock.Clock
	log       *zap.Logger

	mu      sync.Mutex
	watches map[string]*watch
	wg      sync.WaitGroup
}

type watch struct {
	cancel context.CancelFunc
}

// NewMonitor builds a monitor probing every interval and declaring
// liveness loss after maxMissed consecutive unacknowledged probes.
func NewMonitor(interval time.Duration, maxMissed int, clk clock.Clock, logger *zap.Logger) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		interval:  interval,
		maxMissed: maxMissed,
		clock:     clk,
		log:       logger,
		watches:   make(map[string]*watch),
	}
}

// Watch begins probing tr for session id. A previous watch for the
// same id is superseded: its loop is cancelled before the new one
// starts, so last attach wins.
func (m *Monitor) Watch(ctx context.Context, id string, tr session.Transport, hooks Hooks) {
	wctx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.watches[id]; ok {
		prev.cancel()
	}
	m.watches[id] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forget(id, w)
		m.run(wctx, id, tr, hooks)
	}()
}

// Stop cancels the watch for id, if any. It returns immediately; it is
// never blocked by an in-flight probe.
func (m *Monitor) Stop(id string) {
	m.mu.Lock()
	w, ok := m.watches[id]
	if ok {
		delete(m.watches, id)
	}
	m.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// StopAll cancels every watch and waits for the loops to exit.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	for id, w := range m.watches {
		w.cancel()
		delete(m.watches, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// forget removes the map entry only if it still belongs to this watch,
// so a superseding Watch is not clobbered by the old loop's exit.
func (m *Monitor) forget(id string, w *watch) {
	m.mu.Lock()
	if cur, ok := m.watches[id]; ok && cur == w {
		delete(m.watches, id)
	}
	m.mu.Unlock()
}

func (m *Monitor) run(ctx context.Context, id string, tr session.Transport, hooks Hooks) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return

		case <-tr.Closed():
			m.log.Info("transport closed, declaring liveness loss",
				zap.String("session_id", id))
			hooks.Lost()
			return

		case <-ticker.C:
			pctx, cancel := m.clock.WithTimeout(ctx, m.interval)
			err := tr.Probe(pctx)
			cancel()
			if ctx.Err() != nil {
				return // cancelled mid-probe; close wins the race
			}
			if err != nil {
				misses++
				m.log.Warn("heartbeat probe unacknowledged",
					zap.String("session_id", id),
					zap.Int("consecutive_misses", misses),
					zap.Error(err))
				if misses >= m.maxMissed {
					hooks.Lost()
					return
				}
				continue
			}
			misses = 0
			hooks.Alive(m.clock.Now())
		}
	}
}
