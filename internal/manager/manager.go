// Package manager wires the session store, heartbeat monitor,
// reconnection state machine and cleanup scheduler together behind the
// external API. A Manager is constructed explicitly and passed to
// whoever needs it; there is no ambient singleton.
package manager

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/cleanup"
	"github.com/mvelimir/skeep/internal/config"
	"github.com/mvelimir/skeep/internal/heartbeat"
	"github.com/mvelimir/skeep/internal/reconnect"
	"github.com/mvelimir/skeep/internal/session"
	"github.com/mvelimir/skeep/internal/store"
)

// Manager is the Connection & Session Resilience facade.
type Manager struct {
	store   *store.Store
	monitor *heartbeat.Monitor
	machine *reconnect.Machine
	sweeper *cleanup.Scheduler
	clock   clock.Clock
	log     *zap.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New builds a manager over the configured store directory. clk may be
// nil for the wall clock.
func New(cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := store.Open(cfg.StoreDir, logger)
	if err != nil {
		return nil, err
	}
	machine := reconnect.NewMachine(st, reconnect.Config{
		GracePeriod:      cfg.Session.GracePeriod,
		MaxAttempts:      cfg.Session.MaxReconnectAttempts,
		OfferDelay:       cfg.Session.ReconnectBackoff,
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
	}, clk, logger)
	return &Manager{
		store:   st,
		monitor: heartbeat.NewMonitor(cfg.Session.HeartbeatInterval, cfg.Session.MissedProbeThreshold, clk, logger),
		machine: machine,
		sweeper: cleanup.NewScheduler(st, machine, cfg.Session.CleanupInterval, cfg.Session.RetentionAge, clk, logger),
		clock:   clk,
		log:     logger,
		runCtx:  context.Background(),
	}, nil
}

// Store exposes the underlying session store for administrative reads.
func (m *Manager) Store() *store.Store { return m.store }

// OfferDelay is the fixed delay callers should wait between
// reattachment offers.
func (m *Manager) OfferDelay() time.Duration { return m.machine.OfferDelay() }

// Start launches the periodic cleanup task and anchors heartbeat
// watches to ctx. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	go m.sweeper.Run(m.runCtx)
}

// Shutdown halts the cleanup task and every heartbeat watch, leaving
// all durable state in place for a later restart.
func (m *Manager) Shutdown() {
	if m.runCancel != nil {
		m.runCancel()
	}
	m.monitor.StopAll()
}

// Attach binds a transport to a session and starts probing it.
//
// An empty id creates a new ACTIVE session. An ACTIVE or RECONNECTING
// session is superseded: the prior transport's watch stops and probing
// restarts on tr (last attach wins). A DISCONNECTED session goes
// through the reconnection state machine. EXPIRED and CLOSED sessions
// are rejected with an UnavailableError; an unknown id returns
// session.ErrNotFound so the caller can decide to create a new
// session. A non-nil payload replaces the stored payload; a nil
// payload leaves it untouched.
func (m *Manager) Attach(ctx context.Context, id string, tr session.Transport, payload []byte) (*session.Record, error) {
	if id == "" {
		return m.create(tr, payload)
	}

	cur, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	switch cur.State {
	case session.StateExpired, session.StateClosed:
		return nil, session.Unavailable(id, session.UnavailableReason(cur.State))

	case session.StateActive, session.StateReconnecting:
		rec, err := m.store.Update(id, func(r *session.Record) error {
			if r.State.Terminal() {
				return session.Unavailable(id, session.UnavailableReason(r.State))
			}
			if payload != nil {
				r.Payload = payload
			}
			r.LastActivityAt = m.clock.Now().UTC()
			return nil
		})
		if err != nil {
			return nil, err
		}
		m.log.Info("transport superseded", zap.String("session_id", id))
		m.watch(id, tr)
		return rec.Clone(), nil

	case session.StateDisconnected:
		rec, err := m.machine.Reattach(ctx, id, tr)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			rec, err = m.store.Update(id, func(r *session.Record) error {
				r.Payload = payload
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		m.watch(id, tr)
		return rec.Clone(), nil

	default:
		return nil, session.Unavailable(id, "unknown state "+cur.State.String())
	}
}

func (m *Manager) create(tr session.Transport, payload []byte) (*session.Record, error) {
	rec := session.NewRecord(uuid.NewString(), payload, m.clock.Now().UTC())
	if err := m.store.Put(rec); err != nil {
		return nil, err
	}
	m.log.Info("session created", zap.String("session_id", rec.SessionID))
	m.watch(rec.SessionID, tr)
	return rec.Clone(), nil
}

// watch starts (or restarts) heartbeat probing for id on tr. The
// watch's only externally visible effects are store mutations.
func (m *Manager) watch(id string, tr session.Transport) {
	if tr == nil {
		return
	}
	m.monitor.Watch(m.runCtx, id, tr, heartbeat.Hooks{
		Alive: func(at time.Time) {
			_, err := m.store.Update(id, func(r *session.Record) error {
				if r.State.Terminal() {
					return store.ErrNoop
				}
				r.LastHeartbeatAt = at.UTC()
				// An acknowledged probe is itself sufficient to
				// confirm recovery of a RECONNECTING session.
				if r.State == session.StateReconnecting {
					r.State = session.StateActive
					r.ReconnectAttempts = 0
					r.GraceDeadline = nil
				}
				return nil
			})
			if err != nil {
				m.log.Warn("heartbeat timestamp update failed",
					zap.String("session_id", id), zap.Error(err))
			}
		},
		Lost: func() {
			if _, err := m.machine.MarkDisconnected(id); err != nil {
				m.log.Warn("disconnect transition failed",
					zap.String("session_id", id), zap.Error(err))
			}
		},
	})
}

// Touch records application-level activity. It never changes state,
// and terminal records are immutable.
func (m *Manager) Touch(id string) error {
	_, err := m.store.Update(id, func(r *session.Record) error {
		if r.State.Terminal() {
			return session.Unavailable(id, session.UnavailableReason(r.State))
		}
		r.LastActivityAt = m.clock.Now().UTC()
		return nil
	})
	return err
}

// Close forces the session to CLOSED. It cancels any in-flight
// heartbeat or reconnection probing for the id before touching the
// record, so it wins races with those activities. Closing an already
// terminal session is a no-op.
func (m *Manager) Close(id string) error {
	m.monitor.Stop(id)
	rec, err := m.store.Update(id, func(r *session.Record) error {
		if r.State.Terminal() {
			return store.ErrNoop
		}
		r.State = session.StateClosed
		r.GraceDeadline = nil
		r.LastActivityAt = m.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	if rec.State == session.StateClosed {
		m.log.Info("session closed", zap.String("session_id", id))
	}
	return nil
}

// Discard closes the session and deletes its record immediately, for
// callers that want no retention.
func (m *Manager) Discard(id string) error {
	m.monitor.Stop(id)
	return m.store.Delete(id)
}

// Get returns the last durably committed record for id.
func (m *Manager) Get(id string) (*session.Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// List returns administrative summaries of every stored session,
// ordered by creation time.
func (m *Manager) List() ([]session.Summary, error) {
	records, err := m.store.List()
	if err != nil {
		return nil, err
	}
	summaries := lo.Map(records, func(rec *session.Record, _ int) session.Summary {
		return rec.Summarize()
	})
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Cleanup runs an on-demand sweep deleting terminal records older than
// maxAge. Live sessions are never touched regardless of age.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	return m.sweeper.Sweep(maxAge)
}
