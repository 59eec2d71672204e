// Package reconnect owns the per-session recovery protocol after
// liveness loss. Every transition goes through the session store's
// serialized Update, so transitions for one session are totally
// ordered even when heartbeats, reattach attempts and explicit closes
// race.
package reconnect

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/session"
	"github.com/mvelimir/skeep/internal/store"
)

// Config bounds the recovery protocol.
type Config struct {
	// GracePeriod is how long a DISCONNECTED session may still be
	// reattached after liveness loss.
	GracePeriod time.Duration
	// MaxAttempts is the number of failed reattachment handshakes
	// after which the session expires.
	MaxAttempts int
	// OfferDelay is the fixed delay advertised between reattachment
	// offers. skeep does not retry on the caller's behalf; it only
	// accepts or rejects attach attempts as they occur.
	OfferDelay time.Duration
	// HandshakeTimeout bounds the reattachment probe.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the stock recovery bounds.
func DefaultConfig() Config {
	return Config{
		GracePeriod:      24 * time.Hour,
		MaxAttempts:      10,
		OfferDelay:       5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
}

// Machine drives state recovery for disconnected sessions.
type Machine struct {
	store *store.Store
	clock clock.Clock
	log   *zap.Logger
	cfg   Config
}

// NewMachine builds a state machine over st.
func NewMachine(st *store.Store, cfg Config, clk clock.Clock, logger *zap.Logger) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{store: st, clock: clk, log: logger, cfg: cfg}
}

// OfferDelay returns the fixed delay a caller should wait between
// reattachment offers.
func (m *Machine) OfferDelay() time.Duration { return m.cfg.OfferDelay }

// MarkDisconnected records liveness loss: ACTIVE|RECONNECTING ->
// DISCONNECTED with a fresh grace deadline. Terminal records and
// records already DISCONNECTED are left untouched.
func (m *Machine) MarkDisconnected(id string) (*session.Record, error) {
	rec, err := m.store.Update(id, func(r *session.Record) error {
		if r.State == session.StateDisconnected || !session.CanTransition(r.State, session.StateDisconnected) {
			return store.ErrNoop
		}
		deadline := m.clock.Now().UTC().Add(m.cfg.GracePeriod)
		r.State = session.StateDisconnected
		r.GraceDeadline = &deadline
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("session disconnected",
		zap.String("session_id", id),
		zap.Timep("grace_deadline", rec.GraceDeadline))
	return rec, nil
}

// Reattach binds a new transport to a DISCONNECTED session. On a
// successful handshake the session returns to ACTIVE with its payload
// untouched and the attempt counter reset. A failed handshake counts
// one attempt and drops back to DISCONNECTED, or to EXPIRED once
// MaxAttempts is reached. Attempts after the grace deadline or against
// a terminal record are rejected with an UnavailableError naming the
// reason.
func (m *Machine) Reattach(ctx context.Context, id string, tr session.Transport) (*session.Record, error) {
	if _, err := m.beginReconnect(id); err != nil {
		return nil, err
	}

	hctx, cancel := m.clock.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	probeErr := tr.Probe(hctx)
	cancel()

	if probeErr == nil {
		rec, err := m.store.Update(id, func(r *session.Record) error {
			if !session.CanTransition(r.State, session.StateActive) {
				return store.ErrNoop // closed mid-handshake; close wins
			}
			now := m.clock.Now().UTC()
			r.State = session.StateActive
			r.ReconnectAttempts = 0
			r.GraceDeadline = nil
			r.LastHeartbeatAt = now
			r.LastActivityAt = now
			return nil
		})
		if err != nil {
			return nil, err
		}
		if rec.State != session.StateActive {
			return nil, session.Unavailable(id, session.UnavailableReason(rec.State))
		}
		m.log.Info("session reattached", zap.String("session_id", id))
		return rec, nil
	}

	rec, err := m.store.Update(id, func(r *session.Record) error {
		if r.State != session.StateReconnecting {
			return store.ErrNoop
		}
		r.ReconnectAttempts++
		if r.ReconnectAttempts >= m.cfg.MaxAttempts {
			r.State = session.StateExpired
			r.GraceDeadline = nil
			return nil
		}
		r.State = session.StateDisconnected
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec.State == session.StateExpired {
		m.log.Warn("session expired after exhausting reattach attempts",
			zap.String("session_id", id),
			zap.Int("attempts", rec.ReconnectAttempts))
		return rec, session.Unavailable(id, session.ReasonMaxAttempts)
	}
	m.log.Warn("reattach handshake failed",
		zap.String("session_id", id),
		zap.Int("attempts", rec.ReconnectAttempts),
		zap.Error(probeErr))
	return rec, &session.TransportError{SessionID: id, Op: "handshake", Err: probeErr}
}

// beginReconnect moves DISCONNECTED -> RECONNECTING, expiring the
// record first if its grace deadline has passed.
func (m *Machine) beginReconnect(id string) (*session.Record, error) {
	var reject error
	rec, err := m.store.Update(id, func(r *session.Record) error {
		if r.State.Terminal() {
			reject = session.Unavailable(id, session.UnavailableReason(r.State))
			return store.ErrNoop
		}
		if r.State != session.StateDisconnected {
			reject = session.Unavailable(id, "not disconnected")
			return store.ErrNoop
		}
		if r.GraceDeadline != nil && m.clock.Now().After(*r.GraceDeadline) {
			r.State = session.StateExpired
			r.GraceDeadline = nil
			reject = session.Unavailable(id, session.ReasonExpired)
			return nil
		}
		r.State = session.StateReconnecting
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reject != nil {
		return rec, reject
	}
	return rec, nil
}

// ExpireOverdue expires a DISCONNECTED session whose grace deadline
// has passed. It reports whether the record transitioned. The cleanup
// scheduler drives this so expiry happens autonomously, without
// waiting for an attach attempt.
func (m *Machine) ExpireOverdue(id string) (bool, error) {
	expired := false
	_, err := m.store.Update(id, func(r *session.Record) error {
		if r.State != session.StateDisconnected || r.GraceDeadline == nil {
			return store.ErrNoop
		}
		if !m.clock.Now().After(*r.GraceDeadline) {
			return store.ErrNoop
		}
		r.State = session.StateExpired
		r.GraceDeadline = nil
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		m.log.Info("session expired, grace deadline passed",
			zap.String("session_id", id))
	}
	return expired, nil
}
