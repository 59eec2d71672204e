// Package cleanup evicts stale session records on its own cadence,
// independent of the heartbeat interval. Liveness state, not age,
// governs live records: only EXPIRED and CLOSED records are ever
// deleted.
package cleanup

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/session"
	"github.com/mvelimir/skeep/internal/store"
)

// Expirer transitions an overdue DISCONNECTED session to EXPIRED.
// Satisfied by the reconnect state machine.
type Expirer interface {
	ExpireOverdue(id string) (bool, error)
}

// Scheduler periodically sweeps the store.
type Scheduler struct {
	store     *store.Store
	expirer   Expirer
	clock     clock.Clock
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
}

// NewScheduler builds a scheduler sweeping every interval, deleting
// terminal records older than retention.
func NewScheduler(st *store.Store, exp Expirer, interval, retention time.Duration, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:     st,
		expirer:   exp,
		clock:     clk,
		log:       logger,
		interval:  interval,
		retention: retention,
	}
}

// Run sweeps on the configured interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(s.retention); err != nil {
				s.log.Warn("cleanup sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires overdue DISCONNECTED sessions, then deletes EXPIRED
// and CLOSED records whose last activity is older than maxAge. It
// returns the number of records deleted. A failure on one record never
// aborts the rest of the sweep.
func (s *Scheduler) Sweep(maxAge time.Duration) (int, error) {
	records, err := s.store.List()
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()

	for _, rec := range records {
		if rec.State != session.StateDisconnected || rec.GraceDeadline == nil {
			continue
		}
		if now.After(*rec.GraceDeadline) {
			if _, err := s.expirer.ExpireOverdue(rec.SessionID); err != nil {
				s.log.Warn("expiring overdue session failed",
					zap.String("session_id", rec.SessionID),
					zap.Error(err))
			}
		}
	}

	stale := lo.Filter(records, func(rec *session.Record, _ int) bool {
		return rec.State.Terminal() && now.Sub(rec.LastActivityAt) > maxAge
	})

	deleted := 0
	for _, rec := range stale {
		if err := s.store.Delete(rec.SessionID); err != nil {
			s.log.Warn("deleting stale session failed",
				zap.String("session_id", rec.SessionID),
				zap.Error(err))
			continue
		}
		deleted++
		s.log.Info("deleted stale session",
			zap.String("session_id", rec.SessionID),
			zap.String("state", rec.State.String()))
	}
	return deleted, nil
}
