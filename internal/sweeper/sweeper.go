// Package sweeper reclaims idle conversations. On each scheduled run it
// closes every conversation whose last activity predates the idle window and
// evicts it from the fast cache tiers. The durable record remains.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
	"github.com/relaydesk/relaydesk/internal/metrics"
	"github.com/relaydesk/relaydesk/internal/store"
)

// Store is the persistence surface the sweeper needs: the regular contract
// plus cache eviction.
type Store interface {
	store.Store
	Evict(conversationID string)
}

type Sweeper struct {
	store       Store
	schedule    string
	idleTimeout time.Duration
	cron        *cron.Cron
	now         func() time.Time
}

func New(st Store, cfg config.SweeperConfig, storeCfg config.StoreConfig) (*Sweeper, error) {
	idleTimeout, err := config.DurationOrDefault(storeCfg.IdleTimeout, config.DefaultStoreIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse idle timeout: %w", err)
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = config.DefaultSweeperSchedule
	}

	return &Sweeper{
		store:       st,
		schedule:    schedule,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()

	slog.Info("Idle sweeper started", "schedule", s.schedule, "idle_timeout", s.idleTimeout)
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one reclamation pass. Closing is administrative, outside the
// turn state machine, and races active turns only through the store's
// version check: a sweep that loses the race leaves the conversation alone
// until the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.idleTimeout)

	ids, err := s.store.ListIdleBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Idle sweep listing failed", "error", err)
		metrics.IdleSweeps.WithLabelValues("list_error").Inc()
		return
	}

	for _, id := range ids {
		s.reclaim(ctx, id)
	}

	if len(ids) > 0 {
		slog.Info("Idle sweep finished", "candidates", len(ids))
	}
}

func (s *Sweeper) reclaim(ctx context.Context, conversationID string) {
	state, err := s.store.Load(ctx, conversationID)
	if err != nil {
		slog.Warn("Idle sweep load failed", "conversation_id", conversationID, "error", err)
		metrics.IdleSweeps.WithLabelValues("load_error").Inc()
		return
	}
	if state.Status.Terminal() {
		s.store.Evict(conversationID)
		metrics.IdleSweeps.WithLabelValues("already_closed").Inc()
		return
	}

	state.Status = conversation.StatusClosed
	if _, err := s.store.Save(ctx, state, state.Version); err != nil {
		if rderrors.IsCategory(err, rderrors.ErrVersionConflict) {
			// An active turn got there first; the conversation is not idle.
			metrics.IdleSweeps.WithLabelValues("lost_race").Inc()
			return
		}
		slog.Warn("Idle sweep close failed", "conversation_id", conversationID, "error", err)
		metrics.IdleSweeps.WithLabelValues("save_error").Inc()
		return
	}

	s.store.Evict(conversationID)
	metrics.IdleSweeps.WithLabelValues("closed").Inc()
	slog.Info("Idle conversation closed", "conversation_id", conversationID)
}
