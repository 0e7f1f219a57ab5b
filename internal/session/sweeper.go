package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes sessions idle for longer than the TTL.
type Sweeper struct {
	store  Store
	ttl    time.Duration
	cron   *cron.Cron
	logger *logger.Logger
	now    func() time.Time
}

// NewSweeper schedules Sweep on the given cron schedule, e.g. "@every 10m".
func NewSweeper(store Store, ttl time.Duration, schedule string, log *logger.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(),
		logger: log.WithComponent("session_sweeper"),
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("session sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Sweep removes expired sessions once.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	removed, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
