package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eternisai/taskbot/internal/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper evicts abandoned sessions on a cron schedule.
type Sweeper struct {
	store  *SessionStore
	cron   *cron.Cron
	logger *logger.Logger
}

// NewSweeper validates spec (standard cron or descriptors like "@every 1m").
func NewSweeper(store *SessionStore, spec string, log *logger.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		cron:   cron.New(),
		logger: log.WithComponent("session-sweeper"),
	}

	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid session sweep spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("starting session sweeper", slog.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) sweep() {
	if removed := s.store.Sweep(); removed > 0 {
		s.logger.Info("expired sessions evicted", slog.Int("count", removed))
	}
}
