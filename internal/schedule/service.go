package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "maptap/pkg/logx"
)

// tickTimeout bounds one full tick, store round trips included.
const tickTimeout = 60 * time.Second

// Service drives the engine once per minute in the tracker timezone.
type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	loc    *time.Location
	engine *Engine
	c      *cron.Cron
}

func NewService(engine *Engine, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{log: log, loc: loc, engine: engine}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc("* * * * *", func() {
		tctx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		if err := s.engine.Tick(tctx, time.Now()); err != nil {
			s.log.Error("tick failed", logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}
