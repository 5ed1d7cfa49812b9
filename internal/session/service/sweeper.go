package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes expired session rows. Expired sessions are
// already unusable, so the schedule only bounds table growth; any interval is
// safe and overlapping runs are harmless.
type Sweeper struct {
	manager *Manager
	every   time.Duration
	cron    *cron.Cron
}

// NewSweeper returns a Sweeper invoking manager.SweepExpired every interval.
func NewSweeper(manager *Manager, every time.Duration) *Sweeper {
	return &Sweeper{manager: manager, every: every, cron: cron.New()}
}

// Start registers the schedule and launches the cron runner in its own
// goroutine. Call Stop to shut it down.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every "+s.every.String(), s.run); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.manager.SweepExpired(ctx)
	if err != nil {
		log.Printf("session: expiry sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("session: swept %d expired sessions", n)
	}
}
