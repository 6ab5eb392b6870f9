package worker

import (
	"context"
	"log"
	"time"
)

// ExpiryCloser closes auctions whose end time has passed.
type ExpiryCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically closes expired auctions.
type Sweeper struct {
	closer   ExpiryCloser
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(closer ExpiryCloser, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{closer: closer, interval: interval, now: func() time.Time { return time.Now().UTC() }}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.closer.CloseExpired(ctx, s.now())
	if err != nil && ctx.Err() == nil {
		log.Printf("sweeper: closed=%d err=%v", n, err)
	} else if n > 0 {
		log.Printf("sweeper: closed %d expired auctions", n)
	}
	return n
}
