package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Ticker is a cancellable repeating task. fn runs on the ticker goroutine
// once per delivered tick; ticks missed while fn was busy are dropped, not
// replayed.
type Ticker struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start launches a ticker that calls fn every interval until Stop.
func Start(clock clockwork.Clock, interval time.Duration, fn func(ctx context.Context, at time.Time)) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticker{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(t.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case at := <-ticker.Chan():
				// Stop may have raced the tick.
				if ctx.Err() != nil {
					return
				}
				fn(ctx, at)
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("ticker started")
	return t
}

// Stop cancels the ticker and waits for its goroutine to exit. Once Stop
// returns no further call of fn starts. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
		log.Debug().Msg("ticker stopped")
	})
}
