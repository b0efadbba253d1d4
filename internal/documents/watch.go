package documents

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"secondbrain/internal/logger"
)

// DefaultPollInterval paces Watch when no interval is given
const DefaultPollInterval = 3 * time.Second

// Watch reloads the list at most once per interval while any document is
// queued or running, so status changes made by the backend show up. Polls do
// not mark the store busy and failures are only logged. It returns when ctx
// is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !s.HasPending() {
			continue
		}

		if err := s.reload(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("document poll failed: %v", err)
			continue
		}
		s.notify()
	}
}
