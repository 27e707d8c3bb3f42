package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// apiLimiter paces requests toward the Telegram API and defers them while a
// FLOOD_WAIT penalty is active.
type apiLimiter struct {
	limiter *rate.Limiter

	floodWaitUntil time.Time
	mu             sync.Mutex
}

// newAPILimiter returns a limiter with conservative settings for a
// long-running user session.
func newAPILimiter() *apiLimiter {
	return &apiLimiter{
		limiter: rate.NewLimiter(rate.Limit(2.0), 1),
	}
}

// Wait blocks until the next request is allowed.
func (r *apiLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	waitUntil := r.floodWaitUntil
	r.mu.Unlock()

	if time.Now().Before(waitUntil) {
		select {
		case <-time.After(time.Until(waitUntil)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.limiter.Wait(ctx)
}

// SetFloodWait defers subsequent requests after a FLOOD_WAIT error.
func (r *apiLimiter) SetFloodWait(seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.floodWaitUntil = time.Now().Add(time.Duration(seconds) * time.Second)
}
