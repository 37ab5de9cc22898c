package metadata

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"clipscope/internal/model"
)

// DefaultThrottleInterval spaces metadata fetches within a scan.
const DefaultThrottleInterval = 200 * time.Millisecond

// Throttle admits at most one call per interval. The first call is admitted
// immediately.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a Throttle. A non-positive interval disables pacing.
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call may start or ctx is done. A cancelled wait
// gives its slot back.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := t.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type throttledResolver struct {
	next     Resolver
	throttle *Throttle
}

// Throttled paces every call to next through throttle.
func Throttled(next Resolver, throttle *Throttle) Resolver {
	return &throttledResolver{next: next, throttle: throttle}
}

func (r *throttledResolver) Resolve(ctx context.Context, uri string) (model.ResolvedMetadata, bool) {
	if err := r.throttle.Wait(ctx); err != nil {
		return model.ResolvedMetadata{}, false
	}
	return r.next.Resolve(ctx, uri)
}
