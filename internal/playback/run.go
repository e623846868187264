package playback

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval approximates a display refresh for headless consumers.
const DefaultInterval = 16 * time.Millisecond

// Clock reports the current playback position in seconds.
type Clock func() float64

// Run drives Advance on a fixed interval until ctx ends. Browser clients
// advance once per display frame instead; this driver serves headless
// consumers replaying a transcript against a wall clock.
func (e *Engine) Run(ctx context.Context, clock Clock, interval time.Duration) error {
	if clock == nil {
		return errors.New("playback: clock is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Advance(clock())
		}
	}
}
