package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tgerr"
	"golang.org/x/time/rate"
)

// defaultPerSecond is the call rate of the sender account. Direct messages to
// users who never wrote to the account are flood limited well below the API
// maximum.
const defaultPerSecond = 1.0

// pacer spaces the sender account's API calls. A FLOOD_WAIT answer pauses
// every caller until it expires.
type pacer struct {
	limiter *rate.Limiter
	now     func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// newPacer allows perSecond calls per second without bursts; values <= 0
// use defaultPerSecond.
func newPacer(perSecond float64) *pacer {
	if perSecond <= 0 {
		perSecond = defaultPerSecond
	}
	return &pacer{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		now:     time.Now,
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *pacer) Wait(ctx context.Context) error {
	if d := p.remainingPause(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.limiter.Wait(ctx)
}

// Pause holds all callers for d. A shorter pause never cuts an active one.
func (p *pacer) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if until := p.now().Add(d); until.After(p.pausedUntil) {
		p.pausedUntil = until
	}
}

func (p *pacer) remainingPause() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pausedUntil.Sub(p.now())
}

// floodWait reports how long the server asked us to back off, or zero.
// Errors that lost their rpc type are matched on the message text.
func floodWait(err error) time.Duration {
	if err == nil {
		return 0
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return d
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		return 0
	}

	// "rpc error code 420: FLOOD_WAIT_15"
	_, rest, found := strings.Cut(err.Error(), "FLOOD_WAIT_")
	if !found {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(rest, "%d", &seconds); err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
