package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/tickgate/service"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// SystemTime is the real monotonic clock
type SystemTime struct{}

// Now returns the current time with monotonic clock reading
func (SystemTime) Now() time.Time {
	return time.Now()
}

// Clock produces fixed-interval ticks against absolute deadlines
// Deadlines advance by exactly one interval per tick so jitter does not accumulate; when the
// caller falls more than two intervals behind, the schedule resynchronizes to now instead of
// bursting to catch up
// Not safe for concurrent use: owned by the main thread
type Clock struct {
	interval time.Duration
	source   TimeSource

	next  time.Time
	count uint64
	timer *time.Timer

	resyncs *atomic.Int64
}

// NewClock creates a clock ticking every interval; nil source uses SystemTime
func NewClock(interval time.Duration, source TimeSource) *Clock {
	if source == nil {
		source = SystemTime{}
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	return &Clock{
		interval: interval,
		source:   source,
		timer:    timer,
		resyncs:  new(atomic.Int64),
	}
}

// Start schedules the first deadline one interval from now
func (c *Clock) Start() {
	c.next = c.source.Now().Add(c.interval)
	c.count = 0
}

// Wait blocks until the next deadline and returns its tick
// Returns ctx.Err() if the context ends first
func (c *Clock) Wait(ctx context.Context) (service.Tick, error) {
	if err := ctx.Err(); err != nil {
		return service.Tick{}, err
	}

	if sleep := c.next.Sub(c.source.Now()); sleep > 0 {
		c.timer.Reset(sleep)
		select {
		case <-c.timer.C:
		case <-ctx.Done():
			if !c.timer.Stop() {
				select {
				case <-c.timer.C:
				default:
				}
			}
			return service.Tick{}, ctx.Err()
		}
	}

	return c.advance(), nil
}

// advance emits the tick for the current deadline and schedules the next one
func (c *Clock) advance() service.Tick {
	now := c.source.Now()
	c.count++
	tick := service.Tick{
		Number: c.count,
		Time:   c.next,
		Delta:  c.interval,
	}

	c.next = c.next.Add(c.interval)
	maxBehind := c.interval * 2
	if now.Sub(c.next) > maxBehind {
		c.next = now.Add(c.interval)
		c.resyncs.Add(1)
	}
	return tick
}

// Stop releases the timer
func (c *Clock) Stop() {
	c.timer.Stop()
}

// Resyncs returns how many times the schedule was reset after falling behind
func (c *Clock) Resyncs() int64 {
	return c.resyncs.Load()
}

// Interval returns the tick interval
func (c *Clock) Interval() time.Duration {
	return c.interval
}
