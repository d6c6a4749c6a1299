// Package countdown drives the recording timer: a periodic tick measuring
// elapsed time against a fixed cap, and the "M:SS / M:SS" display format.
package countdown

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultCap      = 30 * time.Second
	DefaultInterval = 200 * time.Millisecond
)

// Controller ticks while a recording runs. It does not decide when to stop;
// the owner inspects the elapsed time passed to onTick.
type Controller struct {
	cap      time.Duration
	interval time.Duration
	clock    Clock

	mu     sync.Mutex
	start  time.Time
	ticker Ticker
	stop   chan struct{}
	done   chan struct{}
}

// ValidCap reports whether d can be shown as a cap: at least one second
// and a whole number of seconds.
func ValidCap(d time.Duration) bool {
	return d >= time.Second && d%time.Second == 0
}

func New(capacity, interval time.Duration, clock Clock) *Controller {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = Real
	}
	return &Controller{cap: capacity, interval: interval, clock: clock}
}

func (c *Controller) Cap() time.Duration { return c.cap }

// Start records the start timestamp and begins ticking. onTick runs on the
// controller's goroutine and must not block. Starting a running controller
// restarts it.
func (c *Controller) Start(onTick func(elapsed time.Duration)) {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = c.clock.Now()
	c.ticker = c.clock.NewTicker(c.interval)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(c.ticker, c.start, c.stop, c.done, onTick)
}

func (c *Controller) run(t Ticker, start time.Time, stop, done chan struct{}, onTick func(time.Duration)) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			select {
			case <-stop:
				return
			default:
			}
			onTick(c.clock.Now().Sub(start))
		}
	}
}

// Elapsed returns the time since Start, or 0 when not running.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return 0
	}
	return c.clock.Now().Sub(c.start)
}

// Running reports whether the ticker is live.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// Stop cancels the ticker and waits for the tick goroutine to exit, so no
// onTick call starts after Stop returns. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	t, stop, done := c.ticker, c.stop, c.done
	c.ticker, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()

	if t == nil {
		return
	}
	t.Stop()
	close(stop)
	<-done
}

// Reached reports whether elapsed hit the cap.
func (c *Controller) Reached(elapsed time.Duration) bool {
	return elapsed >= c.cap
}

// Display formats elapsed against the controller's cap.
func (c *Controller) Display(elapsed time.Duration) string {
	return FormatDisplay(elapsed, c.cap)
}

// WholeSeconds truncates d to whole seconds.
func WholeSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// FormatClock renders d as M:SS, truncating to the second.
func FormatClock(d time.Duration) string {
	s := WholeSeconds(d)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatDisplay renders "M:SS / M:SS".
func FormatDisplay(elapsed, capacity time.Duration) string {
	return FormatClock(elapsed) + " / " + FormatClock(capacity)
}
