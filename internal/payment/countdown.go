package payment

import (
	"sync"
	"time"

	"github.com/acaidelivery/checkout/internal/domain"
)

// MsgExpired replaces the clock once the payment window has elapsed.
const MsgExpired = "Expirado"

// Ticker delivers one tick per second until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker with the given period.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the TickerFactory backed by time.Ticker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Countdown is a cancellable one-second countdown. It only drives what the
// customer sees: reaching zero calls onExpire and nothing else.
type Countdown struct {
	mu        sync.Mutex
	remaining int

	ticker   Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown starts counting down from seconds. onExpire, if not nil,
// runs on the countdown goroutine when it reaches zero; it does not run if
// the countdown is stopped first.
func StartCountdown(seconds int, newTicker TickerFactory, onExpire func()) *Countdown {
	c := &Countdown{
		remaining: seconds,
		ticker:    newTicker(time.Second),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.run(onExpire)
	return c
}

func (c *Countdown) run(onExpire func()) {
	defer close(c.done)
	defer c.ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C():
			c.mu.Lock()
			if c.remaining > 0 {
				c.remaining--
			}
			expired := c.remaining == 0
			c.mu.Unlock()

			if expired {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Remaining returns the seconds left, never below zero.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Clock renders the time left as MM:SS.
func (c *Countdown) Clock() string {
	return domain.FormatClock(time.Duration(c.Remaining()) * time.Second)
}

// Display is the clock while time remains and MsgExpired afterwards.
func (c *Countdown) Display() string {
	if c.Remaining() == 0 {
		return MsgExpired
	}
	return c.Clock()
}

// Stop halts the countdown. It is safe to call more than once and after
// the countdown has finished.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
