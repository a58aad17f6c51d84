// Package testutils provides mock clocks and a fake storefront for tests
package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/storecheck/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper wraps quartz.Mock to implement our Clock interface
type ClockWrapper struct {
	*quartz.Mock
}

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

// After returns a channel that delivers the current time after the duration
func (c *ClockWrapper) After(d time.Duration) <-chan time.Time {
	timer := c.Mock.NewTimer(d)
	return timer.C
}

// Sleep blocks for the given duration
func (c *ClockWrapper) Sleep(d time.Duration) {
	timer := c.Mock.NewTimer(d)
	<-timer.C
}

// Now returns the current time
func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// NewTimer creates a new Timer
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	timer := c.Mock.NewTimer(d)
	return &TimerWrapper{timer: timer}
}

// TimerWrapper wraps quartz timer
type TimerWrapper struct {
	timer *quartz.Timer
}

func (t *TimerWrapper) C() <-chan time.Time {
	return t.timer.C
}

func (t *TimerWrapper) Stop() bool {
	return t.timer.Stop()
}

func (t *TimerWrapper) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}

// InstantClock is a Clock backed by a quartz mock where every wait completes
// immediately after advancing mock time by the requested duration. Waits are
// recorded so tests can assert on backoff schedules without sleeping.
type InstantClock struct {
	mock *quartz.Mock

	mu    sync.Mutex
	waits []time.Duration
}

// NewInstantClock creates an InstantClock starting at the mock's current time
func NewInstantClock(t testing.TB) *InstantClock {
	return &InstantClock{mock: quartz.NewMock(t)}
}

// Mock exposes the underlying quartz mock
func (c *InstantClock) Mock() *quartz.Mock {
	return c.mock
}

// Now returns the current mock time
func (c *InstantClock) Now() time.Time {
	return c.mock.Now()
}

// Since returns mock time elapsed since t
func (c *InstantClock) Since(t time.Time) time.Duration {
	return c.mock.Since(t)
}

// After advances mock time by d and returns an already-fired channel
func (c *InstantClock) After(d time.Duration) <-chan time.Time {
	c.advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.mock.Now()
	return ch
}

// Sleep advances mock time by d
func (c *InstantClock) Sleep(d time.Duration) {
	c.advance(d)
}

// NewTimer returns a timer that has already fired after advancing by d
func (c *InstantClock) NewTimer(d time.Duration) types.Timer {
	return &firedTimer{ch: c.After(d)}
}

// Waits returns every duration waited on, in order
func (c *InstantClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// TotalWait returns the sum of all waits
func (c *InstantClock) TotalWait() time.Duration {
	var total time.Duration
	for _, d := range c.Waits() {
		total += d
	}
	return total
}

func (c *InstantClock) advance(d time.Duration) {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	if d > 0 {
		c.mock.Advance(d)
	}
}

type firedTimer struct {
	ch <-chan time.Time
}

func (t *firedTimer) C() <-chan time.Time        { return t.ch }
func (t *firedTimer) Stop() bool                 { return false }
func (t *firedTimer) Reset(d time.Duration) bool { return false }
