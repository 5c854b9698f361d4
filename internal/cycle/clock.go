package cycle

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// After is the sleep primitive of the wait loop.
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock moves time forward only on After, which fires immediately.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	OnSleep func(n int)
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{now: start} }

func (self *FakeClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.now
}

func (self *FakeClock) After(d time.Duration) <-chan time.Time {
	self.mu.Lock()
	self.now = self.now.Add(d)
	self.sleeps++
	n, now, hook := self.sleeps, self.now, self.OnSleep
	self.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (self *FakeClock) Advance(d time.Duration) {
	self.mu.Lock()
	self.now = self.now.Add(d)
	self.mu.Unlock()
}

func (self *FakeClock) Sleeps() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.sleeps
}
