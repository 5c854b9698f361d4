package actuator

import (
	"bytes"
	"sync"
)

// Mock records commands for tests. Safe for concurrent inspection.
type Mock struct {
	mu        sync.Mutex
	positions []int
	wire      bytes.Buffer
	err       error
	opened    bool
	closes    int
}

var _ Actuator = &Mock{}

func NewMock() *Mock { return &Mock{} }

func (self *Mock) SetPosition(pos int) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.err != nil {
		return self.err
	}
	if err := ValidPosition(pos); err != nil {
		return err
	}
	self.opened = true
	self.positions = append(self.positions, pos)
	self.wire.Write(Command(pos))
	return nil
}

func (self *Mock) SetError(err error) {
	self.mu.Lock()
	self.err = err
	self.mu.Unlock()
}

func (self *Mock) Opened() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.opened
}

func (self *Mock) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.opened {
		self.closes++
	}
	self.opened = false
	return nil
}

func (self *Mock) Positions() []int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]int(nil), self.positions...)
}

func (self *Mock) Wire() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.wire.String()
}

func (self *Mock) Closes() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closes
}
