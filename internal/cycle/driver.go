package cycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aps-lab/actuator/log2"
	"github.com/juju/errors"
)

const DefaultCheckInterval = time.Second

type State uint32

const (
	StateIdle State = iota
	StateRunning
	StateHalting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateHalting:
		return "halting"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("unknown(%d)", uint32(s))
}

// Visit describes one position change. Time is when the command was issued.
type Visit struct {
	Cycle    int
	Position int
	Time     time.Time
	Deadline time.Time
	Delta    time.Duration
}

type Commander interface {
	SetPosition(pos int) error
}

// Recorder appends a visit to the journal. Failure stops the driver.
type Recorder interface {
	Record(v Visit) error
}

// Observer is notified after a visit is recorded. It must not block.
type Observer func(v Visit)

// Driver walks cycles of Plan. Not reusable: Run may be called once.
type Driver struct {
	plan          *Plan
	checkInterval time.Duration
	cmd           Commander
	rec           Recorder
	clock         Clock
	log           *log2.Log
	observers     []Observer

	state   uint32
	visits  uint32
	mu      sync.Mutex
	current Visit
}

func NewDriver(plan *Plan, checkInterval time.Duration, cmd Commander, rec Recorder, clock Clock, log *log2.Log) *Driver {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Driver{
		plan:          plan,
		checkInterval: checkInterval,
		cmd:           cmd,
		rec:           rec,
		clock:         clock,
		log:           log,
	}
}

// Observe must be called before Run.
func (self *Driver) Observe(o Observer) { self.observers = append(self.observers, o) }

func (self *Driver) State() State { return State(atomic.LoadUint32(&self.state)) }

func (self *Driver) Visits() int { return int(atomic.LoadUint32(&self.visits)) }

// Current returns the last commanded visit.
func (self *Driver) Current() (Visit, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.current, self.current.Position != 0
}

// Run blocks until the plan completes, ctx is cancelled or an error happens.
// Cancellation is a normal halt: StateHalting with nil error.
func (self *Driver) Run(ctx context.Context) (State, error) {
	if !atomic.CompareAndSwapUint32(&self.state, uint32(StateIdle), uint32(StateRunning)) {
		return self.State(), errors.Errorf("cycle driver already started state=%s", self.State())
	}
	self.log.Debugf("cycle driver running cycles=%d start=%d check=%v", self.plan.Cycles, self.plan.StartingPosition, self.checkInterval)

	for cycle := 1; ; cycle++ {
		if self.plan.Bounded() && cycle > self.plan.Cycles {
			self.setState(StateCompleted)
			self.log.Debugf("cycle driver completed cycles=%d visits=%d", self.plan.Cycles, self.Visits())
			return StateCompleted, nil
		}
		for _, pos := range self.plan.Sequence(cycle) {
			if err := self.visit(ctx, cycle, pos); err != nil {
				self.setState(StateHalting)
				if isInterrupt(err) {
					self.log.Debugf("cycle driver interrupted cycle=%d position=%d", cycle, pos)
					return StateHalting, nil
				}
				return StateHalting, err
			}
		}
	}
}

func (self *Driver) setState(s State) { atomic.StoreUint32(&self.state, uint32(s)) }

func (self *Driver) visit(ctx context.Context, cycle, pos int) error {
	// never command a position after interruption
	if err := ctx.Err(); err != nil {
		return err
	}

	now := self.clock.Now()
	if err := self.cmd.SetPosition(pos); err != nil {
		return errors.Annotatef(err, "cycle=%d set position=%d", cycle, pos)
	}
	deadline, delta := self.plan.Resolve(pos, cycle, now)
	v := Visit{Cycle: cycle, Position: pos, Time: now, Deadline: deadline, Delta: delta}
	self.mu.Lock()
	self.current = v
	self.mu.Unlock()
	atomic.AddUint32(&self.visits, 1)

	if err := self.rec.Record(v); err != nil {
		return errors.Annotatef(err, "cycle=%d record position=%d", cycle, pos)
	}
	for _, o := range self.observers {
		o(v)
	}
	return self.waitUntil(ctx, deadline)
}

// waitUntil polls the clock every check interval. Resume may overshoot deadline by up to one interval.
// Short interval means faster reaction to interruption at cost of more wakeups.
func (self *Driver) waitUntil(ctx context.Context, deadline time.Time) error {
	for self.clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-self.clock.After(self.checkInterval):
		}
	}
	return nil
}

func isInterrupt(err error) bool {
	cause := errors.Cause(err)
	return cause == context.Canceled || cause == context.DeadlineExceeded
}
