// Package cycle is the position scheduler: which positions a cycle visits,
// how long each position is held, and the driver that walks cycles until
// completion or interruption.
package cycle

import (
	"time"

	"github.com/aps-lab/actuator/helpers"
	"github.com/juju/errors"
)

const (
	MinPosition = 1
	MaxPosition = 10
)

// Plan is the immutable schedule derived from configuration.
type Plan struct {
	DefaultMinutes   float64
	StartingPosition int
	// Cycles=0 runs forever.
	Cycles    int
	Overrides *Overrides
}

func (self *Plan) Validate() error {
	if self.DefaultMinutes < 0 {
		return errors.NotValidf("default collection time=%v must be >= 0", self.DefaultMinutes)
	}
	if self.StartingPosition < MinPosition || self.StartingPosition > MaxPosition {
		return errors.NotValidf("starting position=%d out of range %d..%d", self.StartingPosition, MinPosition, MaxPosition)
	}
	if self.Cycles < 0 {
		return errors.NotValidf("number of cycles=%d must be >= 0", self.Cycles)
	}
	return self.Overrides.Validate()
}

func (self *Plan) Bounded() bool { return self.Cycles > 0 }

// Minutes resolves dwell: exact cycle table, else CYCLE_ALL, then position key, else default.
func (self *Plan) Minutes(pos, cycle int) float64 {
	minutes := self.DefaultMinutes
	if m, ok := self.Overrides.Table(cycle)[pos]; ok {
		minutes = m
	}
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}

// Resolve returns the absolute end of dwell and its length, both from now.
func (self *Plan) Resolve(pos, cycle int, now time.Time) (time.Time, time.Duration) {
	deadline := now.Add(helpers.MinutesDuration(self.Minutes(pos, cycle)))
	return deadline, deadline.Sub(now)
}

// Sequence lists positions for cycle in visiting order.
// Cycle 1 starts at StartingPosition, others at MinPosition; every cycle ends at MaxPosition.
func (self *Plan) Sequence(cycle int) []int {
	start := MinPosition
	if cycle == 1 {
		start = self.StartingPosition
	}
	if start < MinPosition {
		start = MinPosition
	}
	if start > MaxPosition {
		return []int{}
	}
	seq := make([]int, 0, MaxPosition-start+1)
	for p := start; p <= MaxPosition; p++ {
		seq = append(seq, p)
	}
	return seq
}

// Total dwell of one cycle, useful for plan preview.
func (self *Plan) CycleDuration(cycle int) time.Duration {
	var total time.Duration
	for _, pos := range self.Sequence(cycle) {
		total += helpers.MinutesDuration(self.Minutes(pos, cycle))
	}
	return total
}
