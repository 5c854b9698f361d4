package cycle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	// AllCycles addresses the CYCLE_ALL catch-all table.
	AllCycles = 0

	cycleKeyPrefix    = "CYCLE_"
	cycleKeyAll       = "CYCLE_ALL"
	positionKeyPrefix = "COLLECTION_TIME_POS_"
)

// PositionTable maps position to dwell minutes.
type PositionTable map[int]float64

// Overrides holds per-cycle dwell tables. A table that exists but is empty
// still wins over CYCLE_ALL for its cycle.
type Overrides struct {
	cycles map[int]PositionTable
}

func NewOverrides() *Overrides {
	return &Overrides{cycles: make(map[int]PositionTable)}
}

// AddTable makes sure table for cycle exists. Use AllCycles for the catch-all.
func (self *Overrides) AddTable(cycle int) PositionTable {
	if self.cycles == nil {
		self.cycles = make(map[int]PositionTable)
	}
	t, ok := self.cycles[cycle]
	if !ok {
		t = make(PositionTable)
		self.cycles[cycle] = t
	}
	return t
}

func (self *Overrides) Set(cycle, pos int, minutes float64) {
	self.AddTable(cycle)[pos] = minutes
}

// Table selects exact cycle table, else catch-all, else nil.
func (self *Overrides) Table(cycle int) PositionTable {
	if self == nil {
		return nil
	}
	if t, ok := self.cycles[cycle]; ok {
		return t
	}
	return self.cycles[AllCycles]
}

func (self *Overrides) Empty() bool { return self == nil || len(self.cycles) == 0 }

// Cycles returns configured table keys in order, AllCycles first if present.
func (self *Overrides) Cycles() []int {
	if self == nil {
		return nil
	}
	cs := make([]int, 0, len(self.cycles))
	for c := range self.cycles {
		cs = append(cs, c)
	}
	sort.Ints(cs)
	return cs
}

func (self *Overrides) Validate() error {
	if self == nil {
		return nil
	}
	errs := make([]string, 0)
	for _, c := range self.Cycles() {
		if c < 0 {
			errs = append(errs, fmt.Sprintf("cycle=%d must be >= 1", c))
		}
		t := self.cycles[c]
		for pos, minutes := range t {
			if pos < MinPosition || pos > MaxPosition {
				errs = append(errs, fmt.Sprintf("%s.%s position out of range %d..%d", CycleKey(c), PositionKey(pos), MinPosition, MaxPosition))
			}
			if minutes < 0 {
				errs = append(errs, fmt.Sprintf("%s.%s=%v must be >= 0", CycleKey(c), PositionKey(pos), minutes))
			}
		}
	}
	if len(errs) != 0 {
		sort.Strings(errs)
		return errors.NotValidf("overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

func CycleKey(cycle int) string {
	if cycle == AllCycles {
		return cycleKeyAll
	}
	return cycleKeyPrefix + strconv.Itoa(cycle)
}

func PositionKey(pos int) string { return positionKeyPrefix + strconv.Itoa(pos) }

// ParseCycleKey accepts CYCLE_ALL or CYCLE_<n>, n >= 1.
func ParseCycleKey(key string) (int, error) {
	if key == cycleKeyAll {
		return AllCycles, nil
	}
	if !strings.HasPrefix(key, cycleKeyPrefix) {
		return 0, errors.NotValidf("cycle key=%s expected %s<n> or %s", key, cycleKeyPrefix, cycleKeyAll)
	}
	n, err := strconv.Atoi(key[len(cycleKeyPrefix):])
	if err != nil || n < 1 {
		return 0, errors.NotValidf("cycle key=%s expected %s<n> with n >= 1", key, cycleKeyPrefix)
	}
	return n, nil
}

// ParsePositionKey accepts COLLECTION_TIME_POS_<p>, p in 1..10.
func ParsePositionKey(key string) (int, error) {
	if !strings.HasPrefix(key, positionKeyPrefix) {
		return 0, errors.NotValidf("position key=%s expected %s<p>", key, positionKeyPrefix)
	}
	p, err := strconv.Atoi(key[len(positionKeyPrefix):])
	if err != nil || p < MinPosition || p > MaxPosition {
		return 0, errors.NotValidf("position key=%s expected %s<p> with p in %d..%d", key, positionKeyPrefix, MinPosition, MaxPosition)
	}
	return p, nil
}

func IsPositionKey(key string) bool { return strings.HasPrefix(key, positionKeyPrefix) }
