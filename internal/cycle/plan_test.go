package cycle

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		start  int
		cycle  int
		expect []int
	}{
		{"first/start=1", 1, 1, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"first/start=4", 4, 1, []int{4, 5, 6, 7, 8, 9, 10}},
		{"first/start=10", 10, 1, []int{10}},
		{"first/start=11", 11, 1, []int{}},
		{"second/start=4", 4, 2, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"later/start=7", 7, 99, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			p := &Plan{StartingPosition: c.start}
			assert.Equal(t, c.expect, p.Sequence(c.cycle))
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	o := NewOverrides()
	o.Set(1, 5, 2)
	o.Set(AllCycles, 5, 3)
	o.Set(AllCycles, 6, 4)
	o.AddTable(7) // present but empty: default for every position in cycle 7
	p := &Plan{DefaultMinutes: 1, StartingPosition: 1, Overrides: o}
	require.NoError(t, p.Validate())

	cases := []struct {
		pos, cycle int
		expect     float64
	}{
		{5, 1, 2},  // exact cycle wins over CYCLE_ALL
		{6, 1, 1},  // exact cycle table selected, position missing: default
		{5, 2, 3},  // CYCLE_ALL wins over default
		{6, 2, 4},  // CYCLE_ALL
		{7, 2, 1},  // default
		{5, 7, 1},  // empty exact table still shadows CYCLE_ALL
		{10, 3, 1}, // default
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, p.Minutes(c.pos, c.cycle), "pos=%d cycle=%d", c.pos, c.cycle)
	}
}

func TestResolveCycleSpecific(t *testing.T) {
	t.Parallel()

	o := NewOverrides()
	o.Set(1, 5, 2)
	p := &Plan{DefaultMinutes: 1, StartingPosition: 1, Overrides: o}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	deadline, delta := p.Resolve(5, 1, now)
	assert.Equal(t, 2*time.Minute, delta)
	assert.Equal(t, now.Add(2*time.Minute), deadline)

	deadline, delta = p.Resolve(5, 2, now)
	assert.Equal(t, time.Minute, delta)
	assert.Equal(t, now.Add(time.Minute), deadline)
}

func TestResolveProperties(t *testing.T) {
	t.Parallel()

	o := NewOverrides()
	o.Set(AllCycles, 3, 0.5)
	o.Set(2, 9, 0)
	p := &Plan{DefaultMinutes: 0.25, StartingPosition: 1, Overrides: o}
	now := time.Now()
	for cycle := 1; cycle <= 4; cycle++ {
		for pos := MinPosition; pos <= MaxPosition; pos++ {
			deadline, delta := p.Resolve(pos, cycle, now)
			assert.False(t, deadline.Before(now), "pos=%d cycle=%d", pos, cycle)
			assert.Equal(t, deadline.Sub(now), delta)
			assert.True(t, delta >= 0)
		}
	}

	// negative minutes never produce negative delta even if validation was skipped
	bad := &Plan{DefaultMinutes: -3, StartingPosition: 1}
	_, delta := bad.Resolve(1, 1, now)
	assert.Equal(t, time.Duration(0), delta)
}

func TestPlanValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&Plan{StartingPosition: 1}).Validate())
	assert.True(t, errors.IsNotValid((&Plan{StartingPosition: 0}).Validate()))
	assert.True(t, errors.IsNotValid((&Plan{StartingPosition: 11}).Validate()))
	assert.True(t, errors.IsNotValid((&Plan{StartingPosition: 1, DefaultMinutes: -1}).Validate()))
	assert.True(t, errors.IsNotValid((&Plan{StartingPosition: 1, Cycles: -1}).Validate()))

	o := NewOverrides()
	o.Set(2, 12, 1)
	o.Set(AllCycles, 1, -5)
	err := (&Plan{StartingPosition: 1, Overrides: o}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_2.COLLECTION_TIME_POS_12")
	assert.Contains(t, err.Error(), "CYCLE_ALL.COLLECTION_TIME_POS_1=-5")
}

func TestKeys(t *testing.T) {
	t.Parallel()

	c, err := ParseCycleKey("CYCLE_ALL")
	require.NoError(t, err)
	assert.Equal(t, AllCycles, c)
	c, err = ParseCycleKey("CYCLE_12")
	require.NoError(t, err)
	assert.Equal(t, 12, c)
	for _, bad := range []string{"CYCLE_0", "CYCLE_", "CYCLE_x", "cycle_1", "POS_1"} {
		_, err = ParseCycleKey(bad)
		assert.True(t, errors.IsNotValid(err), bad)
	}

	p, err := ParsePositionKey("COLLECTION_TIME_POS_10")
	require.NoError(t, err)
	assert.Equal(t, 10, p)
	for _, bad := range []string{"COLLECTION_TIME_POS_0", "COLLECTION_TIME_POS_11", "COLLECTION_TIME_POS_", "POS_3"} {
		_, err = ParsePositionKey(bad)
		assert.True(t, errors.IsNotValid(err), bad)
	}

	assert.Equal(t, "CYCLE_3", CycleKey(3))
	assert.Equal(t, "CYCLE_ALL", CycleKey(AllCycles))
	assert.Equal(t, "COLLECTION_TIME_POS_4", PositionKey(4))
}

func TestCycleDuration(t *testing.T) {
	t.Parallel()

	o := NewOverrides()
	o.Set(1, 10, 5)
	p := &Plan{DefaultMinutes: 1, StartingPosition: 8, Overrides: o}
	assert.Equal(t, 7*time.Minute, p.CycleDuration(1))  // 8, 9 default + 10 override
	assert.Equal(t, 10*time.Minute, p.CycleDuration(2)) // all default
}
