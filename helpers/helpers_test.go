package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeFormat(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, time.March, 7, 14, 5, 9, 0, time.UTC)
	feb3 := time.Date(2024, time.February, 3, 4, 5, 6, 0, time.UTC)
	cases := []struct {
		format string
		t      time.Time
		expect string
	}{
		{"YYYY-MM-DD HH:mm:ss", ts, "2024-03-07 14:05:09"},
		{"YYYY-MM-DD_HH-mm-ss", ts, "2024-03-07_14-05-09"},
		{"DD/MM/YY hh:mm A", ts, "07/03/24 02:05 PM"},
		{"[at] HH:mm", ts, "at 14:05"},
		{"2006-01-02 15:04:05", ts, "2024-03-07 14:05:09"},
		{"MMM D", ts, "Mar 7"},
		{"Do MMMM YYYY", feb3, "3rd February 2024"},
		{"Do", ts, "7th"},
		{"DDDD", feb3, "034"},
		{"DDD", feb3, "34"},
		{"YYYY-MM-DD [Jan] HH:mm", feb3, "2024-02-03 Jan 04:05"},
		{"X", feb3, "1706933106"},
		{"", ts, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.format, func(t *testing.T) {
			assert.Equal(t, c.expect, NewTimeFormat(c.format).Format(c.t))
		})
	}
}

func TestFormatClock(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0:00:00", FormatClock(0))
	assert.Equal(t, "0:02:00", FormatClock(2*time.Minute))
	assert.Equal(t, "1:30:05", FormatClock(90*time.Minute+5*time.Second))
	assert.Equal(t, "0:00:00.500000", FormatClock(500*time.Millisecond))
	assert.Equal(t, "23:59:59", FormatClock(24*time.Hour-time.Second))
	assert.Equal(t, "1 day, 0:00:00", FormatClock(24*time.Hour))
	assert.Equal(t, "1 day, 2:00:00", FormatClock(26*time.Hour))
	assert.Equal(t, "3 days, 0:30:00.250000", FormatClock(72*time.Hour+30*time.Minute+250*time.Millisecond))
	assert.Equal(t, "-0:00:01", FormatClock(-time.Second))
}

func TestDurations(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Millisecond, SecondsDuration(0.01))
	assert.Equal(t, 90*time.Second, MinutesDuration(1.5))
	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 3*time.Second, IntSecondDefault(3, 5*time.Second))
}

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{errors.New("missing SERIAL_PORT"), nil, errors.New("missing DATE_FORMAT")})
	assert.EqualError(t, err, "missing SERIAL_PORT\nmissing DATE_FORMAT")
}
