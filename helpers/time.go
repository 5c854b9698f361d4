package helpers

import (
	"fmt"
	"math"
	"time"
)

// SecondsDuration converts fractional config seconds, e.g. CHECK_INTERVAL=0.01
func SecondsDuration(x float64) time.Duration {
	return time.Duration(math.Round(x * float64(time.Second)))
}

func MinutesDuration(x float64) time.Duration {
	return time.Duration(math.Round(x * float64(time.Minute)))
}

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

// FormatClock renders d like a timedelta: [D day[s], ]H:MM:SS, microseconds only when present.
func FormatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	days := d / (24 * time.Hour)
	h := (d % (24 * time.Hour)) / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	us := (d % time.Second) / time.Microsecond
	switch days {
	case 0:
	case 1:
		sign += "1 day, "
	default:
		sign += fmt.Sprintf("%d days, ", days)
	}
	if us != 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%06d", sign, h, m, s, us)
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}
