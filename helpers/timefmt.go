package helpers

import (
	"strings"
	"time"
	"unicode"

	"github.com/nleeper/goment"
)

// TimeFormat renders time with either a Go reference layout ("2006-01-02 15:04:05")
// or a moment/arrow style format ("YYYY-MM-DD HH:mm:ss", "Do MMMM", "[at] HH:mm").
// Any digit in format means it is a Go layout.
type TimeFormat struct {
	format   string
	goLayout bool
}

func NewTimeFormat(format string) TimeFormat {
	return TimeFormat{
		format:   format,
		goLayout: strings.IndexFunc(format, unicode.IsDigit) >= 0,
	}
}

func (self TimeFormat) String() string { return self.format }
func (self TimeFormat) IsZero() bool   { return self.format == "" }

func (self TimeFormat) Format(t time.Time) string {
	if self.goLayout || self.format == "" {
		return t.Format(self.format)
	}
	g, err := goment.New(t)
	if err != nil {
		// only for unsupported input types, time.Time is always accepted
		return t.Format(time.RFC3339)
	}
	return g.Format(self.format)
}
