// Package journal is the append-only record of position changes,
// one line per event in logs/actuator_<date>.log, mirrored to the console.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	"github.com/juju/errors"
)

const (
	FilePrefix = "actuator_"
	FileSuffix = ".log"
)

type Journal struct {
	mu       sync.Mutex
	log      *log2.Log
	path     string
	f        *os.File
	console  io.Writer
	tsFormat helpers.TimeFormat
}

var _ cycle.Recorder = &Journal{}

// FileName builds journal file name. Path separators produced by dateFormat are replaced.
func FileName(dateFormat helpers.TimeFormat, now time.Time) string {
	stamp := dateFormat.Format(now)
	stamp = strings.NewReplacer("/", "-", string(os.PathSeparator), "-").Replace(stamp)
	return FilePrefix + stamp + FileSuffix
}

// Open creates dir if needed and opens the journal file for append.
// dateFormat names the file, tsFormat formats line timestamps.
func Open(log *log2.Log, dir string, dateFormat, tsFormat helpers.TimeFormat, now time.Time, console io.Writer) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Annotatef(err, "journal mkdir=%s", dir)
	}
	path := filepath.Join(dir, FileName(dateFormat, now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Annotatef(err, "journal open path=%s", path)
	}
	if console == nil {
		console = io.Discard
	}
	log.Debugf("journal path=%s", path)
	return &Journal{log: log, path: path, f: f, console: console, tsFormat: tsFormat}, nil
}

func (self *Journal) Path() string { return self.path }

func (self *Journal) Timestamp(t time.Time) string { return self.tsFormat.Format(t) }

// Entry appends line to the file and prints it to the console.
func (self *Journal) Entry(line string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.f == nil {
		return errors.Errorf("journal path=%s closed", self.path)
	}
	_, _ = fmt.Fprintln(self.console, line)
	if err := helpers.WriteAll(self.f, []byte(line+"\n")); err != nil {
		return errors.Annotatef(err, "journal write path=%s", self.path)
	}
	return nil
}

// Console prints line without journaling it.
func (self *Journal) Console(line string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	_, _ = fmt.Fprintln(self.console, line)
}

// Banner writes "<word>: <timestamp>", e.g. Starting and Exiting.
func (self *Journal) Banner(word string, t time.Time) error {
	return self.Entry(word + ": " + self.Timestamp(t))
}

func (self *Journal) Record(v cycle.Visit) error {
	return self.Entry(FormatVisit(v, self.tsFormat))
}

func FormatVisit(v cycle.Visit, tsFormat helpers.TimeFormat) string {
	return fmt.Sprintf("- %s: set position: %d | collection time: %s",
		tsFormat.Format(v.Time), v.Position, helpers.FormatClock(v.Delta))
}

func (self *Journal) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return errors.Annotatef(err, "journal close path=%s", self.path)
}
