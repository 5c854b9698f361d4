// Package actuator speaks to the multi-position actuator over a serial line.
// The device understands one command: GO<position> terminated by CR LF.
// Responses are not read.
package actuator

import (
	"expvar"
	"fmt"
	"io"

	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/log2"
	"github.com/juju/errors"
	"github.com/tarm/serial"
)

const (
	Baud        = 9600
	MinPosition = 1
	MaxPosition = 10
)

// Exported at /debug/vars by the status server.
var (
	StatTxBytes  = expvar.NewInt("actuator_tx_bytes")
	StatCommands = expvar.NewInt("actuator_commands")
)

type Actuator interface {
	SetPosition(pos int) error
	Opened() bool
	Close() error
}

// Command returns wire bytes for a position change.
func Command(pos int) []byte { return []byte(fmt.Sprintf("GO%d\r\n", pos)) }

func ValidPosition(pos int) error {
	if pos < MinPosition || pos > MaxPosition {
		return errors.NotValidf("position=%d out of range %d..%d", pos, MinPosition, MaxPosition)
	}
	return nil
}

// Opener abstracts serial.OpenPort for tests.
type Opener func(c *serial.Config) (io.WriteCloser, error)

func OpenSerial(c *serial.Config) (io.WriteCloser, error) {
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial is a lazily opened port: first SetPosition opens it, Close releases it once.
type Serial struct {
	log    *log2.Log
	config serial.Config
	open   Opener
	port   io.WriteCloser
	closed bool
}

var _ Actuator = &Serial{}

func NewSerial(log *log2.Log, device string, open Opener) *Serial {
	if open == nil {
		open = OpenSerial
	}
	return &Serial{
		log: log,
		config: serial.Config{
			Name:     device,
			Baud:     Baud,
			Size:     8,
			Parity:   serial.ParityNone,
			StopBits: serial.Stop1,
		},
		open: open,
	}
}

func (self *Serial) Opened() bool { return self.port != nil }

func (self *Serial) conn() (io.WriteCloser, error) {
	if self.closed {
		return nil, errors.Errorf("actuator device=%s already closed", self.config.Name)
	}
	if self.port != nil {
		return self.port, nil
	}
	c := self.config
	port, err := self.open(&c)
	if err != nil {
		return nil, errors.Annotatef(err, "actuator open device=%s baud=%d", c.Name, c.Baud)
	}
	self.log.Debugf("actuator opened device=%s baud=%d", c.Name, c.Baud)
	self.port = port
	return port, nil
}

func (self *Serial) SetPosition(pos int) error {
	if err := ValidPosition(pos); err != nil {
		return err
	}
	port, err := self.conn()
	if err != nil {
		return err
	}
	if err = helpers.WriteAll(helpers.NewStatWriter(port, StatTxBytes), Command(pos)); err != nil {
		return errors.Annotatef(err, "actuator write device=%s position=%d", self.config.Name, pos)
	}
	StatCommands.Add(1)
	return nil
}

// Close is safe to call many times and on a never opened port.
func (self *Serial) Close() error {
	self.closed = true
	if self.port == nil {
		return nil
	}
	port := self.port
	self.port = nil
	self.log.Debugf("actuator closing device=%s", self.config.Name)
	return errors.Annotatef(port.Close(), "actuator close device=%s", self.config.Name)
}
