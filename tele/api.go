// Package tele is the telemetry client API. Implementation lives in internal/tele.
package tele

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	tele_config "github.com/aps-lab/actuator/tele/config"
)

// State is sent as a single byte to the state topic.
type State byte

const (
	StateDisconnected State = iota // will message
	StateBoot
	StateRunning
	StateHalting
	StateCompleted
	StateProblem
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateBoot:         "boot",
	StateRunning:      "running",
	StateHalting:      "halting",
	StateCompleted:    "completed",
	StateProblem:      "problem",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", byte(s))
}

func StateFromCycle(s cycle.State) State {
	switch s {
	case cycle.StateRunning:
		return StateRunning
	case cycle.StateHalting:
		return StateHalting
	case cycle.StateCompleted:
		return StateCompleted
	}
	return StateBoot
}

const (
	EventTransition = "transition"
	EventError      = "error"
)

// Event is the durable telemetry message, JSON encoded both in the queue and on the wire.
type Event struct {
	Kind     string  `json:"kind"`
	ClientId string  `json:"client_id,omitempty"`
	Time     int64   `json:"time"` // unix nanoseconds
	Cycle    int     `json:"cycle,omitempty"`
	Position int     `json:"position,omitempty"`
	Deadline int64   `json:"deadline,omitempty"`
	DwellSec float64 `json:"dwell_sec,omitempty"`
	Error    string  `json:"error,omitempty"`
	Stat     *Stat   `json:"stat,omitempty"`
}

func (self *Event) MarshalBinary() ([]byte, error) { return json.Marshal(self) }
func (self *Event) UnmarshalBinary(b []byte) error { return json.Unmarshal(b, self) }

// Stat is a snapshot of delivery counters, attached to every event.
type Stat struct {
	Sent     uint32 `json:"sent"`
	Retried  uint32 `json:"retried"`
	LastSent int64  `json:"last_sent,omitempty"` // unix nanoseconds
}

// Teler is the telemetry client.
// Public calls block at most for disk write. Network may be slow or absent,
// messages are delivered in background at least once.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Error(error)
	Transition(cycle.Visit)
	Stat() Stat
}

type stub struct{}

func (stub) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (stub) Close()                                                   {}
func (stub) State(State)                                              {}
func (stub) Error(error)                                              {}
func (stub) Transition(cycle.Visit)                                   {}
func (stub) Stat() Stat                                               { return Stat{} }

func NewStub() Teler { return stub{} }
