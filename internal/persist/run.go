package persist

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
)

const RunTag = "run"

// RunState is where the device was left. Informational: a new run always starts at cycle 1.
type RunState struct {
	Cycle    int       `json:"cycle"`
	Position int       `json:"position"`
	Time     time.Time `json:"time"`
	Deadline time.Time `json:"deadline"`
}

func (self RunState) String() string {
	if self.Position == 0 {
		return "none"
	}
	return fmt.Sprintf("cycle=%d position=%d at=%s deadline=%s",
		self.Cycle, self.Position, self.Time.Format(time.RFC3339), self.Deadline.Format(time.RFC3339))
}

// RunStore keeps last commanded position.
type RunStore struct {
	Persist Persist

	mu    sync.Mutex
	state RunState
}

func (self *RunStore) Init(root string, enabled bool, log *log2.Log) error {
	if err := self.Persist.Init(RunTag, self, root, enabled, log); err != nil {
		return err
	}
	return self.Persist.Load()
}

func (self *RunStore) Last() RunState {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

func (self *RunStore) Record(v cycle.Visit) error {
	self.mu.Lock()
	self.state = RunState{Cycle: v.Cycle, Position: v.Position, Time: v.Time, Deadline: v.Deadline}
	self.mu.Unlock()
	return self.Persist.Store()
}

func (self *RunStore) MarshalBinary() ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return json.Marshal(self.state)
}

func (self *RunStore) UnmarshalBinary(b []byte) error {
	var s RunState
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	self.mu.Lock()
	self.state = s
	self.mu.Unlock()
	return nil
}
