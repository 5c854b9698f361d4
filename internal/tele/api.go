package tele

import (
	"github.com/aps-lab/actuator/internal/cycle"
	tele_api "github.com/aps-lab/actuator/tele"
	"github.com/juju/errors"
)

const logMsgDisabled = "tele disabled"

func (self *tele) enabled() bool {
	if !self.config.Enabled {
		self.log.Debugf(logMsgDisabled)
		return false
	}
	return true
}

func (self *tele) Transition(v cycle.Visit) {
	if !self.enabled() {
		return
	}
	e := &tele_api.Event{
		Kind:     tele_api.EventTransition,
		Time:     v.Time.UnixNano(),
		Cycle:    v.Cycle,
		Position: v.Position,
		Deadline: v.Deadline.UnixNano(),
		DwellSec: v.Delta.Seconds(),
	}
	if err := self.qpushEvent(e); err != nil {
		self.log.Errorf("CRITICAL qpushEvent transition=%#v err=%v", e, err)
	}
}

func (self *tele) Error(err error) {
	if !self.enabled() {
		return
	}
	self.log.Debugf("tele.Error: %s", errors.ErrorStack(err))
	e := &tele_api.Event{Kind: tele_api.EventError, Error: err.Error()}
	if err := self.qpushEvent(e); err != nil {
		// not log.Error, it may feed back into tele
		self.log.Infof("CRITICAL qpushEvent error=%q err=%v", e.Error, err)
	}
}

func (self *tele) State(s tele_api.State) {
	if !self.enabled() {
		return
	}
	self.stateMu.Lock()
	defer self.stateMu.Unlock()
	if self.currentState != s {
		self.currentState = s
		self.transport.SendState([]byte{byte(s)})
	}
}
