package tele

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	tele_config "github.com/aps-lab/actuator/tele/config"
	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/spq"
)

const (
	retryMin = 1 * time.Second
	retryMax = 2 * time.Minute

	DefaultClientId       = "actuator"
	DefaultNetworkTimeout = 30 * time.Second
)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Transition/Error block at most for disk write
// - Close() stops background delivery, undelivered events stay in queue for next run
// - events delivered at least once
// - state messages may be lost
type tele struct { //nolint:maligned
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	retry     helpers.Backoff

	sent     uint32
	retried  uint32
	lastSent atomic_clock.Clock

	stateMu      sync.Mutex
	currentState tele_api.State
}

func New() tele_api.Teler {
	return &tele{}
}
func NewWithTransporter(trans Transporter) tele_api.Teler {
	return &tele{transport: trans}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log = log.Clone(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}
	if self.config.ClientId == "" {
		self.config.ClientId = DefaultClientId
	}

	if self.config.PersistPath == "" {
		panic("code error must set self.config.PersistPath")
	}
	// test code sets .transport
	if self.transport == nil {
		switch self.config.TransportName() {
		case tele_config.TransportMqtt:
			self.transport = &transportMqtt{}
		case tele_config.TransportInflux:
			self.transport = &transportInflux{}
		default:
			return errors.NotValidf("tele transport=%s", self.config.Transport)
		}
	}
	willPayload := []byte{byte(tele_api.StateDisconnected)}
	if err := self.transport.Init(ctx, self.log, self.config, willPayload); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	var err error
	self.q, err = spq.Open(self.config.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}
	self.retry = helpers.Backoff{Min: retryMin, Max: retryMax, K: 2}
	self.stopCh = make(chan struct{})
	self.doneCh = make(chan struct{})

	go self.qworker()
	self.State(tele_api.StateBoot)
	return nil
}

func (self *tele) Close() {
	if !self.config.Enabled || self.q == nil {
		return
	}
	self.closeOnce.Do(func() {
		close(self.stopCh)
		if err := self.q.Close(); err != nil {
			self.log.Errorf("tele queue close err=%v", err)
		}
		<-self.doneCh
		self.transport.Close()
	})
}

func (self *tele) Stat() tele_api.Stat {
	s := tele_api.Stat{
		Sent:    atomic.LoadUint32(&self.sent),
		Retried: atomic.LoadUint32(&self.retried),
	}
	s.LastSent = self.lastSent.UnixNano()
	return s
}

func (self *tele) qworker() {
	defer close(self.doneCh)
	for {
		if delay := self.retry.DelayBefore(); delay > 0 {
			select {
			case <-self.stopCh:
				return
			case <-time.After(delay):
			}
		}

		box, err := self.q.Peek()
		switch err {
		case nil:
			b := box.Bytes()
			del := self.qhandle(b)
			self.retry.Update(del)
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
			} else {
				atomic.AddUint32(&self.retried, 1)
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
				}
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh: // success path
			default:
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			self.retry.Failure()
		}
	}
}

// qhandle returns true when item must be removed from queue.
func (self *tele) qhandle(b []byte) bool {
	if len(b) == 0 {
		self.log.Errorf("tele spq peek=empty")
		return true
	}
	var e tele_api.Event
	if err := e.UnmarshalBinary(b); err != nil {
		self.log.Errorf("tele event decode b=%x err=%v", b, err)
		return true // retry will not help
	}
	if !self.transport.SendEvent(&e, b) {
		return false
	}
	atomic.AddUint32(&self.sent, 1)
	self.lastSent.SetNow()
	return true
}

func (self *tele) qpushEvent(e *tele_api.Event) error {
	if e.ClientId == "" {
		e.ClientId = self.config.ClientId
	}
	if e.Time == 0 {
		e.Time = time.Now().UnixNano()
	}
	stat := self.Stat()
	e.Stat = &stat
	b, err := e.MarshalBinary()
	if err != nil {
		return errors.Annotate(err, "tele event encode")
	}
	return self.q.Push(b)
}
