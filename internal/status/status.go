// Package status serves read-only run state over HTTP and websocket.
package status

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

const shutdownTimeout = 5 * time.Second

// Source is implemented by *cycle.Driver.
type Source interface {
	State() cycle.State
	Current() (cycle.Visit, bool)
	Visits() int
}

type Status struct {
	State        string     `json:"state"`
	Cycle        int        `json:"cycle,omitempty"`
	Position     int        `json:"position,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	RemainingSec float64    `json:"remaining_sec"`
	Visits       int        `json:"visits"`
	Started      time.Time  `json:"started"`
}

type PlanView struct {
	DefaultMinutes   float64                       `json:"default_minutes"`
	StartingPosition int                           `json:"starting_position"`
	Cycles           int                           `json:"cycles"`
	Overrides        map[string]map[string]float64 `json:"overrides,omitempty"`
}

type Server struct {
	log     *log2.Log
	listen  string
	plan    *cycle.Plan
	clock   cycle.Clock
	started time.Time

	mu   sync.Mutex
	src  Source
	subs map[chan Status]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServer(log *log2.Log, listen string, plan *cycle.Plan, clock cycle.Clock) *Server {
	if clock == nil {
		clock = cycle.SystemClock{}
	}
	return &Server{
		log:     log,
		listen:  listen,
		plan:    plan,
		clock:   clock,
		started: clock.Now(),
		subs:    make(map[chan Status]struct{}),
	}
}

// Attach binds driver state and subscribes to its visits. Call before driver Run.
func (self *Server) Attach(d *cycle.Driver) {
	self.setSource(d)
	d.Observe(func(cycle.Visit) { self.Notify() })
}

func (self *Server) setSource(src Source) {
	self.mu.Lock()
	self.src = src
	self.mu.Unlock()
}

func (self *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", self.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/config", self.configHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", self.socketHandler)
	r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done.
func (self *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         self.listen,
		Handler:      self.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	errch := make(chan error, 1)
	go func() { errch <- srv.ListenAndServe() }()
	self.log.Infof("status listen=%s", self.listen)

	select {
	case err := <-errch:
		return errors.Annotatef(err, "status listen=%s", self.listen)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	self.closeSubs()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Annotate(err, "status shutdown")
	}
	return nil
}

func (self *Server) Snapshot() Status {
	self.mu.Lock()
	src := self.src
	self.mu.Unlock()

	s := Status{State: cycle.StateIdle.String(), Started: self.started}
	if src == nil {
		return s
	}
	s.State = src.State().String()
	s.Visits = src.Visits()
	if v, ok := src.Current(); ok {
		s.Cycle = v.Cycle
		s.Position = v.Position
		deadline := v.Deadline
		s.Deadline = &deadline
		if remaining := deadline.Sub(self.clock.Now()); remaining > 0 {
			s.RemainingSec = remaining.Seconds()
		}
	}
	return s
}

func (self *Server) Plan() PlanView {
	view := PlanView{
		DefaultMinutes:   self.plan.DefaultMinutes,
		StartingPosition: self.plan.StartingPosition,
		Cycles:           self.plan.Cycles,
	}
	if !self.plan.Overrides.Empty() {
		view.Overrides = make(map[string]map[string]float64)
		for _, c := range self.plan.Overrides.Cycles() {
			table := make(map[string]float64)
			for pos, minutes := range self.plan.Overrides.Table(c) {
				table[cycle.PositionKey(pos)] = minutes
			}
			view.Overrides[cycle.CycleKey(c)] = table
		}
	}
	return view
}

// Notify pushes fresh snapshot to websocket subscribers. Slow subscribers miss updates.
func (self *Server) Notify() {
	s := self.Snapshot()
	self.mu.Lock()
	defer self.mu.Unlock()
	for ch := range self.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (self *Server) subscribe() chan Status {
	ch := make(chan Status, 1)
	self.mu.Lock()
	self.subs[ch] = struct{}{}
	self.mu.Unlock()
	return ch
}

func (self *Server) unsubscribe(ch chan Status) {
	self.mu.Lock()
	if _, ok := self.subs[ch]; ok {
		delete(self.subs, ch)
		close(ch)
	}
	self.mu.Unlock()
}

func (self *Server) closeSubs() {
	self.mu.Lock()
	for ch := range self.subs {
		delete(self.subs, ch)
		close(ch)
	}
	self.mu.Unlock()
}

func (self *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	self.writeJSON(w, self.Snapshot())
}

func (self *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	self.writeJSON(w, self.Plan())
}

func (self *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		self.log.Errorf("status marshal err=%v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// socketHandler streams status after every visit. Incoming messages are ignored.
func (self *Server) socketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		self.log.Debugf("status ws upgrade err=%v", err)
		return
	}
	defer conn.Close()

	ch := self.subscribe()
	defer self.unsubscribe(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(self.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case s, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(s); err != nil {
				self.log.Debugf("status ws write err=%v", err)
				return
			}
		}
	}
}
