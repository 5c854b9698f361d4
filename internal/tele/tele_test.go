package tele_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/internal/tele"
	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	tele_config "github.com/aps-lab/actuator/tele/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	fail int32 // number of SendEvent calls to reject

	mu     sync.Mutex
	will   []byte
	states []tele_api.State
	events []tele_api.Event
	closed bool
}

func (self *mockTransport) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	self.will = willPayload
	return nil
}

func (self *mockTransport) SendState(payload []byte) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.states = append(self.states, tele_api.State(payload[0]))
	return true
}

func (self *mockTransport) SendEvent(e *tele_api.Event, payload []byte) bool {
	if atomic.AddInt32(&self.fail, -1) >= 0 {
		return false
	}
	var decoded tele_api.Event
	if err := decoded.UnmarshalBinary(payload); err != nil {
		panic(err)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.events = append(self.events, decoded)
	return true
}

func (self *mockTransport) Close() {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
}

func (self *mockTransport) Events() []tele_api.Event {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]tele_api.Event(nil), self.events...)
}

func (self *mockTransport) States() []tele_api.State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]tele_api.State(nil), self.states...)
}

func testSetup(t testing.TB, mock *mockTransport, enabled bool) tele_api.Teler {
	teler := tele.NewWithTransporter(mock)
	cfg := tele_config.Config{
		Enabled:     enabled,
		ClientId:    "rotator1",
		LogDebug:    true,
		PersistPath: t.TempDir(),
	}
	require.NoError(t, teler.Init(context.Background(), log2.NewTest(t, log2.LDebug), cfg))
	return teler
}

func TestTransition(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{}
	teler := testSetup(t, mock, true)
	defer teler.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	teler.Transition(cycle.Visit{Cycle: 2, Position: 7, Time: now, Deadline: now.Add(90 * time.Second), Delta: 90 * time.Second})
	require.Eventually(t, func() bool { return len(mock.Events()) == 1 }, 5*time.Second, 10*time.Millisecond)

	e := mock.Events()[0]
	assert.Equal(t, tele_api.EventTransition, e.Kind)
	assert.Equal(t, "rotator1", e.ClientId)
	assert.Equal(t, 2, e.Cycle)
	assert.Equal(t, 7, e.Position)
	assert.Equal(t, now.UnixNano(), e.Time)
	assert.Equal(t, now.Add(90*time.Second).UnixNano(), e.Deadline)
	assert.Equal(t, 90.0, e.DwellSec)
	require.NotNil(t, e.Stat)
	assert.Equal(t, []byte{byte(tele_api.StateDisconnected)}, mock.will)
	assert.Equal(t, []tele_api.State{tele_api.StateBoot}, mock.States())
	assert.Eventually(t, func() bool { return teler.Stat().Sent == 1 }, time.Second, 10*time.Millisecond)
	assert.NotZero(t, teler.Stat().LastSent)
}

func TestError(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{}
	teler := testSetup(t, mock, true)
	defer teler.Close()

	teler.Error(errors.Annotate(fmt.Errorf("broken pipe"), "set position=3"))
	require.Eventually(t, func() bool { return len(mock.Events()) == 1 }, 5*time.Second, 10*time.Millisecond)
	e := mock.Events()[0]
	assert.Equal(t, tele_api.EventError, e.Kind)
	assert.Equal(t, "set position=3: broken pipe", e.Error)
	assert.InDelta(t, time.Now().Unix(), e.Time/1e9, 10)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{fail: 1}
	teler := testSetup(t, mock, true)
	defer teler.Close()

	teler.Transition(cycle.Visit{Cycle: 1, Position: 1, Time: time.Now()})
	require.Eventually(t, func() bool { return len(mock.Events()) == 1 }, 10*time.Second, 10*time.Millisecond)
	stat := teler.Stat()
	assert.Equal(t, uint32(1), stat.Retried)
	assert.Equal(t, uint32(1), stat.Sent)
}

func TestState(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{}
	teler := testSetup(t, mock, true)
	defer teler.Close()

	teler.State(tele_api.StateRunning)
	teler.State(tele_api.StateRunning)
	teler.State(tele_api.StateHalting)
	assert.Equal(t, []tele_api.State{tele_api.StateBoot, tele_api.StateRunning, tele_api.StateHalting}, mock.States())
	assert.Equal(t, "halting", tele_api.StateHalting.String())
	assert.Equal(t, tele_api.StateCompleted, tele_api.StateFromCycle(cycle.StateCompleted))
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{}
	teler := testSetup(t, mock, false)
	teler.State(tele_api.StateRunning)
	teler.Transition(cycle.Visit{Cycle: 1, Position: 1, Time: time.Now()})
	teler.Error(fmt.Errorf("ignored"))
	teler.Close()
	assert.Nil(t, mock.will)
	assert.Empty(t, mock.States())
	assert.Empty(t, mock.Events())
	assert.False(t, mock.closed)
}

func TestClose(t *testing.T) {
	t.Parallel()

	mock := &mockTransport{}
	teler := testSetup(t, mock, true)
	teler.Close()
	teler.Close()
	assert.True(t, mock.closed)
}

func TestUnknownTransport(t *testing.T) {
	t.Parallel()

	teler := tele.New()
	cfg := tele_config.Config{Enabled: true, Transport: "pigeon", PersistPath: t.TempDir()}
	err := teler.Init(context.Background(), log2.NewTest(t, log2.LDebug), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err), "err=%v", err)
}

func TestMqttConfigRequired(t *testing.T) {
	t.Parallel()

	teler := tele.New()
	cfg := tele_config.Config{Enabled: true, PersistPath: t.TempDir()}
	err := teler.Init(context.Background(), log2.NewTest(t, log2.LDebug), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt_broker")
}

func TestTopics(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rotator1/c", tele.TopicConnect("rotator1"))
	assert.Equal(t, "rotator1/w/state", tele.TopicState("rotator1"))
	assert.Equal(t, "rotator1/w/transition", tele.TopicTransition("rotator1"))
	assert.Equal(t, "rotator1/w/error", tele.TopicError("rotator1"))
}

func TestEventPoint(t *testing.T) {
	t.Parallel()

	p := tele.EventPoint(&tele_api.Event{Kind: tele_api.EventTransition, ClientId: "r", Time: 1, Cycle: 1, Position: 4})
	assert.Equal(t, tele.MeasurementTransition, p.Name())
	p = tele.EventPoint(&tele_api.Event{Kind: tele_api.EventError, ClientId: "r", Time: 1, Error: "x"})
	assert.Equal(t, tele.MeasurementError, p.Name())
}
