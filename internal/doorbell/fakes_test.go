package doorbell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/gpio"
	"github.com/saaga0h/doorbell-agent/pkg/mqtt"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return t0.Add(offset)
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.MQTTURL = "ssl://broker.local:8883"
	cfg.MQTTUser = "doorbell"
	cfg.MQTTPassword = "secret"
	cfg.MQTTTopic = "home/frontdoor/bell"
	cfg.MQTTMessage = "ding-dong"
	cfg.GPIOPort = 17
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// timeline records the order in which the loop touches its collaborators
type timeline struct {
	mu    sync.Mutex
	calls []string
}

func (tl *timeline) add(call string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.calls = append(tl.calls, call)
}

func (tl *timeline) list() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.calls...)
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeSession is an in-memory mqtt.Client
type fakeSession struct {
	tl          *timeline
	connectErr  error
	failOnCall  int // 1-based publish call that fails, 0 never
	connected   bool
	connects    int
	disconnects int
	publishes   []published
}

var _ mqtt.Client = (*fakeSession)(nil)

func (s *fakeSession) Connect(ctx context.Context) error {
	s.connects++
	if s.tl != nil {
		s.tl.add("connect")
	}
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Disconnect() {
	s.disconnects++
	s.connected = false
	if s.tl != nil {
		s.tl.add("disconnect")
	}
}

func (s *fakeSession) Publish(topic string, qos byte, retained bool, payload []byte) error {
	call := len(s.publishes) + 1
	if s.tl != nil {
		s.tl.add("publish")
	}
	if s.failOnCall == call {
		return fmt.Errorf("%w: topic %s: %w", mqtt.ErrPublishFailed, topic, errors.New("timeout waiting for PUBACK"))
	}
	s.publishes = append(s.publishes, published{topic: topic, qos: qos, retained: retained, payload: string(payload)})
	return nil
}

func (s *fakeSession) IsConnected() bool {
	return s.connected
}

// fakeMonitor replays scripted events, then cancels the run context
type fakeMonitor struct {
	tl       *timeline
	events   []gpio.Event
	cancel   context.CancelFunc
	calls    int
	timeouts []time.Duration
	closes   int
}

var _ gpio.Monitor = (*fakeMonitor)(nil)

func (m *fakeMonitor) NextEvent(ctx context.Context, timeout time.Duration) gpio.Event {
	m.calls++
	m.timeouts = append(m.timeouts, timeout)
	if m.tl != nil {
		m.tl.add("next")
	}
	if len(m.events) == 0 {
		if m.cancel != nil {
			m.cancel()
		}
		return gpio.Event{Kind: gpio.EdgeNone}
	}
	ev := m.events[0]
	m.events = m.events[1:]
	return ev
}

func (m *fakeMonitor) Close() error {
	m.closes++
	return nil
}

// fakeRecorder is an in-memory PressRecorder
type fakeRecorder struct {
	err     error
	presses []Press
	closes  int
}

func (r *fakeRecorder) RecordPress(ctx context.Context, press Press) error {
	if r.err != nil {
		return r.err
	}
	r.presses = append(r.presses, press)
	return nil
}

func (r *fakeRecorder) Close() error {
	r.closes++
	return nil
}

func rising(offset time.Duration) gpio.Event {
	return gpio.Event{Kind: gpio.EdgeRising, Time: at(offset)}
}

func falling(offset time.Duration) gpio.Event {
	return gpio.Event{Kind: gpio.EdgeFalling, Time: at(offset)}
}

func pollError(offset time.Duration) gpio.Event {
	return gpio.Event{Kind: gpio.EdgeError, Time: at(offset), Err: errors.New("read /dev/gpiochip0: input/output error")}
}

// harness wires an Agent to fakes with a no-op sleep
type harness struct {
	tl      *timeline
	session *fakeSession
	monitor *fakeMonitor
	history *fakeRecorder
	sleeps  []time.Duration
	agent   *Agent
	ctx     context.Context
}

func newHarness(events ...gpio.Event) *harness {
	tl := &timeline{}
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		tl:      tl,
		session: &fakeSession{tl: tl, connected: true},
		monitor: &fakeMonitor{tl: tl, events: events, cancel: cancel},
		history: &fakeRecorder{},
		ctx:     ctx,
	}

	h.agent = NewAgent(h.session, h.monitor, h.history, testConfig(), testLogger())
	h.agent.sleep = func(ctx context.Context, d time.Duration) {
		h.sleeps = append(h.sleeps, d)
		tl.add(fmt.Sprintf("sleep %s", d))
	}
	return h
}

func (h *harness) run() error {
	return h.agent.Run(h.ctx)
}
