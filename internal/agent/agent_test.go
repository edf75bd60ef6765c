package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/crib-agent/internal/hardware"
	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/infrastructure/logging"
	"github.com/nerrad567/crib-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/crib-agent/internal/metrics"
	"github.com/nerrad567/crib-agent/internal/state"
)

const testThing = "crib-test"

var testTopics = mqtt.Topics{Thing: testThing}

func newTestRuntime(t *testing.T) (*Runtime, *hardware.Sim) {
	t.Helper()
	cfg := config.Default()
	cfg.Device.ThingName = testThing
	cfg.Hardware.Simulate = true

	sim := hardware.NewSim()
	store := state.NewMemoryStore()
	board, err := hardware.NewBoard(sim.Peripherals(), store, hardware.BoardOptions{BlinkInterval: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = board.Close() })

	rt, err := NewRuntime(cfg, testThing, logging.Discard(), metrics.New(), store, board)
	require.NoError(t, err)
	return rt, sim
}

type recordedReport struct {
	name  string
	value any
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []recordedReport
}

func (r *fakeReporter) Report(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, recordedReport{name, value})
}

func (r *fakeReporter) snapshot() []recordedReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedReport(nil), r.reports...)
}

func TestThingName(t *testing.T) {
	name, err := ThingName(config.DeviceConfig{ThingName: "crib-kitchen"})
	require.NoError(t, err)
	assert.Equal(t, "crib-kitchen", name)

	cpuinfo := filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(cpuinfo, []byte(
		"processor\t: 0\nHardware\t: BCM2835\nRevision\t: a02082\nSerial\t\t: 00000000a1b2c3d4\nModel\t\t: Raspberry Pi 3 Model B Rev 1.2\n",
	), 0o600))

	name, err = ThingName(config.DeviceConfig{SerialFile: cpuinfo})
	require.NoError(t, err)
	assert.Equal(t, "62a9e4f7b85a192a40fb6cd2f5c283ae", name)
}

func TestThingName_NoSerial(t *testing.T) {
	cpuinfo := filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(cpuinfo, []byte("processor\t: 0\n"), 0o600))

	_, err := ThingName(config.DeviceConfig{SerialFile: cpuinfo})
	assert.ErrorIs(t, err, ErrNoSerial)

	_, err = ThingName(config.DeviceConfig{SerialFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	rt, sim := newTestRuntime(t)
	require.NoError(t, rt.Store.Set(context.Background(), hardware.AttrLights, float64(20)))

	Bootstrap(context.Background(), rt.Dispatcher, logging.Discard())

	assert.Equal(t, []int{0}, sim.IRLED.History())
	assert.Equal(t, []int{0}, sim.RedLED.History())
	assert.Equal(t, []int{255, 0, 255, 0, 255, 0, 51}, sim.Light.History(), "three blinks then restore")

	temp, err := rt.Store.Get(context.Background(), hardware.AttrTemperature)
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp.Value)
}

func TestBootstrap_FailuresAreNotFatal(t *testing.T) {
	rt, sim := newTestRuntime(t)
	require.NoError(t, sim.IRLED.Close())
	sim.Thermometer.Fail(errors.New("i2c nack"))

	Bootstrap(context.Background(), rt.Dispatcher, logging.Discard())

	assert.Equal(t, []int{0}, sim.RedLED.History(), "later commands still run")
}

func TestButtonTask_Toggles(t *testing.T) {
	rt, sim := newTestRuntime(t)
	reports := &fakeReporter{}
	task := &buttonTask{rt: rt, reports: reports, log: logging.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	sim.Buttons.Press(buttonLights, 300*time.Millisecond)
	require.Eventually(t, func() bool { return len(reports.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, recordedReport{"lights", 50}, reports.snapshot()[0])

	sim.Buttons.Press(buttonLights, 10*time.Millisecond) // short press ignored
	sim.Buttons.Press(buttonLights, time.Second)
	require.Eventually(t, func() bool { return len(reports.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, recordedReport{"lights", 0}, reports.snapshot()[1])

	sim.Buttons.Press(buttonLEDs, time.Second)
	require.Eventually(t, func() bool { return len(reports.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []recordedReport{{"red_led", 1}, {"ir_led", 1}}, reports.snapshot()[2:])

	red, _ := sim.RedLED.Value()
	ir, _ := sim.IRLED.Value()
	assert.Equal(t, 1, red)
	assert.Equal(t, 1, ir)

	cancel()
	assert.NoError(t, <-done)
}

func TestSensorTask_Reports(t *testing.T) {
	rt, sim := newTestRuntime(t)
	sim.CPU.Set(52.1)
	reports := &fakeReporter{}
	task := &sensorTask{rt: rt, reports: reports, log: logging.Discard(), interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reports.snapshot()) >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	got := reports.snapshot()
	assert.Equal(t, recordedReport{"temperature", 21.5}, got[0])
	assert.Equal(t, recordedReport{"cpu", 52.1}, got[1])
}

func TestSensorTask_Disabled(t *testing.T) {
	rt, _ := newTestRuntime(t)
	reports := &fakeReporter{}
	task := &sensorTask{rt: rt, reports: reports, log: logging.Discard()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, task.Run(ctx))
	assert.Empty(t, reports.snapshot())
}

func TestReporterSlot(t *testing.T) {
	slot := &reporterSlot{logger: logging.Discard()}
	slot.Report("lights", 50) // no session: dropped

	first := &fakeReporter{}
	slot.set(first)
	slot.Report("lights", 50)
	assert.Len(t, first.snapshot(), 1)

	second := &fakeReporter{}
	slot.set(second)
	slot.clear(first) // stale owner must not clear the new session
	slot.Report("cpu", 40.0)
	assert.Len(t, second.snapshot(), 1)

	slot.clear(second)
	slot.Report("cpu", 41.0)
	assert.Len(t, second.snapshot(), 1)
}

// fakeMQTT is an in-memory stand-in for the broker client.
type fakeMQTT struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  map[string][][]byte
	onConnect  func()
	connectErr error
	fatal      chan error
	closed     bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][][]byte),
		fatal:     make(chan error, 1),
	}
}

func (f *fakeMQTT) Connect(context.Context) error {
	f.mu.Lock()
	cb := f.onConnect
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		go cb()
	}
	return nil
}

func (f *fakeMQTT) PublishAsync(topic string, payload []byte, _ byte) *mqtt.Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return mqtt.ResolvedAck(nil)
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeMQTT) Fatal() <-chan error                  { return f.fatal }
func (f *fakeMQTT) SetOnInterrupt(func(error))           {}
func (f *fakeMQTT) SetOnResume(func(mqtt.ConnectResult)) {}
func (f *fakeMQTT) SetLogger(mqtt.Logger)                {}

func (f *fakeMQTT) SetOnConnect(cb func()) {
	f.mu.Lock()
	f.onConnect = cb
	f.mu.Unlock()
}

// reconnect fires the connect callback the way a broker reconnect does.
func (f *fakeMQTT) reconnect() {
	f.mu.Lock()
	cb := f.onConnect
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeMQTT) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeMQTT) messages(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[topic]...)
}

func (f *fakeMQTT) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestShadowTask_AppliesDeltaAndFailsOnFatal(t *testing.T) {
	rt, sim := newTestRuntime(t)
	client := newFakeMQTT()
	slot := &reporterSlot{logger: logging.Discard()}
	task := &shadowTask{
		rt:       rt,
		reports:  slot,
		log:      logging.Discard(),
		dialMQTT: func() (mqttClient, error) { return client, nil },
	}

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return client.handler(testTopics.ShadowDelta()) != nil && slot.current.Load() != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, client.messages(testTopics.ShadowGet()), "initial sync requested")

	deliver := client.handler(testTopics.ShadowDelta())
	require.NoError(t, deliver(testTopics.ShadowDelta(), []byte(`{"version":2,"state":{"lights":"on","toaster":1}}`)))

	require.Eventually(t, func() bool {
		return len(client.messages(testTopics.ShadowUpdate())) == 2
	}, 2*time.Second, 5*time.Millisecond)

	updates := make(map[string]map[string]any)
	for _, payload := range client.messages(testTopics.ShadowUpdate()) {
		var doc struct {
			State struct {
				Reported map[string]any `json:"reported"`
				Desired  map[string]any `json:"desired"`
			} `json:"state"`
		}
		require.NoError(t, json.Unmarshal(payload, &doc))
		for name, v := range doc.State.Reported {
			updates[name] = map[string]any{"reported": v, "desired": doc.State.Desired[name]}
		}
	}
	assert.Equal(t, map[string]any{"reported": float64(50), "desired": float64(50)}, updates["lights"])
	assert.Equal(t, map[string]any{"reported": nil, "desired": nil}, updates["toaster"])
	assert.Equal(t, 127, sim.Light.Duty())

	attr, err := rt.Store.Get(context.Background(), "lights")
	require.NoError(t, err)
	assert.Equal(t, 50, attr.Value)
	_, err = rt.Store.Get(context.Background(), "toaster")
	assert.ErrorIs(t, err, state.ErrNotFound)

	client.fatal <- mqtt.ErrResubscribeRejected
	select {
	case err := <-done:
		assert.ErrorIs(t, err, mqtt.ErrResubscribeRejected)
	case <-time.After(2 * time.Second):
		t.Fatal("shadow task did not exit on fatal error")
	}
	assert.True(t, client.isClosed())
	assert.Nil(t, slot.current.Load(), "report slot cleared")
}

func TestShadowTask_SyncsOnceAtStartAndOnReconnect(t *testing.T) {
	rt, _ := newTestRuntime(t)
	client := newFakeMQTT()
	slot := &reporterSlot{logger: logging.Discard()}
	task := &shadowTask{
		rt:       rt,
		reports:  slot,
		log:      logging.Discard(),
		dialMQTT: func() (mqttClient, error) { return client, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	require.Eventually(t, func() bool { return slot.active() }, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return len(client.messages(testTopics.ShadowGet())) != 1
	}, 100*time.Millisecond, 10*time.Millisecond, "exactly one initial sync")

	client.reconnect()
	assert.Len(t, client.messages(testTopics.ShadowGet()), 2, "reconnect requests a fresh sync")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shadow task did not stop")
	}
}

func TestShadowTask_ConnectFailure(t *testing.T) {
	rt, _ := newTestRuntime(t)
	client := newFakeMQTT()
	client.connectErr = mqtt.ErrConnectionFailed
	task := &shadowTask{
		rt:       rt,
		reports:  &reporterSlot{logger: logging.Discard()},
		log:      logging.Discard(),
		dialMQTT: func() (mqttClient, error) { return client, nil },
	}

	err := task.Run(context.Background())
	assert.ErrorIs(t, err, mqtt.ErrConnectionFailed)
	assert.True(t, client.isClosed())
}

func TestAgent_RunSupervisesTasks(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.Config.Supervisor.PollInterval = 1

	a, err := New(rt)
	require.NoError(t, err)

	var dials sync.WaitGroup
	dials.Add(1)
	var once sync.Once
	a.dialMQTT = func() (mqttClient, error) {
		once.Do(dials.Done)
		return newFakeMQTT(), nil
	}

	assert.ErrorIs(t, a.HealthCheck(context.Background()), ErrNoShadowSession)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	dials.Wait()
	require.Eventually(t, func() bool {
		for _, st := range a.Tasks() {
			if st.Status != "running" {
				return false
			}
		}
		return len(a.Tasks()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return a.HealthCheck(context.Background()) == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}
