package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
)

type connectOutcome struct {
	res ConnectResult
	err error
}

type publishedMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeSession is an in-memory broker connection.
type fakeSession struct {
	mu           sync.Mutex
	outcomes     []connectOutcome
	connectCalls int
	connected    bool
	subscribes   []string
	granted      map[string]byte
	subErr       map[string]error
	handlers     map[string]MessageHandler
	published    []publishedMsg
	disconnects  int
}

func newFakeSession(outcomes ...connectOutcome) *fakeSession {
	if len(outcomes) == 0 {
		outcomes = []connectOutcome{{}}
	}
	return &fakeSession{
		outcomes: outcomes,
		granted:  make(map[string]byte),
		subErr:   make(map[string]error),
		handlers: make(map[string]MessageHandler),
	}
}

func (f *fakeSession) connect() (ConnectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.connectCalls
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	f.connectCalls++
	out := f.outcomes[idx]
	if out.err == nil && out.res.ReturnCode == ReturnCodeAccepted {
		f.connected = true
	}
	return out.res, out.err
}

func (f *fakeSession) subscribe(topic string, qos byte, handler MessageHandler) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes = append(f.subscribes, topic)
	if err := f.subErr[topic]; err != nil {
		return SubackFailure, err
	}
	if g, ok := f.granted[topic]; ok {
		if g != SubackFailure {
			f.handlers[topic] = handler
		}
		return g, nil
	}
	f.handlers[topic] = handler
	return qos, nil
}

func (f *fakeSession) publish(topic string, qos byte, retained bool, payload []byte) *Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, qos: qos, retained: retained, payload: payload})
	return ResolvedAck(nil)
}

func (f *fakeSession) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeSession) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeSession) subscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

func (f *fakeSession) publishedTo(topic string) []publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMsg
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSession) deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return errors.New("no handler")
	}
	return h(topic, payload)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "crib-test"},
		QoS:    1,
	}
}

func newTestClient(t *testing.T, fake *fakeSession) *Client {
	t.Helper()
	c := newClient(testConfig(), "crib/test/status")
	c.session = fake
	c.initialDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func connectTestClient(t *testing.T, fake *fakeSession) *Client {
	t.Helper()
	c := newTestClient(t, fake)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnect_Success(t *testing.T) {
	fake := newFakeSession()
	c := newTestClient(t, fake)

	connected := make(chan struct{})
	c.SetOnConnect(func() { close(connected) })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if c.State() != StateConnected {
		t.Errorf("State() = %s, want %s", c.State(), StateConnected)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("onConnect callback not invoked")
	}

	status := fake.publishedTo("crib/test/status")
	if len(status) != 1 || !status[0].retained {
		t.Fatalf("expected one retained status publish, got %+v", status)
	}
	var payload statusPayload
	if err := json.Unmarshal(status[0].payload, &payload); err != nil {
		t.Fatalf("status payload not JSON: %v", err)
	}
	if payload.Status != "online" || payload.ClientID != "crib-test" {
		t.Errorf("status payload = %+v", payload)
	}
}

func TestConnect_Failure(t *testing.T) {
	fake := newFakeSession(connectOutcome{err: errors.New("connection refused")})
	c := newTestClient(t, fake)

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %s, want %s", c.State(), StateFailed)
	}
}

func TestConnect_RefusedReturnCode(t *testing.T) {
	fake := newFakeSession(connectOutcome{res: ConnectResult{ReturnCode: 5}})
	c := newTestClient(t, fake)

	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	c := newTestClient(t, newFakeSession())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() error = %v, want context.Canceled", err)
	}
}

func TestSubscribe(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, func(string, []byte) error { return nil }, ErrInvalidTopic},
		{"invalid qos", "a", 3, func(string, []byte) error { return nil }, ErrInvalidQoS},
		{"nil handler", "a", 1, nil, ErrSubscribeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := c.Subscribe("shadow/delta", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("shadow/delta") || c.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}
}

func TestSubscribe_RefusedNotTracked(t *testing.T) {
	fake := newFakeSession()
	fake.granted["forbidden"] = SubackFailure
	c := connectTestClient(t, fake)

	err := c.Subscribe("forbidden", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("forbidden") {
		t.Error("refused subscription should not be tracked")
	}
}

func TestSubscribe_NotConnected(t *testing.T) {
	c := newTestClient(t, newFakeSession())
	if err := c.Subscribe("a", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func subscribeAll(t *testing.T, c *Client, topics ...string) {
	t.Helper()
	for _, topic := range topics {
		if err := c.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
}

func TestResume_SessionPresentSkipsResubscribe(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)
	subscribeAll(t, c, "delta", "accepted")

	c.handleResume(ConnectResult{SessionPresent: true})

	if got := len(fake.subscribeCalls()); got != 2 {
		t.Errorf("subscribe calls = %d, want 2 (no resubscription)", got)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want %s", c.State(), StateConnected)
	}
}

func TestResume_NoSessionResubscribesEachOnce(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)
	subscribeAll(t, c, "delta", "accepted", "rejected")

	c.handleResume(ConnectResult{SessionPresent: false})

	calls := fake.subscribeCalls()
	if len(calls) != 6 {
		t.Fatalf("subscribe calls = %v, want each topic twice in total", calls)
	}
	seen := map[string]int{}
	for _, topic := range calls[3:] {
		seen[topic]++
	}
	for _, topic := range []string{"delta", "accepted", "rejected"} {
		if seen[topic] != 1 {
			t.Errorf("topic %s resubscribed %d times, want 1", topic, seen[topic])
		}
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want %s", c.State(), StateConnected)
	}
}

func TestResume_RejectedResubscribeIsFatal(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)
	subscribeAll(t, c, "delta", "accepted")

	fake.mu.Lock()
	fake.granted["delta"] = SubackFailure
	fake.mu.Unlock()

	c.handleResume(ConnectResult{SessionPresent: false})

	if c.State() != StateFailed {
		t.Errorf("State() = %s, want %s", c.State(), StateFailed)
	}
	select {
	case err := <-c.Fatal():
		if !errors.Is(err, ErrResubscribeRejected) {
			t.Errorf("fatal error = %v, want ErrResubscribeRejected", err)
		}
	default:
		t.Fatal("expected fatal error")
	}

	// Both topics were still attempted.
	if got := len(fake.subscribeCalls()); got != 4 {
		t.Errorf("subscribe calls = %d, want 4", got)
	}
}

func TestResume_TransportErrorIsFatal(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)
	subscribeAll(t, c, "delta")

	fake.mu.Lock()
	fake.subErr["delta"] = ErrTimeout
	fake.mu.Unlock()

	c.handleResume(ConnectResult{SessionPresent: false})

	select {
	case err := <-c.Fatal():
		if !errors.Is(err, ErrResubscribeRejected) {
			t.Errorf("fatal error = %v", err)
		}
	default:
		t.Fatal("expected fatal error")
	}
}

func TestInterrupt_ReconnectsAndResubscribes(t *testing.T) {
	fake := newFakeSession(
		connectOutcome{},
		connectOutcome{err: errors.New("network unreachable")},
		connectOutcome{res: ConnectResult{SessionPresent: false}},
	)
	c := connectTestClient(t, fake)
	subscribeAll(t, c, "delta")

	var interrupted, resumed sync.WaitGroup
	interrupted.Add(1)
	resumed.Add(1)
	c.SetOnInterrupt(func(error) {
		if c.IsConnected() {
			t.Error("IsConnected() = true while interrupted")
		}
		interrupted.Done()
	})
	c.SetOnResume(func(res ConnectResult) {
		if res.SessionPresent {
			t.Error("expected session_present=false")
		}
		resumed.Done()
	})

	fake.drop()
	c.handleInterrupt(errors.New("EOF"))
	interrupted.Wait()
	resumed.Wait()
	waitFor(t, "state connected", func() bool { return c.State() == StateConnected })

	if got := fake.subscribeCalls(); len(got) != 2 || got[1] != "delta" {
		t.Errorf("subscribe calls = %v, want delta resubscribed", got)
	}
	fake.mu.Lock()
	calls := fake.connectCalls
	fake.mu.Unlock()
	if calls != 3 {
		t.Errorf("connect calls = %d, want 3", calls)
	}
}

func TestPublishAsync(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	ack := c.PublishAsync("shadow/update", []byte(`{}`), 1)
	<-ack.Done()
	if err := ack.Err(); err != nil {
		t.Fatalf("ack error = %v", err)
	}
	if got := fake.publishedTo("shadow/update"); len(got) != 1 || got[0].retained {
		t.Errorf("published = %+v", got)
	}

	if err := c.PublishAsync("", nil, 1).Err(); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic ack error = %v", err)
	}
	if err := c.PublishAsync("t", make([]byte, maxPayloadSize+1), 1).Err(); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized ack error = %v", err)
	}
}

func TestPublishAsync_NotConnected(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)
	fake.drop()

	ack := c.PublishAsync("shadow/update", []byte(`{}`), 1)
	select {
	case <-ack.Done():
	default:
		t.Fatal("ack should resolve immediately when disconnected")
	}
	if !errors.Is(ack.Err(), ErrNotConnected) {
		t.Errorf("ack error = %v, want ErrNotConnected", ack.Err())
	}
}

func TestPublish_Sync(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	if err := c.Publish(context.Background(), "shadow/get", []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.Publish(context.Background(), "shadow/get", nil, 5, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	if err := c.Subscribe("boom", 1, func(string, []byte) error { panic("bad payload") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := fake.deliver("boom", []byte("x")); err != nil {
		t.Errorf("wrapped handler returned %v", err)
	}
}

func TestClose(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	status := fake.publishedTo("crib/test/status")
	if len(status) != 2 {
		t.Fatalf("status publishes = %d, want online and offline", len(status))
	}
	var payload statusPayload
	if err := json.Unmarshal(status[1].payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Status != "offline" || payload.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", payload)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want %s", c.State(), StateDisconnected)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close = %v, want ErrClosed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	fake := newFakeSession()
	c := connectTestClient(t, fake)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	fake.drop()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestAck(t *testing.T) {
	ack := NewAck()
	if ack.Err() != nil {
		t.Error("unresolved ack should report nil error")
	}

	want := errors.New("puback timeout")
	ack.Resolve(want)
	ack.Resolve(nil)
	if !errors.Is(ack.Err(), want) {
		t.Errorf("Err() = %v, want first resolution", ack.Err())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewAck().Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlive = 30

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.CleanSession {
		t.Error("CleanSession should follow config (false)")
	}
	if opts.AutoReconnect {
		t.Error("paho auto-reconnect must be disabled")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}

	cfg.TLS.Enabled = true
	cfg.TLS.CAFile = "/nonexistent/ca.pem"
	if _, err := buildClientOptions(cfg); err == nil {
		t.Error("expected error for missing CA file")
	}
}
