package mqtt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
)

// State is the connection lifecycle state of a Client.
type State string

// Lifecycle states.
const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateInterrupted   State = "interrupted"
	StateResubscribing State = "resubscribing"
	StateFailed        State = "failed"
)

// ReturnCodeAccepted is the CONNACK code for an accepted connection.
const ReturnCodeAccepted byte = 0

// Client wraps paho.mqtt.golang with the lifecycle the shadow agent needs.
//
// The client keeps a persistent session (clean_session=false) and does its
// own reconnecting. On every resume it checks the broker's session-present
// flag: when the broker kept the session nothing is resent; when it did not,
// every tracked subscription is resubscribed individually. If any
// resubscription is refused the client enters StateFailed and reports the
// error on Fatal.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	session     session
	cfg         config.MQTTConfig
	statusTopic string

	// subscriptions tracks active subscriptions for resubscription on resume.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	onConnect   func()
	onInterrupt func(err error)
	onResume    func(res ConnectResult)
	callbackMu  sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	reconnect chan struct{}
	fatal     chan error
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	initialDelay time.Duration
	maxDelay     time.Duration
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details for resubscription on resume.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's router one message at a time and must not block:
// hand the payload to a worker and return.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New builds a Client for the broker in cfg. statusTopic receives retained
// online/offline payloads and the Last Will; it may be empty.
//
// New does not open a connection; call Connect.
func New(cfg config.MQTTConfig, statusTopic string) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	configureLWT(opts, statusTopic, cfg.Broker.ClientID)

	c := newClient(cfg, statusTopic)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleInterrupt(err)
	})
	c.session = &pahoSession{client: pahomqtt.NewClient(opts)}

	return c, nil
}

func newClient(cfg config.MQTTConfig, statusTopic string) *Client {
	initial := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	if maxDelay < initial {
		maxDelay = initial
	}

	return &Client{
		cfg:           cfg,
		statusTopic:   statusTopic,
		subscriptions: make(map[string]subscription),
		state:         StateDisconnected,
		logger:        noopLogger{},
		reconnect:     make(chan struct{}, 1),
		fatal:         make(chan error, 1),
		closed:        make(chan struct{}),
		initialDelay:  initial,
		maxDelay:      maxDelay,
	}
}

// Connect opens the initial connection. A failure here is terminal for
// this Client (StateFailed); the caller decides whether to build a new one.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setState(StateConnecting)
	res, err := c.session.connect()
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if res.ReturnCode != ReturnCodeAccepted {
		c.setState(StateFailed)
		return fmt.Errorf("%w: return code %d", ErrConnectionFailed, res.ReturnCode)
	}

	c.log().Info("mqtt connected",
		"broker", c.cfg.Broker.Host,
		"client_id", c.cfg.Broker.ClientID,
		"session_present", res.SessionPresent,
	)
	c.setState(StateConnected)

	c.wg.Add(1)
	go c.superviseConnection()

	c.publishStatus("online", "")
	c.notifyConnected()
	return nil
}

// handleInterrupt runs on paho's connection-lost callback.
func (c *Client) handleInterrupt(err error) {
	if c.isClosed() {
		return
	}

	c.setState(StateInterrupted)
	c.log().Warn("mqtt connection interrupted", "error", err)

	c.callbackMu.RLock()
	callback := c.onInterrupt
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// superviseConnection waits for interruptions and drives each reconnect.
func (c *Client) superviseConnection() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closed:
			return
		case <-c.reconnect:
		}

		res, ok := c.reconnectWithBackoff()
		if !ok {
			return
		}
		c.handleResume(res)
		if c.State() == StateFailed {
			return
		}
	}
}

// reconnectWithBackoff retries until the broker accepts or the client closes.
func (c *Client) reconnectWithBackoff() (ConnectResult, bool) {
	delay := c.initialDelay
	for attempt := 1; ; attempt++ {
		if c.isClosed() {
			return ConnectResult{}, false
		}

		res, err := c.session.connect()
		if err == nil && res.ReturnCode == ReturnCodeAccepted {
			return res, true
		}
		if err == nil {
			err = fmt.Errorf("return code %d", res.ReturnCode)
		}
		c.log().Warn("mqtt reconnect attempt failed", "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-c.closed:
			return ConnectResult{}, false
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxDelay)
	}
}

// handleResume applies the session-present rule to an accepted reconnect.
func (c *Client) handleResume(res ConnectResult) {
	c.log().Info("mqtt connection resumed",
		"return_code", res.ReturnCode,
		"session_present", res.SessionPresent,
	)

	c.callbackMu.RLock()
	callback := c.onResume
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(res)
	}

	if !res.SessionPresent {
		c.setState(StateResubscribing)
		if err := c.resubscribeAll(); err != nil {
			c.fail(err)
			return
		}
	}

	c.setState(StateConnected)
	c.publishStatus("online", "")
	c.notifyConnected()
}

// resubscribeAll issues one SUBSCRIBE per tracked topic and checks every
// SUBACK. All topics are attempted before the result is judged.
func (c *Client) resubscribeAll() error {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].topic < subs[j].topic })

	var rejected []string
	for _, sub := range subs {
		granted, err := c.session.subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		switch {
		case err != nil:
			c.log().Error("mqtt resubscribe failed", "topic", sub.topic, "error", err)
			rejected = append(rejected, sub.topic)
		case granted == SubackFailure:
			c.log().Error("mqtt resubscribe rejected by broker", "topic", sub.topic)
			rejected = append(rejected, sub.topic)
		default:
			c.log().Info("mqtt resubscribed", "topic", sub.topic, "granted_qos", granted)
		}
	}

	if len(rejected) > 0 {
		return fmt.Errorf("%w: %s", ErrResubscribeRejected, strings.Join(rejected, ", "))
	}
	return nil
}

// fail moves the client to StateFailed and reports err on Fatal.
func (c *Client) fail(err error) {
	c.setState(StateFailed)
	c.log().Error("mqtt client failed", "error", err)
	select {
	case c.fatal <- err:
	default:
	}
}

// Fatal delivers the error that put the client in StateFailed. The owner
// should close the client and build a fresh one.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

func (c *Client) notifyConnected() {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		go callback()
	}
}

func (c *Client) publishStatus(status, reason string) *Ack {
	if c.statusTopic == "" {
		return ResolvedAck(nil)
	}
	return c.session.publish(c.statusTopic, 1, true, buildStatusPayload(status, c.cfg.Broker.ClientID, reason))
}

// Close publishes a graceful offline status, disconnects and stops the
// reconnect loop. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.session == nil {
			return
		}

		if c.session.isConnected() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
			c.publishStatus("offline", "graceful_shutdown").Wait(ctx) //nolint:errcheck // Best effort on shutdown
			cancel()
		}
		c.session.disconnect(defaultDisconnectQuiesce)
		c.setState(StateDisconnected)
	})
	c.wg.Wait()
	return nil
}

// HealthCheck reports whether the client is connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: state %s", ErrNotConnected, c.State())
	}
	return nil
}

// IsConnected reports whether publishes can currently be sent.
func (c *Client) IsConnected() bool {
	switch c.State() {
	case StateConnected, StateResubscribing:
		return c.session != nil && c.session.isConnected()
	default:
		return false
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SetOnConnect sets a callback invoked, in its own goroutine, after the
// initial connect and after every successful resume.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnInterrupt sets a callback invoked when the connection drops.
func (c *Client) SetOnInterrupt(callback func(err error)) {
	c.callbackMu.Lock()
	c.onInterrupt = callback
	c.callbackMu.Unlock()
}

// SetOnResume sets a callback invoked with each accepted reconnect's
// CONNACK, before any resubscription.
func (c *Client) SetOnResume(callback func(res ConnectResult)) {
	c.callbackMu.Lock()
	c.onResume = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger used for lifecycle events and handler errors.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to a MessageHandler.
func (c *Client) wrapHandler(handler MessageHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		if err := handler(topic, payload); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
		return nil
	}
}
