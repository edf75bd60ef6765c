package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nerrad567/crib-agent/internal/dispatch"
	"github.com/nerrad567/crib-agent/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds the delta queue when Options.QueueSize is unset.
const defaultQueueSize = 32

// Phase is where one attribute of a delta is in its reconciliation.
type Phase string

// Attribute phases.
const (
	PhaseReceived    Phase = "received"
	PhaseDispatching Phase = "dispatching"
	PhaseReported    Phase = "reported"
	PhaseRejected    Phase = "rejected"
)

// Outcome is the final state of one attribute from a delta.
type Outcome struct {
	Attribute string
	Phase     Phase
	Applied   any
	Err       error
}

// Publisher is the subset of the MQTT client the reconciler uses.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishAsync(topic string, payload []byte, qos byte) *mqtt.Ack
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Dispatcher applies a desired value to one attribute.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, desired any) (any, error)
}

// Observer receives reconciliation counters (typically *metrics.Metrics).
type Observer interface {
	ObserveDelta(dropped bool)
	ObserveShadowUpdate(outcome string)
	ObserveShadowRejected()
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Reconciler.
type Options struct {
	Topics     mqtt.Topics
	Publisher  Publisher
	Dispatcher Dispatcher
	QoS        byte
	QueueSize  int
	Logger     Logger   // Optional
	Observer   Observer // Optional

	// NewToken generates client tokens; defaults to random UUIDs.
	NewToken func() string
}

// Kinds of publish whose acknowledgement is watched.
const (
	kindUpdate = "update"
	kindGet    = "get"
)

// pendingUpdate is an in-flight publish awaiting its acknowledgement.
type pendingUpdate struct {
	kind      string
	attribute string
	token     string
	ack       *mqtt.Ack
}

// Reconciler applies shadow deltas to the device and reports the result.
//
// Thread Safety: All methods are safe for concurrent use.
type Reconciler struct {
	topics     mqtt.Topics
	pub        Publisher
	dispatcher Dispatcher
	qos        byte
	observer   Observer
	newToken   func() string

	deltas chan DeltaDocument
	resync atomic.Bool

	// lifeMu orders ack watchers against Stop so wg.Add never races wg.Wait.
	lifeMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Reconciler. Call Start to subscribe and begin processing.
func New(opts Options) (*Reconciler, error) {
	if opts.Topics.Thing == "" {
		return nil, errors.New("shadow: thing name is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("shadow: publisher is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("shadow: dispatcher is required")
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	newToken := opts.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}

	return &Reconciler{
		topics:     opts.Topics,
		pub:        opts.Publisher,
		dispatcher: opts.Dispatcher,
		qos:        opts.QoS,
		observer:   opts.Observer,
		newToken:   newToken,
		deltas:     make(chan DeltaDocument, queueSize),
		logger:     opts.Logger,
	}, nil
}

// Start launches the delta worker, then subscribes to the shadow topics.
// The reconciler stops when ctx ends or Stop is called.
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("shadow: reconciler already started")
	}

	r.lifeMu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	r.lifeMu.Unlock()
	go r.processDeltas()

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{r.topics.ShadowDelta(), r.handleDelta},
		{r.topics.ShadowUpdateAccepted(), r.handleUpdateAccepted},
		{r.topics.ShadowUpdateRejected(), r.handleRejected},
		{r.topics.ShadowGetAccepted(), r.handleGetAccepted},
		{r.topics.ShadowGetRejected(), r.handleRejected},
	}
	for _, sub := range subscriptions {
		if err := r.pub.Subscribe(sub.topic, r.qos, sub.handler); err != nil {
			r.Stop()
			return fmt.Errorf("subscribe to %s: %w", sub.topic, err)
		}
		r.log().Info("subscribed to shadow topic", "topic", sub.topic)
	}

	return nil
}

// Stop stops taking new deltas, lets in-flight dispatches finish and waits
// for the worker and ack watchers.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.lifeMu.Lock()
		if r.cancel != nil {
			r.cancel()
		}
		r.lifeMu.Unlock()
		r.wg.Wait()
	})
}

// Sync requests the full shadow document. Any delta it carries is queued
// like a delta message, so changes made while offline are applied.
func (r *Reconciler) Sync() {
	token := r.newToken()
	payload, err := json.Marshal(getRequest{ClientToken: token})
	if err != nil {
		r.log().Error("encoding shadow get request", "error", err)
		return
	}
	ack := r.pub.PublishAsync(r.topics.ShadowGet(), payload, r.qos)
	r.watch(pendingUpdate{kind: kindGet, token: token, ack: ack})
}

// Report publishes a locally originated value for name as both reported
// and desired, so the cloud does not push the old desired value back.
func (r *Reconciler) Report(name string, value any) {
	r.publishUpdate(name, value)
}

// handleDelta runs on the MQTT router; it only parses and queues.
func (r *Reconciler) handleDelta(_ string, payload []byte) error {
	doc, err := ParseDelta(payload)
	if err != nil {
		r.observeDelta(true)
		return err
	}
	r.enqueue(doc)
	return nil
}

func (r *Reconciler) enqueue(doc DeltaDocument) {
	select {
	case r.deltas <- doc:
		r.observeDelta(false)
	default:
		// The next full sync recovers whatever this delta carried.
		r.resync.Store(true)
		r.observeDelta(true)
		r.log().Error("delta queue full, delta dropped",
			"version", doc.Version,
			"attributes", len(doc.State),
		)
	}
}

func (r *Reconciler) processDeltas() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case doc := <-r.deltas:
			r.log().Info("applying shadow delta", "version", doc.Version, "attributes", len(doc.State))
			r.Apply(r.ctx, doc.State)

			if len(r.deltas) == 0 && r.resync.CompareAndSwap(true, false) {
				r.Sync()
			}
		}
	}
}

// Apply reconciles every attribute of delta concurrently and returns when
// all of them have reached a final phase. Outcomes are ordered by name.
func (r *Reconciler) Apply(ctx context.Context, delta Delta) []Outcome {
	names := make([]string, 0, len(delta))
	for name := range delta {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]Outcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = r.reconcile(ctx, name, delta[name])
		}(i, name)
	}
	wg.Wait()

	return outcomes
}

func (r *Reconciler) reconcile(ctx context.Context, name string, desired any) Outcome {
	log := r.log()
	log.Debug("attribute phase", "attribute", name, "phase", PhaseReceived, "desired", desired)
	log.Debug("attribute phase", "attribute", name, "phase", PhaseDispatching)

	// Stopping the reconciler never interrupts a driver mid-command.
	applied, err := r.dispatcher.Dispatch(context.WithoutCancel(ctx), name, desired)
	switch {
	case err == nil:
		r.publishUpdate(name, applied)
		log.Info("attribute reported", "attribute", name, "value", applied)
		return Outcome{Attribute: name, Phase: PhaseReported, Applied: applied}

	case errors.Is(err, dispatch.ErrUnknownAttribute):
		r.publishUpdate(name, nil)
		log.Warn("attribute not supported, desired cleared", "attribute", name)
		return Outcome{Attribute: name, Phase: PhaseRejected, Err: err}

	default:
		log.Error("attribute driver failed, desired left pending", "attribute", name, "error", err)
		return Outcome{Attribute: name, Phase: PhaseRejected, Err: err}
	}
}

func (r *Reconciler) publishUpdate(name string, value any) {
	token := r.newToken()
	payload, err := json.Marshal(NewUpdate(name, value, token))
	if err != nil {
		r.log().Error("encoding shadow update", "attribute", name, "error", err)
		return
	}

	ack := r.pub.PublishAsync(r.topics.ShadowUpdate(), payload, r.qos)
	r.watch(pendingUpdate{kind: kindUpdate, attribute: name, token: token, ack: ack})
}

// watch observes p's acknowledgement on its own goroutine, so a publish
// stuck across a connection drop never delays the outcome of later ones.
func (r *Reconciler) watch(p pendingUpdate) {
	r.lifeMu.Lock()
	if r.ctx == nil || r.ctx.Err() != nil {
		r.lifeMu.Unlock()
		r.log().Debug("reconciler not running, outcome not tracked",
			"kind", p.kind, "attribute", p.attribute, "client_token", p.token)
		return
	}
	r.wg.Add(1)
	ctx := r.ctx
	r.lifeMu.Unlock()

	go r.observeAck(ctx, p)
}

func (r *Reconciler) observeAck(ctx context.Context, p pendingUpdate) {
	defer r.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-p.ack.Done():
	}

	if err := p.ack.Err(); err != nil {
		r.log().Error("shadow publish failed",
			"kind", p.kind, "attribute", p.attribute, "client_token", p.token, "error", err)
		if p.kind == kindUpdate {
			r.observeUpdate("error")
		}
		return
	}
	r.log().Debug("shadow publish acknowledged",
		"kind", p.kind, "attribute", p.attribute, "client_token", p.token)
	if p.kind == kindUpdate {
		r.observeUpdate("ok")
	}
}

func (r *Reconciler) handleUpdateAccepted(_ string, payload []byte) error {
	var doc struct {
		Version     int64  `json:"version"`
		ClientToken string `json:"clientToken"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("parsing update/accepted: %w", err)
	}
	r.log().Debug("shadow update accepted", "version", doc.Version, "client_token", doc.ClientToken)
	return nil
}

func (r *Reconciler) handleRejected(topic string, payload []byte) error {
	var doc ErrorDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", topic, err)
	}
	if r.observer != nil {
		r.observer.ObserveShadowRejected()
	}
	r.log().Error("shadow request rejected",
		"topic", topic, "code", doc.Code, "message", doc.Message, "client_token", doc.ClientToken)
	return nil
}

func (r *Reconciler) handleGetAccepted(_ string, payload []byte) error {
	var doc GetDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("parsing get/accepted: %w", err)
	}
	if len(doc.State.Delta) == 0 {
		r.log().Debug("shadow in sync", "version", doc.Version)
		return nil
	}
	r.log().Info("shadow sync found pending delta", "version", doc.Version, "attributes", len(doc.State.Delta))
	r.enqueue(DeltaDocument{Version: doc.Version, Timestamp: doc.Timestamp, State: doc.State.Delta})
	return nil
}

func (r *Reconciler) observeDelta(dropped bool) {
	if r.observer != nil {
		r.observer.ObserveDelta(dropped)
	}
}

func (r *Reconciler) observeUpdate(outcome string) {
	if r.observer != nil {
		r.observer.ObserveShadowUpdate(outcome)
	}
}

// SetLogger sets the reconciler's logger.
func (r *Reconciler) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Reconciler) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger == nil {
		return noopLogger{}
	}
	return r.logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
