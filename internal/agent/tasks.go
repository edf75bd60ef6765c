package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/crib-agent/internal/hardware"
	"github.com/nerrad567/crib-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/crib-agent/internal/shadow"
	"github.com/nerrad567/crib-agent/internal/state"
)

// Connection event names reported to metrics.
const (
	eventConnected   = "connected"
	eventInterrupted = "interrupted"
	eventResumed     = "resumed"
	eventFailed      = "failed"
)

// Buttons in configuration order.
const (
	buttonLights = 0
	buttonLEDs   = 1
)

// shadowTask owns one MQTT session and the reconciler riding on it. Every
// restart builds a fresh client, so a session whose resubscription was
// rejected is replaced from scratch.
type shadowTask struct {
	rt       *Runtime
	reports  *reporterSlot
	log      Logger
	dialMQTT func() (mqttClient, error)
}

// mqttClient is the part of *mqtt.Client the shadow task drives.
type mqttClient interface {
	shadow.Publisher
	Connect(ctx context.Context) error
	Close() error
	Fatal() <-chan error
	SetOnConnect(func())
	SetOnInterrupt(func(error))
	SetOnResume(func(mqtt.ConnectResult))
	SetLogger(mqtt.Logger)
}

func (t *shadowTask) Run(ctx context.Context) error {
	cfg := t.rt.Config
	topics := mqtt.Topics{Thing: t.rt.Thing}
	m := t.rt.Metrics

	client, err := t.dialMQTT()
	if err != nil {
		return err
	}
	defer client.Close()

	reconciler, err := shadow.New(shadow.Options{
		Topics:     topics,
		Publisher:  client,
		Dispatcher: t.rt.Dispatcher,
		QoS:        byte(cfg.MQTT.QoS),
		QueueSize:  cfg.Shadow.QueueSize,
		Logger:     t.rt.Logger.With("component", "shadow"),
		Observer:   m,
	})
	if err != nil {
		return err
	}

	client.SetLogger(t.rt.Logger.With("component", "mqtt"))
	client.SetOnInterrupt(func(error) {
		m.ObserveConnection(eventInterrupted, false)
	})
	client.SetOnResume(func(res mqtt.ConnectResult) {
		m.ObserveConnection(eventResumed, true)
		t.log.Info("shadow session resumed", "session_present", res.SessionPresent)
	})

	if err := client.Connect(ctx); err != nil {
		m.ObserveConnection(eventFailed, false)
		return err
	}
	m.ObserveConnection(eventConnected, true)
	if err := reconciler.Start(ctx); err != nil {
		return err
	}
	defer reconciler.Stop()

	// The first sync happens here, once subscribed. The connect callback is
	// installed afterwards so it only covers reconnects.
	if cfg.Shadow.SyncOnConnect {
		reconciler.Sync()
	}
	client.SetOnConnect(func() {
		m.ObserveConnection(eventConnected, true)
		if cfg.Shadow.SyncOnConnect {
			reconciler.Sync()
		}
	})

	var rep Reporter = reconciler
	t.reports.set(rep)
	defer t.reports.clear(rep)

	t.log.Info("shadow session running", "thing", t.rt.Thing)

	select {
	case <-ctx.Done():
		return nil
	case err := <-client.Fatal():
		m.ObserveConnection(eventFailed, false)
		return fmt.Errorf("shadow session failed: %w", err)
	}
}

// buttonTask turns long presses into toggles.
type buttonTask struct {
	rt      *Runtime
	reports Reporter
	log     Logger
}

func (t *buttonTask) Run(ctx context.Context) error {
	src := t.rt.Board.Buttons()
	if src == nil {
		<-ctx.Done()
		return nil
	}

	err := hardware.WatchButtons(ctx, src, t.rt.Config.LongPress(), func(button int) {
		t.toggle(ctx, button)
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (t *buttonTask) toggle(ctx context.Context, button int) {
	switch button {
	case buttonLights:
		current, err := state.Int(ctx, t.rt.Store, hardware.AttrLights, 0)
		if err != nil {
			t.log.Warn("reading lights for toggle", "error", err)
		}
		command := "on"
		if current != 0 {
			command = "off"
		}
		t.log.Info("button toggles lights", "command", command)
		t.apply(ctx, hardware.AttrLights, command)

	case buttonLEDs:
		current, err := state.Int(ctx, t.rt.Store, hardware.AttrRedLED, 0)
		if err != nil {
			t.log.Warn("reading red_led for toggle", "error", err)
		}
		command := "on"
		if current != 0 {
			command = "off"
		}
		t.log.Info("button toggles LEDs", "command", command)
		t.apply(ctx, hardware.AttrRedLED, command)
		t.apply(ctx, hardware.AttrIRLED, command)

	default:
		t.log.Debug("long press on unmapped button", "button", button)
	}
}

func (t *buttonTask) apply(ctx context.Context, name string, desired any) {
	applied, err := t.rt.Dispatcher.Dispatch(ctx, name, desired)
	if err != nil {
		t.log.Error("button command failed", "attribute", name, "error", err)
		return
	}
	t.reports.Report(name, applied)
}

// sensorTask reads and reports the read-only sensors on an interval.
type sensorTask struct {
	rt       *Runtime
	reports  Reporter
	log      Logger
	interval time.Duration
}

// sensorAttributes are polled by the sensor task.
var sensorAttributes = []string{hardware.AttrTemperature, hardware.AttrCPU}

func (t *sensorTask) Run(ctx context.Context) error {
	if t.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *sensorTask) poll(ctx context.Context) {
	for _, name := range sensorAttributes {
		value, err := t.rt.Dispatcher.Dispatch(ctx, name, nil)
		if err != nil {
			t.log.Warn("sensor read failed", "attribute", name, "error", err)
			continue
		}
		t.reports.Report(name, value)
	}
}
