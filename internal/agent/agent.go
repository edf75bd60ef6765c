package agent

import (
	"context"
	"errors"

	"github.com/nerrad567/crib-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/crib-agent/internal/supervisor"
)

// Task names.
const (
	TaskShadow  = "shadow"
	TaskButtons = "buttons"
	TaskSensors = "sensors"
)

// Agent runs the device agent's supervised tasks over a Runtime.
type Agent struct {
	rt      *Runtime
	sup     *supervisor.Supervisor
	reports *reporterSlot
	log     Logger

	dialMQTT func() (mqttClient, error)
}

// New builds an Agent. Call Run to start it.
func New(rt *Runtime) (*Agent, error) {
	log := rt.Logger.With("component", "agent")
	a := &Agent{
		rt:      rt,
		reports: &reporterSlot{logger: log},
		log:     log,
	}
	a.dialMQTT = a.newMQTTClient

	a.sup = supervisor.New(supervisor.Config{
		PollInterval: rt.Config.PollInterval(),
		OnRestart: func(name string, _ int) {
			rt.Metrics.ObserveRestart(name)
		},
	})
	a.sup.SetLogger(rt.Logger.With("component", "supervisor"))

	tasks := []struct {
		name    string
		factory supervisor.Factory
	}{
		{TaskShadow, func() (supervisor.Task, error) {
			return &shadowTask{rt: rt, reports: a.reports, log: log, dialMQTT: a.dialMQTT}, nil
		}},
		{TaskButtons, func() (supervisor.Task, error) {
			return &buttonTask{rt: rt, reports: a.reports, log: log}, nil
		}},
		{TaskSensors, func() (supervisor.Task, error) {
			return &sensorTask{rt: rt, reports: a.reports, log: log, interval: rt.Config.SensorInterval()}, nil
		}},
	}
	for _, task := range tasks {
		if err := a.sup.Add(task.name, task.factory); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) newMQTTClient() (mqttClient, error) {
	cfg := a.rt.Config.MQTT
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = a.rt.Thing
	}
	return mqtt.New(cfg, mqtt.Topics{Thing: a.rt.Thing}.Status())
}

// Run performs the startup sequence, then supervises the tasks until ctx
// is done.
func (a *Agent) Run(ctx context.Context) error {
	Bootstrap(ctx, a.rt.Dispatcher, a.log)
	return a.sup.Run(ctx)
}

// ErrNoShadowSession is returned by HealthCheck while no shadow session is live.
var ErrNoShadowSession = errors.New("agent: no shadow session")

// HealthCheck reports whether a shadow session is currently established.
func (a *Agent) HealthCheck(_ context.Context) error {
	if !a.reports.active() {
		return ErrNoShadowSession
	}
	return nil
}

// Tasks reports the state of each supervised task.
func (a *Agent) Tasks() []supervisor.Stats {
	return a.sup.Stats()
}
